package entry

import (
	"fmt"
	"strings"

	"github.com/osbuild/bootgen/internal/esp"
)

// LoaderConf is the single loader.conf record naming the entry that
// boots by default, plus the global loader settings. It is replaced
// wholesale on every run.
type LoaderConf struct {
	Timeout            int
	Default            string // entry filename
	Editor             bool
	RebootForBitlocker bool
	ConsoleMode        string
}

func (l *LoaderConf) Render() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "timeout %d\n", l.Timeout)
	fmt.Fprintf(&b, "default %s\n", l.Default)
	if !l.Editor {
		b.WriteString("editor 0\n")
	}
	if l.RebootForBitlocker {
		b.WriteString("reboot-for-bitlocker yes\n")
	}
	fmt.Fprintf(&b, "console-mode %s\n", l.ConsoleMode)
	return []byte(b.String())
}

// WriteLoaderConf atomically replaces the loader configuration at path.
func WriteLoaderConf(path string, conf *LoaderConf) error {
	return esp.WriteFileAtomic(path, conf.Render(), 0644)
}
