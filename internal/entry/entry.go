// Package entry renders and persists systemd-boot entry files for
// system generations, plus the loader.conf naming the default entry.
package entry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/osbuild/bootgen/internal/generation"
)

// An Entry is one boot-entry record in the systemd-boot entry catalog.
// Fields are rendered in the fixed order systemd-boot documents them.
type Entry struct {
	Title      string
	SortKey    string
	Version    string
	Linux      string
	Initrd     string
	Options    string
	MachineID  string // optional
	Devicetree string // optional
}

func (e *Entry) Render() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "title %s\n", e.Title)
	fmt.Fprintf(&b, "sort-key %s\n", e.SortKey)
	fmt.Fprintf(&b, "version %s\n", e.Version)
	fmt.Fprintf(&b, "linux %s\n", e.Linux)
	fmt.Fprintf(&b, "initrd %s\n", e.Initrd)
	fmt.Fprintf(&b, "options %s\n", e.Options)
	if e.MachineID != "" {
		fmt.Fprintf(&b, "machine-id %s\n", e.MachineID)
	}
	if e.Devicetree != "" {
		fmt.Fprintf(&b, "devicetree %s\n", e.Devicetree)
	}
	return []byte(b.String())
}

// Filename derives the deterministic entry filename for an identifier,
// e.g. nixos-generation-42.conf or
// nixos-home-generation-7-specialisation-debug.conf.
func Filename(id generation.SystemIdentifier) string {
	pieces := []string{"nixos"}
	if id.Profile != "" {
		pieces = append(pieces, id.Profile)
	}
	pieces = append(pieces, "generation", strconv.Itoa(id.Generation))
	if id.Specialisation != "" {
		pieces = append(pieces, "specialisation-"+id.Specialisation)
	}
	return strings.Join(pieces, "-") + ".conf"
}

var (
	filenameProfile    = regexp.MustCompile(`^nixos-(.*)-generation-.*\.conf$`)
	filenameGeneration = regexp.MustCompile(`^nixos.*-generation-([0-9]+)(-specialisation-(.*))?\.conf$`)
)

// ParseFilename decodes an entry filename back into an identifier. It
// reports false for files that do not follow the naming convention, so
// foreign files in the entries directory are never touched.
func ParseFilename(name string) (generation.SystemIdentifier, bool) {
	m := filenameGeneration.FindStringSubmatch(name)
	if m == nil {
		return generation.SystemIdentifier{}, false
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return generation.SystemIdentifier{}, false
	}

	var profile string
	if pm := filenameProfile.FindStringSubmatch(name); pm != nil {
		profile = pm[1]
	}

	return generation.SystemIdentifier{
		Profile:        profile,
		Generation:     number,
		Specialisation: m[3],
	}, true
}
