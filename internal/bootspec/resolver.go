package bootspec

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// CommandRunner executes a command and returns its standard output.
// Stderr is passed through to the caller's stderr.
type CommandRunner func(name string, arg ...string) ([]byte, error)

func runCommand(name string, arg ...string) ([]byte, error) {
	cmd := exec.Command(name, arg...)
	cmd.Stderr = os.Stderr

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// A Resolver produces the boot specification for a generation's system
// directory, either from the boot.json cached inside the closure or by
// invoking the external synthesiser tool.
type Resolver struct {
	// Synthesize is the path of the bootspec synthesiser, used for
	// generations old enough to predate cached descriptors.
	Synthesize string

	// Runner is replaceable for tests; nil means real execution.
	Runner CommandRunner
}

// Resolve returns the boot specification for systemDirectory.
func (r *Resolver) Resolve(systemDirectory string) (*BootSpec, error) {
	bootJSON := filepath.Join(systemDirectory, "boot.json")

	data, err := os.ReadFile(bootJSON)
	if err == nil {
		spec, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", bootJSON, err)
		}
		return spec, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	run := r.Runner
	if run == nil {
		run = runCommand
	}
	out, err := run(r.Synthesize, "--version", "1", systemDirectory, "/dev/stdout")
	if err != nil {
		return nil, fmt.Errorf("error synthesizing boot specification for %s: %v", systemDirectory, err)
	}
	spec, err := Parse(out)
	if err != nil {
		return nil, fmt.Errorf("synthesiser output for %s: %w", systemDirectory, err)
	}
	return spec, nil
}
