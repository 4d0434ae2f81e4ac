package generation

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// CommandRunner executes a command and returns its standard output.
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

// An Enumerator lists the generations tracked in the nix profile store.
type Enumerator struct {
	// ProfileDir is the root of the profile store, normally
	// /nix/var/nix/profiles.
	ProfileDir string

	// Nix is the nix-env executable used to list generations.
	Nix string

	// Limit caps the number of generations kept per profile, newest
	// last. Zero or negative keeps everything.
	Limit int

	// Runner is replaceable for tests; nil means real execution.
	Runner CommandRunner
}

// List returns the generations of the given profile, oldest first,
// truncated to the newest Limit entries. A profile without generations
// yields an empty list.
func (e *Enumerator) List(profile string) ([]SystemIdentifier, error) {
	profilePath := filepath.Join(e.ProfileDir, "system")
	if profile != "" {
		profilePath = filepath.Join(e.ProfileDir, "system-profiles", profile)
	}

	run := e.Runner
	if run == nil {
		run = runCommand
	}
	out, err := run(e.Nix, "--list-generations", "-p", profilePath)
	if err != nil {
		return nil, fmt.Errorf("error listing generations for %s: %v", profilePath, err)
	}

	var generations []SystemIdentifier
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		number, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("unexpected nix-env output line %q: %v", line, err)
		}
		generations = append(generations, SystemIdentifier{
			Profile:    profile,
			Generation: number,
		})
	}

	if e.Limit > 0 && len(generations) > e.Limit {
		generations = generations[len(generations)-e.Limit:]
	}
	return generations, nil
}

// Profiles returns the names of all non-default system profiles. A
// missing system-profiles directory yields an empty list.
func (e *Enumerator) Profiles() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(e.ProfileDir, "system-profiles"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var profiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), "-link") {
			continue
		}
		profiles = append(profiles, entry.Name())
	}
	return profiles, nil
}
