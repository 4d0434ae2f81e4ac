// Package bootctl wraps the systemd bootctl tool, which installs and
// updates the systemd-boot binary on the EFI system partition. The rest
// of the program only depends on the narrow install and
// update-if-stale operations, never on bootctl's output format.
package bootctl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

// ErrNotInstalled means no systemd-boot binary could be found on the
// ESP during an update run.
var ErrNotInstalled = errors.New("could not find any previously installed systemd-boot. " +
	"If you are switching to systemd-boot from a different bootloader, " +
	"you need to run `nixos-rebuild switch --install-bootloader`")

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

// Bootctl invokes the systemd bootctl binary against a particular ESP.
type Bootctl struct {
	Executable     string
	ESPMountPoint  string
	BootMountPoint string

	// CanTouchEfiVariables permits bootctl to write EFI variables;
	// otherwise it runs with --no-variables.
	CanTouchEfiVariables bool

	// Graceful makes install succeed on an already-initialized ESP.
	Graceful bool

	// Runner is replaceable for tests; nil means real execution.
	Runner CommandRunner
}

func (b *Bootctl) run(arg ...string) ([]byte, error) {
	run := b.Runner
	if run == nil {
		run = runCommand
	}
	return run(b.Executable, arg...)
}

func (b *Bootctl) flags() []string {
	var flags []string
	if b.BootMountPoint != b.ESPMountPoint {
		flags = append(flags, "--boot-path="+b.BootMountPoint)
	}
	if !b.CanTouchEfiVariables {
		flags = append(flags, "--no-variables")
	}
	if b.Graceful {
		flags = append(flags, "--graceful")
	}
	return flags
}

// Install installs systemd-boot onto the ESP. It is safe on a virgin
// partition and, with Graceful set, on an already-initialized one.
// loaderConf is removed first: bootctl opens it with O_EXCL and would
// fail if it exists.
func (b *Bootctl) Install(loaderConf string) error {
	if err := os.Remove(loaderConf); err != nil && !os.IsNotExist(err) {
		return err
	}

	args := append([]string{"--esp-path=" + b.ESPMountPoint}, b.flags()...)
	args = append(args, "install")
	if _, err := b.run(args...); err != nil {
		return fmt.Errorf("error installing systemd-boot: %v", err)
	}
	return nil
}

// See status_binaries() in systemd's bootctl.c for the code generating
// the matched line. The tree-drawing prefix and an optional HashTool
// line both occur in the wild.
var installedRe = regexp.MustCompile(`(?im)^\W+.*/EFI/(?:BOOT|systemd)/.*\.efi \(systemd-boot ([\d.]+[^)]*)\)$`)

var availableRe = regexp.MustCompile(`^\((.*)\)$`)

// InstalledVersion extracts the version of the systemd-boot binary
// present on the ESP from bootctl status output. ErrNotInstalled is
// returned when no binary is reported.
func (b *Bootctl) InstalledVersion() (string, error) {
	out, err := b.run("--esp-path="+b.ESPMountPoint, "status")
	if err != nil {
		return "", fmt.Errorf("error querying bootctl status: %v", err)
	}
	m := installedRe.FindSubmatch(out)
	if m == nil {
		return "", ErrNotInstalled
	}
	return string(m[1]), nil
}

// AvailableVersion extracts the version the installed systemd package
// would write, from bootctl --version output.
func (b *Bootctl) AvailableVersion() (string, error) {
	out, err := b.run("--version")
	if err != nil {
		return "", fmt.Errorf("error querying bootctl version: %v", err)
	}
	fields := strings.Fields(string(out))
	if len(fields) < 3 {
		return "", fmt.Errorf("unexpected bootctl --version output: %q", out)
	}
	m := availableRe.FindStringSubmatch(fields[2])
	if m == nil {
		return "", fmt.Errorf("could not determine systemd-boot version from %q", fields[2])
	}
	return m[1], nil
}

// Update refreshes the systemd-boot binary when the installed copy is
// older than the one shipped with systemd.
func (b *Bootctl) Update() error {
	installed, err := b.InstalledVersion()
	if err != nil {
		return err
	}
	available, err := b.AvailableVersion()
	if err != nil {
		return err
	}

	if !versionLess(installed, available) {
		return nil
	}

	logrus.Infof("updating systemd-boot from %s to %s", installed, available)
	args := append([]string{"--esp-path=" + b.ESPMountPoint}, b.flags()...)
	args = append(args, "update")
	if _, err := b.run(args...); err != nil {
		return fmt.Errorf("error updating systemd-boot: %v", err)
	}
	return nil
}

// versionLess orders systemd-boot versions. Dotted versions compare
// semantically ("255.2" < "256"); strings that don't parse as versions
// fall back to lexical order.
func versionLess(installed, available string) bool {
	vi, erri := version.NewVersion(installed)
	va, erra := version.NewVersion(available)
	if erri == nil && erra == nil {
		return vi.LessThan(va)
	}
	return installed < available
}
