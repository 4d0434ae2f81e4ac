package entry

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/bootgen/internal/bootspec"
	"github.com/osbuild/bootgen/internal/esp"
	"github.com/osbuild/bootgen/internal/generation"
)

// HookRunner executes an external hook, passing its output through.
type HookRunner func(name string, arg ...string) error

func runHook(name string, arg ...string) error {
	cmd := exec.Command(name, arg...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// A Writer persists boot entries for generations. It materializes the
// kernel, initrd and device tree through the Materializer and writes
// each entry atomically, so the entries directory never observes a
// partially written file.
type Writer struct {
	Materializer *esp.Materializer
	EntriesDir   string
	ProfileDir   string
	DistroName   string

	// MachineID restricts the entry to this machine when set.
	MachineID string

	// Runner executes the initrd-secrets hook; nil means real
	// execution.
	Runner HookRunner
}

// Write renders and persists the entry for the identifier. When the
// identifier names a specialisation, the nested boot specification is
// used. isDefault marks the generation that is about to become the
// default: a failing initrd-secrets hook is fatal for it, and only a
// warning for older generations, which keeps the machine bootable into
// the current default.
func (w *Writer) Write(id generation.SystemIdentifier, spec *bootspec.BootSpec, isDefault bool) error {
	if id.Specialisation != "" {
		sub, ok := spec.Specialisations[id.Specialisation]
		if !ok {
			return fmt.Errorf("%s not declared by its generation", id)
		}
		spec = sub
	}

	kernel, err := w.Materializer.Materialize(spec.Kernel, false)
	if err != nil {
		return err
	}
	initrd, err := w.Materializer.Materialize(spec.Initrd, false)
	if err != nil {
		return err
	}
	var devicetree string
	if spec.Devicetree != "" {
		devicetree, err = w.Materializer.Materialize(spec.Devicetree, false)
		if err != nil {
			return err
		}
	}

	title := w.DistroName
	if id.Profile != "" {
		title += fmt.Sprintf(" [%s]", id.Profile)
	}
	if id.Specialisation != "" {
		title += fmt.Sprintf(" (%s)", id.Specialisation)
	}

	if spec.InitrdSecrets != "" {
		err := w.runSecretsHook(spec.InitrdSecrets, initrd, id, title, isDefault)
		if err != nil {
			return err
		}
	}

	options := fmt.Sprintf("init=%s", spec.Init)
	for _, param := range spec.KernelParams {
		options += " " + param
	}

	entry := Entry{
		Title:      title,
		SortKey:    spec.SortKey,
		Version:    fmt.Sprintf("Generation %d %s, built on %s", id.Generation, spec.Label, w.buildDate(id)),
		Linux:      kernel,
		Initrd:     initrd,
		Options:    options,
		MachineID:  w.MachineID,
		Devicetree: devicetree,
	}

	filename := filepath.Join(w.EntriesDir, Filename(id))
	return esp.WriteFileAtomic(filename, entry.Render(), 0644)
}

func (w *Writer) runSecretsHook(hook, initrd string, id generation.SystemIdentifier, title string, isDefault bool) error {
	run := w.Runner
	if run == nil {
		run = runHook
	}
	err := run(hook, filepath.Join(w.Materializer.BootMountPoint, initrd))
	if err == nil {
		return nil
	}
	if isDefault {
		return fmt.Errorf("failed to create initrd secrets for %s: %v", id, err)
	}
	logrus.Warnf("failed to create initrd secrets for %q, generation %d, an older generation", title, id.Generation)
	logrus.Warn("note: this is normal after having removed or renamed a file in `boot.initrd.secrets`")
	return nil
}

// buildDate is the day the generation appeared in the profile store,
// shown in the entry's version line.
func (w *Writer) buildDate(id generation.SystemIdentifier) string {
	info, err := os.Stat(id.SystemDir(w.ProfileDir))
	if err != nil {
		return "unknown"
	}
	return info.ModTime().Format("2006-01-02")
}
