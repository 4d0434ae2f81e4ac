package reconcile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/osbuild/bootgen/internal/bootspec"
	"github.com/osbuild/bootgen/internal/entry"
	"github.com/osbuild/bootgen/internal/generation"
)

// Entry files this tool considers its own. Everything else in the
// entries directory is left alone.
var managedEntry = glob.MustCompile("nixos*-generation-[1-9]*.conf")

type profileGeneration struct {
	profile    string
	generation int
}

// removeStaleEntries deletes every managed entry file whose decoded
// identifier is no longer in the working set. Specialisation entries
// live and die with their generation.
func (r *Reconciler) removeStaleEntries(working []generation.SystemIdentifier) error {
	keep := make(map[profileGeneration]bool, len(working))
	for _, gen := range working {
		keep[profileGeneration{gen.Profile, gen.Generation}] = true
	}

	dir := r.Config.EntriesDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if !managedEntry.Match(name) {
			continue
		}
		id, ok := entry.ParseFilename(name)
		if !ok {
			continue
		}
		if keep[profileGeneration{id.Profile, id.Generation}] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// removeStaleArtifacts deletes every file in the managed artifacts
// directory that no boot specification of the working set references.
// Directories are left untouched.
func (r *Reconciler) removeStaleArtifacts(working []generation.SystemIdentifier, specs map[generation.SystemIdentifier]*bootspec.BootSpec) error {
	known := make(map[string]bool)
	for _, gen := range working {
		if err := r.referencedArtifacts(specs[gen], known); err != nil {
			return err
		}
	}

	dir := r.Config.ArtifactsDir()
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		path := filepath.Join(dir, file.Name())
		if known[path] {
			continue
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// referencedArtifacts records the materialized destinations of the
// spec's kernel, initrd and device tree, descending into
// specialisations.
func (r *Reconciler) referencedArtifacts(spec *bootspec.BootSpec, known map[string]bool) error {
	for _, storePath := range []string{spec.Kernel, spec.Initrd, spec.Devicetree} {
		if storePath == "" {
			continue
		}
		dest, err := r.Materializer.Materialize(storePath, true)
		if err != nil {
			return err
		}
		known[filepath.Join(r.Config.BootMountPoint, dest)] = true
	}
	for _, sub := range spec.Specialisations {
		if err := r.referencedArtifacts(sub, known); err != nil {
			return err
		}
	}
	return nil
}

// cleanupESP purges all managed files from the EFI system partition.
// Once entries live on a separate XBOOTLDR partition, nothing of ours
// needs to persist on the ESP.
func (r *Reconciler) cleanupESP() error {
	dir := filepath.Join(r.Config.ESPMountPoint, "loader", "entries")
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, ent := range entries {
		if !strings.HasPrefix(ent.Name(), "nixos") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, ent.Name())); err != nil {
			return err
		}
	}

	return os.RemoveAll(filepath.Join(r.Config.ESPMountPoint, r.Config.NixosDir))
}
