// Package reconcile drives one reconciliation run: it makes the boot
// partition's entry catalog match the set of installed system
// generations, removes everything stale, and points the loader at the
// new default. A run is idempotent and safe to interrupt; the next
// successful run converges the catalog regardless of what partial state
// an interrupted one left behind.
package reconcile

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/bootgen/internal/bootctl"
	"github.com/osbuild/bootgen/internal/bootspec"
	"github.com/osbuild/bootgen/internal/config"
	"github.com/osbuild/bootgen/internal/entry"
	"github.com/osbuild/bootgen/internal/esp"
	"github.com/osbuild/bootgen/internal/generation"
)

// HookRunner executes an external collaborator script, passing its
// output through.
type HookRunner func(name string, arg ...string) error

func runHook(name string, arg ...string) error {
	cmd := exec.Command(name, arg...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// A Reconciler owns one run of the generation-to-entry reconciliation.
type Reconciler struct {
	Config       *config.Config
	Enumerator   *generation.Enumerator
	Resolver     *bootspec.Resolver
	Materializer *esp.Materializer
	Writer       *entry.Writer
	Bootctl      *bootctl.Bootctl

	// RunHook executes the check-mountpoints and copy-extra-files
	// collaborators; nil means real execution.
	RunHook HookRunner

	// Sync flushes a boot filesystem; nil means esp.SyncFilesystem.
	// Replaceable because tests run against plain directories.
	Sync func(mountPoint string) error
}

// New wires a Reconciler from the run configuration. machineID may be
// empty when the host has no machine id.
func New(cfg *config.Config, machineID string) *Reconciler {
	materializer := &esp.Materializer{
		StoreDir:       cfg.StoreDir,
		BootMountPoint: cfg.BootMountPoint,
		NixosDir:       cfg.NixosDir,
	}
	return &Reconciler{
		Config:       cfg,
		Enumerator:   &generation.Enumerator{ProfileDir: cfg.ProfileDir, Nix: cfg.Tools.Nix, Limit: cfg.ConfigurationLimit},
		Resolver:     &bootspec.Resolver{Synthesize: cfg.Tools.Synthesize},
		Materializer: materializer,
		Writer: &entry.Writer{
			Materializer: materializer,
			EntriesDir:   cfg.EntriesDir(),
			ProfileDir:   cfg.ProfileDir,
			DistroName:   cfg.DistroName,
			MachineID:    machineID,
		},
		Bootctl: &bootctl.Bootctl{
			Executable:           cfg.Tools.Bootctl,
			ESPMountPoint:        cfg.ESPMountPoint,
			BootMountPoint:       cfg.BootMountPoint,
			CanTouchEfiVariables: cfg.CanTouchEfiVariables,
			Graceful:             cfg.Graceful,
		},
	}
}

func (r *Reconciler) runHook(name string, arg ...string) error {
	run := r.RunHook
	if run == nil {
		run = runHook
	}
	return run(name, arg...)
}

// Run reconciles the boot partition. defaultConfig is the system
// directory that should become the default boot target. The boot
// filesystems are flushed before Run returns, whether it succeeds or
// not: FAT32 offers no recovery after a crash shortly following an
// update, so the flush is the last line of defense against an
// unbootable machine.
func (r *Reconciler) Run(defaultConfig string) error {
	if r.Config.Tools.CheckMountpoint != "" {
		if err := r.runHook(r.Config.Tools.CheckMountpoint); err != nil {
			return fmt.Errorf("mount point check failed: %v", err)
		}
	}

	defer r.syncFilesystems()

	return r.reconcile(filepath.Clean(defaultConfig))
}

func (r *Reconciler) reconcile(defaultConfig string) error {
	if r.Config.FreshInstall {
		if err := r.Bootctl.Install(r.Config.LoaderConf()); err != nil {
			return err
		}
	} else {
		if err := r.Bootctl.Update(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(r.Config.ArtifactsDir(), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(r.Config.EntriesDir(), 0755); err != nil {
		return err
	}

	generations, err := r.enumerate()
	if err != nil {
		return err
	}

	// Resolve every boot specification before touching the catalog: a
	// malformed descriptor anywhere must abort before any entry is
	// written.
	specs := make(map[generation.SystemIdentifier]*bootspec.BootSpec, len(generations))
	for _, gen := range generations {
		spec, err := r.Resolver.Resolve(gen.SystemDir(r.Config.ProfileDir))
		if err != nil {
			return err
		}
		specs[gen] = spec
	}

	working, err := r.writeEntries(generations, specs, defaultConfig)
	if err != nil {
		return err
	}

	if err := r.removeStaleEntries(working); err != nil {
		return err
	}
	if err := r.removeStaleArtifacts(working, specs); err != nil {
		return err
	}

	if r.Config.SeparateBoot() {
		if err := r.cleanupESP(); err != nil {
			return err
		}
	}

	return r.syncExtraFiles()
}

// enumerate collects the capped generation lists of the default profile
// and every named profile into one working set.
func (r *Reconciler) enumerate() ([]generation.SystemIdentifier, error) {
	generations, err := r.Enumerator.List("")
	if err != nil {
		return nil, err
	}

	profiles, err := r.Enumerator.Profiles()
	if err != nil {
		return nil, err
	}
	for _, profile := range profiles {
		gens, err := r.Enumerator.List(profile)
		if err != nil {
			return nil, err
		}
		generations = append(generations, gens...)
	}
	return generations, nil
}

// writeEntries persists the entry for every generation and declared
// specialisation and replaces the loader default pointer when the
// default generation comes by. Generations hitting the known EINVAL
// condition for legacy profile names are skipped with a warning and
// dropped from the returned working set; any other error is fatal.
func (r *Reconciler) writeEntries(generations []generation.SystemIdentifier, specs map[generation.SystemIdentifier]*bootspec.BootSpec, defaultConfig string) ([]generation.SystemIdentifier, error) {
	working := make([]generation.SystemIdentifier, 0, len(generations))
	for _, gen := range generations {
		spec := specs[gen]
		isDefault := filepath.Dir(spec.Init) == defaultConfig

		err := r.writeGeneration(gen, spec, isDefault)
		if err == nil {
			working = append(working, gen)
			continue
		}
		// Legacy profile names can produce file names FAT32 rejects
		// with EINVAL. Skip just that generation, see
		// https://github.com/NixOS/nixpkgs/issues/114552.
		if errors.Is(err, syscall.EINVAL) {
			logrus.Warnf("ignoring %s in the list of boot entries because of the following error: %v", gen, err)
			continue
		}
		return nil, err
	}
	return working, nil
}

func (r *Reconciler) writeGeneration(gen generation.SystemIdentifier, spec *bootspec.BootSpec, isDefault bool) error {
	if err := r.Writer.Write(gen, spec, isDefault); err != nil {
		return err
	}
	for name := range spec.Specialisations {
		sub := gen
		sub.Specialisation = name
		if err := r.Writer.Write(sub, spec, isDefault); err != nil {
			return err
		}
	}

	if isDefault {
		conf := entry.LoaderConf{
			Timeout:            r.Config.Loader.Timeout,
			Default:            entry.Filename(gen),
			Editor:             r.Config.Loader.Editor,
			RebootForBitlocker: r.Config.Loader.RebootForBitlocker,
			ConsoleMode:        r.Config.Loader.ConsoleMode,
		}
		if err := entry.WriteLoaderConf(r.Config.LoaderConf(), &conf); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) syncFilesystems() {
	sync := r.Sync
	if sync == nil {
		sync = esp.SyncFilesystem
	}
	if err := sync(r.Config.BootMountPoint); err != nil {
		logrus.Warnf("could not sync %s: %v", r.Config.BootMountPoint, err)
	}
	if r.Config.SeparateBoot() {
		if err := sync(r.Config.ESPMountPoint); err != nil {
			logrus.Warnf("could not sync %s: %v", r.Config.ESPMountPoint, err)
		}
	}
}
