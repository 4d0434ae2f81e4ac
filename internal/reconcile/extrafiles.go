package reconcile

import (
	"os"
	"path/filepath"
)

// syncExtraFiles rebuilds the administrator-supplied extra files on the
// boot partition from scratch. The staging tree mirrors what was copied
// during the previous run; deleting through it first guarantees extra
// files never accumulate orphans across runs.
func (r *Reconciler) syncExtraFiles() error {
	if err := r.cleanStaging(r.Config.ExtraFilesDir(), r.Config.BootMountPoint); err != nil {
		return err
	}

	if err := os.MkdirAll(r.Config.ExtraFilesDir(), 0755); err != nil {
		return err
	}

	if r.Config.Tools.CopyExtraFiles != "" {
		return r.runHook(r.Config.Tools.CopyExtraFiles)
	}
	return nil
}

// cleanStaging removes every staged file both from its materialized
// location under actual and from the staging tree itself, bottom up,
// pruning real directories that end up empty.
func (r *Reconciler) cleanStaging(staged, actual string) error {
	entries, err := os.ReadDir(staged)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, ent := range entries {
		stagedPath := filepath.Join(staged, ent.Name())
		actualPath := filepath.Join(actual, ent.Name())
		if ent.IsDir() {
			if err := r.cleanStaging(stagedPath, actualPath); err != nil {
				return err
			}
			continue
		}
		if err := os.Remove(actualPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Remove(stagedPath); err != nil {
			return err
		}
	}

	if actual != r.Config.BootMountPoint {
		if rest, err := os.ReadDir(actual); err == nil && len(rest) == 0 {
			if err := os.Remove(actual); err != nil {
				return err
			}
		}
	}
	return os.Remove(staged)
}
