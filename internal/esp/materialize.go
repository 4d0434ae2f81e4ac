package esp

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// A Materializer copies store files onto the boot partition under
// stable, deduplicated names. Store paths are immutable, so the mapping
// is content-addressed by construction and copying is idempotent.
type Materializer struct {
	// StoreDir is the nix store root, normally /nix/store.
	StoreDir string

	// BootMountPoint is where the boot partition is mounted.
	BootMountPoint string

	// NixosDir is the managed directory for materialized files,
	// relative to the partition root, e.g. /EFI/nixos.
	NixosDir string
}

// Materialize maps storePath to its destination on the boot partition
// and, unless dryRun is set, copies it there if it is not present yet.
// The returned path is relative to the partition root, the form boot
// entries reference. The same store path always yields the same
// destination, so callers can compute destinations without copying.
func (m *Materializer) Materialize(storePath string, dryRun bool) (string, error) {
	resolved, err := filepath.EvalSymlinks(storePath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", storePath, err)
	}

	suffix := filepath.Base(resolved)

	rel, err := filepath.Rel(m.StoreDir, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is not inside the store %s", resolved, m.StoreDir)
	}
	storeSubdir := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]

	// A file directly below the store root already carries its unique
	// hash in its own name. Anything deeper needs the subtree name as
	// a prefix, or kernels from different packages would collide.
	var name string
	if suffix == storeSubdir {
		name = suffix + ".efi"
	} else {
		name = storeSubdir + "-" + suffix + ".efi"
	}
	destination := path.Join(m.NixosDir, name)

	if !dryRun {
		err = CopyFileIfNotExists(resolved, filepath.Join(m.BootMountPoint, destination))
		if err != nil {
			return "", fmt.Errorf("copying %s to the boot partition: %w", resolved, err)
		}
	}

	return destination, nil
}
