package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/bootgen/internal/bootspec"
	"github.com/osbuild/bootgen/internal/config"
	"github.com/osbuild/bootgen/internal/entry"
	"github.com/osbuild/bootgen/internal/esp"
	"github.com/osbuild/bootgen/internal/generation"
)

// A profile name the filesystem rejects with EINVAL must only skip its
// own generation, not abort the run.
func TestWriteEntriesSkipsInvalidProfile(t *testing.T) {
	store := t.TempDir()
	boot := t.TempDir()

	for _, file := range []string{"kkk-linux/bzImage", "iii-initrd/initrd"} {
		path := filepath.Join(store, file)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(file), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(boot, "EFI/nixos"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(boot, "loader/entries"), 0755))

	cfg := &config.Config{
		ESPMountPoint:  boot,
		BootMountPoint: boot,
		NixosDir:       "/EFI/nixos",
		DistroName:     "NixOS",
		StoreDir:       store,
		ProfileDir:     t.TempDir(),
	}
	materializer := &esp.Materializer{StoreDir: store, BootMountPoint: boot, NixosDir: "/EFI/nixos"}
	r := &Reconciler{
		Config:       cfg,
		Materializer: materializer,
		Writer: &entry.Writer{
			Materializer: materializer,
			EntriesDir:   cfg.EntriesDir(),
			ProfileDir:   cfg.ProfileDir,
			DistroName:   cfg.DistroName,
		},
	}

	spec := &bootspec.BootSpec{
		Init:    "/nix/store/xxx-system/init",
		Initrd:  filepath.Join(store, "iii-initrd/initrd"),
		Kernel:  filepath.Join(store, "kkk-linux/bzImage"),
		Label:   "NixOS",
		SortKey: "nixos",
	}

	// the NUL byte makes every file operation on the entry fail with
	// EINVAL, like FAT32 does for the characters it cannot represent
	bad := generation.SystemIdentifier{Profile: "bad\x00profile", Generation: 1}
	good := generation.SystemIdentifier{Generation: 2}
	specs := map[generation.SystemIdentifier]*bootspec.BootSpec{bad: spec, good: spec}

	working, err := r.writeEntries([]generation.SystemIdentifier{bad, good}, specs, "/nowhere")
	require.NoError(t, err)

	assert.Equal(t, []generation.SystemIdentifier{good}, working)
	assert.FileExists(t, filepath.Join(cfg.EntriesDir(), "nixos-generation-2.conf"))
}
