package entry_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/bootgen/internal/bootspec"
	"github.com/osbuild/bootgen/internal/entry"
	"github.com/osbuild/bootgen/internal/esp"
	"github.com/osbuild/bootgen/internal/generation"
)

type writerFixture struct {
	store    string
	boot     string
	profiles string
	writer   *entry.Writer
	spec     *bootspec.BootSpec
}

func newWriterFixture(t *testing.T) *writerFixture {
	t.Helper()

	f := &writerFixture{
		store:    t.TempDir(),
		boot:     t.TempDir(),
		profiles: t.TempDir(),
	}

	for _, file := range []string{"aaa-linux/bzImage", "bbb-initrd/initrd"} {
		path := filepath.Join(f.store, file)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(file), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(f.boot, "EFI/nixos"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(f.boot, "loader/entries"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(f.profiles, "system-1-link/specialisation/no-gui"), 0755))

	f.writer = &entry.Writer{
		Materializer: &esp.Materializer{
			StoreDir:       f.store,
			BootMountPoint: f.boot,
			NixosDir:       "/EFI/nixos",
		},
		EntriesDir: filepath.Join(f.boot, "loader/entries"),
		ProfileDir: f.profiles,
		DistroName: "NixOS",
	}

	f.spec = &bootspec.BootSpec{
		Init:         "/nix/store/xxx-system/init",
		Initrd:       filepath.Join(f.store, "bbb-initrd/initrd"),
		Kernel:       filepath.Join(f.store, "aaa-linux/bzImage"),
		KernelParams: []string{"loglevel=4"},
		Label:        "NixOS 25.05",
		System:       "x86_64-linux",
		Toplevel:     "/nix/store/xxx-system",
		SortKey:      "nixos",
		Specialisations: map[string]*bootspec.BootSpec{
			"no-gui": {
				Init:    "/nix/store/yyy-system/init",
				Initrd:  filepath.Join(f.store, "bbb-initrd/initrd"),
				Kernel:  filepath.Join(f.store, "aaa-linux/bzImage"),
				Label:   "NixOS 25.05",
				SortKey: "nixos",
			},
		},
	}
	return f
}

func (f *writerFixture) buildDate(t *testing.T, id generation.SystemIdentifier) string {
	info, err := os.Stat(id.SystemDir(f.profiles))
	require.NoError(t, err)
	return info.ModTime().Format("2006-01-02")
}

func TestWriteEntry(t *testing.T) {
	f := newWriterFixture(t)
	id := generation.SystemIdentifier{Generation: 1}

	require.NoError(t, f.writer.Write(id, f.spec, false))

	contents, err := os.ReadFile(filepath.Join(f.writer.EntriesDir, "nixos-generation-1.conf"))
	require.NoError(t, err)

	expected := fmt.Sprintf(`title NixOS
sort-key nixos
version Generation 1 NixOS 25.05, built on %s
linux /EFI/nixos/aaa-linux-bzImage.efi
initrd /EFI/nixos/bbb-initrd-initrd.efi
options init=/nix/store/xxx-system/init loglevel=4
`, f.buildDate(t, id))
	assert.Equal(t, expected, string(contents))

	// the kernel and initrd were materialized
	assert.FileExists(t, filepath.Join(f.boot, "EFI/nixos/aaa-linux-bzImage.efi"))
	assert.FileExists(t, filepath.Join(f.boot, "EFI/nixos/bbb-initrd-initrd.efi"))

	// no stray temporary files next to the entry
	entries, err := os.ReadDir(f.writer.EntriesDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteSpecialisationEntry(t *testing.T) {
	f := newWriterFixture(t)
	id := generation.SystemIdentifier{Generation: 1, Specialisation: "no-gui"}

	require.NoError(t, f.writer.Write(id, f.spec, false))

	contents, err := os.ReadFile(filepath.Join(f.writer.EntriesDir, "nixos-generation-1-specialisation-no-gui.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "title NixOS (no-gui)\n")
	assert.Contains(t, string(contents), "options init=/nix/store/yyy-system/init\n")
}

func TestWriteUnknownSpecialisation(t *testing.T) {
	f := newWriterFixture(t)
	id := generation.SystemIdentifier{Generation: 1, Specialisation: "does-not-exist"}

	err := f.writer.Write(id, f.spec, false)
	require.Error(t, err)
}

func TestWriteProfileTitle(t *testing.T) {
	f := newWriterFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.profiles, "system-profiles/home-2-link"), 0755))
	id := generation.SystemIdentifier{Profile: "home", Generation: 2}

	require.NoError(t, f.writer.Write(id, f.spec, false))

	contents, err := os.ReadFile(filepath.Join(f.writer.EntriesDir, "nixos-home-generation-2.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "title NixOS [home]\n")
}

func TestWriteMachineID(t *testing.T) {
	f := newWriterFixture(t)
	f.writer.MachineID = "5a9f8d6c3e2b41d0a7c5de0123456789"

	require.NoError(t, f.writer.Write(generation.SystemIdentifier{Generation: 1}, f.spec, false))

	contents, err := os.ReadFile(filepath.Join(f.writer.EntriesDir, "nixos-generation-1.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "machine-id 5a9f8d6c3e2b41d0a7c5de0123456789\n")
}

func TestInitrdSecretsHook(t *testing.T) {
	f := newWriterFixture(t)
	f.spec.InitrdSecrets = "/nix/store/xxx-system/append-initrd-secrets"

	var gotName string
	var gotArgs []string
	f.writer.Runner = func(name string, arg ...string) error {
		gotName = name
		gotArgs = arg
		return nil
	}

	require.NoError(t, f.writer.Write(generation.SystemIdentifier{Generation: 1}, f.spec, true))
	assert.Equal(t, "/nix/store/xxx-system/append-initrd-secrets", gotName)
	require.Len(t, gotArgs, 1)
	assert.Equal(t, filepath.Join(f.boot, "EFI/nixos/bbb-initrd-initrd.efi"), gotArgs[0])
}

func TestInitrdSecretsHookFailure(t *testing.T) {
	f := newWriterFixture(t)
	f.spec.InitrdSecrets = "/nix/store/xxx-system/append-initrd-secrets"
	f.writer.Runner = func(name string, arg ...string) error {
		return errors.New("exit status 1")
	}

	// fatal for the generation about to become the default
	err := f.writer.Write(generation.SystemIdentifier{Generation: 1}, f.spec, true)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(f.writer.EntriesDir, "nixos-generation-1.conf"))

	// only a warning for an older generation
	err = f.writer.Write(generation.SystemIdentifier{Generation: 1}, f.spec, false)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.writer.EntriesDir, "nixos-generation-1.conf"))
}
