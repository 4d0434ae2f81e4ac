package bootspec_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/bootgen/internal/bootspec"
)

const minimalDocument = `{
  "org.nixos.bootspec.v1": {
    "init": "/nix/store/aaa-system/init",
    "initrd": "/nix/store/bbb-initrd/initrd",
    "kernel": "/nix/store/ccc-linux/bzImage",
    "kernelParams": [],
    "label": "NixOS",
    "system": "x86_64-linux",
    "toplevel": "/nix/store/aaa-system"
  }
}`

func TestResolveCached(t *testing.T) {
	systemDir := t.TempDir()
	err := os.WriteFile(filepath.Join(systemDir, "boot.json"), []byte(minimalDocument), 0644)
	require.NoError(t, err)

	resolver := &bootspec.Resolver{
		Runner: func(name string, arg ...string) ([]byte, error) {
			t.Fatal("synthesiser must not run when boot.json is cached")
			return nil, nil
		},
	}
	spec, err := resolver.Resolve(systemDir)
	require.NoError(t, err)
	assert.Equal(t, "/nix/store/ccc-linux/bzImage", spec.Kernel)
}

func TestResolveCachedMalformed(t *testing.T) {
	systemDir := t.TempDir()
	err := os.WriteFile(filepath.Join(systemDir, "boot.json"), []byte("{"), 0644)
	require.NoError(t, err)

	resolver := &bootspec.Resolver{}
	_, err = resolver.Resolve(systemDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, bootspec.ErrMalformedDescriptor)
	assert.Contains(t, err.Error(), "boot.json")
}

func TestResolveSynthesized(t *testing.T) {
	systemDir := t.TempDir()

	var gotName string
	var gotArgs []string
	resolver := &bootspec.Resolver{
		Synthesize: "/path/to/synthesize",
		Runner: func(name string, arg ...string) ([]byte, error) {
			gotName = name
			gotArgs = arg
			return []byte(minimalDocument), nil
		},
	}
	spec, err := resolver.Resolve(systemDir)
	require.NoError(t, err)
	assert.Equal(t, "/nix/store/aaa-system/init", spec.Init)

	assert.Equal(t, "/path/to/synthesize", gotName)
	assert.Equal(t, []string{"--version", "1", systemDir, "/dev/stdout"}, gotArgs)
}

func TestResolveSynthesizerFailure(t *testing.T) {
	resolver := &bootspec.Resolver{
		Runner: func(name string, arg ...string) ([]byte, error) {
			return nil, errors.New("exit status 1")
		},
	}
	_, err := resolver.Resolve(t.TempDir())
	require.Error(t, err)
}

func TestResolveSynthesizerGarbage(t *testing.T) {
	resolver := &bootspec.Resolver{
		Runner: func(name string, arg ...string) ([]byte, error) {
			return []byte("not json"), nil
		},
	}
	_, err := resolver.Resolve(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, bootspec.ErrMalformedDescriptor)
}
