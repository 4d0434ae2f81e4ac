package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMachineID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine-id")
	require.NoError(t, os.WriteFile(path, []byte("5a9f8d6c3e2b41d0a7c5de0123456789\n"), 0444))

	id, err := readMachineID(path)
	require.NoError(t, err)
	assert.Equal(t, "5a9f8d6c3e2b41d0a7c5de0123456789", id)
}

func TestReadMachineIDMissing(t *testing.T) {
	id, err := readMachineID(filepath.Join(t.TempDir(), "machine-id"))
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestReadMachineIDMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine-id")
	require.NoError(t, os.WriteFile(path, []byte("uninitialized\n"), 0444))

	id, err := readMachineID(path)
	require.NoError(t, err)
	assert.Empty(t, id)
}
