package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/steamguard/internal/files"
)

func TestWriteMasterKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "master.key")
	require.NoError(t, writeMasterKey(path, false))

	key, err := files.ReadMasterKeyFile(path)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Error(t, writeMasterKey(path, false))
	require.NoError(t, writeMasterKey(path, true))
	again, err := files.ReadMasterKeyFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, key, again)
}
