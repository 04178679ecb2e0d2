package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStores_DirectoryUsesListingFallback(t *testing.T) {
	root := t.TempDir()
	dbPath, dir := resolveStores(root)
	require.NotNil(t, dir)
	assert.Equal(t, filepath.Join(root, "timelined.db"), dbPath)
}

func TestResolveStores_FilePathIsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	dbPath, dir := resolveStores(path)
	assert.Nil(t, dir)
	assert.Equal(t, path, dbPath)
}

func TestResolveStores_MissingPathIsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "store.db")
	dbPath, dir := resolveStores(path)
	assert.Nil(t, dir)
	assert.Equal(t, path, dbPath)
}
