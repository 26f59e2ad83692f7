// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tibia-housing-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "Output")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	baseDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: baseDir})
	require.NoError(t, err)

	t.Run("WritesNestedFile", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "servers/Antica.json", "application/json", bytes.NewReader([]byte(`{"server":"Antica"}`)))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(baseDir, "servers", "Antica.json"), uri)

		content, err := os.ReadFile(filepath.Join(baseDir, "servers", "Antica.json"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"server":"Antica"}`, string(content))
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "servers/Antica.json", "application/json", strings.NewReader(`{"v":2}`))
		require.NoError(t, err)
		content, err := os.ReadFile(filepath.Join(baseDir, "servers", "Antica.json"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(content))

		entries, err := os.ReadDir(filepath.Join(baseDir, "servers"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), " ", "", strings.NewReader(""))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.json", "", strings.NewReader("{}"))
		assert.ErrorContains(t, err, "path traversal")
	})
}
