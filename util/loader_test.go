package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-2.jpg", "frame-1.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	files, err := ListFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "frame-1.png"),
		filepath.Join(dir, "frame-2.jpg"),
		filepath.Join(dir, "notes.txt"),
	}, files)
}

func TestListFilesMissingDirectory(t *testing.T) {
	_, err := ListFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIsDirAndFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(file))
	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}
