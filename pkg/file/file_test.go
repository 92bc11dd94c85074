package file

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueName(t *testing.T) {
	a := UniqueName("My Clip.MP4")
	b := UniqueName("My Clip.MP4")
	assert.NotEqual(t, a, b)
	assert.Equal(t, ".mp4", filepath.Ext(a))
	assert.Empty(t, filepath.Ext(UniqueName("noext")))
	assert.Empty(t, filepath.Ext(UniqueName("dot.")))
}

func TestSpool(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	path, n, err := Spool(dir, "clip.mov", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSpool_RemovesPartialFile(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Spool(dir, "clip.mp4", failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFindOlderThan(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.mp4")
	newPath := filepath.Join(dir, "new.mp4")
	require.NoError(t, os.WriteFile(oldPath, []byte("o"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("n"), 0o644))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	found, err := FindOlderThan(dir, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{oldPath}, found)

	found, err = FindOlderThan(filepath.Join(dir, "missing"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, found)
}
