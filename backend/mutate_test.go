package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteFiles(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aaa")
	b := writeFile(t, filepath.Join(root, "b.mp3"), "bbb")

	summary := DeleteFiles(root, []string{a})
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, a, summary.Results[0].Path)
	assert.Empty(t, summary.Results[0].Error)

	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(b)
	assert.NoError(t, err)
}

func TestDeleteFilesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := writeFile(t, filepath.Join(t.TempDir(), "x.mp3"), "xxx")

	summary := DeleteFiles(root, []string{outside})
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Error, "outside")

	_, err := os.Stat(outside)
	assert.NoError(t, err, "files outside the root must not be touched")
}

func TestDeleteFilesMissingFile(t *testing.T) {
	root := t.TempDir()
	summary := DeleteFiles(root, []string{filepath.Join(root, "gone.mp3")})
	assert.Equal(t, 1, summary.Failed)
	assert.NotEmpty(t, summary.Results[0].Error)
}

func TestQuarantineRoundTrip(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aaa")

	moved := MoveFilesToQuarantine(root, []string{a})
	require.Equal(t, 1, moved.Succeeded)
	assert.Equal(t, filepath.Join(root, QuarantineDirName, "a.mp3"), moved.Results[0].NewPath)
	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))

	entries, err := ListQuarantine(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.mp3", entries[0].Name)
	assert.Equal(t, int64(3), entries[0].Size)

	restored := RestoreFromQuarantine(root, []string{"a.mp3"})
	require.Equal(t, 1, restored.Succeeded)
	assert.Equal(t, a, restored.Results[0].NewPath)
	_, err = os.Stat(a)
	assert.NoError(t, err)

	entries, err = ListQuarantine(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQuarantineNameCollisions(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "top")
	nested := writeFile(t, filepath.Join(root, "sub", "a.mp3"), "nested")

	moved := MoveFilesToQuarantine(root, []string{a, nested})
	require.Equal(t, 2, moved.Succeeded)

	entries, err := ListQuarantine(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a (1).mp3", entries[0].Name)
	assert.Equal(t, "a.mp3", entries[1].Name)
}

func TestQuarantineOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := writeFile(t, filepath.Join(t.TempDir(), "x.mp3"), "xxx")

	summary := MoveFilesToQuarantine(root, []string{outside})
	assert.Equal(t, 1, summary.Failed)
	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestRestoreRejectsPathNames(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"", ".", "..", "../escape.mp3", "sub/a.mp3"} {
		summary := RestoreFromQuarantine(root, []string{name})
		require.Equal(t, 1, summary.Failed, "name %q must be rejected", name)
		assert.Equal(t, "invalid quarantine entry name", summary.Results[0].Error)
	}
}

func TestRestoreCollisionGetsSuffix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, QuarantineDirName, "a.mp3"), "old")
	writeFile(t, filepath.Join(root, "a.mp3"), "current")

	summary := RestoreFromQuarantine(root, []string{"a.mp3"})
	require.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, filepath.Join(root, "a (1).mp3"), summary.Results[0].NewPath)
}

func TestMutatorsInvalidateScanCache(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aaa")
	b := writeFile(t, filepath.Join(root, "b.mp3"), "bbb")

	cache, err := OpenScanCache(root)
	require.NoError(t, err)
	for _, p := range []string{a, b} {
		_, fs, _ := cache.Lookup(p)
		cache.Update(p, fs, &AudioMetadata{Title: filepath.Base(p)}, "", nil)
	}
	require.Equal(t, 2, cache.Len())

	DeleteFiles(root, []string{a})
	assert.Equal(t, 1, cache.Len())

	MoveFilesToQuarantine(root, []string{b})
	assert.Equal(t, 0, cache.Len())
}

func TestListQuarantineMissingDir(t *testing.T) {
	entries, err := ListQuarantine(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, entries)
}

func TestListQuarantineSkipsNonAudio(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, QuarantineDirName, "a.mp3"), "aa")
	writeFile(t, filepath.Join(root, QuarantineDirName, "notes.txt"), "tt")

	entries, err := ListQuarantine(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.mp3", entries[0].Name)
}
