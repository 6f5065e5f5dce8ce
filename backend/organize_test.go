package backend

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planStatuses(plan *OrganizePlan) map[string]OrganizePlanItem {
	out := make(map[string]OrganizePlanItem, len(plan.Items))
	for _, item := range plan.Items {
		out[item.SourcePath] = item
	}
	return out
}

func TestOrganizerPreview(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aa")
	b := writeFile(t, filepath.Join(root, "b.mp3"), "bb")
	c := writeFile(t, filepath.Join(root, "c.mp3"), "cc")
	d := writeFile(t, filepath.Join(root, "Queen", "A Night at the Opera", "d.mp3"), "dd")

	queen := &AudioMetadata{Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera"}
	tags := &fakeTagReader{
		metas: map[string]*AudioMetadata{
			a: queen,
			b: {Title: "Untitled"},
			d: queen,
		},
		errs: map[string]error{c: errors.New("corrupt header")},
	}

	plan, err := NewOrganizerWith(tags).Preview(root, OrganizeOptions{
		Template:  "{artist}/{album}",
		Recursive: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, plan.TotalFiles)
	assert.Equal(t, 1, plan.WillMove)
	assert.Equal(t, 0, plan.Conflicts)
	assert.Equal(t, 1, plan.Unchanged)
	assert.Equal(t, 1, plan.Skipped)
	assert.Equal(t, 1, plan.Errors)
	assert.Empty(t, plan.FoldersToCreate, "destination folder already exists")

	items := planStatuses(plan)
	assert.Equal(t, OrganizeWillMove, items[a].Status)
	assert.Equal(t, filepath.Join(root, "Queen", "A Night at the Opera", "a.mp3"), items[a].DestinationPath)
	assert.Equal(t, OrganizeMissingMetadata, items[b].Status)
	assert.Equal(t, OrganizeError, items[c].Status)
	assert.Contains(t, items[c].Error, "corrupt header")
	assert.Equal(t, OrganizeUnchanged, items[d].Status)
}

func TestOrganizerPreviewConflicts(t *testing.T) {
	root := t.TempDir()
	one := writeFile(t, filepath.Join(root, "one.mp3"), "11")
	two := writeFile(t, filepath.Join(root, "two.mp3"), "22")

	meta := &AudioMetadata{Title: "Song", Artist: "Artist", Album: "Album"}
	tags := &fakeTagReader{metas: map[string]*AudioMetadata{one: meta, two: meta}}

	plan, err := NewOrganizerWith(tags).Preview(root, OrganizeOptions{
		Template:       "{artist}/{album}",
		FileNameFormat: "{title}",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, plan.WillMove)
	assert.Equal(t, 1, plan.Conflicts)
	assert.Equal(t, []string{filepath.Join(root, "Artist", "Album")}, plan.FoldersToCreate)

	items := planStatuses(plan)
	assert.Equal(t, OrganizeWillMove, items[one].Status)
	assert.Equal(t, filepath.Join(root, "Artist", "Album", "Song.mp3"), items[one].DestinationPath)
	assert.Equal(t, OrganizeConflict, items[two].Status)
	assert.Equal(t, one, items[two].ConflictWith)
}

func TestOrganizerExecute(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	src := writeFile(t, filepath.Join(root, "loose", "track.mp3"), "data")

	meta := &AudioMetadata{Title: "Track", Artist: "Artist", Album: "Album"}
	tags := &fakeTagReader{metas: map[string]*AudioMetadata{src: meta}}

	cache, err := OpenScanCache(root)
	require.NoError(t, err)
	_, fs, _ := cache.Lookup(src)
	cache.Update(src, fs, meta, "", nil)
	require.Equal(t, 1, cache.Len())

	org := NewOrganizerWith(tags)
	plan, err := org.Preview(root, OrganizeOptions{Template: "{artist}/{album}", Recursive: true})
	require.NoError(t, err)
	require.Equal(t, 1, plan.WillMove)

	result, err := org.Execute(root, plan.Items)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.FoldersCreated)
	assert.Equal(t, 1, result.FoldersRemoved, "emptied source folder is cleaned up")

	dest := filepath.Join(root, "Artist", "Album", "track.mp3")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "loose"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, 0, cache.Len(), "moved source must drop out of the scan cache")
}

func TestOrganizerExecuteResolvesCollisions(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, filepath.Join(root, "dup.mp3"), "new")
	writeFile(t, filepath.Join(root, "Artist", "Album", "dup.mp3"), "old")

	meta := &AudioMetadata{Title: "Dup", Artist: "Artist", Album: "Album"}
	tags := &fakeTagReader{metas: map[string]*AudioMetadata{src: meta}}

	org := NewOrganizerWith(tags)
	plan, err := org.Preview(root, OrganizeOptions{Template: "{artist}/{album}"})
	require.NoError(t, err)
	require.Equal(t, 1, plan.Conflicts)

	result, err := org.Execute(root, plan.Items)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Moves, 1)
	assert.Equal(t, filepath.Join(root, "Artist", "Album", "dup (1).mp3"), result.Moves[0].DestinationPath)

	data, err := os.ReadFile(filepath.Join(root, "Artist", "Album", "dup.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "existing file keeps its name")
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		template string
		ok       bool
	}{
		{"{artist}/{album}", true},
		{"{artist}/{year} - {album}", true},
		{"{album_artist}/{album} ({year})", true},
		{"", false},
		{"Music/Archive", false},
		{"{artist}:{album}", false},
		{"{artist}?", false},
	}
	for _, tt := range tests {
		ok, reason := ValidateTemplate(tt.template)
		if tt.ok {
			assert.True(t, ok, "template %q: %s", tt.template, reason)
		} else {
			assert.False(t, ok, "template %q", tt.template)
			assert.NotEmpty(t, reason)
		}
	}
}

func TestRenderTemplatePath(t *testing.T) {
	meta := &AudioMetadata{Artist: "AC/DC", Album: "Back in Black", Year: "1980-07-25"}
	assert.Equal(t, filepath.Join("AC-DC", "Back in Black"), renderTemplatePath(meta, "{artist}/{album}"))
	assert.Equal(t, filepath.Join("AC-DC", "1980 - Back in Black"), renderTemplatePath(meta, "{artist}/{year} - {album}"))

	noYear := &AudioMetadata{Artist: "Artist", Album: "Album"}
	assert.Equal(t, filepath.Join("Artist", "Album"), renderTemplatePath(noYear, "{artist}/{year}/{album}"),
		"segments rendering empty are dropped")
}

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AC/DC", "AC-DC"},
		{"a<b>c", "abc"},
		{"trailing. ", "trailing"},
		{`"quoted"`, "quoted"},
		{"Who Are You?", "Who Are You"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizePathComponent(tt.in), "input %q", tt.in)
	}
}

func TestFindUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	assert.Equal(t, path, findUniqueFilename(path))

	writeFile(t, path, "x")
	assert.Equal(t, filepath.Join(dir, "a (1).mp3"), findUniqueFilename(path))

	writeFile(t, filepath.Join(dir, "a (1).mp3"), "x")
	assert.Equal(t, filepath.Join(dir, "a (2).mp3"), findUniqueFilename(path))
}

func TestOrganizerAnalyze(t *testing.T) {
	root := t.TempDir()
	orphan := writeFile(t, filepath.Join(root, "orphan.mp3"), "oo")
	good := writeFile(t, filepath.Join(root, "Queen", "News of the World", "we.mp3"), "ww")
	off := writeFile(t, filepath.Join(root, "Misc", "stray.mp3"), "ss")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		good: {Title: "We Will Rock You", Artist: "Queen", Album: "News of the World"},
		off:  {Title: "Stray", Artist: "Muse", Album: "Absolution"},
	}}

	analysis, err := NewOrganizerWith(tags).Analyze(root)
	require.NoError(t, err)

	assert.Equal(t, 3, analysis.TotalFiles)
	assert.Equal(t, []string{orphan}, analysis.OrphanedFiles)
	assert.Equal(t, []string{off}, analysis.InconsistentPath)
	assert.Equal(t, 2, analysis.UniqueArtists)
	assert.Equal(t, 2, analysis.UniqueAlbums)
	assert.Equal(t, 1, analysis.ArtistFolders["Queen"])
	assert.Equal(t, 1, analysis.ArtistFolders["Muse"])
}

func TestFolderStructurePresetsAreValid(t *testing.T) {
	presets := GetFolderStructurePresets()
	require.Len(t, presets, 8)
	seen := make(map[string]bool)
	for _, p := range presets {
		ok, reason := ValidateTemplate(p.Template)
		assert.True(t, ok, "preset %s: %s", p.ID, reason)
		assert.False(t, seen[p.ID], "duplicate preset id %s", p.ID)
		seen[p.ID] = true
	}
}
