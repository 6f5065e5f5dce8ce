package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTagReader serves canned metadata keyed by path. Workers read
// concurrently, so access is locked.
type fakeTagReader struct {
	mu    sync.Mutex
	metas map[string]*AudioMetadata
	errs  map[string]error
}

func (f *fakeTagReader) ReadMetadata(path string) (*AudioMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.errs != nil {
		err = f.errs[path]
	}
	meta := f.metas[path]
	if meta == nil && err == nil {
		return nil, fmt.Errorf("no canned metadata for %s", path)
	}
	return meta, err
}

type fakeFingerprinter struct {
	prints map[string][]uint32
}

func (f fakeFingerprinter) ComputeFingerprint(_ context.Context, path string) (*ChromaprintResult, error) {
	fp, ok := f.prints[path]
	if !ok {
		return nil, nil
	}
	return &ChromaprintResult{DurationSec: len(fp), Fingerprint: fp}, nil
}

func TestFindDuplicatesGroupsByMetadata(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	mp3 := writeFile(t, filepath.Join(root, "one.mp3"), strings.Repeat("x", 300))
	flac := writeFile(t, filepath.Join(root, "one.flac"), strings.Repeat("y", 900))
	other := writeFile(t, filepath.Join(root, "other.mp3"), strings.Repeat("z", 200))

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		mp3: {Title: "One More Time", Artist: "Daft Punk", DurationMs: 320000, Bitrate: 320,
			Codec: "MP3", Source: MetadataSourceTags},
		flac: {Title: "One More Time", Artist: "Daft Punk", DurationMs: 321000, SampleRate: 44100,
			BitDepth: 16, Lossless: true, Codec: "FLAC", Source: MetadataSourceTags},
		other: {Title: "Around the World", Artist: "Daft Punk", DurationMs: 429000,
			Codec: "MP3", Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, 3, result.FilesScanned)
	assert.Empty(t, result.Errors)
	assert.False(t, result.Stopped)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, GroupMethodMetadata, g.GroupMethod)
	assert.Equal(t, "One More Time", g.Title)
	assert.Equal(t, "Daft Punk", g.Artist)
	assert.ElementsMatch(t, []string{mp3, flac}, g.Files)
	assert.Equal(t, flac, g.BestQualityFile)
	assert.Contains(t, g.BestQualityReason, "lossless FLAC")
	assert.Equal(t, []string{"FLAC", "MP3"}, g.Formats)
	assert.Equal(t, 1, g.LosslessCount)
	assert.Equal(t, 1, g.LossyCount)
	assert.Equal(t, int64(1200), g.TotalSize)
	assert.Equal(t, 320, g.AvgBitrate)
	assert.Equal(t, 321000, g.RepresentativeDuration)
}

func TestFindDuplicatesReportsProgress(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aa")
	b := writeFile(t, filepath.Join(root, "b.mp3"), "bb")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		a: {Title: "A", Artist: "X", Source: MetadataSourceTags},
		b: {Title: "B", Artist: "X", Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	// the collector invokes Progress from a single goroutine
	var updates []ProgressUpdate
	scanner.Progress = func(u ProgressUpdate) { updates = append(updates, u) }

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)

	require.Len(t, updates, 2)
	last := updates[len(updates)-1]
	assert.Equal(t, result.SessionID, last.SessionID)
	assert.Equal(t, 2, last.Processed)
	assert.Equal(t, 2, last.Total)
	assert.NotEmpty(t, last.CurrentFile)
}

func TestFindDuplicatesDurationBuckets(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aa")
	b := writeFile(t, filepath.Join(root, "b.mp3"), "bb")
	c := writeFile(t, filepath.Join(root, "c.mp3"), "cc")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		a: {Title: "Halo", Artist: "Beyonce", DurationMs: 320000, Source: MetadataSourceTags},
		b: {Title: "Halo", Artist: "Beyonce", DurationMs: 321000, Source: MetadataSourceTags},
		c: {Title: "Halo", Artist: "Beyonce", DurationMs: 314000, Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.ElementsMatch(t, []string{a, b}, result.Groups[0].Files,
		"a six second shorter cut lands in another bucket")

	result, err = scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{IgnoreDuration: true})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.Len(t, result.Groups[0].Files, 3)
}

func TestFindDuplicatesUnknownDurationStaysApart(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	known := writeFile(t, filepath.Join(root, "known.mp3"), "kk")
	unknown := writeFile(t, filepath.Join(root, "unknown.mp3"), "uu")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		known:   {Title: "Song", Artist: "Artist", DurationMs: 200000, Source: MetadataSourceTags},
		unknown: {Title: "Song", Artist: "Artist", Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Groups, "unknown duration must not match a known one")

	result, err = scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{IgnoreDuration: true})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
}

func TestFindDuplicatesKeepsVersionsApart(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	live1 := writeFile(t, filepath.Join(root, "live1.mp3"), "11")
	live2 := writeFile(t, filepath.Join(root, "live2.mp3"), "22")
	remix := writeFile(t, filepath.Join(root, "remix.mp3"), "33")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		live1: {Title: "Halo (Live)", Artist: "Beyonce", DurationMs: 250000, Source: MetadataSourceTags},
		live2: {Title: "Halo (Live)", Artist: "Beyonce", DurationMs: 250500, Source: MetadataSourceTags},
		remix: {Title: "Halo (Remix)", Artist: "Beyonce", DurationMs: 250000, Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.ElementsMatch(t, []string{live1, live2}, result.Groups[0].Files)
}

func TestFindDuplicatesFilenameFallback(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "01. Dreams - Fleetwood Mac.mp3"), "aa")
	b := writeFile(t, filepath.Join(root, "Dreams - Fleetwood Mac.mp3"), "bb")

	fromName := AudioMetadata{Title: "Dreams", Artist: "Fleetwood Mac", Source: MetadataSourceFilename}
	metaA, metaB := fromName, fromName
	tags := &fakeTagReader{
		metas: map[string]*AudioMetadata{a: &metaA, b: &metaB},
		errs:  map[string]error{a: errors.New("no tags"), b: errors.New("no tags")},
	}
	scanner := NewDuplicateScannerWith(tags, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Groups, "filename identity needs the fallback flag")
	assert.Len(t, result.Errors, 2)

	result, err = scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{UseFilenameFallback: true})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.ElementsMatch(t, []string{a, b}, result.Groups[0].Files)
}

func TestFindDuplicatesBoundsErrorList(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	errs := make(map[string]error)
	for i := 0; i < 12; i++ {
		p := writeFile(t, filepath.Join(root, fmt.Sprintf("bad%02d.mp3", i)), "xx")
		errs[p] = errors.New("unreadable")
	}
	scanner := NewDuplicateScannerWith(&fakeTagReader{errs: errs}, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 12, result.FilesScanned)
	assert.Len(t, result.Errors, 10)
	assert.Empty(t, result.Groups)
}

func TestFindDuplicatesHashGroups(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	payload := strings.Repeat("identical-bytes", 64)
	copy1 := writeFile(t, filepath.Join(root, "copy1.mp3"), payload)
	copy2 := writeFile(t, filepath.Join(root, "copy2.mp3"), payload)
	tagged1 := writeFile(t, filepath.Join(root, "tagged1.mp3"), payload)
	tagged2 := writeFile(t, filepath.Join(root, "tagged2.mp3"), strings.Repeat("other", 64))

	untagged := func(name string) *AudioMetadata {
		return &AudioMetadata{Title: name, Artist: UnknownArtist, Source: MetadataSourceFilename}
	}
	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		copy1:   untagged("copy1"),
		copy2:   untagged("copy2"),
		tagged1: {Title: "Song", Artist: "Artist", DurationMs: 200000, Source: MetadataSourceTags},
		tagged2: {Title: "Song", Artist: "Artist", DurationMs: 200000, Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{UseExactHash: true})
	require.NoError(t, err)
	require.Len(t, result.Groups, 2)

	byMethod := make(map[string]DuplicateGroup)
	for _, g := range result.Groups {
		byMethod[g.GroupMethod] = g
	}
	assert.ElementsMatch(t, []string{tagged1, tagged2}, byMethod[GroupMethodMetadata].Files)
	assert.ElementsMatch(t, []string{copy1, copy2}, byMethod[GroupMethodHash].Files,
		"a file already placed by metadata stays out of the hash group")
}

func TestFindDuplicatesFingerprintGroups(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aa")
	b := writeFile(t, filepath.Join(root, "b.mp3"), "bb")
	c := writeFile(t, filepath.Join(root, "c.mp3"), "cc")

	untagged := func(name string, durationMs int) *AudioMetadata {
		return &AudioMetadata{Title: name, Artist: UnknownArtist, DurationMs: durationMs, Source: MetadataSourceFilename}
	}
	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		a: untagged("a", 200000),
		b: untagged("b", 201000),
		c: untagged("c", 200500),
	}}
	shared := repeatFingerprint(0xA5A5A5A5, 40)
	prints := fakeFingerprinter{prints: map[string][]uint32{
		a: shared,
		b: shared,
		c: repeatFingerprint(0x5A5A5A5A, 40),
	}}
	scanner := NewDuplicateScannerWith(tags, prints)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{UseFingerprint: true})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, GroupMethodFingerprint, g.GroupMethod)
	assert.ElementsMatch(t, []string{a, b}, g.Files)
}

func TestFindDuplicatesUsesScanCache(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aa")
	b := writeFile(t, filepath.Join(root, "b.mp3"), "bb")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		a: {Title: "Song", Artist: "Artist", DurationMs: 200000, Source: MetadataSourceTags},
		b: {Title: "Song", Artist: "Artist", DurationMs: 200200, Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	first, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, first.CacheHits)
	require.Len(t, first.Groups, 1)

	second, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.CacheHits)
	require.Len(t, second.Groups, 1)
	assert.ElementsMatch(t, first.Groups[0].Files, second.Groups[0].Files)
}

func TestFindDuplicatesCancelled(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), "aa")
	writeFile(t, filepath.Join(root, "b.mp3"), "bb")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := NewDuplicateScannerWith(&fakeTagReader{}, nil)
	result, err := scanner.FindDuplicates(ctx, root, DuplicateScanOptions{})
	require.NoError(t, err, "cancellation is not an error")
	assert.True(t, result.Stopped)
	assert.Empty(t, result.Groups)
	assert.Equal(t, 0, result.FilesScanned)
}

func TestFindDuplicatesFuzzyMerge(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	plain := writeFile(t, filepath.Join(root, "plain.mp3"), "pp")
	dotted := writeFile(t, filepath.Join(root, "dotted.mp3"), "dd")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		plain:  {Title: "One More Time", Artist: "Daft Punk", DurationMs: 320000, Source: MetadataSourceTags},
		dotted: {Title: "One More Time.", Artist: "Daft Punk", DurationMs: 320500, Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Groups, "trailing punctuation splits exact keys")

	result, err = scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{UseFuzzyMatching: true})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.ElementsMatch(t, []string{plain, dotted}, result.Groups[0].Files)
}

func TestRevalidateGroup(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aa")
	b := writeFile(t, filepath.Join(root, "b.flac"), "bb")
	c := writeFile(t, filepath.Join(root, "c.mp3"), "cc")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		a: {Title: "Same Song", Artist: "Same Artist", DurationMs: 200000, Source: MetadataSourceTags},
		b: {Title: "Same Song", Artist: "Same Artist", DurationMs: 200400, Lossless: true, Source: MetadataSourceTags},
		c: {Title: "Retagged Elsewhere", Artist: "Same Artist", DurationMs: 200000, Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	group, err := scanner.RevalidateGroup(context.Background(), []string{a, b, c}, DuplicateScanOptions{})
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.ElementsMatch(t, []string{a, b}, group.Files)
	assert.Equal(t, b, group.BestQualityFile)
}

func TestRevalidateGroupDissolved(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.mp3"), "aa")
	b := writeFile(t, filepath.Join(root, "b.mp3"), "bb")

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		a: {Title: "First", Artist: "Artist", DurationMs: 200000, Source: MetadataSourceTags},
		b: {Title: "Second", Artist: "Artist", DurationMs: 200000, Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	group, err := scanner.RevalidateGroup(context.Background(), []string{a, b}, DuplicateScanOptions{})
	require.NoError(t, err)
	assert.Nil(t, group)
}

func TestDuplicateGroupRemoveFile(t *testing.T) {
	SetCacheDir(t.TempDir())
	root := t.TempDir()
	small := writeFile(t, filepath.Join(root, "small.mp3"), strings.Repeat("s", 100))
	big := writeFile(t, filepath.Join(root, "big.mp3"), strings.Repeat("b", 400))
	flac := writeFile(t, filepath.Join(root, "flac.flac"), strings.Repeat("f", 900))

	tags := &fakeTagReader{metas: map[string]*AudioMetadata{
		small: {Title: "Song", Artist: "Artist", DurationMs: 200000, Source: MetadataSourceTags},
		big:   {Title: "Song", Artist: "Artist", DurationMs: 200100, Source: MetadataSourceTags},
		flac:  {Title: "Song", Artist: "Artist", DurationMs: 200200, Lossless: true, Source: MetadataSourceTags},
	}}
	scanner := NewDuplicateScannerWith(tags, nil)

	result, err := scanner.FindDuplicates(context.Background(), root, DuplicateScanOptions{})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, flac, g.BestQualityFile)
	assert.Equal(t, int64(1400), g.TotalSize)

	assert.True(t, g.RemoveFile(flac))
	assert.ElementsMatch(t, []string{small, big}, g.Files)
	assert.Equal(t, big, g.BestQualityFile, "size breaks the tie between equal lossy files")
	assert.Equal(t, int64(500), g.TotalSize)
	assert.Equal(t, 0, g.LosslessCount)

	assert.False(t, g.RemoveFile(big), "a single survivor dissolves the group")
}
