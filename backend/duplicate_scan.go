package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hbollon/go-edlib"
	"github.com/samber/lo"

	"flacsweep/logger"
)

// Group methods record which pass produced a duplicate group.
const (
	GroupMethodMetadata    = "metadata"
	GroupMethodHash        = "hash"
	GroupMethodFingerprint = "fingerprint"
)

const (
	defaultDurationToleranceMs = 3000
	defaultScanBatchSize       = 50
	maxScanErrors              = 10

	// fuzzyMergeThreshold is the Jaro-Winkler similarity two group
	// identities must reach before UseFuzzyMatching merges them.
	fuzzyMergeThreshold = 0.92
)

// DuplicateScanOptions controls a duplicate scan.
type DuplicateScanOptions struct {
	// UseExactHash adds a content-hash pass so bit-identical copies
	// group even when their tags disagree.
	UseExactHash bool `json:"use_exact_hash"`

	// DurationToleranceMs sets the width of duration buckets used in
	// grouping keys. 0 means the 3000ms default. Ignored when
	// IgnoreDuration is set.
	DurationToleranceMs int `json:"duration_tolerance_ms"`

	// UseFilenameFallback lets filename-derived identity participate in
	// metadata grouping when a file has no usable tags.
	UseFilenameFallback bool `json:"use_filename_fallback"`

	// IgnoreDuration groups by title and artist only. Useful when the
	// same song exists in cuts of different length across sources.
	IgnoreDuration bool `json:"ignore_duration"`

	// UseFingerprint adds an acoustic fingerprint pass via fpcalc so the
	// same audio groups across formats. Requires fpcalc on PATH.
	UseFingerprint bool `json:"use_fingerprint"`

	// UseFuzzyMatching merges metadata groups whose identities are
	// nearly identical, catching punctuation and credit-style drift.
	UseFuzzyMatching bool `json:"use_fuzzy_matching"`

	// Recursive descends into subdirectories of the scan root.
	Recursive bool `json:"recursive"`

	// WorkerCount caps concurrent file reads. 0 picks a default from
	// the CPU count.
	WorkerCount int `json:"worker_count"`

	// BatchSize is how many files are dispatched between cancellation
	// checks. 0 means the default of 50.
	BatchSize int `json:"batch_size"`
}

func (o *DuplicateScanOptions) applyDefaults() {
	if o.DurationToleranceMs <= 0 {
		o.DurationToleranceMs = defaultDurationToleranceMs
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultScanBatchSize
	}
	if o.WorkerCount <= 0 {
		n := runtime.NumCPU()
		if n < 2 {
			n = 2
		}
		// metadata reads are I/O bound, allow a small multiplier
		o.WorkerCount = n * 2
	}
}

// FileDetail is the per-file view inside a duplicate group.
type FileDetail struct {
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Format     string `json:"format"`
	Duration   int    `json:"duration"`
	Bitrate    int    `json:"bitrate"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
	Channels   int    `json:"channels"`
	Codec      string `json:"codec"`
	Lossless   bool   `json:"lossless"`
	HasArtwork bool   `json:"has_artwork"`
}

// DuplicateGroup is a set of files believed to be the same recording.
type DuplicateGroup struct {
	Files                  []string     `json:"files"`
	Title                  string       `json:"title"`
	Artist                 string       `json:"artist"`
	GroupMethod            string       `json:"group_method"`
	TotalSize              int64        `json:"total_size"`
	Formats                []string     `json:"formats"`
	BestQualityFile        string       `json:"best_quality_file"`
	BestQualityReason      string       `json:"best_quality_reason"`
	LosslessCount          int          `json:"lossless_count"`
	LossyCount             int          `json:"lossy_count"`
	AvgBitrate             int          `json:"avg_bitrate"`
	RepresentativeDuration int          `json:"representative_duration"`
	FileDetails            []FileDetail `json:"file_details"`
}

// RemoveFile drops path from the group and recomputes its aggregates.
// It reports whether the group still holds two or more files; callers
// dissolve the group when it returns false.
func (g *DuplicateGroup) RemoveFile(path string) bool {
	norm := normalizePath(path)
	kept := g.FileDetails[:0]
	for _, d := range g.FileDetails {
		if normalizePath(d.Path) != norm {
			kept = append(kept, d)
		}
	}
	g.FileDetails = kept
	finalizeGroup(g)
	return len(g.Files) >= 2
}

// DuplicateScanResult is everything one scan produced. Stopped means the
// scan was cancelled and Groups covers only the files processed so far.
type DuplicateScanResult struct {
	SessionID    string           `json:"session_id"`
	Root         string           `json:"root"`
	Groups       []DuplicateGroup `json:"groups"`
	FilesScanned int              `json:"files_scanned"`
	CacheHits    int              `json:"cache_hits"`
	Errors       []string         `json:"errors,omitempty"`
	Stopped      bool             `json:"stopped"`
}

// DuplicateScanner finds duplicate recordings under a library root. Tag
// reading and fingerprinting are injected so tests can run without real
// audio files or fpcalc.
type DuplicateScanner struct {
	tags        TagReader
	fingerprint Fingerprinter

	// Progress, when set, is called after every processed file.
	Progress ProgressFunc
}

// NewDuplicateScanner wires a scanner with the production collaborators.
func NewDuplicateScanner() *DuplicateScanner {
	return &DuplicateScanner{
		tags:        NewTagReader(),
		fingerprint: NewChromaprinter(),
	}
}

// NewDuplicateScannerWith builds a scanner around explicit collaborators.
func NewDuplicateScannerWith(tags TagReader, fingerprint Fingerprinter) *DuplicateScanner {
	return &DuplicateScanner{tags: tags, fingerprint: fingerprint}
}

// fileScanResult is what the worker pool produces for one file.
type fileScanResult struct {
	Index       int
	Path        string
	Size        int64
	Metadata    *AudioMetadata
	Hash        string
	Fingerprint []uint32
	CacheHit    bool
	Err         error
}

// computeFileHash streams path through SHA-256 and returns the hex digest.
func computeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, 32*1024)); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// durationBucketSuffix returns the grouping-key suffix for a duration.
// Buckets are centered on multiples of the tolerance so values just
// either side of a boundary still land together. Unknown durations get
// no suffix, which acts as a shared sentinel bucket.
func durationBucketSuffix(meta *AudioMetadata, opts DuplicateScanOptions) string {
	if opts.IgnoreDuration || !meta.HasDuration() {
		return ""
	}
	bucket := (meta.DurationMs + opts.DurationToleranceMs/2) / opts.DurationToleranceMs
	return fmt.Sprintf("|d%d", bucket)
}

// FindDuplicates scans root and groups files that appear to be the same
// recording. Cancellation is not an error: the result comes back with
// Stopped set and whatever groups the processed files support.
func (s *DuplicateScanner) FindDuplicates(ctx context.Context, root string, opts DuplicateScanOptions) (*DuplicateScanResult, error) {
	if root == "" {
		return nil, fmt.Errorf("scan root is required")
	}
	opts.applyDefaults()

	files, err := ListAudioFiles(root, opts.Recursive)
	if err != nil {
		return nil, fmt.Errorf("list audio files: %w", err)
	}

	cache, err := OpenScanCache(root)
	if err != nil {
		logger.Warn("scan cache unavailable, scanning uncached", logger.ErrorField(err))
		cache = nil
	}

	sessionID := uuid.NewString()
	logger.Info("duplicate scan started",
		logger.String("session_id", sessionID),
		logger.String("root", root),
		logger.Int("files", len(files)),
		logger.Int("workers", opts.WorkerCount))

	results, stats := s.scanFiles(ctx, sessionID, files, cache, opts)
	if cache != nil {
		if err := cache.Flush(); err != nil {
			logger.Warn("scan cache flush failed", logger.ErrorField(err))
		}
	}

	groups := s.groupResults(results, opts)

	logger.Info("duplicate scan finished",
		logger.String("session_id", sessionID),
		logger.Int("scanned", stats.scanned),
		logger.Int("cache_hits", stats.cacheHits),
		logger.Int("groups", len(groups)),
		logger.Bool("stopped", stats.stopped))

	return &DuplicateScanResult{
		SessionID:    sessionID,
		Root:         normalizePath(root),
		Groups:       groups,
		FilesScanned: stats.scanned,
		CacheHits:    stats.cacheHits,
		Errors:       stats.errors,
		Stopped:      stats.stopped,
	}, nil
}

// RevalidateGroup re-scans just the given files after the user acted on a
// group. It returns the surviving group holding the largest subset of the
// paths, or nil when no two of them still match.
func (s *DuplicateScanner) RevalidateGroup(ctx context.Context, paths []string, opts DuplicateScanOptions) (*DuplicateGroup, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no file paths provided")
	}
	opts.applyDefaults()

	files := make([]FileInfo, 0, len(paths))
	for _, p := range paths {
		files = append(files, FileInfo{Name: filepath.Base(p), Path: p})
	}

	var cache *ScanCache
	if c, err := OpenScanCache(filepath.Dir(paths[0])); err == nil {
		cache = c
	}

	results, stats := s.scanFiles(ctx, uuid.NewString(), files, cache, opts)
	if cache != nil {
		if err := cache.Flush(); err != nil {
			logger.Warn("scan cache flush failed", logger.ErrorField(err))
		}
	}
	if stats.stopped {
		return nil, ctx.Err()
	}

	groups := s.groupResults(results, opts)

	provided := make(map[string]bool, len(paths))
	for _, p := range paths {
		provided[normalizePath(p)] = true
	}

	var best *DuplicateGroup
	bestOverlap := 0
	for i := range groups {
		overlap := 0
		for _, f := range groups[i].Files {
			if provided[normalizePath(f)] {
				overlap++
			}
		}
		if overlap >= 2 && overlap > bestOverlap {
			best = &groups[i]
			bestOverlap = overlap
		}
	}
	return best, nil
}

type scanStats struct {
	scanned   int
	cacheHits int
	errors    []string
	stopped   bool
}

// scanFiles runs the worker pool over files in fixed-size batches. The
// feeder checks for cancellation between batches, so a cancelled scan
// stops at a batch boundary and the collector drains what was in flight.
func (s *DuplicateScanner) scanFiles(ctx context.Context, sessionID string, files []FileInfo, cache *ScanCache, opts DuplicateScanOptions) ([]*fileScanResult, scanStats) {
	type indexedFile struct {
		index int
		info  FileInfo
	}

	filesCh := make(chan indexedFile)
	resultsCh := make(chan *fileScanResult)
	var wg sync.WaitGroup

	wg.Add(opts.WorkerCount)
	for i := 0; i < opts.WorkerCount; i++ {
		go func() {
			defer wg.Done()
			for f := range filesCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultsCh <- s.scanOne(ctx, f.index, f.info.Path, cache, opts)
			}
		}()
	}

	// feeder, batch at a time
	go func() {
		defer close(filesCh)
		batch := opts.BatchSize
		for start := 0; start < len(files); start += batch {
			select {
			case <-ctx.Done():
				return
			default:
			}
			end := start + batch
			if end > len(files) {
				end = len(files)
			}
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					return
				case filesCh <- indexedFile{index: i, info: files[i]}:
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var (
		results []*fileScanResult
		stats   scanStats
	)
	for res := range resultsCh {
		stats.scanned++
		if res.CacheHit {
			stats.cacheHits++
		}
		if res.Err != nil && len(stats.errors) < maxScanErrors {
			stats.errors = append(stats.errors, fmt.Sprintf("%s: %v", res.Path, res.Err))
		}
		if res.Err == nil || res.Metadata != nil {
			results = append(results, res)
		}
		if s.Progress != nil {
			s.Progress(ProgressUpdate{
				SessionID:   sessionID,
				Processed:   stats.scanned,
				Total:       len(files),
				CurrentFile: res.Path,
			})
		}
	}
	stats.stopped = ctx.Err() != nil

	// restore discovery order; workers finish out of order
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results, stats
}

// scanOne resolves a single file through the cache or by reading it.
func (s *DuplicateScanner) scanOne(ctx context.Context, index int, path string, cache *ScanCache, opts DuplicateScanOptions) *fileScanResult {
	res := &fileScanResult{Index: index, Path: path}

	var fs FileStat
	if cache != nil {
		entry, st, hit := cache.Lookup(path)
		if st.Missing {
			res.Err = fmt.Errorf("stat: file missing")
			return res
		}
		fs = st
		if hit && (entry.FileHash != "" || !opts.UseExactHash) && (len(entry.Fingerprint) > 0 || !opts.UseFingerprint) {
			res.Size = st.Size
			res.Metadata = entry.Metadata
			res.Hash = entry.FileHash
			res.Fingerprint = entry.Fingerprint
			res.CacheHit = true
			return res
		}
	} else {
		st, err := os.Stat(path)
		if err != nil {
			res.Err = err
			return res
		}
		fs = FileStat{Size: st.Size(), ModTimeUnix: st.ModTime().Unix()}
	}
	res.Size = fs.Size

	meta, err := s.tags.ReadMetadata(path)
	if err != nil {
		// keep whatever the reader salvaged, report the failure
		res.Err = err
	}
	res.Metadata = meta

	if opts.UseExactHash {
		if h, err := computeFileHash(path); err == nil {
			res.Hash = h
		} else if res.Err == nil {
			res.Err = err
		}
	}

	if opts.UseFingerprint && s.fingerprint != nil {
		if cp, err := s.fingerprint.ComputeFingerprint(ctx, path); err == nil && cp != nil {
			res.Fingerprint = cp.Fingerprint
		}
	}

	if cache != nil && res.Err == nil {
		cache.Update(path, fs, res.Metadata, res.Hash, res.Fingerprint)
	}
	return res
}

// duplicateGroupBuilder accumulates files for one grouping key.
type duplicateGroupBuilder struct {
	title      string
	artist     string
	durationMs int
	method     string
	files      []FileDetail
}

// groupResults runs the grouping passes over scan results. Metadata
// grouping goes first; hash and fingerprint passes only consider files
// metadata grouping could not place.
func (s *DuplicateScanner) groupResults(results []*fileScanResult, opts DuplicateScanOptions) []DuplicateGroup {
	builders := make(map[string]*duplicateGroupBuilder)
	var keys []string

	hashCandidates := make(map[string][]*fileScanResult)
	var hashOrder []string
	var fpCandidates []*fileScanResult

	for _, res := range results {
		meta := res.Metadata
		identified := meta.HasTitle() && meta.HasArtist()
		if identified && meta.Source == MetadataSourceFilename && !opts.UseFilenameFallback {
			identified = false
		}

		if !identified {
			if opts.UseExactHash && res.Hash != "" {
				if _, ok := hashCandidates[res.Hash]; !ok {
					hashOrder = append(hashOrder, res.Hash)
				}
				hashCandidates[res.Hash] = append(hashCandidates[res.Hash], res)
			}
			if opts.UseFingerprint && len(res.Fingerprint) > 0 {
				fpCandidates = append(fpCandidates, res)
			}
			continue
		}

		key := groupKey(meta.Title, meta.Artist) + durationBucketSuffix(meta, opts)
		builder, ok := builders[key]
		if !ok {
			builder = &duplicateGroupBuilder{
				title:      meta.Title,
				artist:     meta.Artist,
				durationMs: meta.DurationMs,
				method:     GroupMethodMetadata,
			}
			builders[key] = builder
			keys = append(keys, key)
		}
		builder.files = append(builder.files, fileDetailFor(res))

		if opts.UseExactHash && res.Hash != "" {
			if _, ok := hashCandidates[res.Hash]; !ok {
				hashOrder = append(hashOrder, res.Hash)
			}
			hashCandidates[res.Hash] = append(hashCandidates[res.Hash], res)
		}
		if opts.UseFingerprint && len(res.Fingerprint) > 0 {
			fpCandidates = append(fpCandidates, res)
		}
	}

	if opts.UseFuzzyMatching {
		keys = mergeSimilarBuilders(builders, keys, opts)
	}

	var groups []DuplicateGroup
	grouped := make(map[string]bool)
	for _, key := range keys {
		builder := builders[key]
		if builder == nil || len(builder.files) < 2 {
			continue
		}
		groups = append(groups, buildGroup(builder))
		for _, d := range builder.files {
			grouped[normalizePath(d.Path)] = true
		}
	}

	if opts.UseExactHash {
		groups = append(groups, hashGroups(hashCandidates, hashOrder, grouped)...)
	}
	if opts.UseFingerprint {
		groups = append(groups, fingerprintGroups(fpCandidates, grouped)...)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].TotalSize != groups[j].TotalSize {
			return groups[i].TotalSize > groups[j].TotalSize
		}
		return groups[i].Title < groups[j].Title
	})
	return groups
}

// mergeSimilarBuilders folds metadata builders whose identities are close
// enough together. Returns the surviving key order.
func mergeSimilarBuilders(builders map[string]*duplicateGroupBuilder, keys []string, opts DuplicateScanOptions) []string {
	identity := func(b *duplicateGroupBuilder) string {
		return normalizeKey(b.title) + " " + normalizeKey(b.artist)
	}
	durationsCompatible := func(a, b *duplicateGroupBuilder) bool {
		if opts.IgnoreDuration || a.durationMs <= 0 || b.durationMs <= 0 {
			return true
		}
		diff := a.durationMs - b.durationMs
		if diff < 0 {
			diff = -diff
		}
		return diff <= opts.DurationToleranceMs
	}

	var survivors []string
	for _, key := range keys {
		builder := builders[key]
		if builder == nil {
			continue
		}
		merged := false
		for _, other := range survivors {
			target := builders[other]
			if !durationsCompatible(builder, target) {
				continue
			}
			sim, err := edlib.StringsSimilarity(identity(builder), identity(target), edlib.JaroWinkler)
			if err != nil || sim < fuzzyMergeThreshold {
				continue
			}
			target.files = append(target.files, builder.files...)
			if target.durationMs == 0 {
				target.durationMs = builder.durationMs
			}
			delete(builders, key)
			merged = true
			break
		}
		if !merged {
			survivors = append(survivors, key)
		}
	}
	return survivors
}

// hashGroups builds groups of bit-identical files that metadata grouping
// did not already place. Each group needs two or more ungrouped files.
func hashGroups(candidates map[string][]*fileScanResult, order []string, grouped map[string]bool) []DuplicateGroup {
	var groups []DuplicateGroup
	for _, hash := range order {
		results := candidates[hash]
		var free []*fileScanResult
		for _, res := range results {
			if !grouped[normalizePath(res.Path)] {
				free = append(free, res)
			}
		}
		if len(free) < 2 {
			continue
		}
		builder := &duplicateGroupBuilder{method: GroupMethodHash}
		for _, res := range free {
			if builder.title == "" && res.Metadata.HasTitle() {
				builder.title = res.Metadata.Title
			}
			if builder.artist == "" && res.Metadata.HasArtist() {
				builder.artist = res.Metadata.Artist
			}
			builder.files = append(builder.files, fileDetailFor(res))
			grouped[normalizePath(res.Path)] = true
		}
		groups = append(groups, buildGroup(builder))
	}
	return groups
}

// fingerprintGroups clusters acoustically identical files that earlier
// passes did not place. Duration gates the comparison so wildly different
// cuts are never fingerprint-compared.
func fingerprintGroups(candidates []*fileScanResult, grouped map[string]bool) []DuplicateGroup {
	type cluster struct {
		fp         []uint32
		durationMs int
		members    []*fileScanResult
	}
	var clusters []*cluster
	for _, res := range candidates {
		if grouped[normalizePath(res.Path)] {
			continue
		}
		dur := 0
		if res.Metadata != nil {
			dur = res.Metadata.DurationMs
		}
		placed := false
		for _, c := range clusters {
			if !FingerprintDurationOK(dur, c.durationMs) {
				continue
			}
			if FingerprintsMatch(res.Fingerprint, c.fp, DefaultFingerprintThreshold) {
				c.members = append(c.members, res)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{fp: res.Fingerprint, durationMs: dur, members: []*fileScanResult{res}})
		}
	}

	var groups []DuplicateGroup
	for _, c := range clusters {
		if len(c.members) < 2 {
			continue
		}
		builder := &duplicateGroupBuilder{method: GroupMethodFingerprint}
		for _, res := range c.members {
			if builder.title == "" && res.Metadata.HasTitle() {
				builder.title = res.Metadata.Title
			}
			if builder.artist == "" && res.Metadata.HasArtist() {
				builder.artist = res.Metadata.Artist
			}
			builder.files = append(builder.files, fileDetailFor(res))
			grouped[normalizePath(res.Path)] = true
		}
		groups = append(groups, buildGroup(builder))
	}
	return groups
}

func fileDetailFor(res *fileScanResult) FileDetail {
	d := FileDetail{
		Path:   res.Path,
		Size:   res.Size,
		Format: formatLabel(res.Path),
	}
	if m := res.Metadata; m != nil {
		d.Duration = m.DurationMs
		d.Bitrate = m.Bitrate
		d.SampleRate = m.SampleRate
		d.BitDepth = m.BitDepth
		d.Channels = m.Channels
		d.Codec = m.Codec
		d.Lossless = m.Lossless
		d.HasArtwork = m.HasArtwork
	}
	if d.Codec == "" {
		d.Codec = d.Format
	}
	d.Lossless = d.Lossless || isLosslessFormat(res.Path)
	return d
}

func buildGroup(b *duplicateGroupBuilder) DuplicateGroup {
	g := DuplicateGroup{
		Title:       b.title,
		Artist:      b.artist,
		GroupMethod: b.method,
		FileDetails: b.files,
	}
	finalizeGroup(&g)
	return g
}

// finalizeGroup recomputes every aggregate from FileDetails.
func finalizeGroup(g *DuplicateGroup) {
	g.Files = g.Files[:0]
	g.TotalSize = 0
	g.LosslessCount = 0
	g.LossyCount = 0
	g.AvgBitrate = 0
	g.RepresentativeDuration = 0

	var formats []string
	bitrateSum, bitrateN := 0, 0
	for _, d := range g.FileDetails {
		g.Files = append(g.Files, d.Path)
		g.TotalSize += d.Size
		formats = append(formats, d.Format)
		if d.Lossless {
			g.LosslessCount++
		} else {
			g.LossyCount++
		}
		if d.Bitrate > 0 {
			bitrateSum += d.Bitrate
			bitrateN++
		}
		if g.RepresentativeDuration == 0 && d.Duration > 0 {
			g.RepresentativeDuration = d.Duration
		}
	}
	if bitrateN > 0 {
		g.AvgBitrate = bitrateSum / bitrateN
	}
	g.Formats = lo.Uniq(formats)
	sort.Strings(g.Formats)

	g.BestQualityFile, g.BestQualityReason = pickBestQuality(g.FileDetails)
}

// pickBestQuality compares files attribute by attribute in a fixed order
// of importance. Losslessness outranks bit depth, bit depth outranks
// sample rate, and file size breaks the remaining ties.
func pickBestQuality(details []FileDetail) (string, string) {
	if len(details) == 0 {
		return "", ""
	}
	best := 0
	for i := 1; i < len(details); i++ {
		if betterQuality(details[i], details[best]) {
			best = i
		}
	}
	return details[best].Path, qualityReason(details[best])
}

// betterQuality reports whether a beats b in the ordered comparison.
func betterQuality(a, b FileDetail) bool {
	if a.Lossless != b.Lossless {
		return a.Lossless
	}
	if a.BitDepth != b.BitDepth {
		return a.BitDepth > b.BitDepth
	}
	if a.SampleRate != b.SampleRate {
		return a.SampleRate > b.SampleRate
	}
	return a.Size > b.Size
}

func qualityReason(d FileDetail) string {
	var parts []string
	if d.Lossless {
		parts = append(parts, "lossless "+d.Format)
	} else {
		parts = append(parts, d.Format)
	}
	if d.BitDepth > 0 {
		parts = append(parts, fmt.Sprintf("%d-bit", d.BitDepth))
	}
	if d.SampleRate > 0 {
		parts = append(parts, fmt.Sprintf("%.1f kHz", float64(d.SampleRate)/1000))
	}
	if d.Size > 0 {
		parts = append(parts, sizeLabel(d.Size))
	}
	return strings.Join(parts, " • ")
}

func sizeLabel(size int64) string {
	const mb = 1024 * 1024
	if size >= 1024*mb {
		return fmt.Sprintf("%.2f GB", float64(size)/(1024*mb))
	}
	return fmt.Sprintf("%.1f MB", float64(size)/mb)
}
