package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"flacsweep/logger"
)

// Match pass names, recorded on each suggestion so the UI can show how a
// result was chosen. Passes run in this order and the first hit wins.
const (
	MatchPassTitleArtistDuration = "title_artist_duration"
	MatchPassTitleDuration       = "title_duration"
	MatchPassTitleArtist         = "title_artist"
	MatchPassFirstResult         = "first_result"
)

// Match confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

const (
	defaultSearchLimit         = 5
	defaultSearchTimeout       = 15 * time.Second
	defaultAvailabilityTimeout = 20 * time.Second
	defaultUpgradeConcurrency  = 4
	defaultSearchDelay         = 250 * time.Millisecond

	// Duration windows, in ms, used by the match passes and confidence.
	durationExactMs = 1000
	durationCloseMs = 3000
	durationLooseMs = 5000
)

// CatalogTrack is one track from the streaming catalog search.
type CatalogTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artists     string `json:"artists"`
	AlbumName   string `json:"album_name"`
	AlbumID     string `json:"album_id,omitempty"`
	Images      string `json:"images,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
	Duration    int    `json:"duration_ms"`
}

// CatalogSearcher searches the streaming catalog for tracks.
type CatalogSearcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]CatalogTrack, error)
}

// AvailabilityChecker resolves where a catalog track can be obtained in
// lossless form.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, trackID, fallbackID string) (*AvailabilityResult, error)
}

// SearchCache memoizes catalog search results by exact query for the
// lifetime of the process. Empty result lists are treated as misses so a
// transient catalog hiccup does not pin a permanent "not found".
type SearchCache struct {
	mu      sync.RWMutex
	entries map[string][]CatalogTrack
}

func NewSearchCache() *SearchCache {
	return &SearchCache{entries: make(map[string][]CatalogTrack)}
}

func (c *SearchCache) Get(query string) ([]CatalogTrack, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tracks, ok := c.entries[query]
	if !ok || len(tracks) == 0 {
		return nil, false
	}
	return tracks, true
}

func (c *SearchCache) Put(query string, tracks []CatalogTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = tracks
}

func (c *SearchCache) Invalidate(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, query)
}

func (c *SearchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// QualityUpgradeSuggestion is the outcome for one local file: the catalog
// track it was matched to and where lossless versions are available.
type QualityUpgradeSuggestion struct {
	FilePath        string              `json:"file_path"`
	FileName        string              `json:"file_name"`
	FileSize        int64               `json:"file_size"`
	CurrentFormat   string              `json:"current_format"`
	Metadata        *AudioMetadata      `json:"metadata,omitempty"`
	CatalogID       string              `json:"catalog_id,omitempty"`
	Track           *CatalogTrack       `json:"track,omitempty"`
	Availability    *AvailabilityResult `json:"availability,omitempty"`
	Error           string              `json:"error,omitempty"`
	SearchQuery     string              `json:"search_query,omitempty"`
	MatchPass       string              `json:"match_pass,omitempty"`
	MatchConfidence string              `json:"match_confidence,omitempty"`
}

// QualityUpgradeBatchResult is what a folder or multi-file scan returns.
// Stopped means cancellation cut the batch short; Suggestions then covers
// only the files that finished.
type QualityUpgradeBatchResult struct {
	SessionID   string                     `json:"session_id"`
	Suggestions []QualityUpgradeSuggestion `json:"suggestions"`
	Processed   int                        `json:"processed"`
	Total       int                        `json:"total"`
	Stopped     bool                       `json:"stopped"`
}

// QualityUpgradeScanner matches local files against the streaming catalog
// and checks lossless availability. All outbound traffic flows through
// one rate limiter regardless of worker count.
type QualityUpgradeScanner struct {
	tags         TagReader
	search       CatalogSearcher
	availability AvailabilityChecker
	cache        *SearchCache
	limiter      *rate.Limiter

	searchLimit         int
	searchTimeout       time.Duration
	availabilityTimeout time.Duration
	concurrency         int

	// Progress, when set, is called after every finished file.
	Progress ProgressFunc
}

// NewQualityUpgradeScanner wires the production collaborators.
func NewQualityUpgradeScanner() *QualityUpgradeScanner {
	return NewQualityUpgradeScannerWith(NewTagReader(), NewSpotifyClient(), NewSongLinkClient())
}

// NewQualityUpgradeScannerWith builds a scanner around explicit
// collaborators, with the default cache, limits and timeouts.
func NewQualityUpgradeScannerWith(tags TagReader, search CatalogSearcher, availability AvailabilityChecker) *QualityUpgradeScanner {
	return &QualityUpgradeScanner{
		tags:                tags,
		search:              search,
		availability:        availability,
		cache:               NewSearchCache(),
		limiter:             rate.NewLimiter(rate.Every(defaultSearchDelay), 1),
		searchLimit:         defaultSearchLimit,
		searchTimeout:       defaultSearchTimeout,
		availabilityTimeout: defaultAvailabilityTimeout,
		concurrency:         defaultUpgradeConcurrency,
	}
}

// SetConcurrency caps how many files are processed at once.
func (s *QualityUpgradeScanner) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// SetSearchLimit caps how many catalog results each query requests.
func (s *QualityUpgradeScanner) SetSearchLimit(n int) {
	if n > 0 {
		s.searchLimit = n
	}
}

// SetSearchDelay adjusts the minimum spacing between catalog searches.
func (s *QualityUpgradeScanner) SetSearchDelay(d time.Duration) {
	if d > 0 {
		s.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// SetTimeouts adjusts the per-request search and availability timeouts.
func (s *QualityUpgradeScanner) SetTimeouts(search, availability time.Duration) {
	if search > 0 {
		s.searchTimeout = search
	}
	if availability > 0 {
		s.availabilityTimeout = availability
	}
}

// ScanFolder runs the upgrade scan over every audio file under root.
func (s *QualityUpgradeScanner) ScanFolder(ctx context.Context, root string, recursive bool) (*QualityUpgradeBatchResult, error) {
	if root == "" {
		return nil, fmt.Errorf("folder path is required")
	}
	files, err := ListAudioFiles(root, recursive)
	if err != nil {
		return nil, fmt.Errorf("list audio files: %w", err)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return s.ScanFiles(ctx, paths)
}

// ScanFiles runs the upgrade scan over the given files with bounded
// concurrency. Cancellation stops dispatch and returns the suggestions
// finished so far with Stopped set.
func (s *QualityUpgradeScanner) ScanFiles(ctx context.Context, paths []string) (*QualityUpgradeBatchResult, error) {
	sessionID := uuid.NewString()
	result := &QualityUpgradeBatchResult{SessionID: sessionID, Total: len(paths)}
	if len(paths) == 0 {
		return result, nil
	}

	logger.Info("quality upgrade scan started",
		logger.String("session_id", sessionID),
		logger.Int("files", len(paths)),
		logger.Int("concurrency", s.concurrency))

	concurrency := s.concurrency
	if concurrency > len(paths) {
		concurrency = len(paths)
	}
	sem := make(chan struct{}, concurrency)
	slots := make([]*QualityUpgradeSuggestion, len(paths))
	var (
		wg         sync.WaitGroup
		progressMu sync.Mutex
		done       int
		stopped    bool
	)

	for i, path := range paths {
		select {
		case <-ctx.Done():
			stopped = true
		default:
		}
		if stopped {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, p string) {
			defer wg.Done()
			defer func() { <-sem }()
			suggestion := s.scanOne(ctx, p, idx, len(paths))
			slots[idx] = &suggestion

			progressMu.Lock()
			done++
			processed := done
			progressMu.Unlock()
			if s.Progress != nil {
				s.Progress(ProgressUpdate{
					SessionID:   sessionID,
					Processed:   processed,
					Total:       len(paths),
					CurrentFile: p,
				})
			}
		}(i, path)
	}
	wg.Wait()

	for _, slot := range slots {
		if slot != nil {
			result.Suggestions = append(result.Suggestions, *slot)
		}
	}
	result.Processed = len(result.Suggestions)
	result.Stopped = stopped || ctx.Err() != nil

	logger.Info("quality upgrade scan finished",
		logger.String("session_id", sessionID),
		logger.Int("processed", result.Processed),
		logger.Bool("stopped", result.Stopped))
	return result, nil
}

// ScanFile runs the upgrade scan for a single file.
func (s *QualityUpgradeScanner) ScanFile(ctx context.Context, path string) (*QualityUpgradeSuggestion, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file does not exist: %w", err)
	}
	suggestion := s.scanOne(ctx, path, 0, 1)
	return &suggestion, nil
}

func (s *QualityUpgradeScanner) scanOne(ctx context.Context, path string, index, total int) QualityUpgradeSuggestion {
	suggestion := QualityUpgradeSuggestion{
		FilePath:      path,
		FileName:      filepath.Base(path),
		CurrentFormat: formatLabel(path),
	}
	if st, err := os.Stat(path); err == nil {
		suggestion.FileSize = st.Size()
	}

	meta, err := s.tags.ReadMetadata(path)
	if meta == nil {
		suggestion.Error = fmt.Sprintf("Failed to read metadata: %v", err)
		return suggestion
	}
	suggestion.Metadata = meta
	logger.Debug("upgrade scan file",
		logger.Int("index", index+1),
		logger.Int("total", total),
		logger.String("path", path),
		logger.String("title", meta.Title),
		logger.String("artist", meta.Artist),
		logger.Int("duration_ms", meta.DurationMs))

	if !meta.HasTitle() {
		suggestion.Error = "Missing title or artist metadata"
		return suggestion
	}

	query := buildSearchQuery(meta)
	suggestion.SearchQuery = query
	if query == "" {
		suggestion.Error = "Could not build search query"
		return suggestion
	}

	tracks, cached, err := s.searchTracks(ctx, query)
	if err != nil {
		suggestion.Error = fmt.Sprintf("Search failed: %v", err)
		return suggestion
	}
	if len(tracks) == 0 {
		suggestion.Error = "No matching tracks found on Spotify"
		return suggestion
	}
	logger.Debug("search results",
		logger.String("query", query),
		logger.Int("results", len(tracks)),
		logger.Bool("cached", cached))

	match, pass := matchTrack(meta, tracks)
	suggestion.CatalogID = match.ID
	suggestion.Track = match
	suggestion.MatchPass = pass
	suggestion.MatchConfidence = computeMatchConfidence(meta, match)
	logger.Debug("matched track",
		logger.String("path", path),
		logger.String("track", match.Name),
		logger.String("artists", match.Artists),
		logger.String("pass", pass),
		logger.String("confidence", suggestion.MatchConfidence))

	availCtx, cancel := context.WithTimeout(ctx, s.availabilityTimeout)
	defer cancel()
	availability, err := s.availability.CheckAvailability(availCtx, match.ID, "")
	if err != nil {
		suggestion.Error = fmt.Sprintf("Failed to check availability: %v", err)
		return suggestion
	}
	suggestion.Availability = availability
	return suggestion
}

// searchTracks consults the cache, then the catalog behind the shared
// rate limiter. The bool reports whether the cache answered.
func (s *QualityUpgradeScanner) searchTracks(ctx context.Context, query string) ([]CatalogTrack, bool, error) {
	if tracks, ok := s.cache.Get(query); ok {
		return tracks, true, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()
	tracks, err := s.search.SearchTracks(searchCtx, query, s.searchLimit)
	if err != nil {
		return nil, false, err
	}
	s.cache.Put(query, tracks)
	return tracks, false, nil
}

// buildSearchQuery produces the one catalog query for a file: cleaned
// title, then cleaned artist when one is known.
func buildSearchQuery(meta *AudioMetadata) string {
	title := cleanSearchString(meta.Title)
	if title == "" {
		return ""
	}
	artist := cleanSearchString(meta.Artist)
	if artist == "" || strings.EqualFold(artist, UnknownArtist) {
		return title
	}
	return title + " " + artist
}

// matchPass is one predicate in the ordered match sequence.
type matchPass struct {
	name    string
	matches func(meta *AudioMetadata, track *CatalogTrack) bool
}

var matchPasses = []matchPass{
	{MatchPassTitleArtistDuration, func(meta *AudioMetadata, track *CatalogTrack) bool {
		if !durationsKnown(meta, track) {
			return false
		}
		return titleMatches(meta, track) && artistMatches(meta, track) &&
			durationDiff(meta, track) <= durationCloseMs
	}},
	{MatchPassTitleDuration, func(meta *AudioMetadata, track *CatalogTrack) bool {
		if !durationsKnown(meta, track) {
			return false
		}
		return titleMatches(meta, track) && durationDiff(meta, track) <= durationLooseMs
	}},
	{MatchPassTitleArtist, func(meta *AudioMetadata, track *CatalogTrack) bool {
		return titleMatches(meta, track) && artistMatches(meta, track)
	}},
}

// matchTrack picks the catalog track for a file. Passes run strictly in
// order over all results; within a pass, result order decides ties. When
// no pass matches, the first result is returned as a low-trust fallback.
func matchTrack(meta *AudioMetadata, tracks []CatalogTrack) (*CatalogTrack, string) {
	for _, pass := range matchPasses {
		for i := range tracks {
			if pass.matches(meta, &tracks[i]) {
				return &tracks[i], pass.name
			}
		}
	}
	return &tracks[0], MatchPassFirstResult
}

// matchNormalize flattens strings for comparison during matching. It is
// deliberately lighter than normalizeKey: matching compares against
// catalog strings, not grouping keys.
func matchNormalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	s = strings.ReplaceAll(s, "&", "and")
	return strings.Join(strings.Fields(s), " ")
}

func titleMatches(meta *AudioMetadata, track *CatalogTrack) bool {
	a := matchNormalize(cleanSearchString(meta.Title))
	b := matchNormalize(track.Name)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(b, a) || strings.Contains(a, b)
}

func artistMatches(meta *AudioMetadata, track *CatalogTrack) bool {
	if strings.EqualFold(strings.TrimSpace(meta.Artist), UnknownArtist) {
		return false
	}
	a := matchNormalize(cleanSearchString(meta.Artist))
	b := matchNormalize(track.Artists)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(b, a) || strings.Contains(a, b)
}

func durationsKnown(meta *AudioMetadata, track *CatalogTrack) bool {
	return meta.HasDuration() && track.Duration > 0
}

func durationDiff(meta *AudioMetadata, track *CatalogTrack) int {
	diff := meta.DurationMs - track.Duration
	if diff < 0 {
		diff = -diff
	}
	return diff
}

// computeMatchConfidence grades a match from how the title, artist and
// duration line up. Exact fields with an exact or unknown duration read
// high; substring matches and merely close durations step down through
// medium to low.
func computeMatchConfidence(meta *AudioMetadata, track *CatalogTrack) string {
	titleA := matchNormalize(cleanSearchString(meta.Title))
	titleB := matchNormalize(track.Name)
	artistA := matchNormalize(cleanSearchString(meta.Artist))
	artistB := matchNormalize(track.Artists)

	tExact := titleA != "" && titleA == titleB
	tContains := !tExact && titleA != "" && titleB != "" &&
		(strings.Contains(titleB, titleA) || strings.Contains(titleA, titleB))
	aExact := artistA != "" && artistA == artistB
	aContains := !aExact && artistA != "" && artistB != "" &&
		(strings.Contains(artistB, artistA) || strings.Contains(artistA, artistB))

	dUnknown := !durationsKnown(meta, track)
	dExact := !dUnknown && durationDiff(meta, track) <= durationExactMs
	dClose := !dUnknown && durationDiff(meta, track) <= durationCloseMs

	switch {
	case tExact && aExact && (dExact || dUnknown):
		return ConfidenceHigh
	case tExact && aContains && dExact:
		return ConfidenceHigh
	case tExact && aExact && dClose:
		return ConfidenceMedium
	case tExact && aContains && dClose:
		return ConfidenceMedium
	case tContains && aExact && (dExact || dClose):
		return ConfidenceMedium
	case tContains && aContains && dExact:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// cleanSearchString strips bitrate, format and rip-tool junk that would
// poison catalog queries and comparisons.
func cleanSearchString(s string) string {
	if s == "" {
		return s
	}
	s = strings.TrimSpace(s)
	// bracketed segments that are clearly quality or release junk
	reJunk := regexp.MustCompile(`(?i)[\(\[]([^)\]]*(?:\d{3,4}\s*[kK]?\s*(?:bps|MP3|FLAC|AAC|OGG|WAV|M4A)|official|video|lyrics?|audio|explicit|clean|HD|HQ|prod\.?)[^)\]]*)[\)\]]`)
	s = reJunk.ReplaceAllString(s, "")
	// unterminated junk like "( - 128K MP3"
	reJunkOpen := regexp.MustCompile(`(?i)\s*\(\s*[-\x{2013}]?\s*\d{3,4}\s*[kK]?\s*(?:bps|MP3|FLAC|AAC|OGG|M4A|WAV)?\s*\)?`)
	s = reJunkOpen.ReplaceAllString(s, "")
	// free-standing bitrate or format tokens
	reBitrate := regexp.MustCompile(`(?i)\s+(?:\d{3,4}\s*[kK](?:bps)?|MP3|FLAC|AAC|OGG|M4A|WAV)(?:\s|$)`)
	s = reBitrate.ReplaceAllString(s, " ")
	// leaked file extensions
	reExt := regexp.MustCompile(`(?i)\.(mp3|flac|aac|ogg|m4a|wav|wma)(\s|$)`)
	s = reExt.ReplaceAllString(s, " ")
	// trailing year markers
	reYear := regexp.MustCompile(`\s*[\(\[]\d{4}[\)\]]\s*$`)
	s = reYear.ReplaceAllString(s, "")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
