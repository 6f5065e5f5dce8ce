package backend

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/ulikunitz/xz"

	"flacsweep/logger"
)

const scanCacheVersion = 2

// persistDebounce batches cache writes during a scan so thousands of
// Update calls produce a handful of disk writes.
const persistDebounce = 2 * time.Second

var (
	cacheDirMu       sync.Mutex
	cacheDirOverride string

	openCachesMu sync.Mutex
	openCaches   = map[string]*ScanCache{}
)

// SetCacheDir overrides where scan cache files live. Empty restores the
// default under the user cache dir.
func SetCacheDir(dir string) {
	cacheDirMu.Lock()
	defer cacheDirMu.Unlock()
	cacheDirOverride = dir
}

func cacheBaseDir() (string, error) {
	cacheDirMu.Lock()
	override := cacheDirOverride
	cacheDirMu.Unlock()
	if override != "" {
		return override, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "flacsweep"), nil
}

// cacheFilePathForRoot maps a scan root to its cache file. The digest
// keeps one file per root regardless of path length or separators.
func cacheFilePathForRoot(root string) (string, error) {
	base, err := cacheBaseDir()
	if err != nil {
		return "", err
	}
	sum := sha1.Sum([]byte(normalizePath(root)))
	return filepath.Join(base, fmt.Sprintf("scan_%x.json.xz", sum)), nil
}

// CacheEntry is the persisted per-file record. Size and ModTimeUnix are
// the validity check; everything else is the cached scan work.
type CacheEntry struct {
	Path        string         `json:"path"`
	Size        int64          `json:"size"`
	ModTimeUnix int64          `json:"mod_time_unix"`
	Metadata    *AudioMetadata `json:"metadata,omitempty"`
	FileHash    string         `json:"file_hash,omitempty"`
	Fingerprint []uint32       `json:"fingerprint,omitempty"`
	SavedAt     int64          `json:"saved_at"`
}

// FileStat is the stat result a Lookup already paid for, handed to the
// caller so a cache miss never costs a second stat.
type FileStat struct {
	Size        int64
	ModTimeUnix int64
	Missing     bool
}

type scanCacheFile struct {
	Version int                    `json:"version"`
	Root    string                 `json:"root"`
	SavedAt int64                  `json:"saved_at"`
	Entries map[string]*CacheEntry `json:"entries"`
}

// ScanCache holds per-file scan results for one library root. Lookups
// validate entries against the live file; writes persist through a
// debounced background save plus an explicit Flush at scan end.
type ScanCache struct {
	root string
	path string

	mu      sync.RWMutex
	entries map[string]*CacheEntry
	dirty   bool

	save func(f func())
}

// OpenScanCache loads (or initializes) the cache for root. Opening the
// same root twice returns the same instance so invalidation from file
// mutators reaches in-flight scans.
func OpenScanCache(root string) (*ScanCache, error) {
	path, err := cacheFilePathForRoot(root)
	if err != nil {
		return nil, err
	}

	openCachesMu.Lock()
	defer openCachesMu.Unlock()
	if existing, ok := openCaches[path]; ok {
		return existing, nil
	}

	c := &ScanCache{
		root:    normalizePath(root),
		path:    path,
		entries: map[string]*CacheEntry{},
		save:    debounce.New(persistDebounce),
	}
	c.load()
	openCaches[path] = c
	return c, nil
}

func (c *ScanCache) load() {
	f, err := os.Open(c.path)
	if err != nil {
		return
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		logger.Warn("scan cache unreadable, starting fresh",
			logger.String("path", c.path), logger.ErrorField(err))
		return
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return
	}

	var file scanCacheFile
	if err := json.Unmarshal(data, &file); err != nil || file.Version != scanCacheVersion {
		logger.Warn("scan cache version mismatch, starting fresh",
			logger.String("path", c.path), logger.Int("version", file.Version))
		return
	}
	if file.Entries != nil {
		c.entries = file.Entries
	}
	logger.Debug("scan cache loaded",
		logger.String("root", c.root), logger.Int("entries", len(c.entries)))
}

// Lookup stats path exactly once and returns the valid cache entry if the
// file still matches it. Stale and deleted entries are purged on the spot.
// The returned FileStat is valid whenever the file exists, hit or miss.
func (c *ScanCache) Lookup(path string) (*CacheEntry, FileStat, bool) {
	key := normalizePath(path)

	st, err := os.Stat(path)
	if err != nil {
		c.mu.Lock()
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			c.dirty = true
		}
		c.mu.Unlock()
		return nil, FileStat{Missing: true}, false
	}
	fs := FileStat{Size: st.Size(), ModTimeUnix: st.ModTime().Unix()}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, fs, false
	}
	if entry.Size != fs.Size || entry.ModTimeUnix != fs.ModTimeUnix {
		c.mu.Lock()
		delete(c.entries, key)
		c.dirty = true
		c.mu.Unlock()
		return nil, fs, false
	}
	return entry, fs, true
}

// Update records the scan result for one file and schedules a persist.
func (c *ScanCache) Update(path string, fs FileStat, meta *AudioMetadata, hash string, fingerprint []uint32) {
	key := normalizePath(path)
	entry := &CacheEntry{
		Path:        key,
		Size:        fs.Size,
		ModTimeUnix: fs.ModTimeUnix,
		Metadata:    meta,
		FileHash:    hash,
		Fingerprint: fingerprint,
		SavedAt:     time.Now().Unix(),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.dirty = true
	c.mu.Unlock()

	c.save(func() {
		if err := c.Flush(); err != nil {
			logger.Warn("scan cache persist failed",
				logger.String("path", c.path), logger.ErrorField(err))
		}
	})
}

// Invalidate drops the entry for one path, if present.
func (c *ScanCache) Invalidate(path string) {
	c.InvalidateMany([]string{path})
}

// InvalidateMany drops entries for every given path and schedules a
// persist when anything actually changed.
func (c *ScanCache) InvalidateMany(paths []string) {
	c.mu.Lock()
	changed := false
	for _, p := range paths {
		key := normalizePath(p)
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			changed = true
		}
	}
	if changed {
		c.dirty = true
	}
	c.mu.Unlock()

	if changed {
		c.save(func() {
			if err := c.Flush(); err != nil {
				logger.Warn("scan cache persist failed",
					logger.String("path", c.path), logger.ErrorField(err))
			}
		})
	}
}

// Prune removes entries whose files no longer exist on disk and returns
// how many were dropped.
func (c *ScanCache) Prune() int {
	c.mu.Lock()
	var stale []string
	for key, entry := range c.entries {
		if _, err := os.Stat(entry.Path); err != nil {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(c.entries, key)
	}
	if len(stale) > 0 {
		c.dirty = true
	}
	c.mu.Unlock()

	if len(stale) > 0 {
		if err := c.Flush(); err != nil {
			logger.Warn("scan cache persist failed",
				logger.String("path", c.path), logger.ErrorField(err))
		}
	}
	return len(stale)
}

// Clear empties the cache and removes its file from disk.
func (c *ScanCache) Clear() error {
	c.mu.Lock()
	c.entries = map[string]*CacheEntry{}
	c.dirty = false
	c.mu.Unlock()

	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Len reports how many entries the cache currently holds.
func (c *ScanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Path returns the on-disk location of the persisted cache document.
func (c *ScanCache) Path() string {
	return c.path
}

// Flush writes the cache to disk immediately. Safe to call when nothing
// is dirty; that is a no-op.
func (c *ScanCache) Flush() error {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	file := scanCacheFile{
		Version: scanCacheVersion,
		Root:    c.root,
		SavedAt: time.Now().Unix(),
		Entries: make(map[string]*CacheEntry, len(c.entries)),
	}
	for k, v := range c.entries {
		file.Entries[k] = v
	}
	c.dirty = false
	c.mu.Unlock()

	data, err := json.Marshal(file)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, c.path)
}

// InvalidateCacheEntries drops the given paths from every open scan
// cache. File mutators call this after deleting or moving files.
func InvalidateCacheEntries(paths []string) {
	if len(paths) == 0 {
		return
	}
	openCachesMu.Lock()
	caches := make([]*ScanCache, 0, len(openCaches))
	for _, c := range openCaches {
		caches = append(caches, c)
	}
	openCachesMu.Unlock()

	for _, c := range caches {
		c.InvalidateMany(paths)
	}
}

// InvalidateCacheEntry drops one path from every open scan cache.
func InvalidateCacheEntry(path string) {
	InvalidateCacheEntries([]string{path})
}

// ClearScanCache removes the persisted cache for root.
func ClearScanCache(root string) error {
	c, err := OpenScanCache(root)
	if err != nil {
		return err
	}
	return c.Clear()
}

// PruneScanCache drops entries for files under root that no longer exist
// and reports how many were removed.
func PruneScanCache(root string) (int, error) {
	c, err := OpenScanCache(root)
	if err != nil {
		return 0, err
	}
	return c.Prune(), nil
}

// FlushScanCaches persists every open cache immediately. Short-lived
// processes call this before exit so debounced invalidations reach disk.
func FlushScanCaches() {
	openCachesMu.Lock()
	caches := make([]*ScanCache, 0, len(openCaches))
	for _, c := range openCaches {
		caches = append(caches, c)
	}
	openCachesMu.Unlock()

	for _, c := range caches {
		if err := c.Flush(); err != nil {
			logger.Warn("scan cache persist failed",
				logger.String("path", c.path), logger.ErrorField(err))
		}
	}
}
