package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo is the identity of a file under scan, snapshotted at enumeration
// time. A later stat supersedes Size and ModTime.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// audioExtensions are the container formats the scanner considers.
var audioExtensions = map[string]bool{
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".aac":  true,
	".ogg":  true,
	".wma":  true,
}

// IsAudioFile reports whether the path has a recognized audio extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// isLosslessFormat reports whether the path names a lossless container.
// Used as the baseline when stream properties are unavailable.
func isLosslessFormat(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac", ".wav":
		return true
	}
	return false
}

// formatLabel renders an extension as the uppercase format name shown in
// group listings ("FLAC", "MP3").
func formatLabel(path string) string {
	return strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), "."))
}

// normalizePath normalizes file paths for consistent comparison across
// platforms: cleaned, forward slashes. Idempotent.
func normalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// ListAudioFiles enumerates audio files under root. Hidden directories and
// the quarantine directory are skipped so quarantined copies never rejoin a
// scan. Enumeration order is deterministic (filepath.WalkDir walks lexically)
// which downstream tie-breaking relies on.
func ListAudioFiles(root string, recursive bool) ([]FileInfo, error) {
	if root == "" {
		return nil, fmt.Errorf("root path is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	var files []FileInfo
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || name == QuarantineDirName {
				return filepath.SkipDir
			}
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsAudioFile(path) {
			return nil
		}
		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		files = append(files, FileInfo{
			Name:    d.Name(),
			Path:    path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

// ProgressUpdate is a snapshot of a running batch operation.
type ProgressUpdate struct {
	SessionID   string `json:"session_id"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	CurrentFile string `json:"current_file,omitempty"`
	Stopped     bool   `json:"stopped,omitempty"`
}

// ProgressFunc receives progress snapshots. Callbacks must be fast; they run
// on the coordinator goroutine.
type ProgressFunc func(ProgressUpdate)
