package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flacsweep/logger"
)

// QuarantineDirName is the directory created under a library root to hold
// files set aside instead of deleted. Scans and the organizer skip it.
const QuarantineDirName = ".flacsweep_quarantine"

// MutationResult is the outcome of one file mutation.
type MutationResult struct {
	Path    string `json:"path"`
	NewPath string `json:"new_path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MutationSummary aggregates the per-file outcomes of a batch mutation.
// Individual failures never abort the batch.
type MutationSummary struct {
	Results   []MutationResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

func (s *MutationSummary) add(r MutationResult) {
	if r.Error == "" {
		s.Succeeded++
	} else {
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

// pathWithinRoot reports whether path resolves to a location under root.
func pathWithinRoot(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// DeleteFiles removes the given files from disk. Paths outside root are
// rejected per file rather than failing the batch. Cache entries for every
// requested path are invalidated before returning, whether or not the remove
// succeeded; a failed delete is re-stated on the next scan instead of
// trusted.
func DeleteFiles(root string, paths []string) MutationSummary {
	var summary MutationSummary
	for _, path := range paths {
		res := MutationResult{Path: path}
		if !pathWithinRoot(root, path) {
			res.Error = fmt.Sprintf("refusing to delete outside %s", root)
		} else if err := os.Remove(path); err != nil {
			res.Error = err.Error()
		}
		summary.add(res)
	}
	InvalidateCacheEntries(paths)
	logger.Info("files deleted",
		logger.Int("requested", len(paths)),
		logger.Int("failed", summary.Failed))
	return summary
}

// MoveFilesToQuarantine moves files into root's quarantine directory instead
// of deleting them. The quarantine is flat; name collisions get " (n)"
// suffixes. Cache entries for every requested path are invalidated before
// returning.
func MoveFilesToQuarantine(root string, paths []string) MutationSummary {
	var summary MutationSummary
	qdir := filepath.Join(root, QuarantineDirName)
	if err := os.MkdirAll(qdir, 0o755); err != nil {
		for _, path := range paths {
			summary.add(MutationResult{Path: path, Error: fmt.Sprintf("quarantine dir: %v", err)})
		}
		return summary
	}
	for _, path := range paths {
		res := MutationResult{Path: path}
		if !pathWithinRoot(root, path) {
			res.Error = fmt.Sprintf("refusing to quarantine outside %s", root)
			summary.add(res)
			continue
		}
		dest := findUniqueFilename(filepath.Join(qdir, filepath.Base(path)))
		if err := moveFile(path, dest); err != nil {
			res.Error = err.Error()
		} else {
			res.NewPath = dest
		}
		summary.add(res)
	}
	InvalidateCacheEntries(paths)
	logger.Info("files quarantined",
		logger.String("root", root),
		logger.Int("requested", len(paths)),
		logger.Int("failed", summary.Failed))
	return summary
}

// RestoreFromQuarantine moves quarantined files back into the root
// directory. Names are plain quarantine entry names, not paths; names with
// separators or dot components are rejected so a restore can never write
// outside the root. Restored destinations get " (n)" suffixes on collision
// and their cache entries are invalidated before returning.
func RestoreFromQuarantine(root string, names []string) MutationSummary {
	var summary MutationSummary
	qdir := filepath.Join(root, QuarantineDirName)
	var restored []string
	for _, name := range names {
		res := MutationResult{Path: name}
		if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
			res.Error = "invalid quarantine entry name"
			summary.add(res)
			continue
		}
		dest := findUniqueFilename(filepath.Join(root, name))
		if err := moveFile(filepath.Join(qdir, name), dest); err != nil {
			res.Error = err.Error()
		} else {
			res.NewPath = dest
			restored = append(restored, dest)
		}
		summary.add(res)
	}
	if len(restored) > 0 {
		InvalidateCacheEntries(restored)
	}
	logger.Info("files restored from quarantine",
		logger.String("root", root),
		logger.Int("requested", len(names)),
		logger.Int("failed", summary.Failed))
	return summary
}

// QuarantineEntry describes one file currently held in quarantine.
type QuarantineEntry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListQuarantine returns the audio files in root's quarantine directory,
// sorted by name. A missing quarantine directory yields an empty list, not
// an error.
func ListQuarantine(root string) ([]QuarantineEntry, error) {
	qdir := filepath.Join(root, QuarantineDirName)
	entries, err := os.ReadDir(qdir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read quarantine: %w", err)
	}
	var out []QuarantineEntry
	for _, entry := range entries {
		if entry.IsDir() || !IsAudioFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, QuarantineEntry{
			Name:    entry.Name(),
			Path:    filepath.Join(qdir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}
