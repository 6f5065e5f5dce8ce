package backend

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"flacsweep/logger"
)

// Plan item statuses produced by Organizer.Preview.
const (
	OrganizeWillMove        = "will_move"
	OrganizeConflict        = "conflict"
	OrganizeMissingMetadata = "missing_metadata"
	OrganizeUnchanged       = "unchanged"
	OrganizeError           = "error"
)

// OrganizeOptions selects what a preview covers and how destinations are
// rendered.
type OrganizeOptions struct {
	// Template is the folder structure, e.g. "{artist}/{album}".
	Template string `json:"template"`
	// FileNameFormat optionally renames files, e.g. "{track}. {title}".
	// Empty keeps the original name.
	FileNameFormat string `json:"file_name_format,omitempty"`
	Recursive      bool   `json:"recursive"`
}

// OrganizePlanItem is one file's place in an organization preview.
type OrganizePlanItem struct {
	SourcePath      string         `json:"source_path"`
	DestinationPath string         `json:"destination_path,omitempty"`
	Metadata        *AudioMetadata `json:"metadata,omitempty"`
	Status          string         `json:"status"`
	ConflictWith    string         `json:"conflict_with,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// OrganizePlan is the complete preview of an organization run. Nothing on
// disk changes until the plan is executed.
type OrganizePlan struct {
	Root            string             `json:"root"`
	Items           []OrganizePlanItem `json:"items"`
	TotalFiles      int                `json:"total_files"`
	WillMove        int                `json:"will_move"`
	Conflicts       int                `json:"conflicts"`
	Unchanged       int                `json:"unchanged"`
	Skipped         int                `json:"skipped"`
	Errors          int                `json:"errors"`
	FoldersToCreate []string           `json:"folders_to_create,omitempty"`
}

// OrganizeMove is the executed outcome for one planned item.
type OrganizeMove struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path,omitempty"`
	Error           string `json:"error,omitempty"`
	Skipped         bool   `json:"skipped,omitempty"`
}

// OrganizeResult summarizes an executed plan.
type OrganizeResult struct {
	Moves          []OrganizeMove `json:"moves"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	Skipped        int            `json:"skipped"`
	FoldersCreated int            `json:"folders_created"`
	FoldersRemoved int            `json:"folders_removed"`
}

// Organizer plans and executes template-driven library layouts.
type Organizer struct {
	tags TagReader
}

func NewOrganizer() *Organizer {
	return &Organizer{tags: NewTagReader()}
}

// NewOrganizerWith wires an explicit tag reader.
func NewOrganizerWith(tags TagReader) *Organizer {
	return &Organizer{tags: tags}
}

// Preview computes where every audio file under root would move for the
// given template, without touching disk. Files whose metadata lacks a
// template field are reported as skipped; two files rendering the same
// destination, or a destination already on disk, are reported as conflicts.
func (o *Organizer) Preview(root string, opts OrganizeOptions) (*OrganizePlan, error) {
	if root == "" {
		return nil, fmt.Errorf("root path is required")
	}
	if ok, reason := ValidateTemplate(opts.Template); !ok {
		return nil, fmt.Errorf("invalid template: %s", reason)
	}

	files, err := ListAudioFiles(root, opts.Recursive)
	if err != nil {
		return nil, err
	}

	plan := &OrganizePlan{Root: root, TotalFiles: len(files)}
	claimed := make(map[string]string) // destination -> source that claimed it
	newFolders := make(map[string]bool)

	for _, f := range files {
		item := OrganizePlanItem{SourcePath: f.Path}

		meta, err := o.tags.ReadMetadata(f.Path)
		if err != nil {
			item.Status = OrganizeError
			item.Error = fmt.Sprintf("Failed to read metadata: %v", err)
			plan.Items = append(plan.Items, item)
			plan.Errors++
			continue
		}
		item.Metadata = meta

		if !hasTemplateFields(meta, opts.Template) {
			item.Status = OrganizeMissingMetadata
			item.Error = "Missing metadata for template"
			plan.Items = append(plan.Items, item)
			plan.Skipped++
			continue
		}

		folder := renderTemplatePath(meta, opts.Template)
		name := f.Name
		if opts.FileNameFormat != "" {
			if rendered := renderTemplateComponent(meta, opts.FileNameFormat); rendered != "" {
				name = rendered + strings.ToLower(filepath.Ext(f.Path))
			}
		}
		dest := filepath.Join(root, folder, name)
		item.DestinationPath = dest

		if dest == f.Path {
			item.Status = OrganizeUnchanged
			plan.Items = append(plan.Items, item)
			plan.Unchanged++
			continue
		}
		if prior, taken := claimed[dest]; taken {
			item.Status = OrganizeConflict
			item.ConflictWith = prior
			plan.Items = append(plan.Items, item)
			plan.Conflicts++
			continue
		}
		if _, err := os.Stat(dest); err == nil {
			item.Status = OrganizeConflict
			item.ConflictWith = dest
			plan.Items = append(plan.Items, item)
			plan.Conflicts++
			continue
		}

		item.Status = OrganizeWillMove
		claimed[dest] = f.Path
		plan.Items = append(plan.Items, item)
		plan.WillMove++

		dir := filepath.Join(root, folder)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			newFolders[dir] = true
		}
	}

	for dir := range newFolders {
		plan.FoldersToCreate = append(plan.FoldersToCreate, dir)
	}
	sort.Strings(plan.FoldersToCreate)

	logger.Info("organization previewed",
		logger.String("root", root),
		logger.String("template", opts.Template),
		logger.Int("files", plan.TotalFiles),
		logger.Int("will_move", plan.WillMove),
		logger.Int("conflicts", plan.Conflicts))
	return plan, nil
}

// Execute carries out a previewed plan. Movable items get their destination
// directories created and are moved rename-first; conflicts are resolved
// with " (n)" suffixes at execution time. Source directories emptied by the
// moves are removed. Cache entries for every moved source are invalidated
// before returning.
func (o *Organizer) Execute(root string, items []OrganizePlanItem) (*OrganizeResult, error) {
	if root == "" {
		return nil, fmt.Errorf("root path is required")
	}

	result := &OrganizeResult{}
	createdDirs := make(map[string]bool)
	sourceDirs := make(map[string]bool)
	var movedSources []string

	for _, item := range items {
		move := OrganizeMove{SourcePath: item.SourcePath, DestinationPath: item.DestinationPath}

		switch item.Status {
		case OrganizeWillMove, OrganizeConflict:
		default:
			move.Skipped = true
			result.Moves = append(result.Moves, move)
			result.Skipped++
			continue
		}
		if item.DestinationPath == "" {
			move.Skipped = true
			result.Moves = append(result.Moves, move)
			result.Skipped++
			continue
		}

		destDir := filepath.Dir(item.DestinationPath)
		if !createdDirs[destDir] {
			if _, err := os.Stat(destDir); os.IsNotExist(err) {
				if err := os.MkdirAll(destDir, 0o755); err != nil {
					move.Error = fmt.Sprintf("Failed to create folder: %v", err)
					result.Moves = append(result.Moves, move)
					result.Failed++
					continue
				}
				result.FoldersCreated++
			}
			createdDirs[destDir] = true
		}

		dest := findUniqueFilename(item.DestinationPath)
		if err := moveFile(item.SourcePath, dest); err != nil {
			move.Error = fmt.Sprintf("Failed to move file: %v", err)
			result.Moves = append(result.Moves, move)
			result.Failed++
			continue
		}
		move.DestinationPath = dest
		sourceDirs[filepath.Dir(item.SourcePath)] = true
		movedSources = append(movedSources, item.SourcePath)
		result.Moves = append(result.Moves, move)
		result.Succeeded++
	}

	result.FoldersRemoved = removeEmptiedDirs(root, sourceDirs)

	if len(movedSources) > 0 {
		InvalidateCacheEntries(movedSources)
	}

	logger.Info("organization executed",
		logger.String("root", root),
		logger.Int("moved", result.Succeeded),
		logger.Int("failed", result.Failed),
		logger.Int("skipped", result.Skipped))
	return result, nil
}

// templatePlaceholders are the fields a template may reference.
var templatePlaceholders = []string{
	"{artist}", "{album_artist}", "{album}", "{year}", "{title}", "{track}", "{disc}",
}

// ValidateTemplate reports whether a template can be rendered, with a
// human-readable reason when it cannot.
func ValidateTemplate(template string) (bool, string) {
	if template == "" {
		return false, "template cannot be empty"
	}
	hasPlaceholder := false
	for _, p := range templatePlaceholders {
		if strings.Contains(template, p) {
			hasPlaceholder = true
			break
		}
	}
	if !hasPlaceholder {
		return false, "template must contain at least one placeholder like {artist} or {album}"
	}
	for _, ch := range []string{"<", ">", ":", "\"", "|", "?", "*"} {
		if strings.Contains(template, ch) {
			return false, fmt.Sprintf("template contains invalid character: %s", ch)
		}
	}
	return true, ""
}

// hasTemplateFields reports whether metadata carries every field the
// template references. Album artist falls back to artist.
func hasTemplateFields(meta *AudioMetadata, template string) bool {
	if meta == nil {
		return false
	}
	if strings.Contains(template, "{artist}") && !meta.HasArtist() {
		return false
	}
	if strings.Contains(template, "{title}") && !meta.HasTitle() {
		return false
	}
	if strings.Contains(template, "{album}") && strings.TrimSpace(meta.Album) == "" {
		return false
	}
	if strings.Contains(template, "{album_artist}") &&
		strings.TrimSpace(meta.AlbumArtist) == "" && !meta.HasArtist() {
		return false
	}
	if strings.Contains(template, "{year}") && strings.TrimSpace(meta.Year) == "" {
		return false
	}
	return true
}

// renderTemplateComponent substitutes placeholders and sanitizes the result
// as a single path component.
func renderTemplateComponent(meta *AudioMetadata, template string) string {
	year := meta.Year
	if len(year) > 4 {
		year = year[:4]
	}
	albumArtist := meta.AlbumArtist
	if strings.TrimSpace(albumArtist) == "" {
		albumArtist = meta.Artist
	}
	track := ""
	if meta.TrackNumber > 0 {
		track = fmt.Sprintf("%02d", meta.TrackNumber)
	}
	disc := ""
	if meta.DiscNumber > 0 {
		disc = fmt.Sprintf("%d", meta.DiscNumber)
	}

	r := strings.NewReplacer(
		"{artist}", sanitizePathComponent(meta.Artist),
		"{album_artist}", sanitizePathComponent(albumArtist),
		"{album}", sanitizePathComponent(meta.Album),
		"{year}", sanitizePathComponent(year),
		"{title}", sanitizePathComponent(meta.Title),
		"{track}", track,
		"{disc}", disc,
	)
	return strings.TrimSpace(r.Replace(template))
}

// renderTemplatePath renders a folder template, dropping segments that come
// out empty so a missing optional field collapses instead of leaving "()"
// style residue.
func renderTemplatePath(meta *AudioMetadata, template string) string {
	var parts []string
	for _, seg := range strings.Split(template, "/") {
		rendered := renderTemplateComponent(meta, seg)
		if rendered == "" || rendered == "-" || rendered == "()" || rendered == "[]" {
			continue
		}
		parts = append(parts, rendered)
	}
	return filepath.Join(parts...)
}

// invalidPathChars are rejected by Windows filesystems; slashes are path
// separators everywhere.
var invalidPathChars = strings.NewReplacer(
	"<", "", ">", "", ":", "", "\"", "", "|", "", "?", "", "*", "",
	"/", "-", "\\", "-",
)

// sanitizePathComponent makes a metadata value safe as a file or folder
// name. Trailing spaces and dots are trimmed, which Windows also rejects.
func sanitizePathComponent(name string) string {
	return strings.Trim(invalidPathChars.Replace(name), " .")
}

// moveFile renames src to dst, falling back to copy and remove when the
// rename fails (moves across filesystems).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// findUniqueFilename returns path itself when free, otherwise the first
// " (n)" suffixed variant that does not exist yet.
func findUniqueFilename(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, os.Getpid(), ext))
}

// removeEmptiedDirs removes directories under root left empty by a batch of
// moves, deepest first so a directory emptied by removing its children goes
// too. Root itself is never removed. Returns the number removed.
func removeEmptiedDirs(root string, sourceDirs map[string]bool) int {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0
	}
	seen := make(map[string]bool)
	var candidates []string
	for dir := range sourceDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		for abs != absRoot && pathWithinRoot(absRoot, abs) {
			if !seen[abs] {
				seen[abs] = true
				candidates = append(candidates, abs)
			}
			abs = filepath.Dir(abs)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	removed := 0
	for _, dir := range candidates {
		// os.Remove refuses non-empty directories, so trying is the check.
		if err := os.Remove(dir); err == nil {
			removed++
		}
	}
	return removed
}

// FolderStructurePreset is a ready-made folder template.
type FolderStructurePreset struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Template    string `json:"template"`
	Description string `json:"description"`
}

// GetFolderStructurePresets returns the built-in folder templates.
func GetFolderStructurePresets() []FolderStructurePreset {
	return []FolderStructurePreset{
		{
			ID:          "artist-album",
			Label:       "Artist / Album",
			Template:    "{artist}/{album}",
			Description: "Organizes as: Pink Floyd/The Dark Side of the Moon/",
		},
		{
			ID:          "album_artist-album",
			Label:       "Album Artist / Album",
			Template:    "{album_artist}/{album}",
			Description: "Uses album artist (better for compilations)",
		},
		{
			ID:          "artist-album-year",
			Label:       "Artist / Album (Year)",
			Template:    "{artist}/{album} ({year})",
			Description: "Organizes as: Pink Floyd/The Dark Side of the Moon (1973)/",
		},
		{
			ID:          "album_artist-album-year",
			Label:       "Album Artist / Album (Year)",
			Template:    "{album_artist}/{album} ({year})",
			Description: "Uses album artist with year",
		},
		{
			ID:          "artist-year-album",
			Label:       "Artist / Year - Album",
			Template:    "{artist}/{year} - {album}",
			Description: "Organizes as: Pink Floyd/1973 - The Dark Side of the Moon/",
		},
		{
			ID:          "artist-only",
			Label:       "Artist Only",
			Template:    "{artist}",
			Description: "Flat structure by artist only",
		},
		{
			ID:          "album-only",
			Label:       "Album Only",
			Template:    "{album}",
			Description: "Flat structure by album only",
		},
		{
			ID:          "year-artist-album",
			Label:       "Year / Artist / Album",
			Template:    "{year}/{artist}/{album}",
			Description: "Organizes by year first",
		},
	}
}

// OrganizationAnalysis summarizes how a library is currently laid out.
type OrganizationAnalysis struct {
	TotalFiles       int            `json:"total_files"`
	UniqueArtists    int            `json:"unique_artists"`
	UniqueAlbums     int            `json:"unique_albums"`
	OrphanedFiles    []string       `json:"orphaned_files"`
	MissingMetadata  []string       `json:"missing_metadata"`
	InconsistentPath []string       `json:"inconsistent_path"`
	ArtistFolders    map[string]int `json:"artist_folders"`
	AlbumFolders     map[string]int `json:"album_folders"`
}

// Analyze reports how files under root are organized today: files sitting
// directly in root, files whose parent folder matches neither their artist
// nor album, and per-artist and per-album counts.
func (o *Organizer) Analyze(root string) (*OrganizationAnalysis, error) {
	if root == "" {
		return nil, fmt.Errorf("root path is required")
	}

	files, err := ListAudioFiles(root, true)
	if err != nil {
		return nil, err
	}

	analysis := &OrganizationAnalysis{
		TotalFiles:       len(files),
		OrphanedFiles:    []string{},
		MissingMetadata:  []string{},
		InconsistentPath: []string{},
		ArtistFolders:    make(map[string]int),
		AlbumFolders:     make(map[string]int),
	}

	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		if err != nil {
			continue
		}
		if !strings.ContainsRune(rel, os.PathSeparator) {
			analysis.OrphanedFiles = append(analysis.OrphanedFiles, f.Path)
			continue
		}

		meta, err := o.tags.ReadMetadata(f.Path)
		if err != nil || meta == nil {
			analysis.MissingMetadata = append(analysis.MissingMetadata, f.Path)
			continue
		}

		parent := strings.ToLower(filepath.Base(filepath.Dir(f.Path)))
		matchesArtist := meta.HasArtist() && strings.Contains(parent, strings.ToLower(meta.Artist))
		matchesAlbum := meta.Album != "" && strings.Contains(parent, strings.ToLower(meta.Album))
		if !matchesArtist && !matchesAlbum && meta.HasArtist() && meta.Album != "" {
			analysis.InconsistentPath = append(analysis.InconsistentPath, f.Path)
		}

		if meta.HasArtist() {
			analysis.ArtistFolders[meta.Artist]++
		}
		if meta.Album != "" {
			analysis.AlbumFolders[meta.Album]++
		}
	}

	analysis.UniqueArtists = len(analysis.ArtistFolders)
	analysis.UniqueAlbums = len(analysis.AlbumFolders)
	return analysis, nil
}
