package backend

import (
	"path/filepath"
	"regexp"
	"strings"
)

// UnknownArtist is the placeholder assigned when no rule can extract an
// artist but the name itself is still a usable search query.
const UnknownArtist = "Unknown Artist"

// filenameRule is one pattern in the ordered rule table. The first rule
// whose captures survive validation wins.
type filenameRule struct {
	pattern   *regexp.Regexp
	titleIdx  int
	artistIdx int
}

// filenameRules, in match order. Dash-separated names are ambiguous; both
// dash rules read them as "Title - Artist" so the numbered and plain forms
// of the same name never disagree.
var filenameRules = []filenameRule{
	// "01. Title - Artist" or "01 Title - Artist"
	{regexp.MustCompile(`^(\d+)[\.\s\-]+(.+?)\s*-\s*(.+)$`), 2, 3},
	// "Title - Artist"
	{regexp.MustCompile(`^(.+?)\s*-\s*(.+)$`), 1, 2},
	// "Title by Artist"
	{regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`), 1, 2},
	// "Title feat. Artist" and variants
	{regexp.MustCompile(`(?i)^(.+?)\s+feat\.?\s+(.+)$`), 1, 2},
	{regexp.MustCompile(`(?i)^(.+?)\s+ft\.?\s+(.+)$`), 1, 2},
	{regexp.MustCompile(`(?i)^(.+?)\s+featuring\s+(.+)$`), 1, 2},
	// "Title vs Artist" / "Title x Artist" joint credits
	{regexp.MustCompile(`(?i)^(.+?)\s+vs\.?\s+(.+)$`), 1, 2},
	{regexp.MustCompile(`(?i)^(.+?)\s+x\s+(.+)$`), 1, 2},
}

var (
	// reTrailingYear drops "(2005)" style suffixes before rule matching.
	reTrailingYear = regexp.MustCompile(`\s*[\(\[\{](\d{4})[\)\]\}]$`)
	// reRipJunk rejects captures that are really bitrate/format debris
	// from rip tooling ("128K MP3", "320kbps FLAC").
	reRipJunk = regexp.MustCompile(`(?i)\d{3,4}\s*[kK]?\s*(?:bps|MP3|FLAC|AAC|OGG|M4A|WAV)`)
)

// parseFilename derives best-effort identity metadata from a bare file
// name. Rules are tried in order; a rule only wins when both captures are
// non-empty and longer than one character after trimming. When nothing
// matches, the stripped name becomes the title with UnknownArtist so
// downstream search always has a query. Nil only for an empty name.
func parseFilename(fileName string) *AudioMetadata {
	ext := filepath.Ext(fileName)
	name := strings.TrimSpace(strings.TrimSuffix(fileName, ext))
	if name == "" {
		return nil
	}

	name = strings.TrimSpace(reTrailingYear.ReplaceAllString(name, ""))
	if name == "" {
		return nil
	}

	for _, rule := range filenameRules {
		matches := rule.pattern.FindStringSubmatch(name)
		if len(matches) <= rule.titleIdx || len(matches) <= rule.artistIdx {
			continue
		}
		title := strings.Trim(strings.TrimSpace(matches[rule.titleIdx]), "()[]{}")
		artist := strings.Trim(strings.TrimSpace(matches[rule.artistIdx]), "()[]{}")
		if len(title) <= 1 || len(artist) <= 1 {
			continue
		}
		if reRipJunk.MatchString(artist) {
			continue
		}
		return &AudioMetadata{Title: title, Artist: artist, Source: MetadataSourceFilename}
	}

	return &AudioMetadata{Title: name, Artist: UnknownArtist, Source: MetadataSourceFilename}
}
