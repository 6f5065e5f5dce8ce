package backend

import (
	"regexp"
	"strings"
	"unicode"
)

// foldDiacritics maps common accented characters to ASCII so "Tiësto" and
// "Tiesto" produce the same key.
func foldDiacritics(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case 'ë', 'ê', 'è', 'é', 'ē', 'ė':
			b.WriteRune('e')
		case 'ï', 'î', 'ì', 'í', 'ī':
			b.WriteRune('i')
		case 'ö', 'ô', 'ò', 'ó', 'ō', 'ø':
			b.WriteRune('o')
		case 'ü', 'û', 'ù', 'ú', 'ū':
			b.WriteRune('u')
		case 'ä', 'â', 'à', 'á', 'ā', 'å':
			b.WriteRune('a')
		case 'ç':
			b.WriteRune('c')
		case 'ñ':
			b.WriteRune('n')
		case 'ß':
			b.WriteString("ss")
		case 'œ':
			b.WriteString("oe")
		case 'æ':
			b.WriteString("ae")
		default:
			if unicode.Is(unicode.Mn, r) {
				continue // combining marks (e.g. after NFD)
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// reFeatMarker matches guest-artist markers that vary between taggings of
// the same recording. Word-bounded so "soft" or "draft" are untouched.
var reFeatMarker = regexp.MustCompile(`\b(?:feat\.?|ft\.?|featuring)\s+`)

// normalizeKey reduces a title or artist to its grouping key: lowercased,
// diacritics folded, separator artifacts collapsed, whitespace canonical.
// Bracketed and parenthetical content is kept on purpose: "(Live)" and
// "(Remix)" name different recordings, and stripping them merges tracks
// that are not duplicates. Idempotent.
func normalizeKey(s string) string {
	s = strings.ToLower(s)
	s = foldDiacritics(s)
	s = strings.TrimSpace(s)
	s = reFeatMarker.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, " - ", " ")
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, " . ", " ")
	s = strings.ReplaceAll(s, " , ", " ")
	s = strings.ReplaceAll(s, "..", " ")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "") // curly apostrophe
	return strings.Join(strings.Fields(s), " ")
}

// groupKey builds the identity key for duplicate grouping.
func groupKey(title, artist string) string {
	return normalizeKey(title) + "|" + normalizeKey(artist)
}
