package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
	dtag "github.com/dhowden/tag"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"
	mflac "github.com/mewkiz/flac"

	"flacsweep/logger"
)

// Metadata source markers. Identity fields either came out of embedded
// tags or were reconstructed from the file name.
const (
	MetadataSourceTags     = "tags"
	MetadataSourceFilename = "filename"
)

// ErrEmptyFile marks zero-byte audio files, which are reported separately
// from files whose tags merely fail to parse.
var ErrEmptyFile = errors.New("empty audio file")

// AudioMetadata is everything we know about one audio file. Zero values
// mean unknown; use the Has* accessors instead of comparing directly.
type AudioMetadata struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumArtist string `json:"album_artist"`
	Year        string `json:"year"`
	TrackNumber int    `json:"track_number"`
	DiscNumber  int    `json:"disc_number"`
	DurationMs  int    `json:"duration_ms"`
	Bitrate     int    `json:"bitrate"`
	SampleRate  int    `json:"sample_rate"`
	BitDepth    int    `json:"bit_depth"`
	Channels    int    `json:"channels"`
	Codec       string `json:"codec"`
	Lossless    bool   `json:"lossless"`
	HasArtwork  bool   `json:"has_artwork"`
	Source      string `json:"source"`
}

func (m *AudioMetadata) HasTitle() bool { return m != nil && strings.TrimSpace(m.Title) != "" }

func (m *AudioMetadata) HasArtist() bool { return m != nil && strings.TrimSpace(m.Artist) != "" }

// HasDuration reports whether a real duration was read. Zero means the
// container did not carry one; matching passes treat that as unknown.
func (m *AudioMetadata) HasDuration() bool { return m != nil && m.DurationMs > 0 }

// TagReader reads identity and technical metadata for a single file.
type TagReader interface {
	ReadMetadata(path string) (*AudioMetadata, error)
}

type tagReader struct{}

// NewTagReader returns the file-format-dispatching reader used in
// production. Scanners take the interface so tests can substitute fakes.
func NewTagReader() TagReader {
	return tagReader{}
}

// ReadMetadata reads tags for path. When tags are unreadable it still
// returns filename-derived metadata alongside the error so the caller can
// record the failure and keep the file in play.
func (tagReader) ReadMetadata(path string) (*AudioMetadata, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	var meta *AudioMetadata
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		meta, err = readFLACMetadata(path, st.Size())
	case ".mp3":
		meta, err = readMP3Metadata(path, st.Size())
	default:
		meta, err = readGenericMetadata(path)
	}
	if err != nil {
		logger.Debug("tag read failed, falling back to filename",
			logger.String("path", path), logger.ErrorField(err))
		fallback := parseFilename(filepath.Base(path))
		if fallback == nil {
			return nil, err
		}
		fallback.Codec = formatLabel(path)
		fallback.Lossless = isLosslessFormat(path)
		return fallback, err
	}

	meta.Codec = firstNonEmpty(meta.Codec, formatLabel(path))
	meta.Lossless = isLosslessFormat(path)
	if !meta.HasTitle() {
		if fromName := parseFilename(filepath.Base(path)); fromName != nil {
			meta.Title = fromName.Title
			if !meta.HasArtist() {
				meta.Artist = fromName.Artist
			}
			meta.Source = MetadataSourceFilename
		}
	}
	meta.Title = fixEncodingIssues(meta.Title)
	meta.Artist = fixEncodingIssues(meta.Artist)
	meta.Album = fixEncodingIssues(meta.Album)
	meta.AlbumArtist = fixEncodingIssues(meta.AlbumArtist)
	return meta, nil
}

func readFLACMetadata(path string, size int64) (*AudioMetadata, error) {
	stream, err := mflac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse flac stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	meta := &AudioMetadata{
		SampleRate: int(info.SampleRate),
		BitDepth:   int(info.BitsPerSample),
		Channels:   int(info.NChannels),
		Codec:      "FLAC",
		Source:     MetadataSourceTags,
	}
	if info.SampleRate > 0 && info.NSamples > 0 {
		meta.DurationMs = int(info.NSamples * 1000 / uint64(info.SampleRate))
	}
	if meta.HasDuration() {
		meta.Bitrate = int(size * 8 / int64(meta.DurationMs))
	}

	// Vorbis comments and pictures come out of a second parse; mewkiz
	// only exposes the stream info we need above.
	f, err := goflac.ParseFile(path)
	if err != nil {
		return meta, nil
	}
	for _, block := range f.Meta {
		switch block.Type {
		case goflac.VorbisComment:
			cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				continue
			}
			meta.Title = firstVorbisValue(cmt, flacvorbis.FIELD_TITLE)
			meta.Artist = firstVorbisValue(cmt, flacvorbis.FIELD_ARTIST)
			meta.Album = firstVorbisValue(cmt, flacvorbis.FIELD_ALBUM)
			meta.AlbumArtist = firstVorbisValue(cmt, "ALBUMARTIST")
			meta.Year = firstVorbisValue(cmt, flacvorbis.FIELD_DATE)
			meta.TrackNumber = parseLeadingInt(firstVorbisValue(cmt, flacvorbis.FIELD_TRACKNUMBER))
			meta.DiscNumber = parseLeadingInt(firstVorbisValue(cmt, "DISCNUMBER"))
		case goflac.Picture:
			if _, err := flacpicture.ParseFromMetaDataBlock(*block); err == nil {
				meta.HasArtwork = true
			}
		}
	}
	return meta, nil
}

func readMP3Metadata(path string, size int64) (*AudioMetadata, error) {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("parse id3 tags: %w", err)
	}
	defer t.Close()

	meta := &AudioMetadata{
		Title:       strings.TrimSpace(t.Title()),
		Artist:      strings.TrimSpace(t.Artist()),
		Album:       strings.TrimSpace(t.Album()),
		AlbumArtist: strings.TrimSpace(t.GetTextFrame("TPE2").Text),
		Year:        strings.TrimSpace(t.Year()),
		Codec:       "MP3",
		Source:      MetadataSourceTags,
	}
	if meta.Year == "" {
		meta.Year = strings.TrimSpace(t.GetTextFrame("TDRC").Text)
	}
	meta.TrackNumber = parseLeadingInt(t.GetTextFrame("TRCK").Text)
	meta.DiscNumber = parseLeadingInt(t.GetTextFrame("TPOS").Text)
	meta.DurationMs = parseLeadingInt(t.GetTextFrame("TLEN").Text)
	if meta.HasDuration() {
		meta.Bitrate = int(size * 8 / int64(meta.DurationMs))
	}
	if pics := t.GetFrames(t.CommonID("Attached picture")); len(pics) > 0 {
		meta.HasArtwork = true
	}
	return meta, nil
}

// readGenericMetadata covers m4a, ogg, wav and anything else dhowden/tag
// can sniff. It yields identity tags only; durations stay unknown.
func readGenericMetadata(path string) (*AudioMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := dtag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}

	meta := &AudioMetadata{
		Title:       strings.TrimSpace(m.Title()),
		Artist:      strings.TrimSpace(m.Artist()),
		Album:       strings.TrimSpace(m.Album()),
		AlbumArtist: strings.TrimSpace(m.AlbumArtist()),
		Codec:       string(m.FileType()),
		Source:      MetadataSourceTags,
	}
	if y := m.Year(); y > 0 {
		meta.Year = strconv.Itoa(y)
	}
	meta.TrackNumber, _ = m.Track()
	meta.DiscNumber, _ = m.Disc()
	meta.HasArtwork = m.Picture() != nil
	return meta, nil
}

func firstVorbisValue(cmt *flacvorbis.MetaDataBlockVorbisComment, field string) string {
	vals, err := cmt.Get(field)
	if err != nil || len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// parseLeadingInt reads the integer prefix of values like "3/12" or
// "2021-05-01". Returns 0 when there is none.
func parseLeadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// fixEncodingIssues repairs the usual UTF-8-read-as-Latin-1 mojibake that
// shows up in tags written by old rippers.
func fixEncodingIssues(s string) string {
	if !strings.ContainsRune(s, 'Ã') && !strings.Contains(s, "â€") {
		return s
	}
	replacements := []struct{ bad, good string }{
		{"â€™", "'"},
		{"â€˜", "'"},
		{"â€œ", "\""},
		{"â€", "\""},
		{"â€“", "-"},
		{"â€”", "-"},
		{"Ã©", "é"},
		{"Ã¨", "è"},
		{"Ã¡", "á"},
		{"Ã³", "ó"},
		{"Ã¶", "ö"},
		{"Ã¼", "ü"},
		{"Ã±", "ñ"},
		{"Ã§", "ç"},
		{"Ã¤", "ä"},
		{"Ã¥", "å"},
		{"Ã¸", "ø"},
	}
	for _, r := range replacements {
		s = strings.ReplaceAll(s, r.bad, r.good)
	}
	return s
}
