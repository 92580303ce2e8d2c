// package formatter renders the liked-songs library and track lookups to CSV, Markdown, plain text, and JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/songmix/internal/models"
	"github.com/desertthunder/songmix/internal/shared"
)

// Format is an output encoding accepted by [Render].
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// Formats lists every supported format in help-text order.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// ParseFormat accepts a format name, case-insensitively, plus the aliases "md" and "text".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	case FormatText:
		return ".txt"
	default:
		return ".json"
	}
}

// Library is a titled, ordered list of saved tracks.
type Library struct {
	Title  string              `json:"title"`
	Total  int                 `json:"total"`
	Tracks []models.SavedTrack `json:"tracks"`
}

// NewLibrary wraps tracks under title.
func NewLibrary(title string, tracks []models.SavedTrack) *Library {
	if tracks == nil {
		tracks = []models.SavedTrack{}
	}
	return &Library{Title: title, Total: len(tracks), Tracks: tracks}
}

// Render encodes lib in format f.
func Render(f Format, lib *Library) ([]byte, error) {
	switch f {
	case FormatCSV:
		return ToCSV(lib)
	case FormatMarkdown:
		return ToMarkdown(lib)
	case FormatText:
		return ToText(lib)
	case FormatJSON:
		return shared.MarshalJSON(lib, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// ToCSV writes one row per track with columns: Position, ID, Title, Artist, Album, Duration, ISRC, Popularity, Added
func ToCSV(lib *Library) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "ID", "Title", "Artist", "Album", "Duration", "ISRC", "Popularity", "Added"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, saved := range lib.Tracks {
		track := saved.Track
		record := []string{
			strconv.Itoa(i + 1),
			track.ID,
			track.Title,
			track.ArtistLine(),
			track.Album,
			strconv.Itoa(track.Duration),
			track.ISRC,
			strconv.Itoa(track.Popularity),
			saved.AddedAt,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown renders a heading, a count line, and a numbered track list.
func ToMarkdown(lib *Library) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", lib.Title)
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(lib.Tracks))

	buf.WriteString("## Tracks\n\n")
	for i, saved := range lib.Tracks {
		track := saved.Track
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.ArtistLine(), track.Title, albumPart, shared.FormatDuration(track.Duration))
	}

	return buf.Bytes(), nil
}

// ToText renders a header and one "artist - title" line per track.
func ToText(lib *Library) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", lib.Title)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(lib.Tracks))

	for i, saved := range lib.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, saved.Track.Artist(), saved.Track.Title)
	}

	return buf.Bytes(), nil
}

// WriteFile writes data to path, creating parent directories. An empty extension gets f's.
func WriteFile(f Format, path string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}
	if filepath.Ext(path) == "" {
		path += f.Extension()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}
	return path, nil
}
