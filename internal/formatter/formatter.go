// package formatter renders songs, statuses and toggle history as CSV, Markdown, JSON or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

// Supported output formats
const (
	FormatText     = "txt"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// ParseFormat normalises a --format flag value.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for format.
func Extension(format string) string {
	if format == FormatMarkdown {
		return "md"
	}
	return format
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

// SongsToCSV converts songs to CSV with columns: ID, Title, Composer, Arranger, Genre, Difficulty, Price, Likes, Favourites
func SongsToCSV(songs []models.Song) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Composer", "Arranger", "Genre", "Difficulty", "Price", "Likes", "Favourites"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, song := range songs {
		record := []string{
			song.ID,
			song.Title,
			song.Composer,
			song.Arranger,
			song.Genre,
			song.Difficulty,
			formatPrice(song.Price),
			strconv.Itoa(song.LikesCount),
			strconv.Itoa(song.FavouritesCount),
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

// SongsToMarkdown renders songs as a Markdown table under a heading
func SongsToMarkdown(title string, songs []models.Song) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Songs**: %d\n\n", len(songs))

	buf.WriteString("| Title | Composer | Genre | Difficulty | Price | Likes | Favourites |\n")
	buf.WriteString("|---|---|---|---|---:|---:|---:|\n")
	for _, song := range songs {
		fmt.Fprintf(&buf, "| %s | %s | %s | %s | %s | %d | %d |\n",
			escapeCell(song.Title),
			escapeCell(song.Composer),
			escapeCell(song.Genre),
			escapeCell(song.Difficulty),
			formatPrice(song.Price),
			song.LikesCount,
			song.FavouritesCount,
		)
	}

	return buf.Bytes(), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// SongsToText renders one line per song
func SongsToText(songs []models.Song) ([]byte, error) {
	var buf bytes.Buffer

	for i, song := range songs {
		composer := ""
		if song.Composer != "" {
			composer = " - " + song.Composer
		}
		fmt.Fprintf(&buf, "%d. %s%s [%s] ♥ %s ★ %s\n",
			i+1, song.Title, composer, song.ID,
			shared.FormatCount(song.LikesCount), shared.FormatCount(song.FavouritesCount))
	}

	return buf.Bytes(), nil
}

// SongDetail renders a single song for `songs show`
func SongDetail(song models.Song) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", song.Title)
	fmt.Fprintf(&buf, "  ID:         %s\n", song.ID)
	if song.Composer != "" {
		fmt.Fprintf(&buf, "  Composer:   %s\n", song.Composer)
	}
	if song.Arranger != "" {
		fmt.Fprintf(&buf, "  Arranger:   %s\n", song.Arranger)
	}
	if song.Genre != "" {
		fmt.Fprintf(&buf, "  Genre:      %s\n", song.Genre)
	}
	if song.Difficulty != "" {
		fmt.Fprintf(&buf, "  Difficulty: %s\n", song.Difficulty)
	}
	fmt.Fprintf(&buf, "  Price:      %s\n", formatPrice(song.Price))
	fmt.Fprintf(&buf, "  Likes:      %d\n", song.LikesCount)
	fmt.Fprintf(&buf, "  Favourites: %d\n", song.FavouritesCount)

	return buf.Bytes()
}

// FormatSongs renders songs in format
func FormatSongs(songs []models.Song, format string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return SongsToCSV(songs)
	case FormatMarkdown:
		return SongsToMarkdown("Songs", songs)
	case FormatJSON:
		return shared.MarshalJSON(songs, true)
	default:
		return SongsToText(songs)
	}
}

// StatusLine renders a status for the terminal, e.g. "s1: liked (6)"
func StatusLine(s models.Status) string {
	state := "not " + s.Kind.Verb()
	if s.Active {
		state = s.Kind.Verb()
	}
	return fmt.Sprintf("%s: %s (%s)", s.SubjectID, state, shared.FormatCount(s.Count))
}

// FormatStatus renders a status as text or JSON
func FormatStatus(s models.Status, format string) ([]byte, error) {
	if format == FormatJSON {
		return shared.MarshalJSON(s, true)
	}
	return []byte(StatusLine(s) + "\n"), nil
}

// JournalToText renders toggle records newest first, one per line
func JournalToText(records []models.ToggleRecord) []byte {
	var buf bytes.Buffer

	for _, rec := range records {
		line := fmt.Sprintf("%s  %-9s %-12s %s → %s  %s (%s)",
			rec.SettledAt.Local().Format("2006-01-02 15:04:05"),
			rec.Kind,
			rec.SubjectID,
			onOff(rec.From.Active),
			onOff(rec.To.Active),
			rec.Outcome,
			rec.Duration().Round(time.Millisecond),
		)
		if rec.Error != "" {
			line += ": " + rec.Error
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes()
}

func onOff(active bool) string {
	if active {
		return "on"
	}
	return "off"
}

// WriteSongExport writes songs to path in format, creating parent directories.
//
// Defaults to songs.{ext} in the working directory.
func WriteSongExport(songs []models.Song, format, path string) (string, error) {
	if path == "" {
		path = "songs." + Extension(format)
	}

	data, err := FormatSongs(songs, format)
	if err != nil {
		return "", fmt.Errorf("failed to render songs: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}

	return path, nil
}
