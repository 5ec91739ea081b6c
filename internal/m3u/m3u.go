// Package m3u writes extended M3U playlists for downloaded collections.
package m3u

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// Entry is one playlist line.
type Entry struct {
	Path     string
	Duration int
	Artist   string
	Title    string
}

// ErrEmpty is returned when there is nothing to write.
var ErrEmpty = errors.New("m3u: no entries")

// Write creates path (".m3u" is appended when missing) listing entries in
// order. Parent directories are created as needed.
func Write(path string, entries []Entry) (string, error) {
	if filepath.Ext(path) != ".m3u" {
		path += ".m3u"
	}
	if len(entries) == 0 {
		return path, ErrEmpty
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, fmt.Errorf("m3u: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return path, fmt.Errorf("m3u: %w", err)
	}
	w := bufio.NewWriter(f)
	_, _ = w.WriteString("#EXTM3U\n")
	for _, e := range entries {
		_, _ = w.WriteString("#EXTINF:" + strconv.Itoa(e.Duration) + "," + e.Artist + " - " + e.Title + "\n")
		_, _ = w.WriteString(e.Path + "\n")
	}
	if err := w.Flush(); err != nil {
		return path, errors.Join(fmt.Errorf("m3u: write %s: %w", path, err), f.Close())
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("m3u: close %s: %w", path, err)
	}
	slog.Debug("Saved playlist", "path", path, "entries", len(entries))
	return path, nil
}
