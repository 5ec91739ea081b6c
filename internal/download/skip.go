package download

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/internal/quality"
	"github.com/oskvr37/tiddl/internal/resolver"
)

// Decision is the outcome of the skip check for one task.
type Decision int

const (
	// Download fetches the item; nothing exists at the predicted path.
	Download Decision = iota
	// Skip keeps the existing file.
	Skip
	// Overwrite downloads over an existing file.
	Overwrite
)

// Decide is the skip rule. It is recomputed for every task and never cached.
func Decide(existsAtPredicted, skipExisting bool) Decision {
	switch {
	case !existsAtPredicted:
		return Download
	case skipExisting:
		return Skip
	}
	return Overwrite
}

// PredictedExtension is the extension the item is expected to end up with,
// known before any stream call.
func PredictedExtension(it catalog.Item, requested quality.TrackQuality) string {
	if it.Kind == catalog.ItemVideo {
		return quality.VideoExtension
	}
	return quality.PredictExtension(quality.TrackQuality(it.Track.AudioQuality), requested)
}

// filtered reports whether the videos filter excludes the item.
func filtered(it catalog.Item, videos resolver.VideosFilter) bool {
	switch videos {
	case resolver.VideosNone:
		return it.Kind == catalog.ItemVideo
	case resolver.VideosOnly:
		return it.Kind == catalog.ItemTrack
	}
	return false
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, err
}

func join(root, rel, ext string) string {
	return filepath.Join(root, filepath.FromSlash(rel)+ext)
}
