package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oskvr37/tiddl/pkg/ffmpeg"
)

// Tagger writes tags into a finished file.
type Tagger interface {
	Tag(ctx context.Context, path string, tags Tags) error
}

// Runner executes ffmpeg commands.
type Runner interface {
	Run(ctx context.Context, cmd *ffmpeg.Command) error
}

// FFmpegTagger rewrites the container with new metadata using a stream
// copy, then replaces the original file.
type FFmpegTagger struct {
	ffmpeg Runner
}

func NewFFmpegTagger(r Runner) *FFmpegTagger {
	return &FFmpegTagger{ffmpeg: r}
}

var taggable = map[string]bool{".flac": true, ".m4a": true, ".mp4": true}

func (t *FFmpegTagger) Tag(ctx context.Context, path string, tags Tags) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !taggable[ext] {
		return fmt.Errorf("metadata: unsupported file extension %q", ext)
	}
	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".tag" + ext

	opts := []ffmpeg.Option{ffmpeg.LogLevel("error")}
	if tags.CoverPath != "" && ext != ".mp4" {
		opts = append(opts,
			ffmpeg.Input(tags.CoverPath),
			ffmpeg.MapStream("0:a"),
			ffmpeg.AttachedPicture(1),
		)
	} else {
		opts = append(opts, ffmpeg.MapAll)
	}
	opts = append(opts, ffmpeg.CopyAll)
	for _, kv := range tags.Pairs() {
		opts = append(opts, ffmpeg.Metadata(kv[0], kv[1]))
	}

	if err := t.ffmpeg.Run(ctx, ffmpeg.NewCommand(path, tmp, opts...)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("metadata: tag %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("metadata: replace %s: %w", path, err), os.Remove(tmp))
	}
	return nil
}
