// Package postprocess normalizes downloaded containers with ffmpeg stream
// copies: FLAC audio is lifted out of its MP4 wrapper and HLS transport
// streams become MP4 files.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/oskvr37/tiddl/internal/quality"
	"github.com/oskvr37/tiddl/pkg/ffmpeg"
)

// ErrPostProcess marks a failed normalization. The downloaded file is kept.
var ErrPostProcess = errors.New("postprocess: failed")

// Runner executes ffmpeg commands.
type Runner interface {
	Run(ctx context.Context, cmd *ffmpeg.Command) error
	Remux(ctx context.Context, input, output string, opts ...ffmpeg.Option) error
}

type Processor struct {
	ffmpeg Runner
}

func New(r Runner) *Processor {
	return &Processor{ffmpeg: r}
}

// Normalize converts path in place and returns the final path.
//
//   - extractCodec: x.m4a is copied to x.tmp.flac, renamed to x.flac and x.m4a is removed.
//   - expectVideo: x.ts is copied to x.mp4 and x.ts is removed.
//
// With neither flag path is returned unchanged. On failure the original path
// is returned with an error wrapping ErrPostProcess.
func (p *Processor) Normalize(ctx context.Context, path string, expectVideo, extractCodec bool) (string, error) {
	switch {
	case extractCodec:
		return p.extractFLAC(ctx, path)
	case expectVideo:
		return p.toMP4(ctx, path)
	}
	return path, nil
}

func (p *Processor) extractFLAC(ctx context.Context, path string) (string, error) {
	base := trimExt(path)
	tmp := base + ".tmp.flac"
	final := base + ".flac"

	cmd := ffmpeg.NewCommand(path, tmp, ffmpeg.LogLevel("error"), ffmpeg.MapStream("0:a"), ffmpeg.CopyAll)
	if err := p.ffmpeg.Run(ctx, cmd); err != nil {
		removeQuietly(cmd.Output())
		return path, fmt.Errorf("%w: extract flac from %s: %w", ErrPostProcess, path, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		removeQuietly(tmp)
		return path, fmt.Errorf("%w: %w", ErrPostProcess, err)
	}
	if final != path {
		removeQuietly(path)
	}
	slog.Debug("Extracted FLAC stream", "path", final)
	return final, nil
}

func (p *Processor) toMP4(ctx context.Context, path string) (string, error) {
	final := trimExt(path) + quality.VideoExtension
	if final == path {
		return path, nil
	}
	tmp := trimExt(path) + ".tmp" + quality.VideoExtension

	if err := p.ffmpeg.Remux(ctx, path, tmp, ffmpeg.LogLevel("error")); err != nil {
		removeQuietly(tmp)
		return path, fmt.Errorf("%w: convert %s to mp4: %w", ErrPostProcess, path, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		removeQuietly(tmp)
		return path, fmt.Errorf("%w: %w", ErrPostProcess, err)
	}
	removeQuietly(path)
	slog.Debug("Converted video to MP4", "path", final)
	return final, nil
}

func trimExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		return path[:i]
	}
	return path
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove file", "path", path, "error", err)
	}
}
