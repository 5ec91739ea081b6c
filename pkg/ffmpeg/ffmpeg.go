// Package ffmpeg provides a composable API for building and executing ffmpeg commands.
package ffmpeg

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Command represents an ffmpeg command being built.
type Command struct {
	input     string
	inputs    []string // additional inputs, -i each, after the primary one
	output    string
	preInput  []string // args before the first -i
	postInput []string // args after the last -i
}

// Option modifies a Command. Options are composable and order-independent
// (ffmpeg will receive args in correct order regardless of option order).
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc is a function that implements Option.
type OptionFunc func(cmd *Command)

// Apply implements Option.
func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand creates a command with input/output and applies options.
func NewCommand(input, output string, opts ...Option) *Command {
	cmd := &Command{
		input:  input,
		output: output,
	}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// Output returns the output path.
func (c *Command) Output() string { return c.output }

// Build returns the complete ffmpeg argument list.
func (c *Command) Build() []string {
	args := []string{"-hide_banner", "-y"}

	args = append(args, c.preInput...)

	args = append(args, "-i", c.input)
	for _, in := range c.inputs {
		args = append(args, "-i", in)
	}

	args = append(args, c.postInput...)

	// Auto-apply faststart for MP4/M4A outputs
	ext := strings.ToLower(filepath.Ext(c.output))
	if ext == ".mp4" || ext == ".m4a" || ext == ".mov" {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, c.output)

	return args
}

// --- Inputs ---

// Input adds another input file. Streams of the n-th added input are
// addressed as n (the primary input is 0).
func Input(path string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.inputs = append(cmd.inputs, path)
	})
}

// --- Stream Copy Options (variables, not functions) ---

// CopyAll copies all streams without re-encoding (-c copy).
var CopyAll Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-c", "copy")
})

// MapAll maps all streams from the primary input (-map 0).
var MapAll Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-map", "0")
})

// MapStream maps a specific stream (-map {spec}).
func MapStream(spec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-map", spec)
	})
}

// --- Metadata ---

// Metadata sets a global metadata key-value pair. Empty values are skipped.
func Metadata(key, value string) Option {
	return OptionFunc(func(cmd *Command) {
		if value == "" {
			return
		}
		cmd.postInput = append(cmd.postInput, "-metadata", key+"="+value)
	})
}

// StreamMetadata sets metadata on the streams matching spec, e.g. "v:0".
func StreamMetadata(spec, key, value string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-metadata:s:"+spec, key+"="+value)
	})
}

// Disposition sets the disposition of the streams matching spec.
func Disposition(spec, value string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-disposition:"+spec, value)
	})
}

// AttachedPicture maps input n as the cover picture of the output.
func AttachedPicture(n int) Option {
	return OptionFunc(func(cmd *Command) {
		MapStream(itoa(n)).Apply(cmd)
		Disposition("v:0", "attached_pic").Apply(cmd)
		StreamMetadata("v:0", "title", "Album cover").Apply(cmd)
		StreamMetadata("v:0", "comment", "Cover (front)").Apply(cmd)
	})
}

// --- Misc ---

// LogLevel sets the logging level.
func LogLevel(level string) Option {
	return OptionFunc(func(cmd *Command) {
		// Insert at beginning of preInput so it's early in args
		cmd.preInput = append([]string{"-loglevel", level}, cmd.preInput...)
	})
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
