package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultBinary is looked up on PATH when a Runner has no Binary.
const DefaultBinary = "ffmpeg"

// Runner executes commands with a configurable ffmpeg binary.
type Runner struct {
	// Binary is the ffmpeg executable. Empty means DefaultBinary.
	Binary string

	execFn func(ctx context.Context, name string, args ...string) (stderr []byte, err error)
}

// NewRunner returns a Runner for binary ("" selects DefaultBinary).
func NewRunner(binary string) *Runner {
	return &Runner{Binary: binary}
}

func (r *Runner) binary() string {
	if r == nil || strings.TrimSpace(r.Binary) == "" {
		return DefaultBinary
	}
	return r.Binary
}

// Available reports whether the binary can be found.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.binary())
	return err == nil
}

// Run executes cmd and waits for completion. A non-zero exit is returned as
// *Error carrying the captured stderr.
func (r *Runner) Run(ctx context.Context, cmd *Command) error {
	args := cmd.Build()
	stderr, err := r.exec(ctx, args...)
	if err != nil {
		return &Error{
			Args:   args,
			Stderr: string(stderr),
			Err:    err,
		}
	}
	return nil
}

// Remux stream-copies every stream of input into output's container.
func (r *Runner) Remux(ctx context.Context, input, output string, opts ...Option) error {
	opts = append([]Option{MapAll, CopyAll}, opts...)
	return r.Run(ctx, NewCommand(input, output, opts...))
}

func (r *Runner) exec(ctx context.Context, args ...string) ([]byte, error) {
	if r != nil && r.execFn != nil {
		return r.execFn(ctx, r.binary(), args...)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// Error represents an ffmpeg execution error with context.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	// Extract just the last few lines of stderr for the error message
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	var lastLines string
	if len(lines) > 3 {
		lastLines = strings.Join(lines[len(lines)-3:], "\n")
	} else {
		lastLines = strings.Join(lines, "\n")
	}

	if lastLines != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, lastLines)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Command returns the command that was executed.
func (e *Error) Command() string {
	return "ffmpeg " + strings.Join(e.Args, " ")
}
