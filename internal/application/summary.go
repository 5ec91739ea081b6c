package application

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/oskvr37/tiddl/internal/download"
	"github.com/oskvr37/tiddl/internal/resource"
)

// Failure is a reference or item that could not be processed.
type Failure struct {
	Resource string
	Title    string
	Err      error
}

// Summary is the outcome of a run.
type Summary struct {
	Counts   map[download.Status]int
	Degraded int
	Failures []Failure
	// Aborted is the fatal error that stopped the run.
	Aborted error
	Bytes   int64
	Elapsed time.Duration

	size       string
	started    time.Time
	refFailed  bool
	skipErrors bool
}

func newSummary(now time.Time) *Summary {
	return &Summary{Counts: map[download.Status]int{}, started: now}
}

func (s *Summary) add(r download.Result) {
	s.Counts[r.Status]++
	if r.Degraded {
		s.Degraded++
	}
	if r.Status == download.StatusFailed {
		media := r.Task.Item.Media
		s.Failures = append(s.Failures, Failure{
			Resource: media.Kind.String() + "/" + strconv.FormatInt(media.ID(), 10),
			Title:    media.Title(),
			Err:      r.Err,
		})
	}
}

func (s *Summary) fail(ref resource.Reference, err error) {
	s.refFailed = true
	s.Failures = append(s.Failures, Failure{Resource: ref.String(), Err: err})
}

func (s *Summary) finish(now time.Time, stats download.Stats, skipErrors bool) {
	s.Elapsed = now.Sub(s.started)
	s.Bytes = stats.Bytes
	s.size = stats.HumanBytes()
	s.skipErrors = skipErrors
}

// ExitCode is 1 when the run was aborted or a reference failed and errors
// were not to be skipped.
func (s *Summary) ExitCode() int {
	if s.Aborted != nil || (s.refFailed && !s.skipErrors) {
		return 1
	}
	return 0
}

// Log writes the summary and every failure.
func (s *Summary) Log(logger *slog.Logger) {
	for _, f := range s.Failures {
		logger.Error("Failed", "resource", f.Resource, "title", f.Title, "error", f.Err)
	}
	attrs := []any{
		"downloaded", s.Counts[download.StatusDownloaded],
		"exists", s.Counts[download.StatusExists],
		"not_streamable", s.Counts[download.StatusNotStreamable],
		"filtered", s.Counts[download.StatusFiltered],
		"failed", s.Counts[download.StatusFailed],
		"aborted", s.Counts[download.StatusAborted],
		"degraded", s.Degraded,
		"size", s.size,
		"elapsed", s.Elapsed.Round(time.Millisecond),
	}
	if s.Aborted != nil {
		logger.Error("Run aborted", append(attrs, "error", s.Aborted)...)
		return
	}
	logger.Info("Run complete", attrs...)
}
