package download

import (
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Progress holds counters shared by every worker.
type Progress struct {
	bytes    atomic.Int64
	segments atomic.Int64
	active   atomic.Int32
	finished atomic.Int64
}

// Stats is a point in time copy of Progress.
type Stats struct {
	Bytes    int64
	Segments int64
	Active   int32
	Finished int64
}

func (p *Progress) Snapshot() Stats {
	return Stats{
		Bytes:    p.bytes.Load(),
		Segments: p.segments.Load(),
		Active:   p.active.Load(),
		Finished: p.finished.Load(),
	}
}

// HumanBytes renders the byte counter for logs.
func (s Stats) HumanBytes() string {
	return humanize.IBytes(uint64(s.Bytes))
}

// countingWriter adds every write to the shared byte counter and to n.
type countingWriter struct {
	p *Progress
	n int64
}

func (w *countingWriter) Write(b []byte) (int, error) {
	w.n += int64(len(b))
	w.p.bytes.Add(int64(len(b)))
	return len(b), nil
}
