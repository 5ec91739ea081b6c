// Package download runs resolved items through a bounded worker pool: skip
// check, stream info, manifest decode, segment download, container
// normalization and tagging.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/internal/metadata"
	"github.com/oskvr37/tiddl/internal/quality"
	"github.com/oskvr37/tiddl/internal/resolver"
	"github.com/oskvr37/tiddl/pkg/manifest"
)

const (
	DefaultThreads = 4
	copyBufferSize = 1 << 20
)

// ErrAborted is reported by tasks submitted after a fatal error.
var ErrAborted = errors.New("download: aborted")

type Status int

const (
	StatusDownloaded Status = iota
	StatusExists
	StatusNotStreamable
	StatusFiltered
	StatusFailed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusExists:
		return "exists"
	case StatusNotStreamable:
		return "not_streamable"
	case StatusFiltered:
		return "filtered"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

// Task is one item to download. Path is the expanded template, relative to
// the download root and without extension.
type Task struct {
	Item resolver.Item
	Path string
}

type Result struct {
	Task   Task
	Status Status
	// Path is the final file, or the existing one when skipped.
	Path        string
	Downloaded  bool
	Overwritten bool
	// Degraded means post-processing failed and the raw download was kept.
	Degraded bool
	Quality  string
	Bytes    int64
	Err      error
}

// Future resolves once its task has finished.
type Future struct {
	done   chan struct{}
	result Result
}

func (f *Future) Wait() Result {
	<-f.done
	return f.result
}

func resolved(r Result) *Future {
	f := &Future{done: make(chan struct{}), result: r}
	close(f.done)
	return f
}

// Catalog is the subset of the catalog client used while downloading.
type Catalog interface {
	TrackStream(ctx context.Context, trackID int64, q quality.TrackQuality) (*catalog.TrackStream, error)
	VideoStream(ctx context.Context, videoID int64, q quality.VideoQuality) (*catalog.VideoStream, error)
	Lyrics(ctx context.Context, trackID int64) (*catalog.Lyrics, error)
	AlbumReview(ctx context.Context, albumID int64) (*catalog.AlbumReview, error)
}

// PostProcessor normalizes a finished download and returns its final path.
type PostProcessor interface {
	Normalize(ctx context.Context, path string, expectVideo, extractCodec bool) (string, error)
}

// CoverSource returns a local file holding the cover image id.
type CoverSource interface {
	Path(ctx context.Context, id string) (string, error)
}

type Options struct {
	Threads      int
	TrackQuality quality.Tier
	VideoQuality quality.VideoTier
	DownloadPath string
	// ScanPath is where existing files are looked up. Defaults to DownloadPath.
	ScanPath     string
	SkipExisting bool
	Videos       resolver.VideosFilter

	RewriteMetadata bool
	UpdateMtime     bool
	Lyrics          bool
	Review          bool
	Cover           bool

	HTTPClient *http.Client
}

type Option func(*Orchestrator)

func WithPostProcessor(p PostProcessor) Option {
	return func(o *Orchestrator) { o.post = p }
}

// WithTagger enables tagging. Without it files are left untagged.
func WithTagger(t metadata.Tagger) Option {
	return func(o *Orchestrator) { o.tagger = t }
}

func WithCovers(c CoverSource) Option {
	return func(o *Orchestrator) { o.covers = c }
}

// WithFetcher overrides how HLS playlists are fetched.
func WithFetcher(f manifest.Fetcher) Option {
	return func(o *Orchestrator) { o.fetcher = f }
}

type Orchestrator struct {
	catalog Catalog
	opts    Options
	client  *http.Client
	fetcher manifest.Fetcher
	post    PostProcessor
	tagger  metadata.Tagger
	covers  CoverSource

	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	progress Progress

	mu       sync.Mutex
	abortErr error

	reviewGroup singleflight.Group
	reviewMu    sync.Mutex
	reviews     map[int64]string
}

func New(c Catalog, opts Options, options ...Option) *Orchestrator {
	if opts.Threads <= 0 {
		opts.Threads = DefaultThreads
	}
	if opts.ScanPath == "" {
		opts.ScanPath = opts.DownloadPath
	}
	if opts.Videos == "" {
		opts.Videos = resolver.VideosNone
	}
	if opts.TrackQuality == "" {
		opts.TrackQuality = quality.TierHigh
	}
	if opts.VideoQuality == "" {
		opts.VideoQuality = quality.VideoFHD
	}

	o := &Orchestrator{
		catalog: c,
		opts:    opts,
		client:  opts.HTTPClient,
		sem:     semaphore.NewWeighted(int64(opts.Threads)),
		reviews: make(map[int64]string),
	}
	if o.client == nil {
		o.client = http.DefaultClient
	}
	for _, opt := range options {
		opt(o)
	}
	if o.fetcher == nil {
		o.fetcher = manifest.HTTPFetcher{Client: o.client}
	}
	return o
}

// Submit schedules t and returns immediately. Tasks past the pool width wait
// for a free slot inside their own goroutine.
func (o *Orchestrator) Submit(ctx context.Context, t Task) *Future {
	res := Result{Task: t}
	media := t.Item.Media

	if err := o.Aborted(); err != nil {
		res.Status, res.Err = StatusAborted, err
		return resolved(res)
	}
	if !media.AllowStreaming() {
		slog.Warn("Item is not streamable", "kind", media.Kind, "item_id", media.ID(), "title", media.Title())
		res.Status = StatusNotStreamable
		return resolved(res)
	}

	f := &Future{done: make(chan struct{})}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(f.done)
		f.result = o.run(ctx, res)
		o.progress.finished.Add(1)
	}()
	return f
}

// Close waits for every submitted task.
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

// Aborted returns the fatal error that stopped the run, if any.
func (o *Orchestrator) Aborted() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abortErr
}

func (o *Orchestrator) Stats() Stats {
	return o.progress.Snapshot()
}

func (o *Orchestrator) abort(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.abortErr == nil {
		o.abortErr = fmt.Errorf("%w: %w", ErrAborted, err)
		slog.Error("Aborting downloads", "error", err)
	}
}

func (o *Orchestrator) run(ctx context.Context, res Result) Result {
	media := res.Task.Item.Media
	ext := PredictedExtension(media, o.opts.TrackQuality.Negotiate())
	scanned := join(o.opts.ScanPath, res.Task.Path, ext)

	found, err := exists(scanned)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	decision := Decide(found, o.opts.SkipExisting)

	// Existing files are reported without entering the pool and before the
	// videos filter, so a filtered video already on disk still counts as present.
	if decision == Skip {
		slog.Debug("File exists, skipping", "item_id", media.ID(), "path", scanned)
		res.Status, res.Path = StatusExists, scanned
		if o.opts.RewriteMetadata && o.tagger != nil {
			if err := o.sem.Acquire(ctx, 1); err == nil {
				o.tag(ctx, res.Task.Item, scanned)
				o.sem.Release(1)
			}
		}
		o.touch(scanned)
		return res
	}
	if filtered(media, o.opts.Videos) {
		slog.Debug("Item filtered", "kind", media.Kind, "item_id", media.ID(), "videos", o.opts.Videos)
		res.Status = StatusFiltered
		return res
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		res.Status, res.Err = StatusAborted, err
		return res
	}
	defer o.sem.Release(1)
	if err := o.Aborted(); err != nil {
		res.Status, res.Err = StatusAborted, err
		return res
	}

	o.progress.active.Add(1)
	defer o.progress.active.Add(-1)

	res.Overwritten = decision == Overwrite

	got, err := o.fetch(ctx, res.Task)
	res.Bytes, res.Quality = got.bytes, got.label
	if err != nil {
		if catalog.IsFatal(err) {
			o.abort(err)
		}
		if ctx.Err() != nil {
			res.Status, res.Err = StatusAborted, ctx.Err()
			return res
		}
		slog.Error("Download failed", "kind", media.Kind, "item_id", media.ID(), "title", media.Title(), "error", err)
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.Downloaded = true

	final := got.path
	if o.post != nil && (got.video || got.extract) {
		final, err = o.post.Normalize(ctx, got.path, got.video, got.extract)
		if err != nil {
			slog.Warn("Post-processing failed, keeping download", "path", got.path, "error", err)
			res.Degraded = true
		}
	}
	res.Path, res.Status = final, StatusDownloaded

	o.tag(ctx, res.Task.Item, final)
	o.touch(final)

	slog.Info("Downloaded",
		"kind", media.Kind,
		"item_id", media.ID(),
		"title", media.Title(),
		"quality", res.Quality,
		"size", humanize.IBytes(uint64(got.bytes)),
		"path", final,
	)
	return res
}

// fetched describes a finished raw download.
type fetched struct {
	path    string
	bytes   int64
	label   string
	video   bool
	extract bool
}

// fetch resolves the stream for the task and writes it next to its final
// location.
func (o *Orchestrator) fetch(ctx context.Context, t Task) (fetched, error) {
	media := t.Item.Media

	var (
		got    fetched
		stream *manifest.Stream
		ext    string
	)
	switch media.Kind {
	case catalog.ItemTrack:
		info, err := o.catalog.TrackStream(ctx, media.Track.ID, o.opts.TrackQuality.Negotiate())
		if err != nil {
			return got, err
		}
		granted := quality.TrackQuality(info.AudioQuality)
		got.label = string(granted) + " " + granted.Describe(info.BitDepth, info.SampleRate)
		if stream, err = manifest.Decode(info.Manifest, info.ManifestMimeType); err != nil {
			return got, err
		}
		if ext, err = quality.Extension(stream.Codec, granted); err != nil {
			return got, err
		}
		got.extract = ext == ".m4a" && quality.NeedsExtraction(granted)
	case catalog.ItemVideo:
		info, err := o.catalog.VideoStream(ctx, media.Video.ID, o.opts.VideoQuality.Negotiate())
		if err != nil {
			return got, err
		}
		got.label = quality.VideoQuality(info.VideoQuality).Describe()
		if stream, err = manifest.DecodeVideo(ctx, o.fetcher, info.Manifest); err != nil {
			return got, err
		}
		ext, got.video = quality.SegmentExtension, true
	default:
		return got, fmt.Errorf("download: unsupported item kind %s", media.Kind)
	}

	got.path = join(o.opts.DownloadPath, t.Path, ext)
	n, err := o.write(ctx, stream.URLs, got.path)
	got.bytes = n
	return got, err
}

// write downloads urls in order into a temp file in dest's directory and
// renames it onto dest.
func (o *Orchestrator) write(ctx context.Context, urls []string, dest string) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}

	tmp := filepath.Join(dir, "."+uuid.NewString()+".part")
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	cw := &countingWriter{p: &o.progress}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	buf := make([]byte, copyBufferSize)
	w := io.MultiWriter(f, cw)
	for i, u := range urls {
		if err := o.segment(ctx, u, w, buf); err != nil {
			return cw.n, fmt.Errorf("download: segment %d/%d: %w", i+1, len(urls), err)
		}
		o.progress.segments.Add(1)
	}

	if err := f.Close(); err != nil {
		return cw.n, fmt.Errorf("download: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return cw.n, fmt.Errorf("download: %w", err)
	}
	committed = true
	return cw.n, nil
}

func (o *Orchestrator) segment(ctx context.Context, rawURL string, w io.Writer, buf []byte) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, resp.Body.Close())
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}
	_, err = io.CopyBuffer(w, resp.Body, buf)
	return err
}

func (o *Orchestrator) tag(ctx context.Context, it resolver.Item, path string) {
	if o.tagger == nil {
		return
	}
	media := it.Media

	var lyrics, review string
	if media.Kind == catalog.ItemTrack {
		if o.opts.Lyrics {
			l, err := o.catalog.Lyrics(ctx, media.Track.ID)
			switch {
			case err == nil:
				lyrics = l.Text()
			case !catalog.IsNotFound(err):
				slog.Warn("Lyrics unavailable", "item_id", media.ID(), "error", err)
			}
		}
		if o.opts.Review {
			review = o.review(ctx, it)
		}
	}

	tags := metadata.ForItem(it, lyrics, review)
	if o.opts.Cover && o.covers != nil && media.Kind == catalog.ItemTrack {
		if id := coverID(it); id != "" {
			p, err := o.covers.Path(ctx, id)
			if err != nil {
				slog.Warn("Cover unavailable", "item_id", media.ID(), "cover", id, "error", err)
			}
			tags.CoverPath = p
		}
	}

	if err := o.tagger.Tag(ctx, path, tags); err != nil {
		slog.Warn("Tagging failed", "path", path, "error", err)
	}
}

// review fetches the album review once per album for the whole run.
func (o *Orchestrator) review(ctx context.Context, it resolver.Item) string {
	ref := it.Media.Album()
	if ref == nil {
		return ""
	}
	o.reviewMu.Lock()
	text, ok := o.reviews[ref.ID]
	o.reviewMu.Unlock()
	if ok {
		return text
	}

	v, _, _ := o.reviewGroup.Do(strconv.FormatInt(ref.ID, 10), func() (any, error) {
		o.reviewMu.Lock()
		if text, ok := o.reviews[ref.ID]; ok {
			o.reviewMu.Unlock()
			return text, nil
		}
		o.reviewMu.Unlock()

		var text string
		r, err := o.catalog.AlbumReview(ctx, ref.ID)
		switch {
		case err == nil:
			text = r.Text.PlainText()
		case !catalog.IsNotFound(err):
			slog.Warn("Album review unavailable", "album_id", ref.ID, "error", err)
		}

		o.reviewMu.Lock()
		o.reviews[ref.ID] = text
		o.reviewMu.Unlock()
		return text, nil
	})
	return v.(string)
}

func coverID(it resolver.Item) string {
	if it.Album != nil && it.Album.Cover != "" {
		return it.Album.Cover
	}
	if ref := it.Media.Album(); ref != nil {
		return ref.Cover
	}
	return ""
}

func (o *Orchestrator) touch(path string) {
	if !o.opts.UpdateMtime {
		return
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		slog.Warn("Failed to update mtime", "path", path, "error", err)
	}
}
