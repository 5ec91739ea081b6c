package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/internal/resolver"
	"github.com/oskvr37/tiddl/pkg/ffmpeg"
)

func TestForItem_Track(t *testing.T) {
	track := &catalog.Track{
		ID: 1, Title: "So What", Version: "Remastered", TrackNumber: 1, VolumeNumber: 1,
		ISRC: "USSM15900113", BPM: 136, Copyright: "Columbia",
		Artists: []catalog.Artist{{Name: "Miles Davis "}, {Name: "John Coltrane"}},
		Album:   &catalog.AlbumRef{ID: 7, Title: "Kind of Blue"},
	}
	item := catalog.TrackItem(track)
	item.Credits = []catalog.Credit{{Type: "Producer", Contributors: []catalog.Contributor{{Name: "Irving Townsend"}, {Name: "Teo Macero"}}}}
	it := resolver.Item{
		Media: item,
		Album: &catalog.Album{ID: 7, ReleaseDate: "1959-08-17", Artist: &catalog.Artist{Name: "Miles Davis"}},
	}

	tags := ForItem(it, "[00:01.00]lyrics", "A landmark.")
	require.Equal(t, "So What (Remastered)", tags.Title)
	require.Equal(t, "John Coltrane; Miles Davis", tags.Artist)
	require.Equal(t, "Kind of Blue", tags.Album)
	require.Equal(t, "Miles Davis", tags.AlbumArtist)
	require.Equal(t, "1959-08-17", tags.Date)
	require.Equal(t, "Irving Townsend", tags.Credits[0].Contributors[1].Name)
	require.Equal(t, "Teo Macero", tags.Credits[0].Contributors[0].Name)
	// The resolved item keeps its original order.
	require.Equal(t, "Irving Townsend", item.Credits[0].Contributors[0].Name)

	pairs := tags.Pairs()
	require.Contains(t, pairs, [2]string{"track", "1"})
	require.Contains(t, pairs, [2]string{"bpm", "136"})
	require.Contains(t, pairs, [2]string{"lyrics", "[00:01.00]lyrics"})
	require.Contains(t, pairs, [2]string{"comment", "A landmark."})
	require.Contains(t, pairs, [2]string{"producer", "Teo Macero; Irving Townsend"})
}

func TestForItem_Video(t *testing.T) {
	it := resolver.Item{Media: catalog.VideoItem(&catalog.Video{
		Title:       "Live",
		ReleaseDate: "2020-01-01",
		Artist:      &catalog.Artist{Name: "Band"},
		Artists:     []catalog.Artist{{Name: "Band"}},
	})}
	tags := ForItem(it, "ignored", "ignored")
	require.Equal(t, Tags{Title: "Live", Artist: "Band", AlbumArtist: "Band", Date: "2020-01-01"}, tags)
	require.Equal(t, [][2]string{{"title", "Live"}, {"artist", "Band"}, {"album_artist", "Band"}, {"date", "2020-01-01"}}, tags.Pairs())
}

type recordingRunner struct {
	args [][]string
	fail error
}

func (r *recordingRunner) Run(_ context.Context, cmd *ffmpeg.Command) error {
	r.args = append(r.args, cmd.Build())
	if r.fail != nil {
		return r.fail
	}
	return os.WriteFile(cmd.Output(), []byte("tagged"), 0o644)
}

func TestFFmpegTagger_WithCover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.flac")
	require.NoError(t, os.WriteFile(path, []byte("raw"), 0o644))

	r := &recordingRunner{}
	err := NewFFmpegTagger(r).Tag(context.Background(), path, Tags{Title: "So What", CoverPath: "/tmp/c.jpg"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "tagged", string(data))
	require.NoFileExists(t, filepath.Join(dir, "track.tag.flac"))

	args := r.args[0]
	require.Contains(t, args, "/tmp/c.jpg")
	require.Contains(t, args, "attached_pic")
	require.Contains(t, args, "title=So What")
	require.Equal(t, filepath.Join(dir, "track.tag.flac"), args[len(args)-1])
}

func TestFFmpegTagger_VideoIgnoresCover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("raw"), 0o644))

	r := &recordingRunner{}
	require.NoError(t, NewFFmpegTagger(r).Tag(context.Background(), path, Tags{Title: "Live", CoverPath: "/tmp/c.jpg"}))
	require.NotContains(t, r.args[0], "/tmp/c.jpg")
}

func TestFFmpegTagger_Errors(t *testing.T) {
	err := NewFFmpegTagger(&recordingRunner{}).Tag(context.Background(), "/x/file.ts", Tags{})
	require.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "track.m4a")
	require.NoError(t, os.WriteFile(path, []byte("raw"), 0o644))
	boom := errors.New("exit status 1")
	err = NewFFmpegTagger(&recordingRunner{fail: boom}).Tag(context.Background(), path, Tags{Title: "x"})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "raw", string(data))
}

func TestCoverURL(t *testing.T) {
	require.Equal(t, "https://resources.tidal.com/images/ab/cd/ef/640x640.jpg", CoverURL("ab-cd-ef", 640))
	require.Equal(t, "https://resources.tidal.com/images/ab/1280x1280.jpg", CoverURL("ab", 3000))
	require.Equal(t, "https://resources.tidal.com/images/ab/1280x1280.jpg", CoverURL("ab", 0))
}

func newTestCovers(t *testing.T, h http.HandlerFunc) *Covers {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewCovers(srv.Client(), 640)
	require.NoError(t, err)
	c.baseURL = srv.URL
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCovers_PathDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	c := newTestCovers(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/ab/cd/640x640.jpg", r.URL.Path)
		_, _ = w.Write([]byte("jpeg"))
	})

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Path(context.Background(), "ab-cd")
			assert.NoError(t, err)
			paths[i] = p
		}()
	}
	wg.Wait()

	for _, p := range paths {
		require.Equal(t, paths[0], p)
	}
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	require.Equal(t, "jpeg", string(data))
	require.Equal(t, int32(1), hits.Load())

	before := hits.Load()
	_, err = c.Path(context.Background(), "ab-cd")
	require.NoError(t, err)
	require.Equal(t, before, hits.Load())
}

func TestCovers_SaveSkipsExisting(t *testing.T) {
	var hits atomic.Int32
	c := newTestCovers(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("jpeg"))
	})
	dest := filepath.Join(t.TempDir(), "Artist", "Album", "cover.jpg")

	require.NoError(t, c.Save(context.Background(), "ab", 1280, dest))
	require.NoError(t, c.Save(context.Background(), "ab", 1280, dest))
	require.Equal(t, int32(1), hits.Load())
	require.FileExists(t, dest)
}

func TestCovers_HTTPError(t *testing.T) {
	c := newTestCovers(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.Path(context.Background(), "missing")
	require.Error(t, err)
}
