package application

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/internal/config"
	"github.com/oskvr37/tiddl/internal/download"
	"github.com/oskvr37/tiddl/internal/naming"
	"github.com/oskvr37/tiddl/internal/resolver"
	"github.com/oskvr37/tiddl/internal/resource"
)

type fakeAPI struct {
	*httptest.Server
	streams atomic.Int32
}

func track(id int, number int, title string) map[string]any {
	return map[string]any{
		"id": id, "title": title, "duration": 500 + id, "trackNumber": number, "volumeNumber": 1,
		"allowStreaming": true, "streamReady": true, "audioQuality": "LOSSLESS", "isrc": fmt.Sprintf("US%d", id),
		"artist":  map[string]any{"id": 1, "name": "Miles Davis", "type": "MAIN"},
		"artists": []map[string]any{{"id": 1, "name": "Miles Davis", "type": "MAIN"}},
		"album":   map[string]any{"id": 7, "title": "Kind of Blue"},
	}
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	manifest := func(id string) string {
		raw, _ := json.Marshal(map[string]any{
			"mimeType": "audio/flac", "codecs": "flac", "encryptionType": "NONE",
			"urls": []string{api.URL + "/cdn/" + id + "-a", api.URL + "/cdn/" + id + "-b"},
		})
		return base64.StdEncoding.EncodeToString(raw)
	}

	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if !strings.HasPrefix(p, "/cdn/") && r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case p == "/albums/7":
			writeJSON(w, map[string]any{
				"id": 7, "title": "Kind of Blue", "releaseDate": "1959-08-17", "allowStreaming": true,
				"artist":  map[string]any{"id": 1, "name": "Miles Davis", "type": "MAIN"},
				"artists": []map[string]any{{"id": 1, "name": "Miles Davis", "type": "MAIN"}},
			})
		case p == "/albums/7/items/credits":
			writeJSON(w, map[string]any{
				"limit": 20, "offset": 0, "totalNumberOfItems": 2,
				"items": []map[string]any{
					{"type": "track", "item": track(1, 1, "So What"), "credits": []any{}},
					{"type": "track", "item": track(2, 2, "Freddie Freeloader"), "credits": []any{}},
				},
			})
		case p == "/tracks/1" || p == "/tracks/2":
			id := strings.TrimPrefix(p, "/tracks/")
			writeJSON(w, track(int(id[0]-'0'), 1, "Track "+id))
		case strings.HasSuffix(p, "/playbackinfopostpaywall"):
			api.streams.Add(1)
			id := strings.Split(p, "/")[2]
			if id == "5" {
				w.WriteHeader(http.StatusUnauthorized)
				writeJSON(w, map[string]any{"status": 401, "subStatus": 11002, "userMessage": "token expired"})
				return
			}
			writeJSON(w, map[string]any{
				"trackId": 1, "audioQuality": "LOSSLESS", "manifestMimeType": "application/vnd.tidal.bts",
				"manifest": manifest(id), "bitDepth": 16, "sampleRate": 44100,
			})
		case p == "/tracks/5":
			writeJSON(w, track(5, 5, "Blue in Green"))
		case strings.HasPrefix(p, "/cdn/"):
			_, _ = w.Write([]byte(strings.TrimPrefix(p, "/cdn/")))
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"status": 404, "subStatus": 2001, "userMessage": "The requested resource could not be found"})
		}
	}))
	t.Cleanup(api.Close)
	return api
}

func testConfig(t *testing.T, api *fakeAPI) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Token:            "secret",
		CountryCode:      "US",
		APIURL:           api.URL,
		TrackQuality:     "high",
		VideoQuality:     "fhd",
		DownloadPath:     dir,
		ScanPath:         dir,
		Threads:          2,
		SkipExisting:     true,
		SinglesFilter:    "none",
		VideosFilter:     "none",
		PageSize:         20,
		FFmpegPath:       filepath.Join(dir, "no-ffmpeg"),
		TemplateDefault:  "{album.artist}/{album.title}/{item.number:02d} {item.title}",
		M3USave:          true,
		M3UAllowed:       []string{"album"},
		M3UTemplateAlbum: "{album.artist}/{album.title}/{album.title}",
		CoverSize:        1280,
		CacheBackend:     "memory",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

func newContext(t *testing.T, conf config.Config) *Context {
	t.Helper()
	a, err := New(context.Background(), conf)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a
}

func TestRun_Album(t *testing.T) {
	api := newFakeAPI(t)
	conf := testConfig(t, api)
	a := newContext(t, conf)

	summary := a.Run(context.Background(), []resource.Reference{{Kind: resource.Album, ID: "7"}})
	require.NoError(t, summary.Aborted)
	require.Equal(t, 0, summary.ExitCode())
	require.Equal(t, 2, summary.Counts[download.StatusDownloaded])
	require.Empty(t, summary.Failures)

	albumDir := filepath.Join(conf.DownloadPath, "Miles Davis", "Kind of Blue")
	data, err := os.ReadFile(filepath.Join(albumDir, "01 So What.flac"))
	require.NoError(t, err)
	require.Equal(t, "1-a1-b", string(data))
	require.FileExists(t, filepath.Join(albumDir, "02 Freddie Freeloader.flac"))

	playlist, err := os.ReadFile(filepath.Join(albumDir, "Kind of Blue.m3u"))
	require.NoError(t, err)
	require.Equal(t, "#EXTM3U\n"+
		"#EXTINF:501,Miles Davis - So What\n"+filepath.Join(albumDir, "01 So What.flac")+"\n"+
		"#EXTINF:502,Miles Davis - Freddie Freeloader\n"+filepath.Join(albumDir, "02 Freddie Freeloader.flac")+"\n",
		string(playlist))
}

func TestRun_SecondRunSkipsExisting(t *testing.T) {
	api := newFakeAPI(t)
	conf := testConfig(t, api)
	a := newContext(t, conf)
	refs := []resource.Reference{{Kind: resource.Album, ID: "7"}}

	first := a.Run(context.Background(), refs)
	require.Equal(t, 2, first.Counts[download.StatusDownloaded])
	streams := api.streams.Load()

	second := a.Run(context.Background(), refs)
	require.Equal(t, 2, second.Counts[download.StatusExists])
	require.Zero(t, second.Counts[download.StatusDownloaded])
	require.Equal(t, streams, api.streams.Load())
}

func TestRun_FailedReference(t *testing.T) {
	api := newFakeAPI(t)
	refs := []resource.Reference{{Kind: resource.Track, ID: "404"}, {Kind: resource.Track, ID: "1"}}

	conf := testConfig(t, api)
	summary := newContext(t, conf).Run(context.Background(), refs)
	require.Equal(t, 1, summary.ExitCode())
	require.Len(t, summary.Failures, 1)
	require.Equal(t, "track/404", summary.Failures[0].Resource)
	require.True(t, catalog.IsNotFound(summary.Failures[0].Err))
	require.Zero(t, summary.Counts[download.StatusDownloaded])

	conf = testConfig(t, api)
	conf.SkipErrors = true
	summary = newContext(t, conf).Run(context.Background(), refs)
	require.Equal(t, 0, summary.ExitCode())
	require.Equal(t, 1, summary.Counts[download.StatusDownloaded])
}

func TestRun_UnauthorizedAborts(t *testing.T) {
	api := newFakeAPI(t)
	conf := testConfig(t, api)
	conf.SkipErrors = true

	summary := newContext(t, conf).Run(context.Background(), []resource.Reference{
		{Kind: resource.Track, ID: "5"},
		{Kind: resource.Track, ID: "1"},
	})
	require.ErrorIs(t, summary.Aborted, catalog.ErrUnauthorized)
	require.ErrorIs(t, summary.Aborted, download.ErrAborted)
	require.Equal(t, 1, summary.ExitCode())
	require.Equal(t, 1, summary.Counts[download.StatusFailed])
	require.Zero(t, summary.Counts[download.StatusDownloaded])
	require.Equal(t, int32(1), api.streams.Load())
}

func TestNew_InvalidTemplate(t *testing.T) {
	api := newFakeAPI(t)
	conf := testConfig(t, api)
	conf.TemplateTrack = "{item.nope}"
	_, err := New(context.Background(), conf)
	require.ErrorContains(t, err, "templates")

	conf = testConfig(t, api)
	conf.M3UTemplateAlbum = "{item.title}"
	_, err = New(context.Background(), conf)
	require.Error(t, err)
}

func TestTemplateKind(t *testing.T) {
	trackItem := catalog.TrackItem(&catalog.Track{})
	videoItem := catalog.VideoItem(&catalog.Video{})
	tests := []struct {
		item resolver.Item
		want naming.Kind
	}{
		{resolver.Item{Media: trackItem}, naming.KindTrack},
		{resolver.Item{Media: videoItem}, naming.KindVideo},
		{resolver.Item{Media: trackItem, Group: &resolver.Group{Kind: resource.Album}}, naming.KindAlbum},
		{resolver.Item{Media: videoItem, Group: &resolver.Group{Kind: resource.Playlist}}, naming.KindPlaylist},
		{resolver.Item{Media: trackItem, Group: &resolver.Group{Kind: resource.Mix}}, naming.KindMix},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, templateKind(tt.item))
	}
}

func TestNeedsAlbum(t *testing.T) {
	api := newFakeAPI(t)
	conf := testConfig(t, api)
	conf.TemplatePlaylist = "{playlist.title}/{playlist.index:03d} {item.title}"
	a := newContext(t, conf)

	require.False(t, a.needsAlbum(resource.Playlist))
	require.True(t, a.needsAlbum(resource.Mix))
	require.True(t, a.needsAlbum(resource.Video))
	require.True(t, a.needsAlbum(resource.Track))
}

func TestOpenCacheWithRetry(t *testing.T) {
	conf := config.Config{CacheBackend: "memory"}
	store, err := OpenCacheWithRetry(context.Background(), conf)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	conf = config.Config{CacheBackend: "sqlite", CachePath: filepath.Join(t.TempDir(), "nested", "cache.db"), CacheRetries: 1}
	store, err = OpenCacheWithRetry(context.Background(), conf)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	conf = config.Config{CacheBackend: "redis", RedisURL: "not a url"}
	_, err = OpenCacheWithRetry(context.Background(), conf)
	require.ErrorContains(t, err, "redis url")
}

func TestOpenCacheWithRetry_RedisCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := OpenCacheWithRetry(ctx, config.Config{CacheBackend: "redis", RedisURL: "redis://127.0.0.1:1/0", CacheRetries: 5})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSummary_ExitCode(t *testing.T) {
	s := newSummary(time.Now())
	require.Equal(t, 0, s.ExitCode())

	s.fail(resource.Reference{Kind: resource.Album, ID: "1"}, errors.New("boom"))
	require.Equal(t, 1, s.ExitCode())
	s.skipErrors = true
	require.Equal(t, 0, s.ExitCode())

	s.Aborted = download.ErrAborted
	require.Equal(t, 1, s.ExitCode())
}

func TestSummary_LogReportsSize(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newSummary(start)
	s.add(download.Result{Status: download.StatusExists})
	s.finish(start.Add(2*time.Second), download.Stats{Bytes: 3 << 20}, false)

	var buf strings.Builder
	s.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	out := buf.String()
	require.Contains(t, out, "Run complete")
	require.Contains(t, out, `size="3.0 MiB"`)
	require.Contains(t, out, "exists=1")
	require.Contains(t, out, "elapsed=2s")
}

func TestNew_HTTPClientBoundsHeadersNotBodies(t *testing.T) {
	api := newFakeAPI(t)
	a := newContext(t, testConfig(t, api))

	require.Zero(t, a.HTTP.Timeout)
	tr, ok := a.HTTP.Transport.(*http.Transport)
	require.True(t, ok)
	require.Equal(t, time.Minute, tr.ResponseHeaderTimeout)
	require.Equal(t, 10*time.Second, tr.TLSHandshakeTimeout)
	require.NotNil(t, tr.DialContext)
}
