package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskvr37/tiddl/internal/auth"
	"github.com/oskvr37/tiddl/internal/cache"
	"github.com/oskvr37/tiddl/internal/quality"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithDecodeRetry(3, 0)}, opts...)
	return NewClient(srv.URL, "us", auth.Static("tok"), opts...)
}

func TestClient_TrackRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracks/42", r.URL.Path)
		assert.Equal(t, "US", r.URL.Query().Get("countryCode"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":42,"title":"So What","allowStreaming":true,"isrc":"USSM15900113",
			"audioQuality":"LOSSLESS","mediaMetadata":{"tags":["LOSSLESS"]},
			"artists":[{"id":1,"name":"Miles Davis","type":"MAIN"}],"album":{"id":7,"title":"Kind of Blue","cover":"ab-cd"}}`))
	})

	tr, err := c.Track(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), tr.ID)
	require.Equal(t, "So What", tr.Title)
	require.Equal(t, []string{"LOSSLESS"}, tr.MediaMetadata.Tags)
	require.Equal(t, int64(7), tr.Album.ID)
}

func TestClient_CachesCatalogButNotPlaylists(t *testing.T) {
	var albumHits, playlistHits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/albums/7":
			albumHits.Add(1)
			_, _ = w.Write([]byte(`{"id":7,"title":"Kind of Blue"}`))
		case "/playlists/abc":
			playlistHits.Add(1)
			_, _ = w.Write([]byte(`{"uuid":"abc","title":"Mix"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, WithCache(cache.NewMemory()))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		a, err := c.Album(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, "Kind of Blue", a.Title)

		p, err := c.Playlist(ctx, "abc")
		require.NoError(t, err)
		require.Equal(t, "Mix", p.Title)
	}
	require.Equal(t, int32(1), albumHits.Load())
	require.Equal(t, int32(3), playlistHits.Load())
}

func TestClient_APIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		fatal     bool
		sentinel  error
		subStatus int
	}{
		{"not found", 404, `{"status":404,"subStatus":2001,"userMessage":"Not found"}`, false, nil, 2001},
		{"unauthorized", 401, `{"status":401,"subStatus":11002,"userMessage":"Token could not be verified"}`, true, ErrUnauthorized, 11002},
		{"no privilege", 401, `{"status":401,"subStatus":4006,"userMessage":"Asset is not ready for playback"}`, true, ErrNoStreamingPrivilege, 4006},
		{"quoted substatus", 403, `{"status":403,"subStatus":"4006","userMessage":"x"}`, true, ErrNoStreamingPrivilege, 4006},
		{"plain body", 502, `bad gateway`, false, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Track(context.Background(), 1)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.status, apiErr.Status)
			require.Equal(t, tt.subStatus, apiErr.SubStatus)
			require.Equal(t, tt.fatal, IsFatal(err))
			if tt.sentinel != nil {
				require.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestClient_DecodeRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"id":`))
			return
		}
		_, _ = w.Write([]byte(`{"id":9,"title":"ok"}`))
	})

	tr, err := c.Track(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, "ok", tr.Title)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_DecodeRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := c.Track(context.Background(), 9)
	require.ErrorIs(t, err, ErrTransientDecode)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusOK, apiErr.Status)
	require.Equal(t, SubStatusInvalidJSON, apiErr.SubStatus)
	require.False(t, IsFatal(err))
	require.Equal(t, int32(3), calls.Load())
}

type countingTokens struct {
	mu          sync.Mutex
	tokens      []string
	invalidated int
}

func (c *countingTokens) Token(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[c.invalidated], nil
}

func (c *countingTokens) Invalidate() {
	c.mu.Lock()
	c.invalidated++
	c.mu.Unlock()
}

func TestClient_RefreshesOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":401,"subStatus":11003,"userMessage":"expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"title":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	tokens := &countingTokens{tokens: []string{"stale", "fresh"}}
	c := NewClient(srv.URL, "US", tokens)

	tr, err := c.Track(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "ok", tr.Title)
	require.Equal(t, 1, tokens.invalidated)
}

func TestClient_TokenFailureIsFatal(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "US", auth.Static(""))
	_, err := c.Track(context.Background(), 1)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
	require.True(t, IsFatal(err))
}

func TestClient_StreamParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracks/5/playbackinfopostpaywall", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "HI_RES_LOSSLESS", q.Get("audioquality"))
		assert.Equal(t, "STREAM", q.Get("playbackmode"))
		assert.Equal(t, "FULL", q.Get("assetpresentation"))
		_, _ = w.Write([]byte(`{"trackId":5,"audioQuality":"LOSSLESS","manifestMimeType":"application/vnd.tidal.bts","manifest":"e30="}`))
	})

	s, err := c.TrackStream(context.Background(), 5, quality.TrackHiResLossless)
	require.NoError(t, err)
	require.Equal(t, "LOSSLESS", s.AudioQuality)
}

func TestClient_PageParamsClamped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "100", q.Get("limit"))
		assert.Equal(t, "40", q.Get("offset"))
		assert.Equal(t, "EPSANDSINGLES", q.Get("filter"))
		_, _ = w.Write([]byte(`{"limit":100,"offset":40,"totalNumberOfItems":41,"items":[{"id":3,"title":"EP"}]}`))
	})

	page, err := c.ArtistAlbums(context.Background(), 2, FilterEPsAndSingles, 500, 40)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "EP", page.Items[0].Title)
}

func TestClient_RateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1}`))
	}, WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Video(context.Background(), 1)
		require.NoError(t, err)
	}
	// Two waits of 50ms after the initial burst token.
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, 20, ClampLimit(0, 20))
	require.Equal(t, 10, ClampLimit(10, 20))
	require.Equal(t, MaxPageSize, ClampLimit(1000, 20))
}

func TestItem_Unmarshal(t *testing.T) {
	var page Page[Item]
	err := json.Unmarshal([]byte(`{"limit":3,"offset":0,"totalNumberOfItems":3,"items":[
		{"type":"track","item":{"id":1,"title":"a","index":4},"credits":[{"type":"Producer","contributors":[{"name":"Teo Macero"}]}]},
		{"type":"video","item":{"id":2,"title":"b"}},
		{"type":"podcast","item":{"id":3}}
	]}`), &page)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	require.Equal(t, ItemTrack, page.Items[0].Kind)
	require.Equal(t, int64(1), page.Items[0].ID())
	require.Equal(t, 4, page.Items[0].Index)
	require.Equal(t, "Teo Macero", page.Items[0].Credits[0].Contributors[0].Name)

	require.Equal(t, ItemVideo, page.Items[1].Kind)
	require.Equal(t, "b", page.Items[1].Title())

	require.Equal(t, ItemUnknown, page.Items[2].Kind)
}

func TestArtistNames(t *testing.T) {
	artists := []Artist{
		{Name: "Zed", Type: RoleMain},
		{Name: "Amy", Type: RoleMain},
		{Name: "Guest", Type: RoleFeatured},
	}
	require.Equal(t, []string{"Amy", "Zed"}, ArtistNames(artists, RoleMain))
	require.Equal(t, []string{"Guest"}, ArtistNames(artists, RoleFeatured))
}

func TestIsNotFound(t *testing.T) {
	require.True(t, IsNotFound(&APIError{Status: 404}))
	require.False(t, IsNotFound(errors.New("x")))
}

func TestClient_DefaultTransportBoundsHeadersOnly(t *testing.T) {
	c := NewClient("", "us", auth.Static("tok"))
	require.Zero(t, c.http.Timeout)
	tr, ok := c.http.Transport.(*http.Transport)
	require.True(t, ok)
	require.Equal(t, 30*time.Second, tr.ResponseHeaderTimeout)
	require.Equal(t, 10*time.Second, tr.TLSHandshakeTimeout)
}
