package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/grafov/m3u8"
)

// Fetcher retrieves a playlist body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) (io.ReadCloser, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return f(ctx, rawURL)
}

// HTTPFetcher fetches playlists over plain HTTP GET.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch implements Fetcher.
func (h HTTPFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("playlist fetch failed: %s: %s", resp.Status, string(body))
	}
	return resp.Body, nil
}

type videoManifest struct {
	MimeType string   `json:"mimeType"`
	URLs     []string `json:"urls"`
}

// DecodeVideo decodes a video manifest envelope. The first URL points at an
// HLS master playlist; the last listed variant is taken as the best one and
// its segment URIs are returned. Variants are not compared by bandwidth.
func DecodeVideo(ctx context.Context, fetcher Fetcher, envelope string) (*Stream, error) {
	raw, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	var m videoManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: video json: %v", ErrManifest, err)
	}
	if len(m.URLs) == 0 {
		return nil, fmt.Errorf("%w: video manifest has no urls", ErrManifest)
	}

	master, err := fetchPlaylist(ctx, fetcher, m.URLs[0])
	if err != nil {
		return nil, err
	}
	mp, ok := master.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a master playlist", ErrManifest, m.URLs[0])
	}
	if len(mp.Variants) == 0 || mp.Variants[len(mp.Variants)-1] == nil {
		return nil, fmt.Errorf("%w: master playlist has no variants", ErrManifest)
	}
	variantURL, err := resolveURI(m.URLs[0], mp.Variants[len(mp.Variants)-1].URI)
	if err != nil {
		return nil, err
	}

	variant, err := fetchPlaylist(ctx, fetcher, variantURL)
	if err != nil {
		return nil, err
	}
	media, ok := variant.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a media playlist", ErrManifest, variantURL)
	}

	urls := make([]string, 0, len(media.Segments))
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		u, err := resolveURI(variantURL, seg.URI)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: media playlist has no segments", ErrManifest)
	}

	return &Stream{
		Format: FormatHLS,
		URLs:   urls,
	}, nil
}

func fetchPlaylist(ctx context.Context, fetcher Fetcher, rawURL string) (m3u8.Playlist, error) {
	body, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", rawURL, err)
	}
	defer body.Close()

	p, _, err := m3u8.DecodeFrom(body, false)
	if err != nil {
		return nil, fmt.Errorf("%w: m3u8: %v", ErrManifest, err)
	}
	return p, nil
}

// resolveURI leaves absolute URIs untouched and resolves relative ones
// against the playlist they were listed in.
func resolveURI(base, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: bad uri %q: %v", ErrManifest, ref, err)
	}
	if u.IsAbs() {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: bad uri %q: %v", ErrManifest, base, err)
	}
	return b.ResolveReference(u).String(), nil
}
