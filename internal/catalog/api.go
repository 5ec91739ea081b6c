package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/oskvr37/tiddl/internal/quality"
)

// Default and maximum page sizes per listing. The server rejects larger
// limits, so requests are clamped client side.
const (
	ArtistAlbumsLimit  = 10
	ArtistVideosLimit  = 10
	AlbumItemsLimit    = 20
	PlaylistItemsLimit = 20
	MixItemsLimit      = 20

	MaxPageSize = 100
)

// AlbumFilter selects which releases an artist listing returns.
type AlbumFilter string

const (
	FilterAlbums        AlbumFilter = "ALBUMS"
	FilterEPsAndSingles AlbumFilter = "EPSANDSINGLES"
)

// ClampLimit returns def for non-positive limits and caps the rest at MaxPageSize.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxPageSize {
		slog.Warn("Page size above provider maximum, clamping", "requested", limit, "max", MaxPageSize)
		return MaxPageSize
	}
	return limit
}

func pageParams(limit, offset int) url.Values {
	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

func (c *Client) Track(ctx context.Context, trackID int64) (*Track, error) {
	var out Track
	if err := c.get(ctx, "tracks/"+id(trackID), nil, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Video(ctx context.Context, videoID int64) (*Video, error) {
	var out Video
	if err := c.get(ctx, "videos/"+id(videoID), nil, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Album(ctx context.Context, albumID int64) (*Album, error) {
	var out Album
	if err := c.get(ctx, "albums/"+id(albumID), nil, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Artist(ctx context.Context, artistID int64) (*ArtistProfile, error) {
	var out ArtistProfile
	if err := c.get(ctx, "artists/"+id(artistID), nil, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Playlist is never cached; playlists change under the same uuid.
func (c *Client) Playlist(ctx context.Context, uuid string) (*Playlist, error) {
	var out Playlist
	if err := c.get(ctx, "playlists/"+url.PathEscape(uuid), nil, TTLNone, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AlbumItems(ctx context.Context, albumID int64, limit, offset int) (*Page[Item], error) {
	var out Page[Item]
	params := pageParams(ClampLimit(limit, AlbumItemsLimit), offset)
	if err := c.get(ctx, fmt.Sprintf("albums/%d/items", albumID), params, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AlbumItemsCredits lists album items together with their credits.
func (c *Client) AlbumItemsCredits(ctx context.Context, albumID int64, limit, offset int) (*Page[Item], error) {
	var out Page[Item]
	params := pageParams(ClampLimit(limit, AlbumItemsLimit), offset)
	if err := c.get(ctx, fmt.Sprintf("albums/%d/items/credits", albumID), params, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AlbumReview(ctx context.Context, albumID int64) (*AlbumReview, error) {
	var out AlbumReview
	if err := c.get(ctx, fmt.Sprintf("albums/%d/review", albumID), nil, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ArtistAlbums(ctx context.Context, artistID int64, filter AlbumFilter, limit, offset int) (*Page[Album], error) {
	var out Page[Album]
	params := pageParams(ClampLimit(limit, ArtistAlbumsLimit), offset)
	params.Set("filter", string(filter))
	if err := c.get(ctx, fmt.Sprintf("artists/%d/albums", artistID), params, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ArtistVideos(ctx context.Context, artistID int64, limit, offset int) (*Page[Video], error) {
	var out Page[Video]
	params := pageParams(ClampLimit(limit, ArtistVideosLimit), offset)
	if err := c.get(ctx, fmt.Sprintf("artists/%d/videos", artistID), params, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PlaylistItems(ctx context.Context, uuid string, limit, offset int) (*Page[Item], error) {
	var out Page[Item]
	params := pageParams(ClampLimit(limit, PlaylistItemsLimit), offset)
	if err := c.get(ctx, "playlists/"+url.PathEscape(uuid)+"/items", params, TTLNone, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MixItems(ctx context.Context, mixID string, limit, offset int) (*Page[Item], error) {
	var out Page[Item]
	params := pageParams(ClampLimit(limit, MixItemsLimit), offset)
	if err := c.get(ctx, "mixes/"+url.PathEscape(mixID)+"/items", params, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Lyrics(ctx context.Context, trackID int64) (*Lyrics, error) {
	var out Lyrics
	if err := c.get(ctx, fmt.Sprintf("tracks/%d/lyrics", trackID), nil, TTLCatalog, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session describes the authenticated user, including their country.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var out Session
	if err := c.get(ctx, "sessions", nil, TTLNone, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackStream requests playback info. The granted AudioQuality may be lower
// than requested.
func (c *Client) TrackStream(ctx context.Context, trackID int64, q quality.TrackQuality) (*TrackStream, error) {
	var out TrackStream
	params := url.Values{
		"audioquality":      {string(q)},
		"playbackmode":      {"STREAM"},
		"assetpresentation": {"FULL"},
	}
	if err := c.get(ctx, fmt.Sprintf("tracks/%d/playbackinfopostpaywall", trackID), params, TTLNone, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VideoStream(ctx context.Context, videoID int64, q quality.VideoQuality) (*VideoStream, error) {
	var out VideoStream
	params := url.Values{
		"videoquality":      {string(q)},
		"playbackmode":      {"STREAM"},
		"assetpresentation": {"FULL"},
	}
	if err := c.get(ctx, fmt.Sprintf("videos/%d/playbackinfopostpaywall", videoID), params, TTLNone, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
