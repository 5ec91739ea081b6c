// Package resolver expands a resource reference into the stream of tracks and
// videos it contains, walking paginated listings in server order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/internal/resource"
)

// Catalog is the subset of the catalog client the resolver pages through.
type Catalog interface {
	Track(ctx context.Context, trackID int64) (*catalog.Track, error)
	Video(ctx context.Context, videoID int64) (*catalog.Video, error)
	Album(ctx context.Context, albumID int64) (*catalog.Album, error)
	Playlist(ctx context.Context, uuid string) (*catalog.Playlist, error)
	AlbumItemsCredits(ctx context.Context, albumID int64, limit, offset int) (*catalog.Page[catalog.Item], error)
	ArtistAlbums(ctx context.Context, artistID int64, filter catalog.AlbumFilter, limit, offset int) (*catalog.Page[catalog.Album], error)
	ArtistVideos(ctx context.Context, artistID int64, limit, offset int) (*catalog.Page[catalog.Video], error)
	PlaylistItems(ctx context.Context, uuid string, limit, offset int) (*catalog.Page[catalog.Item], error)
	MixItems(ctx context.Context, mixID string, limit, offset int) (*catalog.Page[catalog.Item], error)
}

// SinglesFilter controls EPs and singles in artist listings.
type SinglesFilter string

const (
	SinglesNone    SinglesFilter = "none"
	SinglesOnly    SinglesFilter = "only"
	SinglesInclude SinglesFilter = "include"
)

// VideosFilter controls videos in artist listings and downloads.
type VideosFilter string

const (
	VideosNone  VideosFilter = "none"
	VideosAllow VideosFilter = "allow"
	VideosOnly  VideosFilter = "only"
)

type Options struct {
	// PageSize is the requested listing page size. Zero selects the
	// per endpoint default; values above the provider cap are clamped.
	PageSize        int
	Singles         SinglesFilter
	Videos          VideosFilter
	SkipErrors      bool
	SkipUnavailable bool

	// NeedsAlbum reports whether items resolved for a resource kind need
	// their full album record. Nil fetches the album whenever the item
	// references one. Tracks and album listings always carry it.
	NeedsAlbum func(kind resource.Kind) bool
}

// Group is the collection an item was listed from. Items of a single track
// or video reference have no group.
type Group struct {
	Kind     resource.Kind
	ID       string
	Album    *catalog.Album
	Playlist *catalog.Playlist
	MixID    string
}

// Item is one downloadable track or video plus the context it was found in.
type Item struct {
	Media    catalog.Item
	Album    *catalog.Album
	Playlist *catalog.Playlist
	// PlaylistIndex is the 1-based position in the playlist.
	PlaylistIndex int
	MixID         string
	Group         *Group
	Source        resource.Reference
}

// EmitFunc receives resolved items in listing order. A returned error stops
// resolution and is returned from Resolve unchanged.
type EmitFunc func(Item) error

type Resolver struct {
	catalog Catalog
	opts    Options
}

func New(c Catalog, opts Options) *Resolver {
	if opts.Singles == "" {
		opts.Singles = SinglesNone
	}
	if opts.Videos == "" {
		opts.Videos = VideosNone
	}
	return &Resolver{catalog: c, opts: opts}
}

type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

// Resolve walks ref and calls emit for every item. It is not resumable: a
// second call starts from the first page again.
func (r *Resolver) Resolve(ctx context.Context, ref resource.Reference, emit EmitFunc) error {
	wrapped := func(it Item) error {
		if err := emit(it); err != nil {
			return &emitError{err: err}
		}
		return nil
	}

	err := r.resolve(ctx, ref, wrapped)
	var ee *emitError
	if errors.As(err, &ee) {
		return ee.err
	}
	return err
}

func (r *Resolver) resolve(ctx context.Context, ref resource.Reference, emit EmitFunc) error {
	switch ref.Kind {
	case resource.Track:
		return r.track(ctx, ref, emit)
	case resource.Video:
		return r.video(ctx, ref, emit)
	case resource.Album:
		id, err := numericID(ref)
		if err != nil {
			return err
		}
		album, err := r.catalog.Album(ctx, id)
		if err != nil {
			return fmt.Errorf("album %d: %w", id, err)
		}
		return r.album(ctx, ref, album, emit)
	case resource.Artist:
		return r.artist(ctx, ref, emit)
	case resource.Playlist:
		return r.playlist(ctx, ref, emit)
	case resource.Mix:
		return r.mix(ctx, ref, emit)
	}
	return fmt.Errorf("resolver: unsupported resource kind %q", ref.Kind)
}

// branch applies the error policy to one listing. Emit errors, fatal catalog
// errors and cancellation always propagate.
func (r *Resolver) branch(ctx context.Context, what string, err error) error {
	if err == nil {
		return nil
	}
	var ee *emitError
	if errors.As(err, &ee) {
		return err
	}
	if catalog.IsFatal(err) || ctx.Err() != nil || !r.opts.SkipErrors {
		return err
	}
	slog.Warn("Skipping listing after error", "listing", what, "error", err)
	return nil
}

func (r *Resolver) needsAlbum(kind resource.Kind) bool {
	if r.opts.NeedsAlbum == nil {
		return true
	}
	return r.opts.NeedsAlbum(kind)
}

// albumContext fetches the album referenced by an item. Missing references
// yield nil. Non fatal failures are logged and the item goes on without it.
func (r *Resolver) albumContext(ctx context.Context, ref *catalog.AlbumRef) (*catalog.Album, error) {
	if ref == nil || ref.ID == 0 {
		return nil, nil
	}
	album, err := r.catalog.Album(ctx, ref.ID)
	if err != nil {
		if catalog.IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("Album context unavailable", "album_id", ref.ID, "error", err)
		return nil, nil
	}
	return album, nil
}

// accept reports whether a listed item should be emitted.
func (r *Resolver) accept(it catalog.Item) bool {
	switch it.Kind {
	case catalog.ItemTrack:
		if r.opts.SkipUnavailable && it.Track.ISRC == "" {
			slog.Warn("Skipping unavailable track", "track_id", it.Track.ID, "title", it.Track.Title)
			return false
		}
		return true
	case catalog.ItemVideo:
		return true
	}
	return false
}

func (r *Resolver) track(ctx context.Context, ref resource.Reference, emit EmitFunc) error {
	id, err := numericID(ref)
	if err != nil {
		return err
	}
	t, err := r.catalog.Track(ctx, id)
	if err != nil {
		return fmt.Errorf("track %d: %w", id, err)
	}
	album, err := r.albumContext(ctx, t.Album)
	if err != nil {
		return err
	}
	return emit(Item{Media: catalog.TrackItem(t), Album: album, Source: ref})
}

func (r *Resolver) video(ctx context.Context, ref resource.Reference, emit EmitFunc) error {
	id, err := numericID(ref)
	if err != nil {
		return err
	}
	v, err := r.catalog.Video(ctx, id)
	if err != nil {
		return fmt.Errorf("video %d: %w", id, err)
	}
	return r.emitVideo(ctx, ref, v, emit)
}

func (r *Resolver) emitVideo(ctx context.Context, ref resource.Reference, v *catalog.Video, emit EmitFunc) error {
	var album *catalog.Album
	if r.needsAlbum(resource.Video) {
		var err error
		if album, err = r.albumContext(ctx, v.Album); err != nil {
			return err
		}
	}
	return emit(Item{Media: catalog.VideoItem(v), Album: album, Source: ref})
}

func (r *Resolver) album(ctx context.Context, ref resource.Reference, album *catalog.Album, emit EmitFunc) error {
	group := &Group{Kind: resource.Album, ID: strconv.FormatInt(album.ID, 10), Album: album}
	limit := catalog.ClampLimit(r.opts.PageSize, catalog.AlbumItemsLimit)

	return paginate(ctx, limit,
		func(ctx context.Context, limit, offset int) (*catalog.Page[catalog.Item], error) {
			return r.catalog.AlbumItemsCredits(ctx, album.ID, limit, offset)
		},
		func(it catalog.Item) error {
			if !r.accept(it) {
				return nil
			}
			return emit(Item{Media: it, Album: album, Group: group, Source: ref})
		})
}

func (r *Resolver) artist(ctx context.Context, ref resource.Reference, emit EmitFunc) error {
	id, err := numericID(ref)
	if err != nil {
		return err
	}

	if r.opts.Videos != VideosNone {
		limit := catalog.ClampLimit(r.opts.PageSize, catalog.ArtistVideosLimit)
		err := paginate(ctx, limit,
			func(ctx context.Context, limit, offset int) (*catalog.Page[catalog.Video], error) {
				return r.catalog.ArtistVideos(ctx, id, limit, offset)
			},
			func(v catalog.Video) error {
				return r.emitVideo(ctx, ref, &v, emit)
			})
		if err := r.branch(ctx, fmt.Sprintf("artist %d videos", id), err); err != nil {
			return err
		}
	}
	if r.opts.Videos == VideosOnly {
		return nil
	}

	var filters []catalog.AlbumFilter
	switch r.opts.Singles {
	case SinglesOnly:
		filters = []catalog.AlbumFilter{catalog.FilterEPsAndSingles}
	case SinglesInclude:
		filters = []catalog.AlbumFilter{catalog.FilterAlbums, catalog.FilterEPsAndSingles}
	default:
		filters = []catalog.AlbumFilter{catalog.FilterAlbums}
	}

	limit := catalog.ClampLimit(r.opts.PageSize, catalog.ArtistAlbumsLimit)
	for _, filter := range filters {
		err := paginate(ctx, limit,
			func(ctx context.Context, limit, offset int) (*catalog.Page[catalog.Album], error) {
				return r.catalog.ArtistAlbums(ctx, id, filter, limit, offset)
			},
			func(a catalog.Album) error {
				err := r.album(ctx, ref, &a, emit)
				return r.branch(ctx, fmt.Sprintf("album %d", a.ID), err)
			})
		if err := r.branch(ctx, fmt.Sprintf("artist %d %s", id, filter), err); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) playlist(ctx context.Context, ref resource.Reference, emit EmitFunc) error {
	pl, err := r.catalog.Playlist(ctx, ref.ID)
	if err != nil {
		return fmt.Errorf("playlist %s: %w", ref.ID, err)
	}
	group := &Group{Kind: resource.Playlist, ID: pl.UUID, Playlist: pl}
	limit := catalog.ClampLimit(r.opts.PageSize, catalog.PlaylistItemsLimit)
	needsAlbum := r.needsAlbum(resource.Playlist)

	index := 0
	return paginate(ctx, limit,
		func(ctx context.Context, limit, offset int) (*catalog.Page[catalog.Item], error) {
			return r.catalog.PlaylistItems(ctx, ref.ID, limit, offset)
		},
		func(it catalog.Item) error {
			if it.Kind == catalog.ItemUnknown {
				return nil
			}
			index++
			if !r.accept(it) {
				return nil
			}
			out := Item{Media: it, Playlist: pl, PlaylistIndex: index, Group: group, Source: ref}
			if needsAlbum {
				album, err := r.albumContext(ctx, it.Album())
				if err != nil {
					return err
				}
				out.Album = album
			}
			return emit(out)
		})
}

// mix lists a mix with one request; mixes are not paginated further.
func (r *Resolver) mix(ctx context.Context, ref resource.Reference, emit EmitFunc) error {
	limit := catalog.ClampLimit(r.opts.PageSize, catalog.MixItemsLimit)
	page, err := r.catalog.MixItems(ctx, ref.ID, limit, 0)
	if err != nil {
		return fmt.Errorf("mix %s: %w", ref.ID, err)
	}
	group := &Group{Kind: resource.Mix, ID: ref.ID, MixID: ref.ID}
	needsAlbum := r.needsAlbum(resource.Mix)

	for _, it := range page.Items {
		if !r.accept(it) {
			continue
		}
		out := Item{Media: it, MixID: ref.ID, Group: group, Source: ref}
		if needsAlbum {
			album, err := r.albumContext(ctx, it.Album())
			if err != nil {
				return err
			}
			out.Album = album
		}
		if err := emit(out); err != nil {
			return err
		}
	}
	return nil
}

func numericID(ref resource.Reference) (int64, error) {
	id, err := strconv.ParseInt(ref.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("resolver: %s id %q is not numeric", ref.Kind, ref.ID)
	}
	return id, nil
}
