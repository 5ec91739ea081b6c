package application

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/internal/download"
	"github.com/oskvr37/tiddl/internal/m3u"
	"github.com/oskvr37/tiddl/internal/metadata"
	"github.com/oskvr37/tiddl/internal/naming"
	"github.com/oskvr37/tiddl/internal/postprocess"
	"github.com/oskvr37/tiddl/internal/quality"
	"github.com/oskvr37/tiddl/internal/resolver"
	"github.com/oskvr37/tiddl/internal/resource"
)

// playlistCoverMinSize is the smallest size playlist images are saved at.
const playlistCoverMinSize = 1080

type pending struct {
	item   resolver.Item
	future *download.Future
}

// Run resolves every reference and downloads what it yields. Items of one
// reference are downloaded concurrently; the next reference starts once the
// previous one has finished so playlists and covers can be written.
func (a *Context) Run(ctx context.Context, refs []resource.Reference) *Summary {
	conf := a.Config
	summary := newSummary(a.now())

	options := []download.Option{download.WithPostProcessor(postprocess.New(a.FFmpeg))}
	if conf.MetadataEnable {
		options = append(options, download.WithTagger(metadata.NewFFmpegTagger(a.FFmpeg)))
	}
	if conf.MetadataCover && a.Covers != nil {
		options = append(options, download.WithCovers(a.Covers))
	}
	orch := download.New(a.Catalog, download.Options{
		Threads:         conf.Threads,
		TrackQuality:    quality.Tier(conf.TrackQuality),
		VideoQuality:    quality.VideoTier(conf.VideoQuality),
		DownloadPath:    conf.DownloadPath,
		ScanPath:        conf.ScanPath,
		SkipExisting:    conf.SkipExisting,
		Videos:          resolver.VideosFilter(conf.VideosFilter),
		RewriteMetadata: conf.RewriteMetadata,
		UpdateMtime:     conf.UpdateMtime,
		Lyrics:          conf.MetadataLyrics,
		Review:          conf.MetadataReview,
		Cover:           conf.MetadataCover,
		HTTPClient:      a.HTTP,
	}, options...)

	res := resolver.New(a.Catalog, resolver.Options{
		PageSize:        conf.PageSize,
		Singles:         resolver.SinglesFilter(conf.SinglesFilter),
		Videos:          resolver.VideosFilter(conf.VideosFilter),
		SkipErrors:      conf.SkipErrors,
		SkipUnavailable: conf.SkipUnavailable,
		NeedsAlbum:      a.needsAlbum,
	})

	for _, ref := range refs {
		if err := orch.Aborted(); err != nil {
			break
		}
		slog.Info("Resolving", "resource", ref.String())

		var items []pending
		err := res.Resolve(ctx, ref, func(it resolver.Item) error {
			if err := orch.Aborted(); err != nil {
				return err
			}
			task := download.Task{Item: it, Path: a.itemPath(it)}
			items = append(items, pending{item: it, future: orch.Submit(ctx, task)})
			return nil
		})

		results := make([]download.Result, len(items))
		for i, p := range items {
			results[i] = p.future.Wait()
			summary.add(results[i])
		}

		if err != nil && !errors.Is(err, download.ErrAborted) {
			slog.Error("Resolving failed", "resource", ref.String(), "error", err)
			summary.fail(ref, err)
			if catalog.IsFatal(err) || ctx.Err() != nil {
				summary.Aborted = err
				break
			}
			if !conf.SkipErrors {
				break
			}
		}

		a.finishGroups(ctx, ref, items, results)
	}

	orch.Close()
	if err := orch.Aborted(); err != nil && summary.Aborted == nil {
		summary.Aborted = err
	}
	summary.finish(a.now(), orch.Stats(), conf.SkipErrors)
	return summary
}

// templateKind picks the file name template for an item from the listing it
// came from.
func templateKind(it resolver.Item) naming.Kind {
	if it.Group != nil {
		switch it.Group.Kind {
		case resource.Album:
			return naming.KindAlbum
		case resource.Playlist:
			return naming.KindPlaylist
		case resource.Mix:
			return naming.KindMix
		}
	}
	if it.Media.Kind == catalog.ItemVideo {
		return naming.KindVideo
	}
	return naming.KindTrack
}

func (a *Context) itemPath(it resolver.Item) string {
	return a.Templates.For(templateKind(it)).Execute(naming.Data{
		Item:          it.Media,
		Album:         it.Album,
		Playlist:      it.Playlist,
		PlaylistIndex: it.PlaylistIndex,
		MixID:         it.MixID,
		Quality:       a.qualityLabel(it.Media),
		Now:           a.now(),
	})
}

func (a *Context) qualityLabel(media catalog.Item) string {
	if media.Kind == catalog.ItemVideo {
		return strings.ToUpper(a.Config.VideoQuality)
	}
	return quality.PredictLabel(quality.Tier(a.Config.TrackQuality), media.Track.MediaMetadata.Tags)
}

// needsAlbum fetches album records for listings whose template references
// album fields.
func (a *Context) needsAlbum(kind resource.Kind) bool {
	switch kind {
	case resource.Video:
		return a.Templates.For(naming.KindVideo).Uses("album.")
	case resource.Playlist:
		return a.Templates.For(naming.KindPlaylist).Uses("album.")
	case resource.Mix:
		return a.Templates.For(naming.KindMix).Uses("album.")
	}
	return true
}

func (a *Context) allowed(list []string, kind naming.Kind) bool {
	return slices.Contains(list, string(kind))
}

// finishGroups writes playlists and covers for the collections of one
// reference once all of their items are done.
func (a *Context) finishGroups(ctx context.Context, ref resource.Reference, items []pending, results []download.Result) {
	var order []*resolver.Group
	byGroup := map[*resolver.Group][]int{}
	for i, p := range items {
		g := p.item.Group
		if g == nil {
			continue
		}
		if _, ok := byGroup[g]; !ok {
			order = append(order, g)
		}
		byGroup[g] = append(byGroup[g], i)
	}

	for _, g := range order {
		kind := templateKind(items[byGroup[g][0]].item)
		data := naming.Data{Album: g.Album, Playlist: g.Playlist, MixID: g.MixID, Now: a.now()}

		if a.Config.M3USave && a.allowed(a.Config.M3UAllowed, kind) {
			a.writeM3U(kind, data, items, results, byGroup[g])
		}

		if a.Config.CoverSave && a.allowed(a.Config.CoverAllowed, kind) {
			switch {
			case g.Album != nil && g.Album.Cover != "":
				a.saveCover(ctx, kind, data, g.Album.Cover, a.Config.CoverSize)
			case g.Playlist != nil && g.Playlist.SquareImage != "":
				a.saveCover(ctx, kind, data, g.Playlist.SquareImage, max(a.Config.CoverSize, playlistCoverMinSize))
			}
		}
	}

	// Single tracks save the cover of their album.
	if ref.Kind == resource.Track && a.Config.CoverSave && a.allowed(a.Config.CoverAllowed, naming.KindTrack) {
		for _, p := range items {
			if album := p.item.Media.Album(); album != nil && album.Cover != "" {
				a.saveCover(ctx, naming.KindTrack, naming.Data{Item: p.item.Media, Album: p.item.Album, Now: a.now()}, album.Cover, a.Config.CoverSize)
			}
		}
	}
}

func (a *Context) writeM3U(kind naming.Kind, data naming.Data, items []pending, results []download.Result, idx []int) {
	tmpl := a.M3UTemplates[kind]
	if tmpl == nil {
		return
	}

	var entries []m3u.Entry
	for _, i := range idx {
		media, res := items[i].item.Media, results[i]
		if media.Kind != catalog.ItemTrack || res.Path == "" {
			continue
		}
		entries = append(entries, m3u.Entry{
			Path:     res.Path,
			Duration: media.Duration(),
			Artist:   media.MainArtist(),
			Title:    media.Title(),
		})
	}

	path, err := m3u.Write(filepath.Join(a.Config.DownloadPath, filepath.FromSlash(tmpl.Execute(data))), entries)
	switch {
	case errors.Is(err, m3u.ErrEmpty):
		slog.Warn("No tracks for playlist file", "path", path)
	case err != nil:
		slog.Error("Failed to write playlist file", "path", path, "error", err)
	default:
		slog.Info("Saved playlist file", "path", path, "tracks", len(entries))
	}
}

func (a *Context) saveCover(ctx context.Context, kind naming.Kind, data naming.Data, id string, size int) {
	tmpl := a.CoverTemplates[kind]
	if tmpl == nil || a.Covers == nil {
		return
	}
	dest := filepath.Join(a.Config.DownloadPath, filepath.FromSlash(tmpl.Execute(data))) + ".jpg"
	if err := a.Covers.Save(ctx, id, size, dest); err != nil {
		slog.Warn("Failed to save cover", "path", dest, "error", err)
	}
}
