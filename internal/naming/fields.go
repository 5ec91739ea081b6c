package naming

import (
	"strings"
	"time"

	"github.com/oskvr37/tiddl/internal/catalog"
)

type fieldType int

const (
	typeString fieldType = iota
	typeInt
	typeTime
)

type field struct {
	typ fieldType
	get func(d *Data) any
}

func str(f func(d *Data) string) field { return field{typ: typeString, get: func(d *Data) any { return f(d) }} }
func num(f func(d *Data) int) field { return field{typ: typeInt, get: func(d *Data) any { return f(d) }} }
func date(f func(d *Data) time.Time) field {
	return field{typ: typeTime, get: func(d *Data) any { return f(d) }}
}

func joinNames(artists []catalog.Artist, roles ...string) string {
	var names []string
	for _, role := range roles {
		names = append(names, catalog.ArtistNames(artists, role)...)
	}
	return strings.Join(names, ", ")
}

func trackField(d *Data, f func(t *catalog.Track) string) string {
	if d.Item.Kind != catalog.ItemTrack {
		return ""
	}
	return f(d.Item.Track)
}

var itemFields = map[string]field{
	"item.id":    str(func(d *Data) string { return itoa64(d.Item.ID()) }),
	"item.title": str(func(d *Data) string { return d.Item.Title() }),
	"item.title_version": str(func(d *Data) string {
		if v := trackField(d, func(t *catalog.Track) string { return t.Version }); v != "" {
			return d.Item.Title() + " (" + v + ")"
		}
		return d.Item.Title()
	}),
	"item.number": num(func(d *Data) int {
		switch d.Item.Kind {
		case catalog.ItemTrack:
			return d.Item.Track.TrackNumber
		case catalog.ItemVideo:
			return d.Item.Video.TrackNumber
		}
		return 0
	}),
	"item.volume": num(func(d *Data) int {
		switch d.Item.Kind {
		case catalog.ItemTrack:
			return d.Item.Track.VolumeNumber
		case catalog.ItemVideo:
			return d.Item.Video.VolumeNumber
		}
		return 0
	}),
	"item.version":   str(func(d *Data) string { return trackField(d, func(t *catalog.Track) string { return t.Version }) }),
	"item.copyright": str(func(d *Data) string { return trackField(d, func(t *catalog.Track) string { return t.Copyright }) }),
	"item.isrc":      str(func(d *Data) string { return trackField(d, func(t *catalog.Track) string { return t.ISRC }) }),
	"item.bpm": num(func(d *Data) int {
		if d.Item.Kind == catalog.ItemTrack {
			return d.Item.Track.BPM
		}
		return 0
	}),
	"item.quality": str(func(d *Data) string { return d.Quality }),
	"item.explicit": str(func(d *Data) string {
		switch {
		case d.Item.Kind == catalog.ItemTrack && d.Item.Track.Explicit,
			d.Item.Kind == catalog.ItemVideo && d.Item.Video.Explicit:
			return "E"
		}
		return ""
	}),
	"item.artist":                str(func(d *Data) string { return d.Item.MainArtist() }),
	"item.artists":               str(func(d *Data) string { return joinNames(d.Item.Artists(), catalog.RoleMain) }),
	"item.features":              str(func(d *Data) string { return joinNames(d.Item.Artists(), catalog.RoleFeatured) }),
	"item.artists_with_features": str(func(d *Data) string { return joinNames(d.Item.Artists(), catalog.RoleMain, catalog.RoleFeatured) }),
	"item.type":                  str(func(d *Data) string { return d.Item.Kind.String() }),
}

var albumFields = map[string]field{
	"album.id": str(func(d *Data) string {
		if d.Album == nil {
			return ""
		}
		return itoa64(d.Album.ID)
	}),
	"album.title": str(func(d *Data) string {
		if d.Album != nil {
			return d.Album.Title
		}
		if ref := d.Item.Album(); ref != nil {
			return ref.Title
		}
		return ""
	}),
	"album.artist": str(func(d *Data) string {
		if d.Album == nil || d.Album.Artist == nil {
			return ""
		}
		return d.Album.Artist.Name
	}),
	"album.artists": str(func(d *Data) string {
		if d.Album == nil {
			return ""
		}
		return joinNames(d.Album.Artists, catalog.RoleMain)
	}),
	"album.date": date(func(d *Data) time.Time {
		if d.Album == nil {
			return time.Time{}
		}
		return parseDate(d.Album.ReleaseDate)
	}),
	"album.year": num(func(d *Data) int {
		if d.Album == nil {
			return 0
		}
		return parseDate(d.Album.ReleaseDate).Year()
	}),
	"album.type": str(func(d *Data) string {
		if d.Album == nil {
			return ""
		}
		return d.Album.Type
	}),
}

var playlistFields = map[string]field{
	"playlist.uuid": str(func(d *Data) string {
		if d.Playlist == nil {
			return ""
		}
		return d.Playlist.UUID
	}),
	"playlist.title": str(func(d *Data) string {
		if d.Playlist == nil {
			return ""
		}
		return d.Playlist.Title
	}),
	"playlist.index": num(func(d *Data) int { return d.PlaylistIndex }),
	"playlist.created": date(func(d *Data) time.Time {
		if d.Playlist == nil {
			return time.Time{}
		}
		return parseDate(d.Playlist.Created)
	}),
	"playlist.updated": date(func(d *Data) time.Time {
		if d.Playlist == nil {
			return time.Time{}
		}
		return parseDate(d.Playlist.LastUpdated)
	}),
}

var commonFields = map[string]field{
	"now": date(func(d *Data) time.Time { return d.Now }),
}

var mixFields = map[string]field{
	"mix_id": str(func(d *Data) string { return d.MixID }),
}

// tables lists the field groups each template kind may reference.
var tables = map[Kind][]map[string]field{
	KindTrack:    {itemFields, albumFields, commonFields},
	KindVideo:    {itemFields, albumFields, commonFields},
	KindAlbum:    {itemFields, albumFields, commonFields},
	KindPlaylist: {itemFields, albumFields, playlistFields, commonFields},
	KindMix:      {itemFields, albumFields, mixFields, commonFields},
	KindCover:    {albumFields, playlistFields, commonFields},
	KindM3U:      {albumFields, playlistFields, mixFields, commonFields},
}

func lookup(kind Kind, name string) (field, bool) {
	for _, group := range tables[kind] {
		if f, ok := group[name]; ok {
			return f, true
		}
	}
	return field{}, false
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z0700",
}

func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
