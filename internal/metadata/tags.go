// Package metadata writes descriptive tags and cover art into downloaded
// files after they reach their final name.
package metadata

import (
	"slices"
	"strconv"
	"strings"

	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/internal/resolver"
)

// Tags is the set of tags written into one file. Empty fields are omitted.
type Tags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	TrackNumber int
	DiscNumber  int
	Date        string
	Copyright   string
	ISRC        string
	BPM         int
	Lyrics      string
	Comment     string
	Credits     []catalog.Credit

	// CoverPath is a local JPEG attached as front cover (audio only).
	CoverPath string
}

// Pairs returns the tags as ordered ffmpeg metadata keys and values.
func (t Tags) Pairs() [][2]string {
	pairs := [][2]string{
		{"title", t.Title},
		{"artist", t.Artist},
		{"album", t.Album},
		{"album_artist", t.AlbumArtist},
		{"track", itoa(t.TrackNumber)},
		{"disc", itoa(t.DiscNumber)},
		{"date", t.Date},
		{"copyright", t.Copyright},
		{"isrc", t.ISRC},
		{"bpm", itoa(t.BPM)},
		{"lyrics", t.Lyrics},
		{"comment", t.Comment},
	}
	for _, c := range t.Credits {
		names := make([]string, 0, len(c.Contributors))
		for _, p := range c.Contributors {
			names = append(names, p.Name)
		}
		pairs = append(pairs, [2]string{strings.ToLower(c.Type), strings.Join(names, "; ")})
	}
	out := pairs[:0]
	for _, p := range pairs {
		if p[1] != "" {
			out = append(out, p)
		}
	}
	return out
}

// ForItem builds the tags of a resolved item. lyrics and review are
// optional extras fetched by the caller.
func ForItem(it resolver.Item, lyrics, review string) Tags {
	switch it.Media.Kind {
	case catalog.ItemTrack:
		return trackTags(it, lyrics, review)
	case catalog.ItemVideo:
		return videoTags(it)
	}
	return Tags{}
}

func trackTags(it resolver.Item, lyrics, review string) Tags {
	t := it.Media.Track
	tags := Tags{
		Title:       t.Title,
		Artist:      joinArtists(t.Artists),
		TrackNumber: t.TrackNumber,
		DiscNumber:  t.VolumeNumber,
		Copyright:   t.Copyright,
		ISRC:        t.ISRC,
		BPM:         t.BPM,
		Lyrics:      lyrics,
		Comment:     review,
		Credits:     sortedCredits(it.Media.Credits),
	}
	if t.Version != "" {
		tags.Title = t.Title + " (" + t.Version + ")"
	}
	if t.Album != nil {
		tags.Album = t.Album.Title
	}
	if it.Album != nil {
		if it.Album.Artist != nil {
			tags.AlbumArtist = it.Album.Artist.Name
		}
		tags.Date = it.Album.ReleaseDate
	}
	return tags
}

func videoTags(it resolver.Item) Tags {
	v := it.Media.Video
	tags := Tags{
		Title:       v.Title,
		Artist:      joinArtists(v.Artists),
		TrackNumber: v.TrackNumber,
		DiscNumber:  v.VolumeNumber,
		Date:        v.ReleaseDate,
	}
	if v.Artist != nil {
		tags.AlbumArtist = v.Artist.Name
	}
	if v.Album != nil {
		tags.Album = v.Album.Title
	}
	return tags
}

func joinArtists(artists []catalog.Artist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, strings.TrimSpace(a.Name))
	}
	slices.Sort(names)
	return strings.Join(names, "; ")
}

// sortedCredits orders contributors by surname, taken as the last word of
// the name. The input is not modified.
func sortedCredits(credits []catalog.Credit) []catalog.Credit {
	out := make([]catalog.Credit, len(credits))
	for i, c := range credits {
		contributors := slices.Clone(c.Contributors)
		slices.SortStableFunc(contributors, func(a, b catalog.Contributor) int {
			return strings.Compare(surname(a.Name), surname(b.Name))
		})
		out[i] = catalog.Credit{Type: c.Type, Contributors: contributors}
	}
	return out
}

func surname(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
