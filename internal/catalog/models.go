package catalog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/oskvr37/tiddl/pkg/utils/markdown"
)

// Artist roles.
const (
	RoleMain     = "MAIN"
	RoleFeatured = "FEATURED"
)

type Artist struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Picture string `json:"picture"`
}

// AlbumRef is the short album record embedded in tracks and videos.
type AlbumRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Cover string `json:"cover"`
}

type MediaMetadata struct {
	Tags []string `json:"tags"`
}

type Track struct {
	ID             int64         `json:"id"`
	Title          string        `json:"title"`
	Duration       int           `json:"duration"`
	ReplayGain     float64       `json:"replayGain"`
	Peak           float64       `json:"peak"`
	AllowStreaming bool          `json:"allowStreaming"`
	StreamReady    bool          `json:"streamReady"`
	TrackNumber    int           `json:"trackNumber"`
	VolumeNumber   int           `json:"volumeNumber"`
	Version        string        `json:"version"`
	Copyright      string        `json:"copyright"`
	BPM            int           `json:"bpm"`
	URL            string        `json:"url"`
	ISRC           string        `json:"isrc"`
	Explicit       bool          `json:"explicit"`
	AudioQuality   string        `json:"audioQuality"`
	MediaMetadata  MediaMetadata `json:"mediaMetadata"`
	Artist         *Artist       `json:"artist"`
	Artists        []Artist      `json:"artists"`
	Album          *AlbumRef     `json:"album"`
}

type Video struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Duration       int       `json:"duration"`
	AllowStreaming bool      `json:"allowStreaming"`
	StreamReady    bool      `json:"streamReady"`
	TrackNumber    int       `json:"trackNumber"`
	VolumeNumber   int       `json:"volumeNumber"`
	Quality        string    `json:"quality"`
	Explicit       bool      `json:"explicit"`
	ImageID        string    `json:"imageId"`
	ReleaseDate    string    `json:"releaseDate"`
	Artist         *Artist   `json:"artist"`
	Artists        []Artist  `json:"artists"`
	Album          *AlbumRef `json:"album"`
}

type Album struct {
	ID              int64         `json:"id"`
	Title           string        `json:"title"`
	Duration        int           `json:"duration"`
	AllowStreaming  bool          `json:"allowStreaming"`
	NumberOfTracks  int           `json:"numberOfTracks"`
	NumberOfVideos  int           `json:"numberOfVideos"`
	NumberOfVolumes int           `json:"numberOfVolumes"`
	ReleaseDate     string        `json:"releaseDate"`
	Copyright       string        `json:"copyright"`
	Type            string        `json:"type"`
	Version         string        `json:"version"`
	URL             string        `json:"url"`
	Cover           string        `json:"cover"`
	Explicit        bool          `json:"explicit"`
	UPC             string        `json:"upc"`
	AudioQuality    string        `json:"audioQuality"`
	MediaMetadata   MediaMetadata `json:"mediaMetadata"`
	Artist          *Artist       `json:"artist"`
	Artists         []Artist      `json:"artists"`
}

type Playlist struct {
	UUID           string `json:"uuid"`
	Title          string `json:"title"`
	NumberOfTracks int    `json:"numberOfTracks"`
	NumberOfVideos int    `json:"numberOfVideos"`
	Description    string `json:"description"`
	Duration       int    `json:"duration"`
	Created        string `json:"created"`
	LastUpdated    string `json:"lastUpdated"`
	Type           string `json:"type"`
	PublicPlaylist bool   `json:"publicPlaylist"`
	URL            string `json:"url"`
	Image          string `json:"image"`
	SquareImage    string `json:"squareImage"`
}

type ArtistProfile struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Picture string `json:"picture"`
}

type Contributor struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// Credit groups the contributors of one role, e.g. "Producer".
type Credit struct {
	Type         string        `json:"type"`
	Contributors []Contributor `json:"contributors"`
}

type Lyrics struct {
	TrackID        int64  `json:"trackId"`
	Lyrics         string `json:"lyrics"`
	Subtitles      string `json:"subtitles"`
	LyricsProvider string `json:"lyricsProvider"`
	IsRightToLeft  bool   `json:"isRightToLeft"`
}

// Text prefers time synced subtitles over plain lyrics.
func (l *Lyrics) Text() string {
	if l == nil {
		return ""
	}
	if strings.TrimSpace(l.Subtitles) != "" {
		return l.Subtitles
	}
	return l.Lyrics
}

// AlbumReview is editorial text about an album. Text carries the
// provider's link markup.
type AlbumReview struct {
	Source      string            `json:"source"`
	LastUpdated string            `json:"lastUpdated"`
	Summary     string            `json:"summary"`
	Text        markdown.Markdown `json:"text"`
}

type Session struct {
	SessionID   string `json:"sessionId"`
	UserID      int64  `json:"userId"`
	CountryCode string `json:"countryCode"`
}

type TrackStream struct {
	TrackID           int64  `json:"trackId"`
	AssetPresentation string `json:"assetPresentation"`
	AudioMode         string `json:"audioMode"`
	AudioQuality      string `json:"audioQuality"`
	ManifestMimeType  string `json:"manifestMimeType"`
	ManifestHash      string `json:"manifestHash"`
	Manifest          string `json:"manifest"`
	BitDepth          int    `json:"bitDepth"`
	SampleRate        int    `json:"sampleRate"`
}

type VideoStream struct {
	VideoID           int64  `json:"videoId"`
	StreamType        string `json:"streamType"`
	AssetPresentation string `json:"assetPresentation"`
	VideoQuality      string `json:"videoQuality"`
	ManifestMimeType  string `json:"manifestMimeType"`
	ManifestHash      string `json:"manifestHash"`
	Manifest          string `json:"manifest"`
}

// Page is one response of a paginated listing.
type Page[T any] struct {
	Limit              int `json:"limit"`
	Offset             int `json:"offset"`
	TotalNumberOfItems int `json:"totalNumberOfItems"`
	Items              []T `json:"items"`
}

// ItemKind tags the variant held by an Item.
type ItemKind int

const (
	ItemUnknown ItemKind = iota
	ItemTrack
	ItemVideo
)

func (k ItemKind) String() string {
	switch k {
	case ItemTrack:
		return "track"
	case ItemVideo:
		return "video"
	}
	return "unknown"
}

// Item is a downloadable track or video. Exactly one of Track and Video is
// set, matching Kind.
type Item struct {
	Kind  ItemKind
	Track *Track
	Video *Video

	// Credits are present on album credit listings.
	Credits []Credit
	// Index is the 0-based playlist position when listed from a playlist.
	Index int
}

// TrackItem wraps a track.
func TrackItem(t *Track) Item { return Item{Kind: ItemTrack, Track: t} }

// VideoItem wraps a video.
func VideoItem(v *Video) Item { return Item{Kind: ItemVideo, Video: v} }

type rawItem struct {
	Type    string          `json:"type"`
	Item    json.RawMessage `json:"item"`
	Credits []Credit        `json:"credits"`
}

type playlistFields struct {
	Index int `json:"index"`
}

// UnmarshalJSON decodes the {"item": ..., "type": ...} listing envelope.
// Unknown types decode to ItemUnknown and are skipped by callers.
func (i *Item) UnmarshalJSON(b []byte) error {
	var raw rawItem
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*i = Item{Credits: raw.Credits}

	switch strings.ToLower(raw.Type) {
	case "track":
		var t Track
		if err := json.Unmarshal(raw.Item, &t); err != nil {
			return fmt.Errorf("track item: %w", err)
		}
		i.Kind, i.Track = ItemTrack, &t
	case "video":
		var v Video
		if err := json.Unmarshal(raw.Item, &v); err != nil {
			return fmt.Errorf("video item: %w", err)
		}
		i.Kind, i.Video = ItemVideo, &v
	default:
		return nil
	}

	var pf playlistFields
	if json.Unmarshal(raw.Item, &pf) == nil {
		i.Index = pf.Index
	}
	return nil
}

func (i Item) ID() int64 {
	switch i.Kind {
	case ItemTrack:
		return i.Track.ID
	case ItemVideo:
		return i.Video.ID
	}
	return 0
}

func (i Item) Title() string {
	switch i.Kind {
	case ItemTrack:
		return i.Track.Title
	case ItemVideo:
		return i.Video.Title
	}
	return ""
}

func (i Item) Duration() int {
	switch i.Kind {
	case ItemTrack:
		return i.Track.Duration
	case ItemVideo:
		return i.Video.Duration
	}
	return 0
}

func (i Item) AllowStreaming() bool {
	switch i.Kind {
	case ItemTrack:
		return i.Track.AllowStreaming
	case ItemVideo:
		return i.Video.AllowStreaming
	}
	return false
}

func (i Item) Artists() []Artist {
	switch i.Kind {
	case ItemTrack:
		return i.Track.Artists
	case ItemVideo:
		return i.Video.Artists
	}
	return nil
}

func (i Item) Album() *AlbumRef {
	switch i.Kind {
	case ItemTrack:
		return i.Track.Album
	case ItemVideo:
		return i.Video.Album
	}
	return nil
}

// MainArtist returns the primary artist name.
func (i Item) MainArtist() string {
	switch i.Kind {
	case ItemTrack:
		if i.Track.Artist != nil {
			return i.Track.Artist.Name
		}
	case ItemVideo:
		if i.Video.Artist != nil {
			return i.Video.Artist.Name
		}
	}
	if names := ArtistNames(i.Artists(), RoleMain); len(names) > 0 {
		return names[0]
	}
	return ""
}

// ArtistNames returns the sorted names of artists with the given role.
func ArtistNames(artists []Artist, role string) []string {
	var names []string
	for _, a := range artists {
		if a.Type == role {
			names = append(names, a.Name)
		}
	}
	slices.Sort(names)
	return names
}
