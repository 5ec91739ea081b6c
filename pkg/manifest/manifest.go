// Package manifest decodes the base64 stream manifests returned by the
// playback info endpoints into an ordered list of segment URLs.
package manifest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrManifest is wrapped by every decode failure.
var ErrManifest = errors.New("manifest")

// Manifest mime types as declared by the provider.
const (
	MimeBTS  = "application/vnd.tidal.bts"
	MimeDASH = "application/dash+xml"
	MimeEMU  = "application/vnd.tidal.emu"
)

// Format identifies the wire format of a manifest.
type Format int

const (
	FormatBTS Format = iota
	FormatDASH
	FormatHLS
)

func (f Format) String() string {
	switch f {
	case FormatBTS:
		return "bts-json"
	case FormatDASH:
		return "dash-xml"
	case FormatHLS:
		return "hls"
	}
	return "unknown"
}

// Stream is a decoded manifest. URLs are fetched and concatenated in order.
type Stream struct {
	Format Format
	URLs   []string
	Codec  string
}

// ParseFormat maps a declared mime type (or its short alias) to a Format.
func ParseFormat(mimeType string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case MimeBTS, "bts-json", "bts":
		return FormatBTS, nil
	case MimeDASH, "dash-xml", "dash":
		return FormatDASH, nil
	case MimeEMU, "hls":
		return FormatHLS, nil
	}
	return 0, fmt.Errorf("%w: unsupported mime type %q", ErrManifest, mimeType)
}

// Decode decodes an audio manifest envelope. HLS manifests need a playlist
// fetch and go through DecodeVideo instead.
func Decode(envelope, mimeType string) (*Stream, error) {
	format, err := ParseFormat(mimeType)
	if err != nil {
		return nil, err
	}

	raw, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatBTS:
		return decodeBTS(raw)
	case FormatDASH:
		return decodeDASH(raw)
	default:
		return nil, fmt.Errorf("%w: %s manifest requires a playlist fetch", ErrManifest, format)
	}
}

func decodeEnvelope(envelope string) ([]byte, error) {
	envelope = strings.TrimSpace(envelope)
	if envelope == "" {
		return nil, fmt.Errorf("%w: empty envelope", ErrManifest)
	}
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrManifest, err)
	}
	return raw, nil
}
