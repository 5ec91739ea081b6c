// Package quality maps user facing quality tiers to provider qualities and
// derives file extensions from what the provider actually granted.
package quality

import (
	"fmt"
	"slices"
	"strings"

	"github.com/oskvr37/tiddl/pkg/manifest"
)

// Tier is the user facing audio quality.
type Tier string

const (
	TierLow    Tier = "low"
	TierNormal Tier = "normal"
	TierHigh   Tier = "high"
	TierMax    Tier = "max"
)

// TrackQuality is the provider's audio quality enum.
type TrackQuality string

const (
	TrackLow           TrackQuality = "LOW"
	TrackHigh          TrackQuality = "HIGH"
	TrackLossless      TrackQuality = "LOSSLESS"
	TrackHiResLossless TrackQuality = "HI_RES_LOSSLESS"
)

// VideoTier is the user facing video quality.
type VideoTier string

const (
	VideoSD  VideoTier = "sd"
	VideoHD  VideoTier = "hd"
	VideoFHD VideoTier = "fhd"
)

// VideoQuality is the provider's video quality enum.
type VideoQuality string

const (
	VideoLow    VideoQuality = "LOW"
	VideoMedium VideoQuality = "MEDIUM"
	VideoHigh   VideoQuality = "HIGH"
)

const (
	// VideoExtension is the final container of a remuxed video.
	VideoExtension = ".mp4"
	// SegmentExtension is the container HLS video segments are delivered in.
	SegmentExtension = ".ts"
)

var trackTable = map[Tier]TrackQuality{
	TierLow:    TrackLow,
	TierNormal: TrackHigh,
	TierHigh:   TrackLossless,
	TierMax:    TrackHiResLossless,
}

var videoTable = map[VideoTier]VideoQuality{
	VideoSD:  VideoLow,
	VideoHD:  VideoMedium,
	VideoFHD: VideoHigh,
}

// Tiers lists every audio tier in ascending order.
func Tiers() []Tier { return []Tier{TierLow, TierNormal, TierHigh, TierMax} }

// VideoTiers lists every video tier in ascending order.
func VideoTiers() []VideoTier { return []VideoTier{VideoSD, VideoHD, VideoFHD} }

// ParseTier validates a user supplied audio tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := trackTable[t]; !ok {
		return "", fmt.Errorf("unknown track quality %q", s)
	}
	return t, nil
}

// ParseVideoTier validates a user supplied video tier.
func ParseVideoTier(s string) (VideoTier, error) {
	t := VideoTier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := videoTable[t]; !ok {
		return "", fmt.Errorf("unknown video quality %q", s)
	}
	return t, nil
}

// Negotiate returns the provider quality to request for t.
func (t Tier) Negotiate() TrackQuality { return trackTable[t] }

// Negotiate returns the provider quality to request for t.
func (t VideoTier) Negotiate() VideoQuality { return videoTable[t] }

func (q TrackQuality) lossless() bool {
	return q == TrackLossless || q == TrackHiResLossless
}

// NeedsExtraction reports whether a stream granted at q arrives as flac
// wrapped in an mp4 container.
func NeedsExtraction(granted TrackQuality) bool {
	return granted == TrackHiResLossless
}

// Extension returns the download extension for codec at the granted quality.
// An unrecognized codec is a manifest error.
func Extension(codec string, granted TrackQuality) (string, error) {
	c := strings.ToLower(strings.TrimSpace(codec))
	switch {
	case c == "flac":
		if NeedsExtraction(granted) {
			return ".m4a", nil
		}
		return ".flac", nil
	case strings.HasPrefix(c, "mp4"):
		return ".m4a", nil
	}
	return "", fmt.Errorf("%w: unknown codec %q", manifest.ErrManifest, codec)
}

// PredictExtension guesses the final extension of a track before any stream
// call, from the track's best available quality and the requested one.
func PredictExtension(bestAvailable, requested TrackQuality) string {
	if requested.lossless() && bestAvailable.lossless() {
		return ".flac"
	}
	return ".m4a"
}

// PredictLabel is the quality label shown in file names before the stream
// call. A max request on a track without a hi-res tag resolves to high.
func PredictLabel(tier Tier, tags []string) string {
	if tier == TierMax && !slices.Contains(tags, "HIRES_LOSSLESS") {
		tier = TierHigh
	}
	return strings.ToUpper(string(tier))
}

// Describe renders q for logs.
func (q TrackQuality) Describe(bitDepth, sampleRate int) string {
	switch q {
	case TrackLow:
		return "96 kbps"
	case TrackHigh:
		return "320 kbps"
	}
	if bitDepth > 0 && sampleRate > 0 {
		return fmt.Sprintf("%d-bit, %g kHz", bitDepth, float64(sampleRate)/1000)
	}
	return string(q)
}

// Describe renders q for logs.
func (q VideoQuality) Describe() string {
	switch q {
	case VideoLow:
		return "360p"
	case VideoMedium:
		return "720p"
	case VideoHigh:
		return "1080p"
	}
	return string(q)
}
