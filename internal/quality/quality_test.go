package quality

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/oskvr37/tiddl/pkg/manifest"
)

func TestNegotiate(t *testing.T) {
	require.Equal(t, TrackLow, TierLow.Negotiate())
	require.Equal(t, TrackHigh, TierNormal.Negotiate())
	require.Equal(t, TrackLossless, TierHigh.Negotiate())
	require.Equal(t, TrackHiResLossless, TierMax.Negotiate())

	require.Equal(t, VideoLow, VideoSD.Negotiate())
	require.Equal(t, VideoMedium, VideoHD.Negotiate())
	require.Equal(t, VideoHigh, VideoFHD.Negotiate())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" MAX ")
	require.NoError(t, err)
	require.Equal(t, TierMax, tier)

	_, err = ParseTier("ultra")
	require.Error(t, err)

	vt, err := ParseVideoTier("fhd")
	require.NoError(t, err)
	require.Equal(t, VideoFHD, vt)

	_, err = ParseVideoTier("4k")
	require.Error(t, err)
}

func TestExtension(t *testing.T) {
	tests := []struct {
		codec   string
		granted TrackQuality
		want    string
		wantErr bool
	}{
		{"flac", TrackLossless, ".flac", false},
		{"FLAC", TrackLossless, ".flac", false},
		{"flac", TrackHiResLossless, ".m4a", false},
		{"mp4a.40.2", TrackHigh, ".m4a", false},
		{"mp4a.40.5", TrackLow, ".m4a", false},
		{"ac4", TrackHigh, "", true},
		{"", TrackHigh, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.codec+"/"+string(tt.granted), func(t *testing.T) {
			got, err := Extension(tt.codec, tt.granted)
			if tt.wantErr {
				require.ErrorIs(t, err, manifest.ErrManifest)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPredictExtension(t *testing.T) {
	require.Equal(t, ".flac", PredictExtension(TrackHiResLossless, TrackLossless))
	require.Equal(t, ".flac", PredictExtension(TrackLossless, TrackHiResLossless))
	require.Equal(t, ".m4a", PredictExtension(TrackHigh, TrackHiResLossless))
	require.Equal(t, ".m4a", PredictExtension(TrackLossless, TrackHigh))
}

func TestPredictLabel(t *testing.T) {
	require.Equal(t, "HIGH", PredictLabel(TierMax, []string{"LOSSLESS"}))
	require.Equal(t, "MAX", PredictLabel(TierMax, []string{"LOSSLESS", "HIRES_LOSSLESS"}))
	require.Equal(t, "NORMAL", PredictLabel(TierNormal, nil))
}

func TestNeedsExtraction(t *testing.T) {
	require.True(t, NeedsExtraction(TrackHiResLossless))
	require.False(t, NeedsExtraction(TrackLossless))
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "320 kbps", TrackHigh.Describe(0, 0))
	require.Equal(t, "24-bit, 96 kHz", TrackHiResLossless.Describe(24, 96000))
	require.Equal(t, "16-bit, 44.1 kHz", TrackLossless.Describe(16, 44100))
	require.Equal(t, "1080p", VideoHigh.Describe())
}

// Property: negotiation is total over the tier set and stable across calls.
func TestNegotiateTotal(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("every tier maps to one stable provider quality", prop.ForAll(
		func(i int) bool {
			tier := Tiers()[i]
			first := tier.Negotiate()
			return first != "" && first == tier.Negotiate() && first == trackTable[tier]
		},
		gen.IntRange(0, len(Tiers())-1),
	))

	properties.TestingRun(t)
}
