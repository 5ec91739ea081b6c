package manifest

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

const dashDoc = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" profiles="urn:mpeg:dash:profile:isoff-main:2011" type="static">
  <Period id="0">
    <AdaptationSet id="0" contentType="audio" mimeType="audio/mp4">
      <Representation id="FLAC,44100,16" codecs="flac" bandwidth="1000000" audioSamplingRate="44100">
        <SegmentTemplate timescale="44100" initialization="https://sp.example/init.mp4" media="https://sp.example/seg-$Number$.mp4" startNumber="1">
          <SegmentTimeline>
            <S d="176128" r="2"/>
            <S d="90112"/>
          </SegmentTimeline>
        </SegmentTemplate>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestDecode_BTS(t *testing.T) {
	env := b64(`{"mimeType":"audio/flac","codecs":"flac","encryptionType":"NONE","urls":["https://a/1","https://a/2"]}`)

	s, err := Decode(env, MimeBTS)
	require.NoError(t, err)
	require.Equal(t, FormatBTS, s.Format)
	require.Equal(t, "flac", s.Codec)
	require.Equal(t, []string{"https://a/1", "https://a/2"}, s.URLs)

	s, err = Decode(env, "bts-json")
	require.NoError(t, err)
	require.Len(t, s.URLs, 2)
}

func TestDecode_BTSErrors(t *testing.T) {
	tests := []struct {
		name     string
		envelope string
	}{
		{"empty urls", b64(`{"codecs":"flac","urls":[]}`)},
		{"encrypted", b64(`{"codecs":"flac","encryptionType":"OLD_AES","urls":["x"]}`)},
		{"not json", b64(`<xml/>`)},
		{"not base64", "%%%"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.envelope, MimeBTS)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrManifest))
		})
	}
}

func TestDecode_DASH(t *testing.T) {
	s, err := Decode(b64(dashDoc), MimeDASH)
	require.NoError(t, err)
	require.Equal(t, FormatDASH, s.Format)
	require.Equal(t, "flac", s.Codec)

	// (1+2) + (1+0) = 4 segments, indices 0..4.
	require.Len(t, s.URLs, 5)
	require.Equal(t, "https://sp.example/seg-0.mp4", s.URLs[0])
	require.Equal(t, "https://sp.example/seg-4.mp4", s.URLs[4])
}

func TestDecode_DASHErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no representation", `<MPD><Period><AdaptationSet/></Period></MPD>`},
		{"no template", `<MPD><Period><AdaptationSet><Representation codecs="flac"/></AdaptationSet></Period></MPD>`},
		{"no media", `<MPD><Period><AdaptationSet><Representation codecs="flac"><SegmentTemplate><SegmentTimeline><S d="1"/></SegmentTimeline></SegmentTemplate></Representation></AdaptationSet></Period></MPD>`},
		{"no placeholder", `<MPD><Period><AdaptationSet><Representation codecs="flac"><SegmentTemplate media="x.mp4"><SegmentTimeline><S d="1"/></SegmentTimeline></SegmentTemplate></Representation></AdaptationSet></Period></MPD>`},
		{"no timeline", `<MPD><Period><AdaptationSet><Representation codecs="flac"><SegmentTemplate media="$Number$.mp4"/></Representation></AdaptationSet></Period></MPD>`},
		{"malformed", `<MPD><Period>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(b64(tt.doc), MimeDASH)
			require.ErrorIs(t, err, ErrManifest)
		})
	}
}

func TestDecode_UnknownMime(t *testing.T) {
	_, err := Decode(b64(`{}`), "audio/unknown")
	require.ErrorIs(t, err, ErrManifest)

	_, err = Decode(b64(`{}`), MimeEMU)
	require.ErrorIs(t, err, ErrManifest)
}

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=4000000,RESOLUTION=1920x1080
https://cdn.example/1080/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
https://cdn.example/360/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.000,
https://cdn.example/360/seg0.ts
#EXTINF:10.000,
seg1.ts
#EXTINF:4.000,
seg2.ts
#EXT-X-ENDLIST
`

func TestDecodeVideo_PicksLastVariant(t *testing.T) {
	var fetched []string
	fetcher := FetcherFunc(func(ctx context.Context, rawURL string) (io.ReadCloser, error) {
		fetched = append(fetched, rawURL)
		switch rawURL {
		case "https://cdn.example/master.m3u8":
			return io.NopCloser(strings.NewReader(masterPlaylist)), nil
		case "https://cdn.example/360/index.m3u8":
			return io.NopCloser(strings.NewReader(mediaPlaylist)), nil
		}
		return nil, errors.New("unexpected url " + rawURL)
	})

	env := b64(`{"mimeType":"application/vnd.apple.mpegurl","urls":["https://cdn.example/master.m3u8"]}`)
	s, err := DecodeVideo(context.Background(), fetcher, env)
	require.NoError(t, err)
	require.Equal(t, FormatHLS, s.Format)
	require.Equal(t, []string{"https://cdn.example/master.m3u8", "https://cdn.example/360/index.m3u8"}, fetched)
	require.Equal(t, []string{
		"https://cdn.example/360/seg0.ts",
		"https://cdn.example/360/seg1.ts",
		"https://cdn.example/360/seg2.ts",
	}, s.URLs)
}

func TestDecodeVideo_Errors(t *testing.T) {
	ctx := context.Background()
	serve := func(body string) Fetcher {
		return FetcherFunc(func(ctx context.Context, rawURL string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		})
	}

	_, err := DecodeVideo(ctx, serve(masterPlaylist), b64(`{"urls":[]}`))
	require.ErrorIs(t, err, ErrManifest)

	// A media playlist where a master was expected.
	_, err = DecodeVideo(ctx, serve(mediaPlaylist), b64(`{"urls":["https://cdn.example/master.m3u8"]}`))
	require.ErrorIs(t, err, ErrManifest)

	failing := FetcherFunc(func(ctx context.Context, rawURL string) (io.ReadCloser, error) {
		return nil, errors.New("boom")
	})
	_, err = DecodeVideo(ctx, failing, b64(`{"urls":["https://cdn.example/master.m3u8"]}`))
	require.Error(t, err)
}
