package manifest

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

const numberPlaceholder = "$Number$"

type mpd struct {
	XMLName xml.Name `xml:"MPD"`
	Periods []struct {
		AdaptationSets []struct {
			Representations []representation `xml:"Representation"`
		} `xml:"AdaptationSet"`
	} `xml:"Period"`
}

type representation struct {
	ID              string           `xml:"id,attr"`
	Codecs          string           `xml:"codecs,attr"`
	SegmentTemplate *segmentTemplate `xml:"SegmentTemplate"`
}

type segmentTemplate struct {
	Media          string `xml:"media,attr"`
	Initialization string `xml:"initialization,attr"`
	Timeline       *struct {
		Segments []timelineSegment `xml:"S"`
	} `xml:"SegmentTimeline"`
}

type timelineSegment struct {
	Duration int64 `xml:"d,attr"`
	Repeat   int   `xml:"r,attr"`
}

func decodeDASH(raw []byte) (*Stream, error) {
	var doc mpd
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: dash xml: %v", ErrManifest, err)
	}

	rep := firstRepresentation(doc)
	if rep == nil {
		return nil, fmt.Errorf("%w: dash: no Period/AdaptationSet/Representation", ErrManifest)
	}
	tmpl := rep.SegmentTemplate
	if tmpl == nil {
		return nil, fmt.Errorf("%w: dash: representation has no SegmentTemplate", ErrManifest)
	}
	if tmpl.Media == "" {
		return nil, fmt.Errorf("%w: dash: SegmentTemplate has no media attribute", ErrManifest)
	}
	if !strings.Contains(tmpl.Media, numberPlaceholder) {
		return nil, fmt.Errorf("%w: dash: media template %q has no %s", ErrManifest, tmpl.Media, numberPlaceholder)
	}
	if tmpl.Timeline == nil || len(tmpl.Timeline.Segments) == 0 {
		return nil, fmt.Errorf("%w: dash: SegmentTimeline is empty", ErrManifest)
	}

	total := segmentCount(tmpl.Timeline.Segments)

	// Indices run 0..total inclusive. Index 0 is the initialization segment
	// on this provider, so total+1 URLs are emitted.
	urls := make([]string, 0, total+1)
	for i := 0; i <= total; i++ {
		urls = append(urls, strings.ReplaceAll(tmpl.Media, numberPlaceholder, strconv.Itoa(i)))
	}

	return &Stream{
		Format: FormatDASH,
		URLs:   urls,
		Codec:  rep.Codecs,
	}, nil
}

func firstRepresentation(doc mpd) *representation {
	for _, p := range doc.Periods {
		for _, as := range p.AdaptationSets {
			if len(as.Representations) > 0 {
				return &as.Representations[0]
			}
		}
	}
	return nil
}

// segmentCount sums 1+r over the timeline entries. A negative repeat count
// ("repeat until the next S") contributes the entry itself only.
func segmentCount(segments []timelineSegment) int {
	total := 0
	for _, s := range segments {
		total++
		if s.Repeat > 0 {
			total += s.Repeat
		}
	}
	return total
}
