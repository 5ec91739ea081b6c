package markdown

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// Markdown wraps markdown source, as used by editorial text such as album
// reviews, and renders it to sanitized HTML or plain text.
type Markdown struct {
	// Source is the markdown source code.
	Source string
	// renderedHTML caches the HTML rendered from the markdown source.
	renderedHTML *template.HTML
	// renderedText caches the plain text rendered from the markdown source.
	renderedText *string
}

var (
	bfRenderer = blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.Safelink | blackfriday.NofollowLinks | blackfriday.HrefTargetBlank,
	})
	bfExtensions = blackfriday.NoIntraEmphasis | blackfriday.Autolink | blackfriday.Strikethrough | blackfriday.HardLineBreak
	policy       = bluemonday.UGCPolicy()
	strict       = bluemonday.StrictPolicy()

	// linkTagRe matches the provider's inline link markup, e.g.
	// [wimpLink artistId="123"]Miles Davis[/wimpLink].
	linkTagRe  = regexp.MustCompile(`\[/?wimpLink[^\]]*\]`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

func NewMarkdown(source string) *Markdown {
	return &Markdown{Source: source}
}

func (m *Markdown) render() []byte {
	src := linkTagRe.ReplaceAllString(m.Source, "")
	src = strings.ReplaceAll(src, "<br/>", "\n")
	src = strings.ReplaceAll(src, "<br />", "\n")
	return blackfriday.Run([]byte(src),
		blackfriday.WithRenderer(bfRenderer),
		blackfriday.WithExtensions(bfExtensions),
	)
}

// Render converts the Markdown Source into sanitized HTML.
func (m *Markdown) Render() template.HTML {
	if m.renderedHTML != nil {
		return *m.renderedHTML
	}
	if m.Source == "" {
		return ""
	}

	safe := policy.SanitizeBytes(m.render())
	h := template.HTML(bytes.TrimSpace(safe))
	m.renderedHTML = &h
	return h
}

// PlainText renders the source and strips every tag, leaving readable text
// suitable for a file comment.
func (m *Markdown) PlainText() string {
	if m.renderedText != nil {
		return *m.renderedText
	}
	if m.Source == "" {
		return ""
	}

	rendered := m.render()
	// Keep paragraph and line breaks as newlines once the tags are gone.
	rendered = bytes.ReplaceAll(rendered, []byte("<br>"), []byte("\n"))
	rendered = bytes.ReplaceAll(rendered, []byte("</p>"), []byte("</p>\n"))

	text := html.UnescapeString(string(strict.SanitizeBytes(rendered)))
	text = blankRunRe.ReplaceAllString(strings.TrimSpace(text), "\n\n")
	m.renderedText = &text
	return text
}

// UnmarshalJSON implements json.Unmarshaler so Markdown can be decoded from JSON.
func (m *Markdown) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Markdown.UnmarshalJSON: %w", err)
	}
	m.Source = s
	m.renderedHTML = nil
	m.renderedText = nil
	return nil
}

// MarshalJSON writes the source back out.
func (m Markdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Source)
}
