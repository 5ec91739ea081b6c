// Package naming expands file name templates such as
// "{album.artist}/{album.title}/{item.number:02d} {item.title}".
//
// Each template kind has a closed table of fields. Unknown fields and bad
// format specs are rejected when the template is parsed, not when a file
// name is produced.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/pkg/utils/filename"
)

// Kind selects the field table a template is validated against.
type Kind string

const (
	KindTrack    Kind = "track"
	KindVideo    Kind = "video"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindMix      Kind = "mix"
	KindCover    Kind = "cover"
	KindM3U      Kind = "m3u"
)

// DefaultTemplate is used for any kind without its own template.
const DefaultTemplate = "{album.artist}/{album.title}/{item.title}"

// Data is everything a template can reference.
type Data struct {
	Item          catalog.Item
	Album         *catalog.Album
	Playlist      *catalog.Playlist
	PlaylistIndex int
	MixID         string
	// Quality is the label shown for {item.quality}.
	Quality string
	Now     time.Time
}

type token struct {
	literal string
	field   *field
	name    string
	spec    string
}

// Template is a parsed, validated template.
type Template struct {
	kind     Kind
	raw      string
	segments [][]token
}

var intSpecRe = regexp.MustCompile(`^(0?)(\d{1,2})d?$`)

// Parse validates raw against the field table of kind.
func Parse(kind Kind, raw string) (*Template, error) {
	if _, ok := tables[kind]; !ok {
		return nil, fmt.Errorf("naming: unknown template kind %q", kind)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("naming: empty %s template", kind)
	}

	t := &Template{kind: kind, raw: raw}
	for _, seg := range strings.Split(raw, "/") {
		tokens, err := parseSegment(kind, seg)
		if err != nil {
			return nil, fmt.Errorf("naming: %s template %q: %w", kind, raw, err)
		}
		t.segments = append(t.segments, tokens)
	}
	return t, nil
}

// MustParse is Parse for templates known to be valid.
func MustParse(kind Kind, raw string) *Template {
	t, err := Parse(kind, raw)
	if err != nil {
		panic(err)
	}
	return t
}

func parseSegment(kind Kind, seg string) ([]token, error) {
	var tokens []token
	var lit strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c == '{' && i+1 < len(seg) && seg[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(seg) && seg[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(seg[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed '{'")
			}
			expr := seg[i+1 : i+end]
			name, spec, _ := strings.Cut(expr, ":")
			name = strings.TrimSpace(name)
			f, ok := lookup(kind, name)
			if !ok {
				return nil, fmt.Errorf("unknown field %q", name)
			}
			if err := checkSpec(f, spec); err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			if lit.Len() > 0 {
				tokens = append(tokens, token{literal: lit.String()})
				lit.Reset()
			}
			tokens = append(tokens, token{field: &f, name: name, spec: spec})
			i += end
		case c == '}':
			return nil, fmt.Errorf("unmatched '}'")
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		tokens = append(tokens, token{literal: lit.String()})
	}
	return tokens, nil
}

func checkSpec(f field, spec string) error {
	if spec == "" {
		return nil
	}
	switch f.typ {
	case typeInt:
		if !intSpecRe.MatchString(spec) {
			return fmt.Errorf("bad integer format %q", spec)
		}
	case typeTime:
		if !strings.Contains(spec, "%") {
			return fmt.Errorf("bad date format %q", spec)
		}
	default:
		return fmt.Errorf("text fields take no format")
	}
	return nil
}

// String returns the template source.
func (t *Template) String() string { return t.raw }

// Uses reports whether the template references any field with prefix, e.g.
// "album." to decide whether the album must be fetched.
func (t *Template) Uses(prefix string) bool {
	for _, seg := range t.segments {
		for _, tok := range seg {
			if tok.field != nil && strings.HasPrefix(tok.name, prefix) {
				return true
			}
		}
	}
	return false
}

// Execute renders the template. Every segment is sanitized on its own and
// empty segments are dropped. The result has no extension.
func (t *Template) Execute(d Data) string {
	if d.Now.IsZero() {
		d.Now = time.Now()
	}
	parts := make([]string, 0, len(t.segments))
	for _, seg := range t.segments {
		var sb strings.Builder
		for _, tok := range seg {
			if tok.field == nil {
				sb.WriteString(tok.literal)
				continue
			}
			sb.WriteString(render(tok.field.get(&d), tok.spec))
		}
		if s := filename.Sanitize(sb.String(), 0); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

func render(v any, spec string) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		if m := intSpecRe.FindStringSubmatch(spec); m != nil {
			width, _ := strconv.Atoi(m[2])
			if m[1] == "0" {
				return fmt.Sprintf("%0*d", width, x)
			}
			return fmt.Sprintf("%*d", width, x)
		}
		return strconv.Itoa(x)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		if spec == "" {
			return x.Format("2006-01-02")
		}
		return strftime.Format(spec, x)
	}
	return fmt.Sprint(v)
}

func itoa64(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
