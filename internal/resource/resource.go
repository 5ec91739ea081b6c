// Package resource parses user supplied references to catalog resources.
package resource

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind is the type of a catalog resource.
type Kind string

const (
	Track    Kind = "track"
	Video    Kind = "video"
	Album    Kind = "album"
	Playlist Kind = "playlist"
	Artist   Kind = "artist"
	Mix      Kind = "mix"
)

var kinds = map[Kind]bool{
	Track: true, Video: true, Album: true, Playlist: true, Artist: true, Mix: true,
}

// numeric reports whether ids of k must be decimal digits.
func (k Kind) numeric() bool {
	return k == Track || k == Video || k == Album || k == Artist
}

// Reference addresses one catalog resource. Identity is (Kind, ID).
type Reference struct {
	Kind Kind
	ID   string
}

// String returns the "kind/id" shorthand.
func (r Reference) String() string {
	return string(r.Kind) + "/" + r.ID
}

// URL returns the web player link for r.
func (r Reference) URL() string {
	return "https://listen.tidal.com/" + r.String()
}

// Known host aliases. Only these are accepted for full URLs.
var knownHosts = map[string]bool{
	"tidal.com":        true,
	"www.tidal.com":    true,
	"listen.tidal.com": true,
	"embed.tidal.com":  true,
}

// Parse accepts a web player URL (https://tidal.com/browse/album/123) or the
// shorthand "kind/id". The kind and id are the last two path segments; a
// trailing share suffix ("/u") is ignored.
func Parse(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, errors.New("missing resource")
	}

	path := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Reference{}, err
		}
		if host := normalizeHost(u.Host); !knownHosts[host] {
			return Reference{}, fmt.Errorf("unsupported host %q", host)
		}
		path = u.Path
	}

	segments := pathSegments(path)
	if n := len(segments); n > 2 && segments[n-1] == "u" {
		segments = segments[:n-1]
	}
	if len(segments) < 2 {
		return Reference{}, fmt.Errorf("invalid resource %q: want kind/id", raw)
	}

	kind := Kind(strings.ToLower(segments[len(segments)-2]))
	id := segments[len(segments)-1]

	if !kinds[kind] {
		return Reference{}, fmt.Errorf("invalid resource type: %s", kind)
	}
	if kind.numeric() && !isDigits(id) {
		return Reference{}, fmt.Errorf("invalid resource id: %s", id)
	}

	return Reference{Kind: kind, ID: id}, nil
}

// ParseAll parses every input and drops duplicates, keeping the first
// occurrence. Parse failures are collected rather than stopping early.
func ParseAll(inputs []string) ([]Reference, error) {
	seen := make(map[Reference]bool, len(inputs))
	refs := make([]Reference, 0, len(inputs))
	var errs []error
	for _, in := range inputs {
		ref, err := Parse(in)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", in, err))
			continue
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs, errors.Join(errs...)
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeHost(hostport string) string {
	h := strings.TrimSpace(strings.ToLower(hostport))
	if h == "" {
		return ""
	}
	// url.URL.Host may include port.
	if strings.Contains(h, ":") {
		if parsed, err := url.Parse("//" + h); err == nil {
			if parsed.Hostname() != "" {
				h = parsed.Hostname()
			}
		}
	}
	return strings.TrimSuffix(h, ".")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
