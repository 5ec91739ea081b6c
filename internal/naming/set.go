package naming

import "errors"

// Set holds the download templates per resource kind. Kinds without their
// own template fall back to the default.
type Set struct {
	templates map[Kind]*Template
}

var downloadKinds = []Kind{KindTrack, KindVideo, KindAlbum, KindPlaylist, KindMix}

// NewSet parses every configured template. def must not be empty.
func NewSet(def string, overrides map[Kind]string) (*Set, error) {
	if def == "" {
		return nil, errors.New("naming: default template cannot be empty")
	}
	s := &Set{templates: make(map[Kind]*Template, len(downloadKinds))}
	var errs []error
	for _, kind := range downloadKinds {
		raw := overrides[kind]
		if raw == "" {
			raw = def
		}
		t, err := Parse(kind, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.templates[kind] = t
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

// For returns the template for kind.
func (s *Set) For(kind Kind) *Template {
	return s.templates[kind]
}
