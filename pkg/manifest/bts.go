package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

type btsManifest struct {
	MimeType       string   `json:"mimeType"`
	Codecs         string   `json:"codecs"`
	EncryptionType string   `json:"encryptionType"`
	URLs           []string `json:"urls"`
}

func decodeBTS(raw []byte) (*Stream, error) {
	var m btsManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: bts json: %v", ErrManifest, err)
	}

	// Encrypted streams cannot be played back after download.
	if enc := strings.ToUpper(m.EncryptionType); enc != "" && enc != "NONE" {
		return nil, fmt.Errorf("%w: unsupported encryption %q", ErrManifest, m.EncryptionType)
	}
	if len(m.URLs) == 0 {
		return nil, fmt.Errorf("%w: bts manifest has no urls", ErrManifest)
	}

	return &Stream{
		Format: FormatBTS,
		URLs:   m.URLs,
		Codec:  m.Codecs,
	}, nil
}
