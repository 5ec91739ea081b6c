// Package application wires configuration into the collaborators of one run
// and drives references through the resolver and the download pool.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oskvr37/tiddl/internal/auth"
	"github.com/oskvr37/tiddl/internal/cache"
	"github.com/oskvr37/tiddl/internal/catalog"
	"github.com/oskvr37/tiddl/internal/config"
	"github.com/oskvr37/tiddl/internal/metadata"
	"github.com/oskvr37/tiddl/internal/naming"
	"github.com/oskvr37/tiddl/pkg/ffmpeg"
)

// Context holds everything a run needs. It replaces process wide state:
// each run builds its own and closes it when done.
type Context struct {
	Config  config.Config
	RunID   string
	Catalog *catalog.Client
	Cache   cache.Store
	FFmpeg  *ffmpeg.Runner
	// Covers is nil unless covers are embedded or saved.
	Covers *metadata.Covers

	Templates      *naming.Set
	M3UTemplates   map[naming.Kind]*naming.Template
	CoverTemplates map[naming.Kind]*naming.Template
	HTTP           *http.Client
	now            func() time.Time
}

// New builds the run context from conf.
func New(ctx context.Context, conf config.Config) (*Context, error) {
	a := &Context{
		Config: conf,
		RunID:  uuid.NewString(),
		HTTP:   &http.Client{Transport: newTransport()},
		now:    time.Now,
	}
	if err := a.parseTemplates(); err != nil {
		return nil, err
	}

	tokens, err := tokenSource(conf)
	if err != nil {
		return nil, err
	}

	store, err := OpenCacheWithRetry(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.Cache = store

	a.Catalog = catalog.NewClient(conf.APIURL, conf.CountryCode, tokens,
		catalog.WithHTTPClient(a.HTTP),
		catalog.WithCache(store),
		catalog.WithRateLimit(conf.RateLimit, max(int(conf.RateLimit), 1)),
	)

	a.FFmpeg = ffmpeg.NewRunner(conf.FFmpegPath)
	if !a.FFmpeg.Available() {
		slog.Warn("ffmpeg not found, hi-res tracks and videos will not be converted and files will not be tagged", "binary", conf.FFmpegPath)
	}

	if conf.MetadataCover || conf.CoverSave {
		covers, err := metadata.NewCovers(a.HTTP, conf.CoverSize)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.Covers = covers
	}

	return a, nil
}

// newTransport bounds dialing, the TLS handshake and the wait for response
// headers. Bodies are only bounded by the request context, so a large
// segment or cover keeps streaming as long as bytes arrive.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = 10 * time.Second
	t.ResponseHeaderTimeout = time.Minute
	return t
}

func tokenSource(conf config.Config) (auth.TokenSource, error) {
	if conf.RefreshToken == "" {
		return auth.Static(conf.Token), nil
	}
	id, secret, err := auth.Credentials(conf.ClientCredentials)
	if err != nil {
		return nil, err
	}
	return auth.NewRefresher(auth.RefresherConfig{
		AuthURL:      conf.AuthURL,
		ClientID:     id,
		ClientSecret: secret,
		AccessToken:  conf.Token,
		RefreshToken: conf.RefreshToken,
	}), nil
}

func (a *Context) parseTemplates() error {
	conf := a.Config
	set, err := naming.NewSet(conf.TemplateDefault, map[naming.Kind]string{
		naming.KindTrack:    conf.TemplateTrack,
		naming.KindVideo:    conf.TemplateVideo,
		naming.KindAlbum:    conf.TemplateAlbum,
		naming.KindPlaylist: conf.TemplatePlaylist,
		naming.KindMix:      conf.TemplateMix,
	})
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	a.Templates = set

	var errs []error
	parse := func(kind naming.Kind, raw string) *naming.Template {
		if raw == "" {
			return nil
		}
		t, err := naming.Parse(kind, raw)
		errs = append(errs, err)
		return t
	}
	a.M3UTemplates = map[naming.Kind]*naming.Template{
		naming.KindAlbum:    parse(naming.KindM3U, conf.M3UTemplateAlbum),
		naming.KindPlaylist: parse(naming.KindM3U, conf.M3UTemplatePlaylist),
		naming.KindMix:      parse(naming.KindM3U, conf.M3UTemplateMix),
	}
	a.CoverTemplates = map[naming.Kind]*naming.Template{
		naming.KindTrack:    parse(naming.KindCover, conf.CoverTemplateTrack),
		naming.KindAlbum:    parse(naming.KindCover, conf.CoverTemplateAlbum),
		naming.KindPlaylist: parse(naming.KindCover, conf.CoverTemplatePlaylist),
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	return nil
}

// Close releases the cache and temporary cover files.
func (a *Context) Close() error {
	var errs []error
	if a.Covers != nil {
		errs = append(errs, a.Covers.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	return errors.Join(errs...)
}
