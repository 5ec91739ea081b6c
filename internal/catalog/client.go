// Package catalog is a typed client for the catalog REST API with a per
// endpoint response cache.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/oskvr37/tiddl/internal/auth"
	"github.com/oskvr37/tiddl/internal/cache"
)

const (
	DefaultBaseURL = "https://api.tidal.com/v1"

	defaultDecodeAttempts = 3
	defaultDecodeDelay    = time.Second
)

// Cache lifetimes per endpoint class.
const (
	// TTLCatalog covers tracks, albums, artists, videos and their listings.
	TTLCatalog = time.Hour
	// TTLNone is used for playlists, stream info and sessions.
	TTLNone time.Duration = 0
)

type Client struct {
	baseURL     string
	countryCode string
	http        *http.Client
	tokens      auth.TokenSource
	cache       cache.Store
	limiter     *rate.Limiter

	decodeAttempts int
	decodeDelay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache sets the response cache. The default caches nothing.
func WithCache(s cache.Store) Option {
	return func(c *Client) { c.cache = s }
}

// WithRateLimit caps outgoing requests per second. Zero disables the cap.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithDecodeRetry sets how often a 200 response with a malformed body is
// re-requested, and the fixed pause between attempts.
func WithDecodeRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.decodeAttempts = attempts
		c.decodeDelay = delay
	}
}

func NewClient(baseURL, countryCode string, tokens auth.TokenSource, opts ...Option) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &Client{
		baseURL:        baseURL,
		countryCode:    strings.ToUpper(strings.TrimSpace(countryCode)),
		http:           &http.Client{Transport: defaultTransport()},
		tokens:         tokens,
		cache:          cache.Nop{},
		decodeAttempts: defaultDecodeAttempts,
		decodeDelay:    defaultDecodeDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultTransport limits connection setup and the wait for headers. The
// request context bounds the rest.
func defaultTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = 10 * time.Second
	t.ResponseHeaderTimeout = 30 * time.Second
	return t
}

// get fetches path and decodes the JSON body into out. Responses are cached
// for ttl when ttl is positive.
func (c *Client) get(ctx context.Context, path string, params url.Values, ttl time.Duration, out any) error {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.countryCode != "" {
		q.Set("countryCode", c.countryCode)
	}
	u.RawQuery = q.Encode()
	key := u.String()

	if ttl > 0 {
		body, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("Cache read failed", "path", path, "error", err)
		} else if ok {
			if err := json.Unmarshal(body, out); err == nil {
				slog.Debug("Catalog request", "path", path, "cache", "hit")
				return nil
			}
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.decodeAttempts; attempt++ {
		body, err := c.do(ctx, path, key)
		if err != nil {
			return err
		}

		if err := json.Unmarshal(body, out); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransientDecode, err)
			slog.Warn("Malformed catalog response", "path", path, "attempt", attempt, "error", err)
			if attempt < c.decodeAttempts {
				if err := sleep(ctx, c.decodeDelay); err != nil {
					return err
				}
			}
			continue
		}

		slog.Debug("Catalog request", "path", path, "cache", "miss")
		if ttl > 0 {
			if err := c.cache.Set(ctx, key, body, ttl); err != nil {
				slog.Warn("Cache write failed", "path", path, "error", err)
			}
		}
		return nil
	}

	return &APIError{
		Status:      http.StatusOK,
		SubStatus:   SubStatusInvalidJSON,
		UserMessage: "response was not valid json",
		Path:        path,
		Err:         lastErr,
	}
}

// do performs one GET. A 401 is retried once with a fresh token when the
// token source can be invalidated.
func (c *Client) do(ctx context.Context, path, rawURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", path, err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: read body: %w", path, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			if inv, ok := c.tokens.(auth.Invalidator); ok {
				slog.Warn("Catalog rejected token, refreshing", "path", path)
				inv.Invalidate()
				continue
			}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, parseAPIError(path, resp.StatusCode, body)
		}
		return body, nil
	}
}

type apiErrorBody struct {
	Status      int             `json:"status"`
	SubStatus   json.RawMessage `json:"subStatus"`
	UserMessage string          `json:"userMessage"`
}

func parseAPIError(path string, status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Path: path}

	var b apiErrorBody
	if err := json.Unmarshal(body, &b); err != nil {
		apiErr.UserMessage = strings.TrimSpace(string(body))
		if len(apiErr.UserMessage) > 512 {
			apiErr.UserMessage = apiErr.UserMessage[:512]
		}
		return apiErr
	}
	apiErr.UserMessage = b.UserMessage
	// subStatus is usually a number but has been seen quoted.
	if sub := string(bytes.Trim(b.SubStatus, `"`)); sub != "" {
		if n, err := strconv.Atoi(sub); err == nil {
			apiErr.SubStatus = n
		}
	}
	return apiErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
