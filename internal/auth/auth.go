// Package auth supplies bearer tokens for catalog requests.
//
// The device-code login flow lives outside this module; this package only
// holds an access token and refreshes it with a stored refresh token.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotAuthenticated means no valid token is available and refreshing did
// not produce one.
var ErrNotAuthenticated = errors.New("auth: not authenticated")

const (
	defaultAuthURL = "https://auth.tidal.com/v1/oauth2"

	// Encoded "client_id;client_secret" of the public desktop application.
	defaultCredentials = "ZlgySnhkbW50WldLMGl4VDsxTm45QWZEQWp4cmdKRkpiS05XTGVBeUtHVkdtSU51WFBQTEhWWEF2eEFnPQ=="
)

// TokenSource returns a bearer token that is valid at the time of the call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by sources that can discard a token the server
// rejected so the next Token call refreshes.
type Invalidator interface {
	Invalidate()
}

// Static is a fixed access token.
type Static string

// Token implements TokenSource.
func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNotAuthenticated
	}
	return string(s), nil
}

// Credentials returns the client id and secret. raw is "id;secret"; empty
// selects the built-in application credentials.
func Credentials(raw string) (string, string, error) {
	if strings.TrimSpace(raw) == "" {
		b, err := base64.StdEncoding.DecodeString(defaultCredentials)
		if err != nil {
			return "", "", err
		}
		raw = string(b)
	}
	id, secret, ok := strings.Cut(raw, ";")
	if !ok || id == "" || secret == "" {
		return "", "", errors.New("auth: credentials must be \"client_id;client_secret\"")
	}
	return id, secret, nil
}

// Error is an error body returned by the token endpoint.
type Error struct {
	Status           int    `json:"status"`
	Code             string `json:"error"`
	SubStatus        int    `json:"sub_status"`
	ErrorDescription string `json:"error_description"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth: %s, %s, %d/%d", e.Code, e.ErrorDescription, e.Status, e.SubStatus)
}

// Unwrap reports rejected grants as ErrNotAuthenticated. Server side
// failures stay distinct.
func (e *Error) Unwrap() error {
	if e.Status == http.StatusBadRequest || e.Status == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	return nil
}

// Refresher holds an access token and trades the refresh token for a new
// one shortly before it expires.
type Refresher struct {
	conf        *oauth2.Config
	ctx         context.Context
	earlyExpiry time.Duration

	mu           sync.Mutex
	src          oauth2.TokenSource
	refreshToken string
	expiresAt    time.Time
}

// RefresherConfig configures NewRefresher.
type RefresherConfig struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	// ExpiresAt of AccessToken; zero forces a refresh on first use.
	ExpiresAt time.Time
	// EarlyExpiry refreshes this long before the reported expiry. Zero
	// means one minute.
	EarlyExpiry time.Duration
}

// NewRefresher creates a refreshing token source.
func NewRefresher(cfg RefresherConfig) *Refresher {
	authURL := strings.TrimRight(strings.TrimSpace(cfg.AuthURL), "/")
	if authURL == "" {
		authURL = defaultAuthURL
	}
	r := &Refresher{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  authURL + "/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		ctx:          context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 15 * time.Second}),
		earlyExpiry:  cfg.EarlyExpiry,
		refreshToken: cfg.RefreshToken,
		expiresAt:    cfg.ExpiresAt,
	}
	if r.earlyExpiry <= 0 {
		r.earlyExpiry = time.Minute
	}
	var initial *oauth2.Token
	if cfg.AccessToken != "" && !cfg.ExpiresAt.IsZero() {
		initial = &oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer", Expiry: cfg.ExpiresAt}
	}
	r.src = r.reuse(initial)
	return r
}

func (r *Refresher) reuse(t *oauth2.Token) oauth2.TokenSource {
	return oauth2.ReuseTokenSourceWithExpiry(t, refreshSource{r}, r.earlyExpiry)
}

// refreshSource performs one refresh grant per call with the latest refresh
// token. Caching is left to the reuse source wrapping it.
type refreshSource struct{ r *Refresher }

func (s refreshSource) Token() (*oauth2.Token, error) {
	s.r.mu.Lock()
	rt := s.r.refreshToken
	s.r.mu.Unlock()
	if rt == "" {
		return nil, ErrNotAuthenticated
	}
	tok, err := s.r.conf.TokenSource(s.r.ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		return nil, err
	}
	slog.Info("Refreshed access token", "expires_at", tok.Expiry.Format(time.RFC3339))
	return tok, nil
}

// Token implements TokenSource. Concurrent callers share one refresh.
func (r *Refresher) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	src := r.src
	r.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", refreshError(err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrNotAuthenticated)
	}

	r.mu.Lock()
	if tok.RefreshToken != "" {
		r.refreshToken = tok.RefreshToken
	}
	r.expiresAt = tok.Expiry
	r.mu.Unlock()
	return tok.AccessToken, nil
}

// Invalidate implements Invalidator.
func (r *Refresher) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiresAt = time.Time{}
	r.src = r.reuse(nil)
}

// ExpiresAt reports when the current access token expires.
func (r *Refresher) ExpiresAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expiresAt
}

func refreshError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		if errors.Is(err, ErrNotAuthenticated) {
			return err
		}
		return fmt.Errorf("auth: refresh: %w", err)
	}
	authErr := &Error{}
	if json.Unmarshal(re.Body, authErr) != nil || authErr.Code == "" {
		authErr.Code = re.ErrorCode
		if authErr.Code == "" {
			authErr.Code = strings.TrimSpace(string(re.Body))
		}
	}
	if re.Response != nil {
		authErr.Status = re.Response.StatusCode
	}
	return authErr
}
