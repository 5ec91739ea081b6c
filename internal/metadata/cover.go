package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CoverBaseURL serves album and playlist artwork.
const CoverBaseURL = "https://resources.tidal.com/images"

// MaxCoverSize is the largest square size the image service returns.
const MaxCoverSize = 1280

// CoverURL returns the JPEG URL of image id at size x size pixels. Sizes are
// clamped to MaxCoverSize; zero selects it.
func CoverURL(id string, size int) string {
	return coverURL(CoverBaseURL, id, size)
}

func coverURL(base, id string, size int) string {
	if size <= 0 || size > MaxCoverSize {
		if size > MaxCoverSize {
			slog.Warn("Cover size above maximum, clamping", "requested", size, "max", MaxCoverSize)
		}
		size = MaxCoverSize
	}
	s := strconv.Itoa(size)
	return base + "/" + strings.ReplaceAll(id, "-", "/") + "/" + s + "x" + s + ".jpg"
}

// Covers downloads artwork once per image id and keeps it in a private
// directory for attaching to many files.
type Covers struct {
	baseURL string
	size    int
	client  *http.Client
	dir     string

	group singleflight.Group
	mu    sync.Mutex
	paths map[string]string
}

// NewCovers creates the cache directory under os.TempDir.
func NewCovers(client *http.Client, size int) (*Covers, error) {
	if client == nil {
		client = http.DefaultClient
	}
	dir, err := os.MkdirTemp("", "tiddl-covers-")
	if err != nil {
		return nil, fmt.Errorf("metadata: cover cache: %w", err)
	}
	return &Covers{
		baseURL: CoverBaseURL,
		size:    size,
		client:  client,
		dir:     dir,
		paths:   make(map[string]string),
	}, nil
}

// Path returns a local file holding image id, downloading it on first use.
// Concurrent callers for the same id share one request.
func (c *Covers) Path(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", errors.New("metadata: empty cover id")
	}
	c.mu.Lock()
	p, ok := c.paths[id]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		c.mu.Lock()
		p, ok := c.paths[id]
		c.mu.Unlock()
		if ok {
			return p, nil
		}
		dest := filepath.Join(c.dir, strings.ReplaceAll(id, "/", "_")+".jpg")
		if err := c.download(ctx, id, c.size, dest); err != nil {
			return "", err
		}
		c.mu.Lock()
		c.paths[id] = dest
		c.mu.Unlock()
		return dest, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Save writes image id at size next to a collection as dest. Existing files
// are left alone.
func (c *Covers) Save(ctx context.Context, id string, size int, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		slog.Debug("Cover exists", "path", dest)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("metadata: create cover directory: %w", err)
	}
	return c.download(ctx, id, size, dest)
}

func (c *Covers) download(ctx context.Context, id string, size int, dest string) error {
	url := coverURL(c.baseURL, id, size)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("metadata: cover request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("metadata: fetch cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metadata: fetch cover %s: status %d", url, resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("metadata: create cover file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		return errors.Join(fmt.Errorf("metadata: write cover: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("metadata: close cover: %w", err), os.Remove(tmp))
	}
	return os.Rename(tmp, dest)
}

// Close removes the cache directory.
func (c *Covers) Close() error {
	return os.RemoveAll(c.dir)
}
