// Package media resolves media item sources into decoded images.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sunshineplan/imgconv"

	"moodboard/internal/logging"
)

// MaxSourceBytes caps how much is read from any single source.
const MaxSourceBytes = 64 << 20

var (
	// ErrUnsupported is returned for sources that are not still images.
	ErrUnsupported = errors.New("unsupported media type")
	// ErrTimeout is returned when a load exceeds the configured timeout.
	ErrTimeout = errors.New("image load timed out")
)

// Options configures a Loader.
type Options struct {
	// BaseDir resolves relative file paths. Empty means the working directory.
	BaseDir   string
	Timeout   time.Duration
	CacheSize int
	Client    *http.Client
	Logger    *slog.Logger
}

// Loader fetches and decodes images. It is safe for concurrent use.
type Loader struct {
	baseDir string
	timeout time.Duration
	client  *http.Client
	cache   *lru.Cache[string, image.Image]
	logger  *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(opts Options) (*Loader, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	cache, err := lru.New[string, image.Image](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	return &Loader{
		baseDir: opts.BaseDir,
		timeout: opts.Timeout,
		client:  opts.Client,
		cache:   cache,
		logger:  logging.WithComponent(opts.Logger, "media"),
	}, nil
}

type loadResult struct {
	img image.Image
	err error
}

// Load returns the decoded image for src. It fails with ErrTimeout when the
// fetch and decode together take longer than the loader timeout.
func (l *Loader) Load(ctx context.Context, src string) (image.Image, error) {
	if img, ok := l.cache.Get(src); ok {
		return img, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	done := make(chan loadResult, 1)
	go func() {
		img, err := l.fetchAndDecode(ctx, src)
		done <- loadResult{img, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			l.logger.Warn("image load timed out", "src", logging.SanitizeSrc(src), "timeout", l.timeout)
			return nil, fmt.Errorf("%w after %s", ErrTimeout, l.timeout)
		}
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		l.cache.Add(src, res.img)
		return res.img, nil
	}
}

func (l *Loader) fetchAndDecode(ctx context.Context, src string) (image.Image, error) {
	data, err := l.read(ctx, src)
	if err != nil {
		return nil, err
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mt.String())
	}
	img, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", mt.String(), err)
	}
	return img, nil
}

func (l *Loader) read(ctx context.Context, src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return nil, errors.New("empty media source")
	case strings.HasPrefix(src, "data:"):
		return decodeDataURL(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return l.readHTTP(ctx, src)
	case strings.HasPrefix(src, "file://"):
		u, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("invalid file URL: %w", err)
		}
		return readFile(u.Path)
	default:
		path := src
		if !filepath.IsAbs(path) && l.baseDir != "" {
			path = filepath.Join(l.baseDir, path)
		}
		return readFile(path)
	}
}

func (l *Loader) readHTTP(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, MaxSourceBytes))
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxSourceBytes))
}

// decodeDataURL decodes data:[<mediatype>][;base64],<payload>.
func decodeDataURL(src string) ([]byte, error) {
	head, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URL")
	}
	if strings.HasSuffix(head, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("malformed base64 data URL: %w", err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed data URL: %w", err)
	}
	return []byte(data), nil
}
