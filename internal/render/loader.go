package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Kevjes/liberal-api/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

// ErrNotFound means the referenced asset does not exist.
var ErrNotFound = errors.New("image not found")

const downloadTimeout = 10 * time.Second

// ObjectStore is the part of storage.Storage the loader reads from.
type ObjectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	KeyFromURL(url string) (string, bool)
}

// ImageLoader resolves photo references and asset paths to decoded images.
type ImageLoader struct {
	store  ObjectStore
	client *http.Client
	logger *logrus.Logger
}

func NewImageLoader(store ObjectStore, logger *logrus.Logger) *ImageLoader {
	return &ImageLoader{
		store:  store,
		client: &http.Client{Timeout: downloadTimeout},
		logger: logger,
	}
}

// Load decodes the image behind ref. A ref may be a URL produced by the
// storage backend, any other http(s) URL, or a bare storage key.
func (l *ImageLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty image reference: %w", ErrNotFound)
	}
	if key, ok := l.store.KeyFromURL(ref); ok {
		return l.loadObject(ctx, key)
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return l.download(ctx, ref)
	}
	return l.loadObject(ctx, ref)
}

// LoadFile decodes an image from the local file system.
func (l *ImageLoader) LoadFile(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return img, nil
}

func (l *ImageLoader) loadObject(ctx context.Context, key string) (image.Image, error) {
	rc, err := l.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	defer rc.Close()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode object %s: %w", key, err)
	}
	return img, nil
}

func (l *ImageLoader) download(ctx context.Context, rawURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to download %s: status %d", rawURL, resp.StatusCode)
	}

	img, err := imaging.Decode(resp.Body, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", rawURL, err)
	}
	l.logger.Debugf("Downloaded image %s", rawURL)
	return img, nil
}
