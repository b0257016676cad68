// Package storage keeps uploaded member photos on local disk or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Kevjes/liberal-api/internal/config"
	"github.com/google/uuid"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage stores objects under slash separated keys and serves them at public URLs.
type Storage interface {
	// Store writes content under key and returns its public URL.
	Store(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL maps a URL produced by Store back to its key.
	KeyFromURL(url string) (string, bool)
}

// New builds the backend selected by cfg.StorageType.
func New(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.StorageType {
	case "local":
		return NewLocalStorage(cfg.StaticFilesDir, cfg.DomainURL+"/static")
	case "s3":
		return NewS3Storage(ctx, S3Config{Bucket: cfg.S3Bucket, Region: cfg.S3Region})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.StorageType)
	}
}

// NewKey returns a fresh key in dir keeping the extension of filename.
func NewKey(dir, filename string) string {
	ext := strings.ToLower(path.Ext(sanitizeFilename(filename)))
	if ext == "" {
		ext = ".jpg"
	}
	return path.Join(dir, strings.ReplaceAll(uuid.New().String(), "-", "")+ext)
}

func keyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

func sanitizeFilename(filename string) string {
	r := strings.NewReplacer(
		"/", "_", "\\", "_", "..", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return r.Replace(filename)
}
