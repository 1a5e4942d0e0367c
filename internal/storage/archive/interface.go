// Package archive stores immutable blobs, such as fetched bar snapshots,
// on a local filesystem or an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newthinker/crossbt/internal/core"
)

// ErrNotFound is returned by Read when nothing is stored under a key
var ErrNotFound = errors.New("archive: key not found")

// Storage defines the interface for blob storage backends
type Storage interface {
	// Write stores data at the given key, replacing any previous value
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves data from the given key, or ErrNotFound
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns all keys under the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given key
	Delete(ctx context.Context, key string) error

	// Exists checks if data exists at the given key
	Exists(ctx context.Context, key string) (bool, error)
}

// Config selects and configures a backend
type Config struct {
	Type string // "none", "localfs" or "s3"
	Path string
	S3   S3Config
}

// New builds the backend named by cfg.Type. It returns nil for "none" or "".
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "localfs":
		if cfg.Path == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive path is required for localfs"))
		}
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", cfg.Type))
	}
}

// cleanKey rejects keys that could escape the storage root
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", core.WrapError(core.ErrStorageFailed, fmt.Errorf("empty key"))
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", core.WrapError(core.ErrStorageFailed, fmt.Errorf("invalid key %q", key))
		}
	}
	return key, nil
}
