// Package gcs archives run summaries to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"cloud.google.com/go/storage"
)

// Config selects the bucket and how summary objects are written.
type Config struct {
	Bucket string
	// ChunkSize is passed to the object writer. Summaries are small, so 0
	// (a single request) is the usual choice.
	ChunkSize int
	// Metadata is attached to every object, e.g. the writing service.
	Metadata map[string]string
	// NoOverwrite makes a write fail if the object already exists.
	NoOverwrite bool
}

// BlobStore writes run summaries into one bucket.
type BlobStore struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	cfg.Metadata = maps.Clone(cfg.Metadata)
	return &BlobStore{client: client, cfg: cfg}, nil
}

// PutObject uploads r under key and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	obj := s.client.Bucket(s.cfg.Bucket).Object(key)
	if s.cfg.NoOverwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ChunkSize = s.cfg.ChunkSize
	w.ContentType = contentType
	if len(s.cfg.Metadata) > 0 {
		w.Metadata = maps.Clone(s.cfg.Metadata)
	}
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("upload %s: %w (close writer: %v)", key, err, closeErr)
		}
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, key), nil
}
