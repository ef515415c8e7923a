package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/progress"
)

// BlobStore writes an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// ArchiveSink writes a RunSummary per finished run to a BlobStore under
// <prefix>/YYYY/MM/DD/<run_id>.json.
type ArchiveSink struct {
	blobs  BlobStore
	prefix string
	logger *zap.Logger
}

// NewArchiveSink constructs an ArchiveSink. An empty prefix defaults to "runs".
func NewArchiveSink(blobs BlobStore, prefix string, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "runs"
	}
	return &ArchiveSink{blobs: blobs, prefix: prefix, logger: logger}
}

// Consume archives every terminal event in the batch. It keeps going after a
// failed write and returns the joined errors.
func (s *ArchiveSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		sum := NewRunSummary(evt)
		payload, err := json.Marshal(sum)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal summary: %w", err))
			continue
		}
		key := s.objectPath(evt)
		uri, err := s.blobs.PutObject(ctx, key, "application/json", bytes.NewReader(payload))
		if err != nil {
			errs = append(errs, fmt.Errorf("archive run %s: %w", sum.RunID, err))
			continue
		}
		s.logger.Info("run summary archived", zap.String("run_id", sum.RunID), zap.String("uri", uri))
	}
	return errors.Join(errs...)
}

func (s *ArchiveSink) objectPath(evt progress.Event) string {
	ts := evt.TS.UTC()
	return path.Join(s.prefix, ts.Format("2006"), ts.Format("01"), ts.Format("02"), evt.RunUUID().String()+".json")
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
