// Package storage defines where archive artifacts are written: documents,
// images and the catalog snapshot.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// BlobStore persists an object under a slash-separated path and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Store is a BlobStore that can also enumerate and read back what it holds.
type Store interface {
	BlobStore
	List(ctx context.Context, dir string) ([]string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Mirrored writes every object to a primary Store and copies it to a
// secondary BlobStore. Secondary failures are logged, never returned.
type Mirrored struct {
	primary   Store
	secondary BlobStore
	logger    *zap.Logger
}

// NewMirrored builds a Mirrored store. A nil secondary disables mirroring.
func NewMirrored(primary Store, secondary BlobStore, logger *zap.Logger) *Mirrored {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirrored{primary: primary, secondary: secondary, logger: logger}
}

// PutObject writes to the primary then the secondary.
func (m *Mirrored) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if m.secondary == nil {
		return m.primary.PutObject(ctx, path, contentType, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	uri, err := m.primary.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if mirrorURI, err := m.secondary.PutObject(ctx, path, contentType, bytes.NewReader(data)); err != nil {
		m.logger.Warn("Mirror upload failed", zap.String("path", path), zap.Error(err))
	} else {
		m.logger.Debug("Mirrored object", zap.String("uri", mirrorURI))
	}
	return uri, nil
}

// List delegates to the primary.
func (m *Mirrored) List(ctx context.Context, dir string) ([]string, error) {
	return m.primary.List(ctx, dir)
}

// GetObject delegates to the primary.
func (m *Mirrored) GetObject(ctx context.Context, path string) ([]byte, error) {
	return m.primary.GetObject(ctx, path)
}
