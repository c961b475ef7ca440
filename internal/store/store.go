// Package store provides durable blob storage for small state documents:
// a local file as the primary copy, optionally mirrored to object storage.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("blob not found")

// Store persists one opaque blob. Load returns ErrNotFound when nothing has
// been saved yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// FileStore keeps the blob in a single file with 0600 permissions.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("path must be absolute")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileStore) Save(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Mirrored writes through to a primary store and best-effort mirrors to a
// secondary one. Loads fall back to the mirror when the primary is empty and
// backfill the primary on success.
type Mirrored struct {
	primary Store
	mirror  Store
	log     zerolog.Logger
}

func Mirror(primary, mirror Store, log zerolog.Logger) *Mirrored {
	return &Mirrored{primary: primary, mirror: mirror, log: log.With().Str("component", "store").Logger()}
}

func (m *Mirrored) Load(ctx context.Context) ([]byte, error) {
	data, err := m.primary.Load(ctx)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	data, mirrorErr := m.mirror.Load(ctx)
	if mirrorErr != nil {
		if errors.Is(mirrorErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, mirrorErr
	}
	if backfillErr := m.primary.Save(ctx, data); backfillErr != nil {
		m.log.Warn().Err(backfillErr).Msg("failed to backfill primary store from mirror")
	}
	return data, nil
}

func (m *Mirrored) Save(ctx context.Context, data []byte) error {
	if err := m.primary.Save(ctx, data); err != nil {
		return err
	}
	if err := m.mirror.Save(ctx, data); err != nil {
		m.log.Warn().Err(err).Msg("failed to mirror blob to secondary store")
	}
	return nil
}
