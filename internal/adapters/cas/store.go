// Package cas implements the directory artifact cache.
package cas

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

// Store implements ports.ArtifactCache with one file per rule key, fanned out by the
// first key byte.
type Store struct {
	dir string
}

var _ ports.ArtifactCache = (*Store)(nil)

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreCreateFailed.Error()), "dir", dir)
	}
	return &Store{dir: dir}, nil
}

// Name implements ports.ArtifactCache.
func (s *Store) Name() string { return "dir" }

// Dir returns the directory of the store.
func (s *Store) Dir() string { return s.dir }

// Get implements ports.ArtifactCache.
func (s *Store) Get(ctx context.Context, key domain.RuleKey) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	//nolint:gosec // Path is constructed from trusted directory and hex key
	data, err := os.ReadFile(s.filename(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}
	return data, true, nil
}

// Put implements ports.ArtifactCache. The entry is written to a temporary file and
// renamed, so readers never see a partial blob.
func (s *Store) Put(ctx context.Context, key domain.RuleKey, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filename := s.filename(key)
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	return nil
}

func (s *Store) filename(key domain.RuleKey) string {
	hexKey := key.String()
	return filepath.Join(s.dir, hexKey[:2], hexKey+".tar.zst")
}
