package fs

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.FileHasher = (*FileHashCache)(nil)

type fileEntry struct {
	modTime int64
	size    int64
	hash    domain.ContentHash
}

// FileHashCache hashes file contents with xxhash and remembers the result until the
// file's modification time or size changes, or the path is invalidated.
type FileHashCache struct {
	walker *Walker

	mu      sync.RWMutex
	entries map[string]fileEntry
}

// NewFileHashCache creates a new FileHashCache.
func NewFileHashCache(walker *Walker) *FileHashCache {
	return &FileHashCache{
		walker:  walker,
		entries: make(map[string]fileEntry),
	}
}

// ComputeFileHash computes the XXHash of a file's content.
func ComputeFileHash(path string) (domain.ContentHash, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", path)
	}

	return domain.ContentHash(hasher.Sum64()), nil
}

// HashPath hashes a file, or every file below a directory sorted by relative path.
func (c *FileHashCache) HashPath(path string) ([]domain.PathHash, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to stat path"), "path", path)
	}

	if !info.IsDir() {
		h, err := c.hashFile(path, info)
		if err != nil {
			return nil, err
		}
		return []domain.PathHash{{Hash: h}}, nil
	}

	var hashes []domain.PathHash
	for filePath := range c.walker.WalkFiles(path, nil) {
		fileInfo, err := os.Stat(filePath)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to stat path"), "path", filePath)
		}
		h, err := c.hashFile(filePath, fileInfo)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(path, filePath)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to relativize path"), "path", filePath)
		}
		hashes = append(hashes, domain.PathHash{Rel: filepath.ToSlash(rel), Hash: h})
	}
	slices.SortFunc(hashes, func(a, b domain.PathHash) int { return strings.Compare(a.Rel, b.Rel) })
	if hashes == nil {
		hashes = []domain.PathHash{}
	}
	return hashes, nil
}

func (c *FileHashCache) hashFile(path string, info os.FileInfo) (domain.ContentHash, error) {
	modTime := info.ModTime().UnixNano()
	size := info.Size()

	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && entry.modTime == modTime && entry.size == size {
		return entry.hash, nil
	}

	h, err := ComputeFileHash(path)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[path] = fileEntry{modTime: modTime, size: size, hash: h}
	c.mu.Unlock()
	return h, nil
}

// Invalidate drops cached hashes for paths and everything below them.
func (c *FileHashCache) Invalidate(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range paths {
		p = filepath.Clean(p)
		delete(c.entries, p)
		prefix := p + string(filepath.Separator)
		for cached := range c.entries {
			if strings.HasPrefix(cached, prefix) {
				delete(c.entries, cached)
			}
		}
	}
}

// Len returns the number of cached file hashes.
func (c *FileHashCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
