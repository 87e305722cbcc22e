package config

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileSystem is the filesystem view of the Loader.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	// Glob returns the paths matching pattern.
	Glob(pattern string) ([]string, error)
	IsDir(path string) (bool, error)
}

// OSFS is the FileSystem of the host.
type OSFS struct{}

// NewOSFS creates a new OSFS instance.
func NewOSFS() *OSFS {
	return &OSFS{}
}

// Stat implements FileSystem.
func (o *OSFS) Stat(p string) (fs.FileInfo, error) {
	return os.Stat(p)
}

// ReadFile implements FileSystem.
func (o *OSFS) ReadFile(p string) ([]byte, error) {
	// #nosec G304 -- configuration paths are derived from the workspace root
	return os.ReadFile(p)
}

// Glob implements FileSystem.
func (o *OSFS) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// IsDir implements FileSystem.
func (o *OSFS) IsDir(p string) (bool, error) {
	info, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// MapFSAdapter mounts an fs.FS, typically an fstest.MapFS, at an absolute Root.
type MapFSAdapter struct {
	FS   fs.FS
	Root string
}

// NewMapFSAdapter creates a MapFSAdapter mounting fsys at root.
func NewMapFSAdapter(root string, fsys fs.FS) *MapFSAdapter {
	return &MapFSAdapter{FS: fsys, Root: filepath.Clean(root)}
}

// Stat implements FileSystem.
func (m *MapFSAdapter) Stat(p string) (fs.FileInfo, error) {
	return fs.Stat(m.FS, m.rel(p))
}

// ReadFile implements FileSystem.
func (m *MapFSAdapter) ReadFile(p string) ([]byte, error) {
	return fs.ReadFile(m.FS, m.rel(p))
}

// Glob implements FileSystem. Matches are returned as absolute paths.
func (m *MapFSAdapter) Glob(pattern string) ([]string, error) {
	matches, err := fs.Glob(m.FS, m.rel(pattern))
	if err != nil {
		return nil, err
	}
	for i, match := range matches {
		matches[i] = filepath.Join(m.Root, filepath.FromSlash(match))
	}
	return matches, nil
}

// IsDir implements FileSystem.
func (m *MapFSAdapter) IsDir(p string) (bool, error) {
	info, err := m.Stat(p)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// rel maps an absolute path below Root to an fs.FS name. Paths outside Root map to
// an invalid name so lookups fail with fs.ErrInvalid.
func (m *MapFSAdapter) rel(p string) string {
	if !filepath.IsAbs(p) {
		return path.Clean(filepath.ToSlash(p))
	}
	if p == m.Root {
		return "."
	}
	prefix := m.Root + string(filepath.Separator)
	if m.Root == string(filepath.Separator) {
		prefix = m.Root
	}
	if !strings.HasPrefix(p, prefix) {
		return "/" + filepath.ToSlash(p)
	}
	return filepath.ToSlash(strings.TrimPrefix(p, prefix))
}
