package ports

import "go.trai.ch/rig/internal/core/domain"

// FileHasher computes content hashes of rule inputs.
//
//go:generate mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type FileHasher interface {
	// HashPath hashes a file, or every file below a directory. Directory entries are
	// sorted by their relative path.
	HashPath(path string) ([]domain.PathHash, error)

	// Invalidate drops cached hashes for the given absolute paths and everything below them.
	Invalidate(paths []string)
}
