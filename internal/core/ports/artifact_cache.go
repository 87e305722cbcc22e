package ports

import (
	"context"

	"go.trai.ch/rig/internal/core/domain"
)

// ArtifactCache stores rule output archives keyed strictly by rule key.
//
//go:generate mockgen -source=artifact_cache.go -destination=mocks/mock_artifact_cache.go -package=mocks
type ArtifactCache interface {
	// Get returns the archive stored for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key domain.RuleKey) ([]byte, bool, error)

	// Put stores an archive for key, replacing any previous entry.
	Put(ctx context.Context, key domain.RuleKey, blob []byte) error

	// Name identifies the backend in logs and metrics.
	Name() string
}
