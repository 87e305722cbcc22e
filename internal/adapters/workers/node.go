package workers

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the graft node of the worker pool registry.
const NodeID graft.ID = "adapter.workers"

func init() {
	graft.Register(graft.Node[*Registry]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Registry, error) {
			return NewRegistry(), nil
		},
	})
}
