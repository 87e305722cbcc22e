package metrics

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the graft node of the Prometheus metrics.
const NodeID graft.ID = "adapter.metrics"

func init() {
	graft.Register(graft.Node[*Prometheus]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Prometheus, error) {
			return New()
		},
	})
}

