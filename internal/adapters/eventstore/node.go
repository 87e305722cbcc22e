package eventstore

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/rig/internal/core/ports"
)

// MemoryNodeID is the graft node of the in process event store.
const MemoryNodeID graft.ID = "adapter.eventstore.memory"

func init() {
	graft.Register(graft.Node[ports.EventStore]{
		ID:        MemoryNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.EventStore, error) {
			return NewMemoryStore(), nil
		},
	})
}
