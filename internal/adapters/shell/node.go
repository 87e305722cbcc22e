package shell

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/rig/internal/adapters/logger"
	"go.trai.ch/rig/internal/adapters/workers"
	"go.trai.ch/rig/internal/core/ports"
)

// NodeID is the unique identifier for the step executor Graft node.
const NodeID graft.ID = "adapter.executor"

func init() {
	graft.Register(graft.Node[ports.StepExecutor]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, workers.NodeID},
		Run: func(ctx context.Context) (ports.StepExecutor, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			pools, err := graft.Dep[*workers.Registry](ctx)
			if err != nil {
				return nil, err
			}
			return NewExecutor(log, pools), nil
		},
	})
}
