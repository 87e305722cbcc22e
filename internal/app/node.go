package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/rig/internal/adapters/artifactcache"
	"go.trai.ch/rig/internal/adapters/config"
	"go.trai.ch/rig/internal/adapters/daemon"
	"go.trai.ch/rig/internal/adapters/eventstore"
	"go.trai.ch/rig/internal/adapters/fs"
	"go.trai.ch/rig/internal/adapters/linear"
	"go.trai.ch/rig/internal/adapters/logger"
	"go.trai.ch/rig/internal/adapters/metrics"
	"go.trai.ch/rig/internal/adapters/shell"
	"go.trai.ch/rig/internal/adapters/watcher"
	"go.trai.ch/rig/internal/adapters/workers"
	"go.trai.ch/rig/internal/core/ports"
)

// NodeID is the graft node of the application components.
const NodeID graft.ID = "app.components"

// Components bundles the collaborators a command needs.
type Components struct {
	App    *App
	Logger ports.Logger
}

func init() {
	graft.Register(graft.Node[*Components]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			shell.NodeID,
			logger.NodeID,
			fs.HasherNodeID,
			workers.NodeID,
			artifactcache.NodeID,
			metrics.NodeID,
			linear.NodeID,
			daemon.NodeID,
			watcher.NodeID,
			eventstore.MemoryNodeID,
		},
		Run: run,
	})
}

//nolint:cyclop // one dependency lookup per collaborator
func run(ctx context.Context) (*Components, error) {
	var d Deps
	var err error
	if d.Loader, err = graft.Dep[ports.ConfigLoader](ctx); err != nil {
		return nil, err
	}
	if d.Executor, err = graft.Dep[ports.StepExecutor](ctx); err != nil {
		return nil, err
	}
	if d.Logger, err = graft.Dep[ports.Logger](ctx); err != nil {
		return nil, err
	}
	if d.Hasher, err = graft.Dep[ports.FileHasher](ctx); err != nil {
		return nil, err
	}
	if d.Pools, err = graft.Dep[*workers.Registry](ctx); err != nil {
		return nil, err
	}
	if d.Opener, err = graft.Dep[*artifactcache.Opener](ctx); err != nil {
		return nil, err
	}
	if d.Metrics, err = graft.Dep[*metrics.Prometheus](ctx); err != nil {
		return nil, err
	}
	if d.Renderer, err = graft.Dep[ports.Renderer](ctx); err != nil {
		return nil, err
	}
	if d.Connector, err = graft.Dep[ports.DaemonConnector](ctx); err != nil {
		return nil, err
	}
	if d.Watcher, err = graft.Dep[ports.Watcher](ctx); err != nil {
		return nil, err
	}
	if d.Events, err = graft.Dep[ports.EventStore](ctx); err != nil {
		return nil, err
	}
	return &Components{App: New(d), Logger: d.Logger}, nil
}
