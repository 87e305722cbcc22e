package app

import (
	"context"
	"fmt"
	"maps"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"go.trai.ch/rig/internal/adapters/artifactcache"
	"go.trai.ch/rig/internal/adapters/distributed"
	"go.trai.ch/rig/internal/adapters/redis"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/engine/eventlog"
	"go.trai.ch/zerr"
)

// EventsOptions select the event service and the range of an events command.
type EventsOptions struct {
	// Addr is the event service. It defaults to the daemon socket of the workspace.
	Addr  string
	RunID string
	First *int64
	Last  *int64
}

// EventsQuery prints one range of a run.
func (a *App) EventsQuery(ctx context.Context, opts EventsOptions) error {
	client, err := a.dialEvents(opts.Addr, a.optionalWorkspace())
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	r := client.Query(ctx, domain.EventsQuery{RunID: domain.RunID(opts.RunID), First: opts.First, Last: opts.Last})
	if !r.Succeeded() {
		return zerr.With(domain.ErrEventsQueryFailed, "reason", r.ErrorMessage())
	}
	for _, e := range r.Events() {
		if err := a.printEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// EventsTail streams the events of a run until it finishes or ctx is done.
func (a *App) EventsTail(ctx context.Context, opts EventsOptions) error {
	ws := a.optionalWorkspace()
	client, err := a.dialEvents(opts.Addr, ws)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	interval, err := ws.Config.Duration(domain.SectionEvents, domain.KeyPollInterval, eventlog.DefaultPollInterval)
	if err != nil {
		return err
	}
	first := int64(1)
	if opts.First != nil {
		first = *opts.First
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, errc := eventlog.NewTailer(client, a.logger, a.clock, interval).Tail(ctx, domain.RunID(opts.RunID), first)
	for e := range events {
		if err := a.printEvent(e); err != nil {
			return err
		}
		if e.Type == domain.EventBuildFinished {
			cancel()
		}
	}
	return <-errc
}

// ServeEvents serves a standalone build event service on addr until ctx is done.
// A non-empty store overrides [events] store.
func (a *App) ServeEvents(ctx context.Context, addr, store string) error {
	log, closeLog, err := a.openEventLog(ctx, a.optionalWorkspace().Config, store)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to listen"), "addr", addr)
	}
	a.logger.Info("serving build events", "addr", lis.Addr().String())
	return distributed.NewServer(log, a.logger).Serve(ctx, lis)
}

// openEventLog opens the event log on the store named by kind, or by [events] store.
func (a *App) openEventLog(ctx context.Context, cfg domain.Config, kind string) (*eventlog.Log, func() error, error) {
	if kind == "" {
		kind = cfg.String(domain.SectionEvents, domain.KeyStore, "memory")
	}
	timeout, err := cfg.Duration(domain.SectionEvents, domain.KeyQueryTimeout, eventlog.DefaultQueryTimeout)
	if err != nil {
		return nil, nil, err
	}

	var store ports.EventStore
	closer := func() error { return nil }
	switch kind {
	case "memory":
		store = a.events
	case "redis":
		client, err := redis.Dial(ctx, cfg.String(domain.SectionEvents, domain.KeyRedisAddr, artifactcache.DefaultRedisAddr))
		if err != nil {
			return nil, nil, err
		}
		store = redis.NewEventStore(client)
		closer = client.Close
	default:
		return nil, nil, zerr.With(domain.ErrUnknownEventStore, "store", kind)
	}

	var m ports.Metrics
	if a.metrics != nil {
		m = a.metrics
	}
	log := eventlog.NewLog(store, a.logger, m, eventlog.Options{QueryTimeout: timeout, Clock: a.clock})
	return log, closer, nil
}

func (a *App) dialEvents(addr string, ws *domain.Workspace) (*distributed.Client, error) {
	if addr == "" {
		if ws.Root == "" {
			return nil, domain.ErrConfigNotFound
		}
		addr = "unix://" + domain.DaemonSocketPath(ws.Root)
	}
	return distributed.Dial(addr, distributed.DefaultCallTimeout)
}

// optionalWorkspace loads the workspace around the working directory. Events
// commands also run outside a workspace, with an empty configuration.
func (a *App) optionalWorkspace() *domain.Workspace {
	cwd, err := os.Getwd()
	if err != nil {
		return &domain.Workspace{}
	}
	ws, err := a.loader.Load(cwd)
	if err != nil {
		a.logger.Debug("no workspace configuration", "error", err.Error())
		return &domain.Workspace{}
	}
	return ws
}

func (a *App) printEvent(e domain.BuildSlaveEvent) error {
	pairs := make([]string, 0, len(e.Payload))
	for _, k := range slices.Sorted(maps.Keys(e.Payload)) {
		pairs = append(pairs, k+"="+e.Payload[k])
	}
	_, err := fmt.Fprintf(a.stdout, "%d\t%s\t%s\t%s\t%s\n",
		e.Seq, e.Timestamp.UTC().Format(time.RFC3339Nano), e.SlaveID, e.Type, strings.Join(pairs, " "))
	return err
}
