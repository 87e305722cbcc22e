package app

import (
	"context"
	"fmt"
	"os"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/rig/internal/adapters/telemetry"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/engine/scheduler"
	"go.trai.ch/rig/internal/engine/session"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const tracerName = "rig"

type runOptions struct {
	threads int
	events  ports.EventLog
	render  bool
}

// run executes one build of ws inside sess. The returned result is complete even
// when the error is non-nil.
//
//nolint:cyclop // orchestration function
func (a *App) run(
	ctx context.Context,
	sess *session.Session,
	ws *domain.Workspace,
	req ports.BuildRequest,
	opts runOptions,
) (*domain.BuildResult, error) {
	targets, err := parseTargets(req.Targets, ws.Root, req.Cwd)
	if err != nil {
		return nil, err
	}

	cfg := ws.Config
	sched, err := a.schedulerOptions(cfg, req, opts.threads)
	if err != nil {
		return nil, err
	}
	if err := a.pools.Configure(cfg.Section(domain.SectionWorkerPools)); err != nil {
		return nil, err
	}

	graph, err := sess.ActionGraph(ctx, ws.Graph)
	if err != nil {
		return nil, err
	}

	var cache ports.ArtifactCache
	if !req.KeysOnly {
		handle, err := a.opener.Open(ctx, ws.Root, cfg)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to open artifact cache")
		}
		defer func() { _ = handle.Close() }()
		cache = handle.Cache
	}

	tracer, shutdown := a.tracer(req, opts)
	defer shutdown()

	var m ports.Metrics
	if a.metrics != nil {
		m = a.metrics
	}
	s := scheduler.NewScheduler(a.executor, cache, sess.Keys(), tracer, a.logger, m)

	if !opts.render {
		return s.Execute(ctx, graph, targets, sched)
	}

	var result *domain.BuildResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.renderer.Start(gctx); err != nil {
			return err
		}
		return a.renderer.Wait()
	})
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Scheduler panic: %v\n", r)
				err = zerr.With(domain.ErrBuildExecutionFailed, "panic", fmt.Sprint(r))
			}
			_ = a.renderer.Stop()
		}()
		result, err = s.Execute(gctx, graph, targets, sched)
		return err
	})
	return result, g.Wait()
}

func (a *App) schedulerOptions(cfg domain.Config, req ports.BuildRequest, threads int) (scheduler.Options, error) {
	var opts scheduler.Options
	var err error
	if threads > 0 {
		opts.Parallelism = threads
	} else if opts.Parallelism, err = cfg.Int(domain.SectionBuild, domain.KeyThreads, 0); err != nil {
		return opts, err
	}
	noCache, err := cfg.Bool(domain.SectionBuild, domain.KeyNoCache, false)
	if err != nil {
		return opts, err
	}
	opts.NoCache = req.NoCache || noCache
	opts.KeysOnly = req.KeysOnly
	if opts.CacheTimeout, err = cfg.Duration(domain.SectionCache, domain.KeyTimeout, scheduler.DefaultCacheTimeout); err != nil {
		return opts, err
	}
	return opts, nil
}

// tracer builds the span pipeline of one build: the renderer bridge, and the event
// publisher when the build belongs to a distributed run.
func (a *App) tracer(req ports.BuildRequest, opts runOptions) (ports.Tracer, func()) {
	if !opts.render && (opts.events == nil || req.RunID == "") {
		return telemetry.NewNoOpTracer(), func() {}
	}

	var procs []sdktrace.TracerProviderOption
	if opts.render {
		procs = append(procs, sdktrace.WithSpanProcessor(telemetry.NewBridge(a.renderer)))
	}
	if opts.events != nil && req.RunID != "" {
		pub := telemetry.NewEventPublisher(opts.events, a.logger, req.RunID, slaveID(), a.clock)
		procs = append(procs, sdktrace.WithSpanProcessor(pub))
	}
	provider := sdktrace.NewTracerProvider(procs...)

	tracer := telemetry.NewOTelTracer(provider, tracerName)
	if opts.render {
		tracer = tracer.WithRenderer(a.renderer)
	}
	return tracer, func() {
		// The build context may be cancelled already.
		ctx := context.Background()
		_ = tracer.Shutdown(ctx)
		if err := provider.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush build spans", "error", err.Error())
		}
	}
}

func slaveID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
