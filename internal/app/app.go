// Package app implements the application layer for rig.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/rig/internal/adapters/artifactcache"
	"go.trai.ch/rig/internal/adapters/metrics"
	"go.trai.ch/rig/internal/adapters/workers"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/engine/rulekey"
	"go.trai.ch/rig/internal/engine/session"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	loader    ports.ConfigLoader
	executor  ports.StepExecutor
	logger    ports.Logger
	hasher    ports.FileHasher
	pools     *workers.Registry
	opener    *artifactcache.Opener
	metrics   *metrics.Prometheus
	renderer  ports.Renderer
	connector ports.DaemonConnector
	watcher   ports.Watcher
	events    ports.EventStore

	stdout io.Writer
	clock  clockwork.Clock
}

// Deps are the collaborators of an App.
type Deps struct {
	Loader    ports.ConfigLoader
	Executor  ports.StepExecutor
	Logger    ports.Logger
	Hasher    ports.FileHasher
	Pools     *workers.Registry
	Opener    *artifactcache.Opener
	Metrics   *metrics.Prometheus
	Renderer  ports.Renderer
	Connector ports.DaemonConnector
	Watcher   ports.Watcher
	// Events is the event store used when [events] store is "memory".
	Events ports.EventStore
}

// New creates a new App instance.
func New(d Deps) *App {
	return &App{
		loader:    d.Loader,
		executor:  d.Executor,
		logger:    d.Logger,
		hasher:    d.Hasher,
		pools:     d.Pools,
		opener:    d.Opener,
		metrics:   d.Metrics,
		renderer:  d.Renderer,
		connector: d.Connector,
		watcher:   d.Watcher,
		events:    d.Events,
		stdout:    os.Stdout,
		clock:     clockwork.NewRealClock(),
	}
}

// WithStdout redirects command output such as rule keys and events.
func (a *App) WithStdout(w io.Writer) *App {
	a.stdout = w
	return a
}

// WithClock replaces the clock used by tailing.
func (a *App) WithClock(c clockwork.Clock) *App {
	a.clock = c
	return a
}

// BuildOptions configuration for the Build method.
type BuildOptions struct {
	NoCache bool
	// Threads overrides [build] threads when positive.
	Threads int
	// RunID publishes rule events to the distributed event log under this run.
	RunID string
	// EventsAddr is the event service to publish to. It defaults to the daemon
	// socket of the workspace.
	EventsAddr string
	// Daemon runs the build inside the background daemon.
	Daemon bool
}

// Build builds targets, relative to the working directory, and prints a summary.
func (a *App) Build(ctx context.Context, targets []string, opts BuildOptions) error {
	cwd, err := os.Getwd()
	if err != nil {
		return zerr.Wrap(err, "failed to get working directory")
	}
	req := ports.BuildRequest{
		Cwd:     cwd,
		Targets: targets,
		NoCache: opts.NoCache,
		RunID:   domain.RunID(opts.RunID),
	}

	var result *domain.BuildResult
	if opts.Daemon {
		result, err = a.buildInDaemon(ctx, req)
	} else {
		result, err = a.buildOnce(ctx, req, opts)
	}
	if result != nil {
		a.renderer.OnBuildSummary(result)
	}
	return err
}

func (a *App) buildInDaemon(ctx context.Context, req ports.BuildRequest) (*domain.BuildResult, error) {
	client, err := a.connector.Connect(ctx)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to connect to daemon")
	}
	defer func() { _ = client.Close() }()
	return client.Build(ctx, req)
}

func (a *App) buildOnce(ctx context.Context, req ports.BuildRequest, opts BuildOptions) (*domain.BuildResult, error) {
	ws, err := a.loader.Load(req.Cwd)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	sess, err := a.newSession(ws)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	var events ports.EventLog
	if req.RunID != "" {
		client, err := a.dialEvents(opts.EventsAddr, ws)
		if err != nil {
			return nil, err
		}
		defer func() { _ = client.Close() }()
		events = client
	}

	return a.run(ctx, sess, ws, req, runOptions{threads: opts.Threads, events: events, render: true})
}

// RuleKeys computes the rule keys of targets without building and prints one
// "<key> <target>" line per rule, sorted by target.
func (a *App) RuleKeys(ctx context.Context, targets []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return zerr.Wrap(err, "failed to get working directory")
	}
	ws, err := a.loader.Load(cwd)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}
	sess, err := a.newSession(ws)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	req := ports.BuildRequest{Cwd: cwd, Targets: targets, KeysOnly: true}
	result, err := a.run(ctx, sess, ws, req, runOptions{})
	if result == nil {
		return err
	}

	rules := slices.Clone(result.Rules)
	slices.SortFunc(rules, func(x, y domain.RuleResult) int { return x.Target.Compare(y.Target) })
	for _, r := range rules {
		if r.Key.IsZero() {
			continue
		}
		if _, werr := fmt.Fprintf(a.stdout, "%s %s\n", r.Key, r.Target); werr != nil {
			return zerr.Wrap(werr, "failed to write rule keys")
		}
	}
	if err != nil {
		a.renderer.OnBuildSummary(result)
	}
	return err
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	Cache  bool
	Output bool
}

// Clean removes cache and rule output directories of the workspace.
func (a *App) Clean(_ context.Context, options CleanOptions) error {
	cwd, err := os.Getwd()
	if err != nil {
		return zerr.Wrap(err, "failed to get working directory")
	}
	root, err := a.loader.DiscoverRoot(cwd)
	if err != nil {
		return err
	}

	var errs error
	remove := func(rel, name string) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := os.RemoveAll(filepath.Join(root, rel)); err != nil {
			errs = errors.Join(errs, zerr.Wrap(err, fmt.Sprintf("failed to remove %s", name)))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	if options.Cache {
		remove(filepath.Join(domain.RigDirName, domain.CacheDirName), "artifact cache")
	}
	if options.Output {
		remove(domain.DefaultOutPath(), "rule outputs")
	}
	return errs
}

func (a *App) newSession(ws *domain.Workspace) (*session.Session, error) {
	size, err := ws.Config.Int(domain.SectionCache, domain.KeyRuleKeyCacheSize, rulekey.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	var m ports.Metrics
	if a.metrics != nil {
		m = a.metrics
	}
	return session.New(session.Params{
		Root:             ws.Root,
		Hasher:           a.hasher,
		Metrics:          m,
		RuleKeyCacheSize: size,
	})
}

// parseTargets resolves target patterns relative to the package of cwd.
func parseTargets(names []string, root, cwd string) ([]domain.BuildTarget, error) {
	base := ""
	if rel, err := filepath.Rel(root, cwd); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		base = filepath.ToSlash(rel)
	}
	targets := make([]domain.BuildTarget, 0, len(names))
	for _, name := range names {
		t, err := domain.ParseRelativeBuildTarget(name, base)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}
