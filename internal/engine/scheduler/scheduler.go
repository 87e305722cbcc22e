// Package scheduler executes the rules of an action graph in dependency order.
package scheduler

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

// KeyFactory computes rule keys.
type KeyFactory interface {
	Build(ctx context.Context, rule *domain.BuildRule, deps domain.DepKeys) (domain.RuleKey, error)
}

// Options control one Execute call.
type Options struct {
	// Parallelism bounds the number of rules worked on at once. Zero means NumCPU.
	Parallelism int
	// NoCache skips artifact cache reads. Built outputs are still stored.
	NoCache bool
	// KeysOnly computes rule keys without touching the cache or building.
	KeysOnly bool
	// CacheTimeout bounds each artifact cache request. Zero means no bound.
	CacheTimeout time.Duration
}

// DefaultCacheTimeout is used when the workspace does not configure one.
const DefaultCacheTimeout = 10 * time.Second

// Scheduler manages the execution of rules in the action graph.
type Scheduler struct {
	executor ports.StepExecutor
	cache    ports.ArtifactCache
	keys     KeyFactory
	tracer   ports.Tracer
	logger   ports.Logger
	metrics  ports.Metrics

	mu         sync.RWMutex
	ruleStatus map[domain.BuildTarget]domain.RuleStatus
}

// NewScheduler creates a new Scheduler with the given dependencies. metrics may be nil.
func NewScheduler(
	executor ports.StepExecutor,
	cache ports.ArtifactCache,
	keys KeyFactory,
	tracer ports.Tracer,
	logger ports.Logger,
	metrics ports.Metrics,
) *Scheduler {
	return &Scheduler{
		executor:   executor,
		cache:      cache,
		keys:       keys,
		tracer:     tracer,
		logger:     logger,
		metrics:    metrics,
		ruleStatus: make(map[domain.BuildTarget]domain.RuleStatus),
	}
}

// Status returns the current status of a rule of the running or last build.
func (s *Scheduler) Status(target domain.BuildTarget) (domain.RuleStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.ruleStatus[target]
	return st, ok
}

func (s *Scheduler) initStatuses(rules []*domain.BuildRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ruleStatus)
	for _, r := range rules {
		s.ruleStatus[r.Target()] = domain.StatusPending
	}
}

func (s *Scheduler) updateStatus(target domain.BuildTarget, status domain.RuleStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ruleStatus[target] = status
}

// Execute builds targets and everything they depend on. An empty target list builds
// every rule of the graph. The returned result is complete even when err is non-nil.
func (s *Scheduler) Execute(
	ctx context.Context,
	graph *domain.ActionGraph,
	targets []domain.BuildTarget,
	opts Options,
) (*domain.BuildResult, error) {
	if err := graph.ResolveImplicit(ctx); err != nil {
		return nil, err
	}
	closure, err := graph.Closure(targets)
	if err != nil {
		return nil, err
	}

	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}

	state := s.newRunState(ctx, graph, closure, opts)
	s.emitPlan(ctx, state, targets)
	s.initStatuses(closure)

	state.runExecutionLoop()
	return state.finish()
}

func (s *Scheduler) emitPlan(ctx context.Context, state *runState, targets []domain.BuildTarget) {
	planned := make([]string, 0, len(state.order))
	deps := make(map[string][]string, len(state.order))
	for _, r := range state.order {
		name := r.Target().String()
		planned = append(planned, name)
		for _, d := range state.deps[r.Target()] {
			deps[name] = append(deps[name], d.Target().String())
		}
	}
	requested := make([]string, len(targets))
	for i, t := range targets {
		requested[i] = t.String()
	}
	s.tracer.EmitPlan(ctx, planned, deps, requested)
}

func (s *Scheduler) recordRule(status domain.RuleStatus, outcome domain.RuleOutcome) {
	if s.metrics != nil {
		s.metrics.RuleFinished(status.String(), outcome.String())
	}
}

func (s *Scheduler) recordCache(op, result string) {
	if s.metrics != nil && s.cache != nil {
		s.metrics.ArtifactCacheRequest(s.cache.Name(), op, result)
	}
}

// joinFailures joins every rule failure, wrapped with its target, under
// ErrBuildExecutionFailed.
func joinFailures(results []domain.RuleResult) error {
	errs := []error{domain.ErrBuildExecutionFailed}
	for _, r := range results {
		if r.Status != domain.StatusFailed {
			continue
		}
		errs = append(errs, zerr.With(zerr.Wrap(r.Err, domain.ErrRuleExecutionFailed.Error()), "target", r.Target.String()))
	}
	if len(errs) == 1 {
		return nil
	}
	return errors.Join(errs...)
}
