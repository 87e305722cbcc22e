package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/engine/artifact"
	"go.trai.ch/zerr"
)

func (state *runState) executeRule(rule *domain.BuildRule, deps domain.DepKeys) {
	// The span must end before the result is sent so the loop never finishes ahead of
	// the recorded span.
	res := func() domain.RuleResult {
		start := time.Now()
		target := rule.Target()
		ctx, span := state.s.tracer.Start(state.ctx, target.String(), ports.WithTarget(target.String()))
		defer span.End()

		res := state.work(ctx, span, rule, deps)
		res.Target = target
		res.Duration = time.Since(start)
		if res.Err != nil {
			span.RecordError(res.Err)
		}
		return res
	}()

	state.resultsCh <- res
}

func (state *runState) work(ctx context.Context, span ports.Span, rule *domain.BuildRule, deps domain.DepKeys) domain.RuleResult {
	s := state.s
	target := rule.Target()

	s.updateStatus(target, domain.StatusCacheCheck)
	key, err := s.keys.Build(ctx, rule, deps)
	if err != nil {
		return domain.RuleResult{Status: domain.StatusFailed, Err: err}
	}
	span.SetAttribute("rig.rulekey", key.String())

	if state.opts.KeysOnly {
		return domain.RuleResult{Status: domain.StatusDone, Outcome: domain.OutcomeKeyOnly, Key: key}
	}

	outDir, err := state.outputDir(rule)
	if err != nil {
		return domain.RuleResult{Status: domain.StatusFailed, Key: key, Err: err}
	}

	if !state.opts.NoCache {
		if artifacts, ok := state.restore(ctx, rule, key, outDir); ok {
			span.SetAttribute("rig.cached", true)
			return domain.RuleResult{Status: domain.StatusDone, Outcome: domain.OutcomeCacheHit, Key: key, Artifacts: artifacts}
		}
	}
	span.SetAttribute("rig.cached", false)

	s.updateStatus(target, domain.StatusBuilding)
	artifacts, err := state.build(ctx, span, rule, outDir)
	if err != nil {
		return domain.RuleResult{Status: domain.StatusFailed, Key: key, Err: err}
	}

	state.store(ctx, rule, key, outDir, artifacts)
	return domain.RuleResult{Status: domain.StatusDone, Outcome: domain.OutcomeBuilt, Key: key, Artifacts: artifacts}
}

// outputDir returns the absolute output directory of rule, which must be below the
// workspace root.
func (state *runState) outputDir(rule *domain.BuildRule) (string, error) {
	root, err := filepath.Abs(state.graph.Root())
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrOutputPathOutsideRoot.Error()), "root", state.graph.Root())
	}
	out := filepath.Join(root, rule.OutputDir())
	rel, err := filepath.Rel(root, out)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", zerr.With(domain.ErrOutputPathOutsideRoot, "path", out)
	}
	return out, nil
}

// cleanDirectory removes dir and recreates it empty.
func cleanDirectory(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFailedToCleanOutput.Error()), "path", dir)
	}
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFailedToCleanOutput.Error()), "path", dir)
	}
	return nil
}

func (state *runState) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if state.opts.CacheTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, state.opts.CacheTimeout)
}

// restore materializes a cached artifact and returns its recorded artifacts. Any failure
// degrades to a rebuild.
func (state *runState) restore(ctx context.Context, rule *domain.BuildRule, key domain.RuleKey, outDir string) ([]string, bool) {
	s := state.s
	if s.cache == nil {
		return nil, false
	}

	getCtx, cancel := state.cacheContext(ctx)
	blob, hit, err := s.cache.Get(getCtx, key)
	cancel()
	if err != nil {
		cacheErr := &domain.CacheUnavailableError{Backend: s.cache.Name(), Op: "get", Err: err}
		s.logger.Warn("artifact cache unavailable, building", "target", rule.String(), "error", cacheErr.Error())
		s.recordCache("get", "error")
		return nil, false
	}
	if !hit {
		s.recordCache("get", "miss")
		return nil, false
	}
	s.recordCache("get", "hit")

	if err := cleanDirectory(outDir); err != nil {
		s.logger.Warn("failed to prepare output for cached artifact", "target", rule.String(), "error", err.Error())
		return nil, false
	}
	artifacts, err := artifact.Extract(blob, outDir)
	if err != nil {
		s.logger.Warn("failed to materialize cached artifact, building", "target", rule.String(), "error", err.Error())
		return nil, false
	}
	return artifacts, true
}

func (state *runState) build(ctx context.Context, span ports.Span, rule *domain.BuildRule, outDir string) ([]string, error) {
	if err := cleanDirectory(outDir); err != nil {
		return nil, err
	}

	bctx := &buildContext{root: state.graph.Root(), outDir: outDir, graph: state.graph}
	steps, err := rule.Buildable().BuildSteps(ctx, bctx)
	if err != nil {
		return nil, err
	}

	if len(steps) > 0 {
		batch := domain.StepBatch{Target: rule.Target(), Steps: steps, WorkingDir: bctx.root}
		if _, err := state.s.executor.Execute(ctx, batch, span, span); err != nil {
			return nil, err
		}
	}

	if out := rule.OutputName(); out != "" {
		if _, err := os.Stat(filepath.Join(outDir, out)); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrOutputMissing.Error()), "output", out)
		}
	}
	return bctx.Artifacts(), nil
}

// store archives the output and puts it in the artifact cache. Failures are logged.
func (state *runState) store(ctx context.Context, rule *domain.BuildRule, key domain.RuleKey, outDir string, artifacts []string) {
	s := state.s
	if s.cache == nil {
		return
	}

	blob, err := artifact.Archive(outDir, artifacts)
	if err != nil {
		s.logger.Warn("failed to archive rule output", "target", rule.String(), "error", err.Error())
		return
	}

	putCtx, cancel := state.cacheContext(ctx)
	defer cancel()
	if err := s.cache.Put(putCtx, key, blob); err != nil {
		cacheErr := &domain.CacheUnavailableError{Backend: s.cache.Name(), Op: "put", Err: err}
		s.logger.Warn("failed to store rule output", "target", rule.String(), "error", cacheErr.Error())
		s.recordCache("put", "error")
		return
	}
	s.recordCache("put", "ok")
}

// buildContext implements domain.BuildContext for one rule.
type buildContext struct {
	root   string
	outDir string
	graph  *domain.ActionGraph

	mu        sync.Mutex
	artifacts []string
}

func (b *buildContext) Root() string { return b.root }

func (b *buildContext) OutputDir() string { return b.outDir }

func (b *buildContext) Resolve(p domain.SourcePath) string { return p.Resolve(b.root) }

func (b *buildContext) Rule(t domain.BuildTarget) (*domain.BuildRule, bool) { return b.graph.Rule(t) }

func (b *buildContext) RecordArtifact(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.artifacts = append(b.artifacts, path)
}

func (b *buildContext) Artifacts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := slices.Clone(b.artifacts)
	slices.Sort(out)
	return out
}
