package scheduler

import (
	"context"
	"errors"
	"slices"

	"go.trai.ch/rig/internal/core/domain"
)

type runState struct {
	s     *Scheduler
	ctx   context.Context
	graph *domain.ActionGraph
	opts  Options

	order      []*domain.BuildRule
	rules      map[domain.BuildTarget]*domain.BuildRule
	deps       map[domain.BuildTarget][]*domain.BuildRule
	lateBound  map[domain.BuildTarget][]*domain.BuildRule
	dependents map[domain.BuildTarget][]domain.BuildTarget

	inDegree  map[domain.BuildTarget]int
	ready     []domain.BuildTarget
	active    int
	resultsCh chan domain.RuleResult

	keys    map[domain.BuildTarget]domain.RuleKey
	results map[domain.BuildTarget]domain.RuleResult
}

func (s *Scheduler) newRunState(
	ctx context.Context,
	graph *domain.ActionGraph,
	closure []*domain.BuildRule,
	opts Options,
) *runState {
	n := len(closure)
	state := &runState{
		s:          s,
		ctx:        ctx,
		graph:      graph,
		opts:       opts,
		order:      closure,
		rules:      make(map[domain.BuildTarget]*domain.BuildRule, n),
		deps:       make(map[domain.BuildTarget][]*domain.BuildRule, n),
		lateBound:  make(map[domain.BuildTarget][]*domain.BuildRule, n),
		dependents: make(map[domain.BuildTarget][]domain.BuildTarget, n),
		inDegree:   make(map[domain.BuildTarget]int, n),
		resultsCh:  make(chan domain.RuleResult, opts.Parallelism),
		keys:       make(map[domain.BuildTarget]domain.RuleKey, n),
		results:    make(map[domain.BuildTarget]domain.RuleResult, n),
	}
	for _, r := range closure {
		state.rules[r.Target()] = r
	}

	for _, r := range closure {
		t := r.Target()
		state.lateBound[t] = graph.LateBoundDeps(t)
		all := graph.AllDeps(r)
		state.deps[t] = all
		state.inDegree[t] = len(all)
		for _, d := range all {
			state.dependents[d.Target()] = append(state.dependents[d.Target()], t)
		}
	}
	for t, ds := range state.dependents {
		state.dependents[t] = domain.SortTargets(ds)
	}
	for _, r := range closure {
		if state.inDegree[r.Target()] == 0 {
			state.ready = append(state.ready, r.Target())
		}
	}
	return state
}

func (state *runState) runExecutionLoop() {
	for {
		state.schedule()

		if state.active == 0 && (len(state.ready) == 0 || state.ctx.Err() != nil) {
			return
		}

		if state.ctx.Err() != nil {
			state.handleResult(<-state.resultsCh)
			continue
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-state.ctx.Done():
		}
	}
}

func (state *runState) schedule() {
	for len(state.ready) > 0 && state.active < state.opts.Parallelism && state.ctx.Err() == nil {
		target := state.ready[0]
		state.ready = state.ready[1:]

		state.active++
		rule := state.rules[target]
		deps := state.depKeys(rule)
		go state.executeRule(rule, deps)
	}
}

// depKeys snapshots the keys of rule's dependencies. All of them are done.
func (state *runState) depKeys(rule *domain.BuildRule) domain.DepKeys {
	var out domain.DepKeys
	for _, d := range rule.Deps() {
		out.Declared = append(out.Declared, domain.TargetKey{Target: d.Target(), Key: state.keys[d.Target()]})
	}
	for _, d := range state.lateBound[rule.Target()] {
		out.LateBound = append(out.LateBound, domain.TargetKey{Target: d.Target(), Key: state.keys[d.Target()]})
	}
	return out
}

func (state *runState) handleResult(res domain.RuleResult) {
	state.active--
	state.record(res)

	if res.Status == domain.StatusFailed {
		state.skipDependents(res.Target)
		return
	}

	state.keys[res.Target] = res.Key
	for _, dep := range state.dependents[res.Target] {
		if _, done := state.results[dep]; done {
			continue
		}
		state.inDegree[dep]--
		if state.inDegree[dep] == 0 {
			state.ready = append(state.ready, dep)
		}
	}
}

func (state *runState) record(res domain.RuleResult) {
	state.results[res.Target] = res
	state.s.updateStatus(res.Target, res.Status)
	state.s.recordRule(res.Status, res.Outcome)
}

// skipDependents marks every transitive dependent of failed as skipped.
func (state *runState) skipDependents(failed domain.BuildTarget) {
	queue := slices.Clone(state.dependents[failed])
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if _, done := state.results[t]; done {
			continue
		}
		state.record(domain.RuleResult{
			Target: t,
			Status: domain.StatusSkipped,
			Err:    &domain.DependencyFailedError{Target: t, FailedDep: failed},
		})
		queue = append(queue, state.dependents[t]...)
	}
}

// finish skips the rules that never started and assembles the build result.
func (state *runState) finish() (*domain.BuildResult, error) {
	ctxErr := state.ctx.Err()
	for _, r := range state.order {
		if _, done := state.results[r.Target()]; done {
			continue
		}
		err := ctxErr
		if err == nil {
			err = domain.ErrBuildCancelled
		}
		state.record(domain.RuleResult{Target: r.Target(), Status: domain.StatusSkipped, Err: err})
	}

	out := &domain.BuildResult{Rules: make([]domain.RuleResult, 0, len(state.order))}
	for _, r := range state.order {
		res := state.results[r.Target()]
		out.Rules = append(out.Rules, res)
		switch res.Status {
		case domain.StatusFailed:
			out.Failed = append(out.Failed, res.Target)
		case domain.StatusSkipped:
			out.Skipped = append(out.Skipped, res.Target)
		case domain.StatusDone:
			switch res.Outcome {
			case domain.OutcomeCacheHit:
				out.Hits++
			case domain.OutcomeBuilt:
				out.Built++
			}
		}
	}

	err := joinFailures(out.Rules)
	if ctxErr != nil {
		err = errors.Join(err, domain.ErrBuildCancelled, ctxErr)
	}
	return out, err
}
