package domain

import (
	"context"
	"errors"
	"iter"
	"maps"
	"slices"
	"sync"

	"go.trai.ch/zerr"
)

// Realizer creates the rule of a target that is not yet part of an action graph.
type Realizer interface {
	Realize(ctx context.Context, g *ActionGraph, target BuildTarget) (*BuildRule, error)
}

// Placeholder records an implicit dependency of Dependent on Target. It becomes an
// edge once Target has been realized.
type Placeholder struct {
	Dependent BuildTarget
	Target    BuildTarget
}

// ActionGraph is the realized DAG of build rules. It is acyclic, every edge points to a
// node of the graph and every target appears once. It is safe for concurrent use.
type ActionGraph struct {
	mu           sync.RWMutex
	root         string
	rules        map[BuildTarget]*BuildRule
	order        []*BuildRule
	dependents   map[BuildTarget]map[BuildTarget]struct{}
	placeholders []Placeholder
	lateBound    map[BuildTarget]struct{}
	bindings     map[BuildTarget][]*BuildRule
	realizer     Realizer
}

// NewActionGraph creates an empty graph for the workspace root. The realizer resolves
// implicit dependencies and may be nil when there are none.
func NewActionGraph(root string, realizer Realizer) *ActionGraph {
	return &ActionGraph{
		root:       root,
		rules:      make(map[BuildTarget]*BuildRule),
		dependents: make(map[BuildTarget]map[BuildTarget]struct{}),
		lateBound:  make(map[BuildTarget]struct{}),
		bindings:   make(map[BuildTarget][]*BuildRule),
		realizer:   realizer,
	}
}

// Root returns the workspace root of the graph.
func (g *ActionGraph) Root() string {
	return g.root
}

// AddRule adds a rule whose dependencies are already part of the graph.
func (g *ActionGraph) AddRule(r *BuildRule) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.rules[r.target]; exists {
		return zerr.With(ErrTargetAlreadyExists, "target", r.target.String())
	}
	if err := g.checkDepsLocked(r); err != nil {
		return err
	}
	g.insertLocked(r)
	return nil
}

// AddLateBoundRule adds a rule realized on demand. If another caller realized the same
// target first, the existing rule is returned.
func (g *ActionGraph) AddLateBoundRule(r *BuildRule) (*BuildRule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, exists := g.rules[r.target]; exists {
		return existing, nil
	}
	if err := g.checkDepsLocked(r); err != nil {
		return nil, err
	}
	g.insertLocked(r)
	g.lateBound[r.target] = struct{}{}
	return r, nil
}

func (g *ActionGraph) checkDepsLocked(r *BuildRule) error {
	for _, d := range r.deps {
		if existing, ok := g.rules[d.target]; !ok || existing != d {
			err := zerr.With(ErrMissingDependency, "dependency", d.target.String())
			return zerr.With(err, "target", r.target.String())
		}
	}
	return nil
}

func (g *ActionGraph) insertLocked(r *BuildRule) {
	g.rules[r.target] = r
	g.order = append(g.order, r)
	for _, d := range r.deps {
		g.addDependentLocked(d.target, r.target)
	}
}

func (g *ActionGraph) addDependentLocked(dep, dependent BuildTarget) {
	set, ok := g.dependents[dep]
	if !ok {
		set = make(map[BuildTarget]struct{})
		g.dependents[dep] = set
	}
	set[dependent] = struct{}{}
}

// AddPlaceholder records that dependent implicitly depends on target.
func (g *ActionGraph) AddPlaceholder(dependent, target BuildTarget) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := Placeholder{Dependent: dependent, Target: target}
	if !slices.Contains(g.placeholders, p) {
		g.placeholders = append(g.placeholders, p)
	}
}

// RequireRule returns the rule of target, realizing it when it is not yet part of the
// graph. Realized rules are marked late-bound.
func (g *ActionGraph) RequireRule(ctx context.Context, target BuildTarget) (*BuildRule, error) {
	g.mu.RLock()
	r, ok := g.rules[target]
	realizer := g.realizer
	g.mu.RUnlock()
	if ok {
		return r, nil
	}
	if realizer == nil {
		return nil, zerr.With(ErrTargetNotFound, "target", target.String())
	}
	return realizer.Realize(ctx, g, target)
}

// ResolveImplicit realizes every placeholder and binds it to its dependent. Placeholders
// recorded while realizing are resolved as well.
func (g *ActionGraph) ResolveImplicit(ctx context.Context) error {
	var errs []error
	for i := 0; ; i++ {
		g.mu.RLock()
		if i >= len(g.placeholders) {
			g.mu.RUnlock()
			break
		}
		p := g.placeholders[i]
		g.mu.RUnlock()

		r, err := g.RequireRule(ctx, p.Target)
		if err != nil {
			errs = append(errs, zerr.With(err, "dependent", p.Dependent.String()))
			continue
		}
		g.mu.Lock()
		g.bindLocked(p.Dependent, r)
		g.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (g *ActionGraph) bindLocked(dependent BuildTarget, r *BuildRule) {
	bound := g.bindings[dependent]
	if !slices.Contains(bound, r) {
		bound = append(bound, r)
		slices.SortFunc(bound, func(a, b *BuildRule) int { return a.target.Compare(b.target) })
		g.bindings[dependent] = bound
	}
	g.addDependentLocked(r.target, dependent)
}

// Reassociate rebinds every placeholder to its realized node and re-registers any node
// missing from the index. It is called when a cached graph is reused. It returns the
// number of bound placeholders.
func (g *ActionGraph) Reassociate() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range g.order {
		if _, ok := g.rules[r.target]; !ok {
			g.rules[r.target] = r
		}
	}

	g.bindings = make(map[BuildTarget][]*BuildRule, len(g.bindings))
	bound := 0
	for _, p := range g.placeholders {
		r, ok := g.rules[p.Target]
		if !ok {
			continue
		}
		g.bindLocked(p.Dependent, r)
		bound++
	}
	return bound
}

// Rule returns the rule of a target.
func (g *ActionGraph) Rule(target BuildTarget) (*BuildRule, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rules[target]
	return r, ok
}

// Len returns the number of rules.
func (g *ActionGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Rules returns all rules in insertion order. Every rule appears after its declared
// dependencies.
func (g *ActionGraph) Rules() []*BuildRule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

// Walk returns an iterator over Rules.
func (g *ActionGraph) Walk() iter.Seq[*BuildRule] {
	return slices.Values(g.Rules())
}

// Dependents returns the targets that depend on target through a declared or a bound
// late-bound edge, sorted.
func (g *ActionGraph) Dependents(target BuildTarget) []BuildTarget {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return SortTargets(slices.Collect(maps.Keys(g.dependents[target])))
}

// LateBoundDeps returns the bound implicit dependencies of target, sorted.
func (g *ActionGraph) LateBoundDeps(target BuildTarget) []*BuildRule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.bindings[target])
}

// AllDeps returns declared and bound late-bound dependencies of r.
func (g *ActionGraph) AllDeps(r *BuildRule) []*BuildRule {
	late := g.LateBoundDeps(r.target)
	if len(late) == 0 {
		return r.Deps()
	}
	return append(r.Deps(), late...)
}

// IsLateBound reports whether target was realized on demand.
func (g *ActionGraph) IsLateBound(target BuildTarget) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.lateBound[target]
	return ok
}

// LateBoundCount returns the number of rules realized on demand.
func (g *ActionGraph) LateBoundCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.lateBound)
}

// Placeholders returns the recorded implicit dependencies.
func (g *ActionGraph) Placeholders() []Placeholder {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.placeholders)
}

// Closure returns the rules needed to build targets, following declared and bound
// late-bound edges. An empty target list selects every rule. The result is sorted by
// target.
func (g *ActionGraph) Closure(targets []BuildTarget) ([]*BuildRule, error) {
	if len(targets) == 0 {
		all := g.Rules()
		slices.SortFunc(all, func(a, b *BuildRule) int { return a.target.Compare(b.target) })
		return all, nil
	}

	seen := make(map[BuildTarget]*BuildRule)
	stack := make([]*BuildRule, 0, len(targets))
	for _, t := range targets {
		r, ok := g.Rule(t)
		if !ok {
			return nil, zerr.With(ErrTargetNotFound, "target", t.String())
		}
		stack = append(stack, r)
	}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[r.target]; ok {
			continue
		}
		seen[r.target] = r
		stack = append(stack, g.AllDeps(r)...)
	}

	out := slices.Collect(maps.Values(seen))
	slices.SortFunc(out, func(a, b *BuildRule) int { return a.target.Compare(b.target) })
	return out, nil
}
