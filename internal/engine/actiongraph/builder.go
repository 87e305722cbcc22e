// Package actiongraph turns target graphs into action graphs and keeps the most recent
// one for reuse.
package actiongraph

import (
	"context"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/rules"
	"go.trai.ch/zerr"
)

// Builder realizes target graphs with the rule descriptions of a registry.
type Builder struct {
	registry *rules.Registry
}

// NewBuilder creates a Builder.
func NewBuilder(registry *rules.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build validates tg and realizes its eager nodes. Nodes only reachable through
// implicit dependencies are left as placeholders and realized on demand.
func (b *Builder) Build(ctx context.Context, tg *domain.TargetGraph) (*domain.ActionGraph, error) {
	if err := tg.Validate(); err != nil {
		return nil, err
	}

	r := &realizer{tg: tg, registry: b.registry}
	g := domain.NewActionGraph(tg.Root(), r)
	eager := eagerTargets(tg)

	for node := range tg.Walk() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := eager[node.Target]; !ok {
			continue
		}
		rule, err := r.create(ctx, g, node, false)
		if err != nil {
			return nil, err
		}
		if err := g.AddRule(rule); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// eagerTargets returns the nodes reachable through declared edges from every node that
// is not only referenced as an implicit dependency.
func eagerTargets(tg *domain.TargetGraph) map[domain.BuildTarget]struct{} {
	implicitOnly := make(map[domain.BuildTarget]bool)
	for node := range tg.Walk() {
		for _, t := range node.ImplicitDeps {
			if _, seen := implicitOnly[t]; !seen {
				implicitOnly[t] = true
			}
		}
	}
	for node := range tg.Walk() {
		for _, t := range node.Deps {
			implicitOnly[t] = false
		}
	}

	eager := make(map[domain.BuildTarget]struct{})
	var visit func(t domain.BuildTarget)
	visit = func(t domain.BuildTarget) {
		if _, ok := eager[t]; ok {
			return
		}
		eager[t] = struct{}{}
		node, _ := tg.Node(t)
		for _, d := range node.Deps {
			visit(d)
		}
	}
	for _, t := range tg.Targets() {
		if !implicitOnly[t] {
			visit(t)
		}
	}
	return eager
}

// realizer creates rules on demand for one action graph.
type realizer struct {
	tg       *domain.TargetGraph
	registry *rules.Registry
}

// Realize implements domain.Realizer.
func (r *realizer) Realize(ctx context.Context, g *domain.ActionGraph, target domain.BuildTarget) (*domain.BuildRule, error) {
	node, ok := r.tg.Node(target)
	if !ok {
		return nil, zerr.With(domain.ErrTargetNotFound, "target", target.String())
	}
	rule, err := r.create(ctx, g, node, true)
	if err != nil {
		return nil, err
	}
	return g.AddLateBoundRule(rule)
}

// create builds the rule of node. Declared deps must be part of g unless realize is
// set, in which case missing ones are realized first.
func (r *realizer) create(ctx context.Context, g *domain.ActionGraph, node *domain.TargetNode, realize bool) (*domain.BuildRule, error) {
	desc, err := r.registry.Lookup(node.RuleType)
	if err != nil {
		return nil, zerr.With(err, "target", node.Target.String())
	}

	deps := make([]*domain.BuildRule, 0, len(node.Deps))
	for _, t := range node.Deps {
		var dep *domain.BuildRule
		if realize {
			dep, err = g.RequireRule(ctx, t)
			if err != nil {
				return nil, err
			}
		} else {
			var ok bool
			dep, ok = g.Rule(t)
			if !ok {
				err := zerr.With(domain.ErrMissingDependency, "dependency", t.String())
				return nil, zerr.With(err, "target", node.Target.String())
			}
		}
		deps = append(deps, dep)
	}

	rule, err := desc.CreateBuildRule(ctx, rules.Params{Node: node, Deps: deps})
	if err != nil {
		return nil, zerr.With(err, "target", node.Target.String())
	}
	for _, t := range node.ImplicitDeps {
		g.AddPlaceholder(node.Target, t)
	}
	return rule, nil
}
