// Package rules holds the generic rule types and the registry the action graph
// builder looks them up in.
package rules

import (
	"context"
	"slices"
	"sort"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/zerr"
)

// Params are the inputs of Description.CreateBuildRule.
type Params struct {
	Node *domain.TargetNode
	// Deps are the realized declared dependencies, sorted by target.
	Deps []*domain.BuildRule
}

// Dep returns the realized declared dependency of target.
func (p Params) Dep(target domain.BuildTarget) (*domain.BuildRule, bool) {
	i, found := slices.BinarySearchFunc(p.Deps, target, func(r *domain.BuildRule, t domain.BuildTarget) int {
		return r.Target().Compare(t)
	})
	if !found {
		return nil, false
	}
	return p.Deps[i], true
}

// Description turns target nodes of one rule type into build rules.
type Description interface {
	// Type returns the rule type name used in target definitions.
	Type() string
	// ImplicitDeps returns the dependencies a node needs beyond its declared ones.
	ImplicitDeps(node *domain.TargetNode) ([]domain.BuildTarget, error)
	// CreateBuildRule creates the rule of a node whose declared deps are realized.
	CreateBuildRule(ctx context.Context, p Params) (*domain.BuildRule, error)
}

// Registry maps rule type names to descriptions.
type Registry struct {
	descriptions map[string]Description
}

// NewRegistry creates a registry holding descs.
func NewRegistry(descs ...Description) *Registry {
	r := &Registry{descriptions: make(map[string]Description, len(descs))}
	for _, d := range descs {
		r.descriptions[d.Type()] = d
	}
	return r
}

// DefaultRegistry returns a registry of the built-in rule types.
func DefaultRegistry() *Registry {
	return NewRegistry(Genrule{}, ExportFile{}, PrebuiltLibrary{})
}

// Lookup returns the description of a rule type.
func (r *Registry) Lookup(ruleType string) (Description, error) {
	d, ok := r.descriptions[ruleType]
	if !ok {
		return nil, zerr.With(domain.ErrUnknownRuleType, "rule_type", ruleType)
	}
	return d, nil
}

// Types returns the registered rule type names, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.descriptions))
	for t := range r.descriptions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// AnnotateImplicitDeps fills the implicit dependencies of every node of g from its
// rule description. Explicitly listed implicit dependencies are kept.
func (r *Registry) AnnotateImplicitDeps(g *domain.TargetGraph) error {
	for _, t := range g.Targets() {
		node, _ := g.Node(t)
		d, err := r.Lookup(node.RuleType)
		if err != nil {
			return zerr.With(err, "target", t.String())
		}
		implicit, err := d.ImplicitDeps(node)
		if err != nil {
			return zerr.With(err, "target", t.String())
		}
		node.ImplicitDeps = domain.SortTargets(append(node.ImplicitDeps, implicit...))
	}
	return nil
}
