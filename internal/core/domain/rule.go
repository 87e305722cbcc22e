package domain

import (
	"context"
	"path/filepath"
	"slices"
)

// Buildable is the per rule type behaviour of a BuildRule.
type Buildable interface {
	Appendable
	// BuildSteps returns the steps that produce the rule's output.
	BuildSteps(ctx context.Context, bctx BuildContext) ([]Step, error)
}

// BuildContext gives a Buildable access to its surroundings while steps are created.
type BuildContext interface {
	// Root returns the absolute workspace root.
	Root() string
	// OutputDir returns the absolute output directory of the rule being built.
	OutputDir() string
	// Resolve returns the absolute path of a source.
	Resolve(path SourcePath) string
	// Rule looks up another rule of the action graph.
	Rule(target BuildTarget) (*BuildRule, bool)
	// RecordArtifact notes a produced file, relative to the output directory.
	RecordArtifact(path string)
}

// NativeLinkable is the capability of rules that contribute to a native link.
type NativeLinkable struct {
	LinkerFlags []string
	Libraries   []SourcePath
}

// HasRuntimeDeps is the capability of rules that need other rules present at run time.
type HasRuntimeDeps struct {
	Targets []BuildTarget
}

// BuildRuleParams are the inputs of NewBuildRule.
type BuildRuleParams struct {
	Target    BuildTarget
	RuleType  string
	Deps      []*BuildRule
	Buildable Buildable
	// Output is the primary output, relative to the rule's output directory.
	// Empty means the rule has no file output.
	Output       string
	Capabilities []any
}

// BuildRule is a realized node of the action graph. It is immutable after construction.
type BuildRule struct {
	target       BuildTarget
	ruleType     string
	deps         []*BuildRule
	buildable    Buildable
	output       string
	capabilities []any
}

// NewBuildRule creates a BuildRule. Dependencies are sorted by target.
func NewBuildRule(p BuildRuleParams) *BuildRule {
	deps := slices.Clone(p.Deps)
	slices.SortFunc(deps, func(a, b *BuildRule) int { return a.target.Compare(b.target) })
	deps = slices.CompactFunc(deps, func(a, b *BuildRule) bool { return a.target == b.target })
	return &BuildRule{
		target:       p.Target,
		ruleType:     p.RuleType,
		deps:         deps,
		buildable:    p.Buildable,
		output:       p.Output,
		capabilities: slices.Clone(p.Capabilities),
	}
}

// Target returns the rule's target.
func (r *BuildRule) Target() BuildTarget { return r.target }

// RuleType returns the rule type name, e.g. "genrule".
func (r *BuildRule) RuleType() string { return r.ruleType }

// Deps returns the declared dependencies sorted by target.
func (r *BuildRule) Deps() []*BuildRule { return slices.Clone(r.deps) }

// DepTargets returns the targets of the declared dependencies.
func (r *BuildRule) DepTargets() []BuildTarget {
	out := make([]BuildTarget, len(r.deps))
	for i, d := range r.deps {
		out[i] = d.target
	}
	return out
}

// Buildable returns the behaviour of the rule.
func (r *BuildRule) Buildable() Buildable { return r.buildable }

// OutputDir returns the root-relative output directory of the rule.
func (r *BuildRule) OutputDir() string { return RuleOutputPath(r.target) }

// Output returns the root-relative primary output, or "" when the rule has none.
func (r *BuildRule) Output() string {
	if r.output == "" {
		return ""
	}
	return filepath.Join(r.OutputDir(), r.output)
}

// OutputName returns the primary output relative to OutputDir, or "" when the rule has
// none.
func (r *BuildRule) OutputName() string { return r.output }

// OutputSourcePath returns a reference to the rule's primary output.
func (r *BuildRule) OutputSourcePath() SourcePath {
	return NewBuildTargetSourcePath(r.target, r.output)
}

// String returns the target name.
func (r *BuildRule) String() string { return r.target.String() }

// CapabilityOf returns the first capability of type T carried by r.
func CapabilityOf[T any](r *BuildRule) (T, bool) {
	for _, c := range r.capabilities {
		if v, ok := c.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
