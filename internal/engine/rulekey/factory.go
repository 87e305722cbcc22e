package rulekey

import (
	"context"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
)

// Field names folded ahead of the rule's own fields.
const (
	fieldRuleType  = ".rule_type"
	fieldOutput    = ".output"
	fieldDeps      = ".deps"
	fieldLateBound = ".late_bound_deps"
)

// Factory computes the keys of rules of one workspace.
type Factory struct {
	root   string
	hasher ports.FileHasher
	cache  *Cache
}

// NewFactory creates a Factory. cache may be nil.
func NewFactory(root string, hasher ports.FileHasher, cache *Cache) *Factory {
	return &Factory{root: root, hasher: hasher, cache: cache}
}

// Build computes the key of rule from the keys of its dependencies. The fold order is
// the rule type, the output, the rule's fields, the declared dependency keys and the
// late-bound dependency keys, both in target order.
func (f *Factory) Build(ctx context.Context, rule *domain.BuildRule, deps domain.DepKeys) (domain.RuleKey, error) {
	if err := ctx.Err(); err != nil {
		return domain.RuleKey{}, err
	}
	deps = deps.Sorted()

	var ck cacheKey
	if f.cache != nil {
		ck = cacheKey{rule: rule, deps: depsDigest(deps)}
		if key, ok := f.cache.lookup(ck, f.hasher); ok {
			return key, nil
		}
	}

	b := NewBuilder(f.root, rule.Target(), f.hasher)
	b.SetString(fieldRuleType, rule.RuleType())
	b.SetString(fieldOutput, rule.OutputSourcePath().RelativePath())
	if rule.Buildable() != nil {
		rule.Buildable().AppendToRuleKey(b)
	}
	for _, dk := range deps.Declared {
		b.SetDepKey(fieldDeps, dk)
	}
	for _, dk := range deps.LateBound {
		b.SetDepKey(fieldLateBound, dk)
	}

	key, inputs, err := b.Finish()
	if err != nil {
		return domain.RuleKey{}, err
	}
	if f.cache != nil {
		f.cache.store(ck, entry{key: key, inputs: inputs})
	}
	return key, nil
}

// Root returns the workspace root the factory resolves sources under.
func (f *Factory) Root() string { return f.root }
