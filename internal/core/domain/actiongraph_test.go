package domain_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/core/domain"
)

type noopBuildable struct{}

func (noopBuildable) AppendToRuleKey(domain.RuleKeySink) {}

func (noopBuildable) BuildSteps(context.Context, domain.BuildContext) ([]domain.Step, error) {
	return nil, nil
}

func rule(name string, deps ...*domain.BuildRule) *domain.BuildRule {
	return domain.NewBuildRule(domain.BuildRuleParams{
		Target:    domain.MustParseBuildTarget(name),
		RuleType:  "test",
		Deps:      deps,
		Buildable: noopBuildable{},
	})
}

type countingRealizer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRealizer) Realize(_ context.Context, g *domain.ActionGraph, t domain.BuildTarget) (*domain.BuildRule, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return g.AddLateBoundRule(rule(t.String()))
}

func TestActionGraph_AddRule(t *testing.T) {
	g := domain.NewActionGraph("/repo", nil)
	d := rule("//d:d")
	require.NoError(t, g.AddRule(d))

	b := rule("//b:b", d)
	c := rule("//c:c", d)
	require.NoError(t, g.AddRule(b))
	require.NoError(t, g.AddRule(c))
	require.NoError(t, g.AddRule(rule("//a:a", c, b)))

	assert.Equal(t, 4, g.Len())
	assert.Equal(t,
		[]domain.BuildTarget{b.Target(), c.Target()},
		g.Dependents(d.Target()))

	a, ok := g.Rule(domain.MustParseBuildTarget("//a:a"))
	require.True(t, ok)
	assert.Equal(t, []domain.BuildTarget{b.Target(), c.Target()}, a.DepTargets(), "deps are sorted")

	err := g.AddRule(rule("//a:a"))
	assert.ErrorContains(t, err, "target already exists")
}

func TestActionGraph_DanglingEdge(t *testing.T) {
	g := domain.NewActionGraph("/repo", nil)
	err := g.AddRule(rule("//a:a", rule("//outside:x")))
	assert.ErrorContains(t, err, "missing dependency")
}

func TestActionGraph_ResolveImplicit(t *testing.T) {
	realizer := &countingRealizer{}
	g := domain.NewActionGraph("/repo", realizer)
	a := rule("//a:a")
	require.NoError(t, g.AddRule(a))
	tool := domain.MustParseBuildTarget("//tools:gen")
	g.AddPlaceholder(a.Target(), tool)
	g.AddPlaceholder(a.Target(), tool)

	require.NoError(t, g.ResolveImplicit(context.Background()))

	assert.True(t, g.IsLateBound(tool))
	assert.Equal(t, 1, g.LateBoundCount())
	assert.Len(t, g.Placeholders(), 1)
	late := g.LateBoundDeps(a.Target())
	require.Len(t, late, 1)
	assert.Equal(t, tool, late[0].Target())
	assert.Equal(t, []domain.BuildTarget{a.Target()}, g.Dependents(tool))

	require.NoError(t, g.ResolveImplicit(context.Background()))
	assert.Equal(t, 1, realizer.calls, "realized rules are reused")
}

func TestActionGraph_RequireRuleConcurrent(t *testing.T) {
	g := domain.NewActionGraph("/repo", &countingRealizer{})
	target := domain.MustParseBuildTarget("//x:x")

	var wg sync.WaitGroup
	results := make([]*domain.BuildRule, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := g.RequireRule(context.Background(), target)
			assert.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, 1, g.Len())
}

func TestActionGraph_Reassociate(t *testing.T) {
	g := domain.NewActionGraph("/repo", &countingRealizer{})
	a := rule("//a:a")
	require.NoError(t, g.AddRule(a))
	g.AddPlaceholder(a.Target(), domain.MustParseBuildTarget("//tools:gen"))
	require.NoError(t, g.ResolveImplicit(context.Background()))
	before := g.LateBoundDeps(a.Target())

	assert.Equal(t, 1, g.Reassociate())
	after := g.LateBoundDeps(a.Target())
	require.Len(t, after, 1)
	assert.Same(t, before[0], after[0])
}

func TestActionGraph_RequireRuleWithoutRealizer(t *testing.T) {
	g := domain.NewActionGraph("/repo", nil)
	_, err := g.RequireRule(context.Background(), domain.MustParseBuildTarget("//x:x"))
	assert.ErrorContains(t, err, "target not found")
}

func TestActionGraph_Closure(t *testing.T) {
	g := domain.NewActionGraph("/repo", &countingRealizer{})
	d := rule("//d:d")
	b := rule("//b:b", d)
	a := rule("//a:a", b)
	other := rule("//other:other")
	for _, r := range []*domain.BuildRule{d, b, a, other} {
		require.NoError(t, g.AddRule(r))
	}
	g.AddPlaceholder(b.Target(), domain.MustParseBuildTarget("//tools:gen"))
	require.NoError(t, g.ResolveImplicit(context.Background()))

	closure, err := g.Closure([]domain.BuildTarget{a.Target()})
	require.NoError(t, err)
	names := make([]string, 0, len(closure))
	for _, r := range closure {
		names = append(names, r.String())
	}
	assert.Equal(t, []string{"//a:a", "//b:b", "//d:d", "//tools:gen"}, names)

	all, err := g.Closure(nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = g.Closure([]domain.BuildTarget{domain.MustParseBuildTarget("//nope:nope")})
	assert.ErrorContains(t, err, "target not found")
}

func TestCapabilityOf(t *testing.T) {
	r := domain.NewBuildRule(domain.BuildRuleParams{
		Target:    domain.MustParseBuildTarget("//lib:z"),
		Buildable: noopBuildable{},
		Capabilities: []any{
			domain.NativeLinkable{LinkerFlags: []string{"-lz"}},
		},
	})

	nl, ok := domain.CapabilityOf[domain.NativeLinkable](r)
	require.True(t, ok)
	assert.Equal(t, []string{"-lz"}, nl.LinkerFlags)

	_, ok = domain.CapabilityOf[domain.HasRuntimeDeps](r)
	assert.False(t, ok)
}
