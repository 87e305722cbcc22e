package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/core/domain"
)

func node(name string, deps ...string) *domain.TargetNode {
	n := &domain.TargetNode{
		Target:   domain.MustParseBuildTarget(name),
		RuleType: "genrule",
	}
	for _, d := range deps {
		n.Deps = append(n.Deps, domain.MustParseBuildTarget(d))
	}
	return n
}

func TestTargetGraph_Cycle(t *testing.T) {
	tests := []struct {
		name      string
		nodes     []*domain.TargetNode
		wantErr   bool
		wantCycle string
	}{
		{
			name:      "Simple Cycle A->A",
			nodes:     []*domain.TargetNode{node("//a:a", "//a:a")},
			wantErr:   true,
			wantCycle: "//a:a -> //a:a",
		},
		{
			name:      "Two Node Cycle A->B->A",
			nodes:     []*domain.TargetNode{node("//a:a", "//b:b"), node("//b:b", "//a:a")},
			wantErr:   true,
			wantCycle: "//a:a -> //b:b -> //a:a",
		},
		{
			name: "Three Node Cycle A->B->C->A",
			nodes: []*domain.TargetNode{
				node("//a:a", "//b:b"),
				node("//b:b", "//c:c"),
				node("//c:c", "//a:a"),
			},
			wantErr:   true,
			wantCycle: "//a:a -> //b:b -> //c:c -> //a:a",
		},
		{
			name: "No Cycle A->B->C",
			nodes: []*domain.TargetNode{
				node("//a:a", "//b:b"),
				node("//b:b", "//c:c"),
				node("//c:c"),
			},
		},
		{
			name: "Disconnected Components No Cycle",
			nodes: []*domain.TargetNode{
				node("//a:a", "//b:b"),
				node("//b:b"),
				node("//c:c", "//d:d"),
				node("//d:d"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := domain.NewTargetGraph()
			for _, n := range tt.nodes {
				require.NoError(t, g.AddNode(n))
			}
			err := g.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cycleErr *domain.CyclicDependencyError
			require.ErrorAs(t, err, &cycleErr)
			assert.Contains(t, err.Error(), "cycle detected")
			assert.Contains(t, err.Error(), tt.wantCycle)
		})
	}
}

func TestTargetGraph_ImplicitCycle(t *testing.T) {
	g := domain.NewTargetGraph()
	a := node("//a:a")
	a.ImplicitDeps = []domain.BuildTarget{domain.MustParseBuildTarget("//b:b")}
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(node("//b:b", "//a:a")))

	var cycleErr *domain.CyclicDependencyError
	require.ErrorAs(t, g.Validate(), &cycleErr)
	assert.Len(t, cycleErr.Path, 3)
}

func TestTargetGraph_MissingDependency(t *testing.T) {
	g := domain.NewTargetGraph()
	require.NoError(t, g.AddNode(node("//a:a", "//missing:dep")))

	err := g.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "missing dependency")
}

func TestTargetGraph_DuplicateTarget(t *testing.T) {
	g := domain.NewTargetGraph()
	require.NoError(t, g.AddNode(node("//a:a")))
	err := g.AddNode(node("//a:a"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "target already exists")
}

func TestTargetGraph_TopologicalWalk(t *testing.T) {
	// A -> B, C; B -> D; C -> D
	g := domain.NewTargetGraph()
	require.NoError(t, g.AddNode(node("//a:a", "//b:b", "//c:c")))
	require.NoError(t, g.AddNode(node("//b:b", "//d:d")))
	require.NoError(t, g.AddNode(node("//c:c", "//d:d")))
	require.NoError(t, g.AddNode(node("//d:d")))
	require.NoError(t, g.Validate())

	var order []string //nolint:prealloc // Graph size is not easily accessible here
	for n := range g.Walk() {
		order = append(order, n.Target.String())
	}

	assert.Equal(t, []string{"//d:d", "//b:b", "//c:c", "//a:a"}, order)
}

func TestTargetGraph_Fingerprint(t *testing.T) {
	build := func(mutate func(n *domain.TargetNode)) domain.Fingerprint {
		g := domain.NewTargetGraph()
		g.SetRoot("/repo")
		a := node("//a:a", "//b:b")
		a.Attrs = domain.Attributes{"cmd": "echo hi", "srcs": []any{"x.txt"}}
		if mutate != nil {
			mutate(a)
		}
		require.NoError(t, g.AddNode(node("//b:b")))
		require.NoError(t, g.AddNode(a))
		return g.Fingerprint()
	}

	base := build(nil)
	assert.Equal(t, base, build(nil), "fingerprint must be deterministic")

	tests := []struct {
		name   string
		mutate func(n *domain.TargetNode)
	}{
		{"attribute value", func(n *domain.TargetNode) { n.Attrs["cmd"] = "echo bye" }},
		{"new attribute", func(n *domain.TargetNode) { n.Attrs["out"] = "o" }},
		{"rule type", func(n *domain.TargetNode) { n.RuleType = "export_file" }},
		{"declared dep", func(n *domain.TargetNode) { n.Deps = nil }},
		{"implicit dep", func(n *domain.TargetNode) {
			n.ImplicitDeps = []domain.BuildTarget{domain.MustParseBuildTarget("//b:b")}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, build(tt.mutate))
		})
	}
}

func TestTargetGraph_FingerprintInsertionOrder(t *testing.T) {
	g1 := domain.NewTargetGraph()
	require.NoError(t, g1.AddNode(node("//a:a", "//c:c", "//b:b")))
	require.NoError(t, g1.AddNode(node("//b:b")))
	require.NoError(t, g1.AddNode(node("//c:c")))

	g2 := domain.NewTargetGraph()
	require.NoError(t, g2.AddNode(node("//c:c")))
	require.NoError(t, g2.AddNode(node("//b:b")))
	require.NoError(t, g2.AddNode(node("//a:a", "//b:b", "//c:c")))

	assert.Equal(t, g1.Fingerprint(), g2.Fingerprint())
}

func TestCyclicDependencyError_Is(t *testing.T) {
	err := &domain.CyclicDependencyError{Path: []domain.BuildTarget{
		domain.MustParseBuildTarget("//a:a"),
		domain.MustParseBuildTarget("//a:a"),
	}}
	assert.True(t, errors.Is(err, domain.ErrCycleDetected))
}
