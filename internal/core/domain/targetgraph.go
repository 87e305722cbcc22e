package domain

import (
	"encoding/binary"
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// TargetNode is an unresolved build declaration: the rule type, its attributes and
// the targets it depends on.
type TargetNode struct {
	Target   BuildTarget
	RuleType string
	// Deps are the declared dependencies, wired as action graph edges.
	Deps []BuildTarget
	// ImplicitDeps are realized lazily by the action graph resolver.
	ImplicitDeps []BuildTarget
	Attrs        Attributes
}

// Fingerprint is a structural hash of a target graph.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// TargetGraph is the pre-resolution graph of target nodes.
type TargetGraph struct {
	root           string
	nodes          map[BuildTarget]*TargetNode
	executionOrder []BuildTarget
}

// NewTargetGraph creates a new empty TargetGraph.
func NewTargetGraph() *TargetGraph {
	return &TargetGraph{
		nodes: make(map[BuildTarget]*TargetNode),
	}
}

// SetRoot sets the workspace root directory of the graph.
func (g *TargetGraph) SetRoot(root string) {
	g.root = root
}

// Root returns the workspace root directory of the graph.
func (g *TargetGraph) Root() string {
	return g.root
}

// AddNode adds a node to the graph. Dependency lists are sorted and de-duplicated.
// It returns an error if a node with the same target already exists.
func (g *TargetGraph) AddNode(n *TargetNode) error {
	if _, exists := g.nodes[n.Target]; exists {
		return zerr.With(ErrTargetAlreadyExists, "target", n.Target.String())
	}
	n.Deps = SortTargets(slices.Clone(n.Deps))
	n.ImplicitDeps = SortTargets(slices.Clone(n.ImplicitDeps))
	g.nodes[n.Target] = n
	g.executionOrder = nil
	return nil
}

// Node returns the node for a target.
func (g *TargetGraph) Node(t BuildTarget) (*TargetNode, bool) {
	n, ok := g.nodes[t]
	return n, ok
}

// NodeCount returns the number of nodes.
func (g *TargetGraph) NodeCount() int {
	return len(g.nodes)
}

// Targets returns all targets sorted by name.
func (g *TargetGraph) Targets() []BuildTarget {
	targets := make([]BuildTarget, 0, len(g.nodes))
	for t := range g.nodes {
		targets = append(targets, t)
	}
	slices.SortFunc(targets, BuildTarget.Compare)
	return targets
}

// Validate checks that every dependency exists and that declared and implicit
// dependencies form no cycle. It populates the execution order on success.
func (g *TargetGraph) Validate() error {
	order := make([]BuildTarget, 0, len(g.nodes))
	visited := make(map[BuildTarget]int) // 0: unvisited, 1: visiting, 2: visited
	var path []BuildTarget

	var visit func(u BuildTarget) error
	visit = func(u BuildTarget) error {
		visited[u] = 1
		path = append(path, u)

		node := g.nodes[u]
		for _, dep := range concatDeps(node) {
			if _, exists := g.nodes[dep]; !exists {
				err := zerr.With(ErrMissingDependency, "dependency", dep.String())
				return zerr.With(err, "target", u.String())
			}
			if visited[dep] == 1 {
				return buildCycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		order = append(order, u)
		return nil
	}

	// Sorted iteration keeps the execution order stable across runs.
	for _, t := range g.Targets() {
		if visited[t] == 0 {
			if err := visit(t); err != nil {
				return err
			}
		}
	}

	g.executionOrder = order
	return nil
}

func concatDeps(n *TargetNode) []BuildTarget {
	if len(n.ImplicitDeps) == 0 {
		return n.Deps
	}
	all := make([]BuildTarget, 0, len(n.Deps)+len(n.ImplicitDeps))
	all = append(all, n.Deps...)
	return append(all, n.ImplicitDeps...)
}

// buildCycleError constructs a CyclicDependencyError from the DFS path.
func buildCycleError(path []BuildTarget, dep BuildTarget) error {
	startIdx := slices.Index(path, dep)
	cycle := make([]BuildTarget, 0, len(path)-startIdx+1)
	cycle = append(cycle, path[startIdx:]...)
	cycle = append(cycle, dep)
	return &CyclicDependencyError{Path: cycle}
}

// Walk returns an iterator that yields nodes dependencies-first.
// It assumes Validate() has been called and returned nil.
func (g *TargetGraph) Walk() iter.Seq[*TargetNode] {
	return func(yield func(*TargetNode) bool) {
		for _, t := range g.executionOrder {
			if !yield(g.nodes[t]) {
				return
			}
		}
	}
}

// Fingerprint computes a structural hash over every node, its rule type, attributes
// and both kinds of dependency edges. Two graphs with the same structure produce the
// same fingerprint regardless of insertion order.
func (g *TargetGraph) Fingerprint() Fingerprint {
	h := xxhash.New()
	_, _ = h.WriteString(g.root)
	_, _ = h.Write([]byte{0})

	for _, t := range g.Targets() {
		n := g.nodes[t]
		writeField(h, t.String())
		writeField(h, n.RuleType)
		for _, d := range n.Deps {
			writeField(h, d.String())
		}
		_, _ = h.Write([]byte{1})
		for _, d := range n.ImplicitDeps {
			writeField(h, d.String())
		}
		_, _ = h.Write([]byte{2})
		hashAttributes(h, n.Attrs)
		_, _ = h.Write([]byte{3})
	}

	return Fingerprint(h.Sum64())
}

func writeField(h *xxhash.Digest, s string) {
	_, _ = h.WriteString(s)
	_, _ = h.Write([]byte{0})
}

func hashAttributes(h *xxhash.Digest, attrs Attributes) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		writeField(h, k)
		hashValue(h, attrs[k])
	}
}

func hashValue(h *xxhash.Digest, v any) {
	var buf [8]byte
	switch val := v.(type) {
	case nil:
		_, _ = h.Write([]byte{'n'})
	case string:
		_, _ = h.Write([]byte{'s'})
		writeField(h, val)
	case bool:
		_, _ = h.Write([]byte{'b'})
		_, _ = h.WriteString(strconv.FormatBool(val))
	case int:
		_, _ = h.Write([]byte{'i'})
		binary.LittleEndian.PutUint64(buf[:], uint64(val)) //nolint:gosec // bit pattern only
		_, _ = h.Write(buf[:])
	case int64:
		_, _ = h.Write([]byte{'i'})
		binary.LittleEndian.PutUint64(buf[:], uint64(val)) //nolint:gosec // bit pattern only
		_, _ = h.Write(buf[:])
	case float64:
		_, _ = h.Write([]byte{'f'})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(val))
		_, _ = h.Write(buf[:])
	case []string:
		_, _ = h.Write([]byte{'l'})
		for _, s := range val {
			writeField(h, s)
		}
		_, _ = h.Write([]byte{'e'})
	case []any:
		_, _ = h.Write([]byte{'l'})
		for _, item := range val {
			hashValue(h, item)
		}
		_, _ = h.Write([]byte{'e'})
	case map[string]any:
		_, _ = h.Write([]byte{'m'})
		hashAttributes(h, val)
		_, _ = h.Write([]byte{'e'})
	case map[string]string:
		_, _ = h.Write([]byte{'m'})
		converted := make(Attributes, len(val))
		for k, s := range val {
			converted[k] = s
		}
		hashAttributes(h, converted)
		_, _ = h.Write([]byte{'e'})
	default:
		_, _ = h.Write([]byte{'?'})
		writeField(h, fmt.Sprintf("%v", val))
	}
}
