// Package session holds the caches that outlive a single build of one workspace.
package session

import (
	"context"
	"sync/atomic"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/engine/actiongraph"
	"go.trai.ch/rig/internal/engine/rulekey"
	"go.trai.ch/rig/internal/rules"
	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by a Session after Close.
var ErrClosed = zerr.New("session is closed")

// Params are the inputs of New.
type Params struct {
	Root             string
	Hasher           ports.FileHasher
	Registry         *rules.Registry
	Metrics          ports.Metrics
	RuleKeyCacheSize int
}

// Stats is a snapshot of the session caches.
type Stats struct {
	Graph    actiongraph.Stats
	RuleKeys int
}

// Session owns the rule key cache, the file hash cache and the action graph cache of
// one workspace root. A daemon keeps one Session for its lifetime; a one-shot command
// creates one per invocation.
type Session struct {
	root     string
	hasher   ports.FileHasher
	registry *rules.Registry
	keyCache *rulekey.Cache
	keys     *rulekey.Factory
	graphs   *actiongraph.Cache
	builds   *semaphore.Weighted
	closed   atomic.Bool
}

var _ ports.Invalidator = (*Session)(nil)

// New creates a Session.
func New(p Params) (*Session, error) {
	if p.Registry == nil {
		p.Registry = rules.DefaultRegistry()
	}
	if p.RuleKeyCacheSize <= 0 {
		p.RuleKeyCacheSize = rulekey.DefaultCacheSize
	}
	keyCache, err := rulekey.NewCache(p.RuleKeyCacheSize)
	if err != nil {
		return nil, err
	}
	return &Session{
		root:     p.Root,
		hasher:   p.Hasher,
		registry: p.Registry,
		keyCache: keyCache,
		keys:     rulekey.NewFactory(p.Root, p.Hasher, keyCache),
		graphs:   actiongraph.NewCache(actiongraph.NewBuilder(p.Registry), p.Metrics),
		builds:   semaphore.NewWeighted(1),
	}, nil
}

// Root returns the workspace root.
func (s *Session) Root() string { return s.root }

// Registry returns the rule descriptions of the session.
func (s *Session) Registry() *rules.Registry { return s.registry }

// Keys returns the rule key factory.
func (s *Session) Keys() *rulekey.Factory { return s.keys }

// ActionGraph returns the action graph of tg, reused when tg is structurally unchanged.
func (s *Session) ActionGraph(ctx context.Context, tg *domain.TargetGraph) (*domain.ActionGraph, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.graphs.Get(ctx, tg)
}

// BeginBuild waits until no other build of the session runs. Builds share the output
// tree of the root, so they never overlap. The returned func ends the build.
func (s *Session) BeginBuild(ctx context.Context) (func(), error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := s.builds.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.builds.Release(1) }, nil
}

// Invalidate drops file hashes and rule keys derived from paths.
func (s *Session) Invalidate(paths []string) {
	if len(paths) == 0 {
		return
	}
	s.hasher.Invalidate(paths)
	s.keyCache.Invalidate(paths)
}

// InvalidateGraph drops the cached action graph.
func (s *Session) InvalidateGraph() {
	s.graphs.Invalidate()
}

// Stats reports the cache state.
func (s *Session) Stats() Stats {
	return Stats{Graph: s.graphs.Stats(), RuleKeys: s.keyCache.Len()}
}

// Close releases the caches. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.graphs.Invalidate()
	s.keyCache.Purge()
	return nil
}
