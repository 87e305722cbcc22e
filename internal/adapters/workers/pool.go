// Package workers implements named worker pools that bound concurrent commands.
package workers

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"
)

// Pool is a weighted semaphore with a count of completed runs.
type Pool struct {
	name     string
	capacity int
	sem      *semaphore.Weighted
	runs     atomic.Int64
}

var _ ports.WorkerPool = (*Pool)(nil)

// NewPool creates a pool with capacity slots.
func NewPool(name string, capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{name: name, capacity: capacity, sem: semaphore.NewWeighted(int64(capacity))}
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Capacity implements ports.WorkerPool.
func (p *Pool) Capacity() int { return p.capacity }

// Runs returns how many times a slot was used.
func (p *Pool) Runs() int64 { return p.runs.Load() }

// Run implements ports.WorkerPool. It blocks until a slot is free or ctx is done.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	p.runs.Add(1)
	return fn(ctx)
}

// Registry holds the configured pools by name.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

var _ ports.WorkerPools = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// Configure replaces the pools with the [worker_pools] section, which maps a pool name
// to its capacity. Pools whose capacity is unchanged are kept.
func (r *Registry) Configure(section map[string]string) error {
	next := make(map[string]*Pool, len(section))
	r.mu.RLock()
	for name, raw := range section {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			r.mu.RUnlock()
			return zerr.With(zerr.With(domain.ErrInvalidConfigValue, "key", "worker_pools."+name), "value", raw)
		}
		if old, ok := r.pools[name]; ok && old.capacity == n {
			next[name] = old
			continue
		}
		next[name] = NewPool(name, n)
	}
	r.mu.RUnlock()

	r.mu.Lock()
	r.pools = next
	r.mu.Unlock()
	return nil
}

// Pool implements ports.WorkerPools.
func (r *Registry) Pool(name string) (ports.WorkerPool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	if !ok {
		return nil, zerr.With(domain.ErrUnknownWorkerPool, "pool", name)
	}
	return p, nil
}

// Names returns the configured pool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
