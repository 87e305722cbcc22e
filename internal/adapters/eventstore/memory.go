// Package eventstore provides EventStore backends for the distributed event log.
package eventstore

import (
	"context"
	"sync"
	"sync/atomic"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

// MemoryStore keeps events in process. Appends only synchronize on the per run
// sequence counter.
type MemoryStore struct {
	runs sync.Map // domain.RunID -> *memoryRun
}

var _ ports.EventStore = (*MemoryStore)(nil)

type memoryRun struct {
	next      atomic.Int64
	committed atomic.Int64
	events    sync.Map // int64 -> domain.BuildSlaveEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Name implements ports.EventStore.
func (s *MemoryStore) Name() string { return "memory" }

// CreateRun implements ports.EventStore. Creating an existing run is a no-op.
func (s *MemoryStore) CreateRun(_ context.Context, runID domain.RunID) error {
	s.runs.LoadOrStore(runID, &memoryRun{})
	return nil
}

func (s *MemoryStore) run(runID domain.RunID) (*memoryRun, error) {
	v, ok := s.runs.Load(runID)
	if !ok {
		return nil, zerr.With(domain.ErrUnknownRun, "run", runID.String())
	}
	return v.(*memoryRun), nil
}

// Append implements ports.EventStore.
func (s *MemoryStore) Append(ctx context.Context, runID domain.RunID, event domain.BuildSlaveEvent) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r, err := s.run(runID)
	if err != nil {
		return 0, err
	}
	seq := r.next.Add(1)
	event.RunID = runID
	event.Seq = seq
	r.events.Store(seq, event)
	r.advance()
	return seq, nil
}

// advance moves the watermark over every contiguous stored sequence.
func (r *memoryRun) advance() {
	for {
		c := r.committed.Load()
		if _, ok := r.events.Load(c + 1); !ok {
			return
		}
		r.committed.CompareAndSwap(c, c+1)
	}
}

// Watermark implements ports.EventStore.
func (s *MemoryStore) Watermark(_ context.Context, runID domain.RunID) (int64, error) {
	r, err := s.run(runID)
	if err != nil {
		return 0, err
	}
	return r.committed.Load(), nil
}

// Range implements ports.EventStore.
func (s *MemoryStore) Range(ctx context.Context, runID domain.RunID, first, last int64) ([]domain.BuildSlaveEvent, error) {
	r, err := s.run(runID)
	if err != nil {
		return nil, err
	}
	if last < first {
		return nil, nil
	}
	out := make([]domain.BuildSlaveEvent, 0, last-first+1)
	for seq := first; seq <= last; seq++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if v, ok := r.events.Load(seq); ok {
			out = append(out, v.(domain.BuildSlaveEvent))
		}
	}
	return out, nil
}
