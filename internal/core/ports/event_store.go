package ports

import (
	"context"

	"go.trai.ch/rig/internal/core/domain"
)

//go:generate mockgen -source=event_store.go -destination=mocks/mock_event_store.go -package=mocks

// EventStore persists the sequenced events of distributed builds.
type EventStore interface {
	// CreateRun registers a new run.
	CreateRun(ctx context.Context, runID domain.RunID) error

	// Append assigns the next sequence number of the run to event, stores it and
	// returns the sequence. Appending to an unknown run fails with ErrUnknownRun.
	Append(ctx context.Context, runID domain.RunID, event domain.BuildSlaveEvent) (int64, error)

	// Watermark returns the highest sequence below which every event is stored.
	Watermark(ctx context.Context, runID domain.RunID) (int64, error)

	// Range returns the stored events with first <= seq <= last in ascending order.
	Range(ctx context.Context, runID domain.RunID, first, last int64) ([]domain.BuildSlaveEvent, error)

	// Name identifies the backend in logs.
	Name() string
}

// EventLog is the run level API used by build slaves and the coordinator.
type EventLog interface {
	// OpenRun starts a new distributed build.
	OpenRun(ctx context.Context) (domain.RunID, error)

	// Publish appends events in order and returns their sequence numbers.
	Publish(ctx context.Context, runID domain.RunID, events []domain.BuildSlaveEvent) ([]int64, error)

	// Query answers a range query. Failures are reported in the returned range.
	Query(ctx context.Context, q domain.EventsQuery) domain.EventsRange
}
