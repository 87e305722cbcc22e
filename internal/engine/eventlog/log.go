// Package eventlog implements the sequenced event log of distributed builds.
//
// Slaves publish events that receive consecutive sequence numbers per run. Readers
// ask for ranges and only ever see gap free prefixes of the log.
package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultQueryTimeout bounds a single range query against the store.
const DefaultQueryTimeout = 5 * time.Second

// Options configures a Log.
type Options struct {
	QueryTimeout time.Duration
	Clock        clockwork.Clock
}

// Log is the run level API over an EventStore.
type Log struct {
	store   ports.EventStore
	logger  ports.Logger
	metrics ports.Metrics
	clock   clockwork.Clock
	timeout time.Duration
}

var _ ports.EventLog = (*Log)(nil)

// NewLog creates a Log. Metrics may be nil.
func NewLog(store ports.EventStore, logger ports.Logger, metrics ports.Metrics, opts Options) *Log {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Log{
		store:   store,
		logger:  logger,
		metrics: metrics,
		clock:   opts.Clock,
		timeout: opts.QueryTimeout,
	}
}

// OpenRun registers a fresh run in the store.
func (l *Log) OpenRun(ctx context.Context) (domain.RunID, error) {
	runID := domain.RunID(uuid.NewString())
	if err := l.store.CreateRun(ctx, runID); err != nil {
		return "", zerr.With(err, "backend", l.store.Name())
	}
	l.logger.Debug("opened run", "run", runID.String())
	return runID, nil
}

// Append stores one event and returns its sequence number.
func (l *Log) Append(ctx context.Context, runID domain.RunID, event domain.BuildSlaveEvent) (int64, error) {
	event.RunID = runID
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock.Now()
	}
	seq, err := l.store.Append(ctx, runID, event)
	if err != nil {
		return 0, zerr.With(zerr.With(err, "run", runID.String()), "backend", l.store.Name())
	}
	if l.metrics != nil {
		l.metrics.EventsAppended(1)
	}
	return seq, nil
}

// Publish appends events in order. On failure the sequences of the events stored so
// far are returned with the error.
func (l *Log) Publish(ctx context.Context, runID domain.RunID, events []domain.BuildSlaveEvent) ([]int64, error) {
	seqs := make([]int64, 0, len(events))
	for _, e := range events {
		seq, err := l.Append(ctx, runID, e)
		if err != nil {
			return seqs, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

// Query answers a range query. It never returns an error: failures are reported in
// the range. An open Last is the committed watermark at call time, and an explicit
// Last beyond it is clamped.
func (l *Log) Query(ctx context.Context, q domain.EventsQuery) domain.EventsRange {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	first := int64(1)
	if q.First != nil {
		first = *q.First
	}
	if first < 1 {
		return domain.RangeFailed(q, zerr.With(domain.ErrInvalidEventsRange, "first", first).Error())
	}

	watermark, err := l.store.Watermark(ctx, q.RunID)
	if err != nil {
		return l.failed(q, err)
	}
	last := watermark
	if q.Last != nil && *q.Last < watermark {
		last = *q.Last
	}
	if first > last {
		return domain.RangeSucceeded(q, nil)
	}

	events, err := l.store.Range(ctx, q.RunID, first, last)
	if err != nil {
		return l.failed(q, err)
	}
	if err := verifyRange(q.RunID, first, last, events); err != nil {
		l.logger.Error(err)
		return domain.RangeFailed(q, err.Error())
	}
	return domain.RangeSucceeded(q, events)
}

func (l *Log) failed(q domain.EventsQuery, err error) domain.EventsRange {
	err = zerr.With(zerr.With(err, "run", q.RunID.String()), "backend", l.store.Name())
	l.logger.Warn("events query failed", "run", q.RunID.String(), "error", err.Error())
	return domain.RangeFailed(q, err.Error())
}

// verifyRange checks that events cover exactly first..last.
func verifyRange(runID domain.RunID, first, last int64, events []domain.BuildSlaveEvent) error {
	if err := domain.VerifyContiguous(runID, first, events); err != nil {
		return err
	}
	if want := first + int64(len(events)); want != last+1 {
		return &domain.LogSequenceGapError{RunID: runID, Expected: want, Got: 0}
	}
	return nil
}
