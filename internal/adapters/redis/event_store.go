package redis

import (
	"context"
	"encoding/json"
	"strconv"

	goredis "github.com/go-redis/redis/v8"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

var (
	// KEYS[1] = run meta hash, KEYS[2] = events hash, ARGV[1] = encoded event.
	// The encoded event is stored without its sequence, which is the hash field.
	appendEvent = goredis.NewScript(`
		if redis.call("exists", KEYS[1]) == 0 then
			return -1
		end
		local seq = redis.call("hincrby", KEYS[1], "next", 1)
		redis.call("hset", KEYS[2], seq, ARGV[1])
		redis.call("hset", KEYS[1], "committed", seq)
		return seq`)

	// KEYS[1] = run meta hash. Returns -1 for an unknown run.
	readWatermark = goredis.NewScript(`
		if redis.call("exists", KEYS[1]) == 0 then
			return -1
		end
		return tonumber(redis.call("hget", KEYS[1], "committed") or "0")`)
)

// EventStore keeps the events of a run in a Redis hash. Sequence assignment and
// storage happen in one Lua script, so the watermark is the last assigned sequence.
type EventStore struct {
	client goredis.UniversalClient
}

var _ ports.EventStore = (*EventStore)(nil)

// NewEventStore creates an EventStore.
func NewEventStore(client goredis.UniversalClient) *EventStore {
	return &EventStore{client: client}
}

// Name implements ports.EventStore.
func (s *EventStore) Name() string { return "redis" }

func metaKey(runID domain.RunID) string   { return keyPrefix + "run:" + runID.String() }
func eventsKey(runID domain.RunID) string { return keyPrefix + "run:" + runID.String() + ":events" }

func unknownRun(runID domain.RunID) error {
	return zerr.With(domain.ErrUnknownRun, "run", runID.String())
}

// CreateRun implements ports.EventStore.
func (s *EventStore) CreateRun(ctx context.Context, runID domain.RunID) error {
	return s.client.HSetNX(ctx, metaKey(runID), "next", 0).Err()
}

// Append implements ports.EventStore.
func (s *EventStore) Append(ctx context.Context, runID domain.RunID, event domain.BuildSlaveEvent) (int64, error) {
	event.RunID = runID
	event.Seq = 0
	data, err := json.Marshal(event)
	if err != nil {
		return 0, err
	}
	seq, err := appendEvent.Run(ctx, s.client, []string{metaKey(runID), eventsKey(runID)}, data).Int64()
	if err != nil {
		return 0, err
	}
	if seq < 0 {
		return 0, unknownRun(runID)
	}
	return seq, nil
}

// Watermark implements ports.EventStore.
func (s *EventStore) Watermark(ctx context.Context, runID domain.RunID) (int64, error) {
	wm, err := readWatermark.Run(ctx, s.client, []string{metaKey(runID)}).Int64()
	if err != nil {
		return 0, err
	}
	if wm < 0 {
		return 0, unknownRun(runID)
	}
	return wm, nil
}

// Range implements ports.EventStore. Missing sequences are left out.
func (s *EventStore) Range(ctx context.Context, runID domain.RunID, first, last int64) ([]domain.BuildSlaveEvent, error) {
	if last < first {
		return nil, nil
	}
	fields := make([]string, 0, last-first+1)
	for seq := first; seq <= last; seq++ {
		fields = append(fields, strconv.FormatInt(seq, 10))
	}
	values, err := s.client.HMGet(ctx, eventsKey(runID), fields...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.BuildSlaveEvent, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e domain.BuildSlaveEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreCorrupt.Error()), "seq", fields[i])
		}
		e.Seq = first + int64(i)
		out = append(out, e)
	}
	return out, nil
}
