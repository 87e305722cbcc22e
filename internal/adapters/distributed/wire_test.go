package distributed_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/distributed"
	"go.trai.ch/rig/internal/core/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

func ptr[T any](v T) *T { return &v }

func TestWireEventsRange_Validate(t *testing.T) {
	query := &distributed.WireQuery{RunID: "run"}
	tests := []struct {
		name    string
		wire    distributed.WireEventsRange
		wantErr string
	}{
		{
			name: "success with events",
			wire: distributed.WireEventsRange{Success: ptr(true), Query: query, HasEvents: true},
		},
		{
			name: "failure with message",
			wire: distributed.WireEventsRange{Success: ptr(false), Query: query, ErrorMessage: ptr("boom")},
		},
		{
			name:    "success missing",
			wire:    distributed.WireEventsRange{Query: query, HasEvents: true},
			wantErr: "success is not set",
		},
		{
			name:    "query missing",
			wire:    distributed.WireEventsRange{Success: ptr(true), HasEvents: true},
			wantErr: "query is not set",
		},
		{
			name: "success with error message",
			wire: distributed.WireEventsRange{
				Success: ptr(true), Query: query, HasEvents: true, ErrorMessage: ptr("boom"),
			},
			wantErr: "carries an error message",
		},
		{
			name:    "success without events",
			wire:    distributed.WireEventsRange{Success: ptr(true), Query: query},
			wantErr: "carries no events",
		},
		{
			name: "failure with events",
			wire: distributed.WireEventsRange{
				Success: ptr(false), Query: query, ErrorMessage: ptr("boom"), HasEvents: true,
			},
			wantErr: "failed range carries events",
		},
		{
			name:    "failure without message",
			wire:    distributed.WireEventsRange{Success: ptr(false), Query: query},
			wantErr: "carries no error message",
		},
		{
			name:    "failure with empty message",
			wire:    distributed.WireEventsRange{Success: ptr(false), Query: query, ErrorMessage: ptr("")},
			wantErr: "carries no error message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wire.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorContains(t, err, domain.ErrInvalidEventsRange.Error())
			assert.ErrorContains(t, err, tt.wantErr)

			_, err = tt.wire.Decode()
			assert.Error(t, err)
		})
	}
}

func TestWireEventsRange_StructRoundTrip(t *testing.T) {
	q := domain.EventsQuery{RunID: "run", First: domain.Seq(1 << 60), Last: domain.Seq(1<<60 + 1)}
	events := []domain.BuildSlaveEvent{
		{
			RunID: "run", Seq: 1 << 60, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 42, time.UTC),
			SlaveID: "s", Type: domain.EventCacheHit, Payload: map[string]string{"target": "//a:a"},
		},
		{RunID: "run", Seq: 1<<60 + 1, Type: "custom"},
	}

	wire := distributed.EncodeRange(domain.RangeSucceeded(q, events))
	parsed, err := distributed.RangeFromStruct(wire.ToStruct())
	require.NoError(t, err)
	decoded, err := parsed.Decode()
	require.NoError(t, err)

	require.True(t, decoded.Succeeded())
	if diff := cmp.Diff(events, decoded.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, q, decoded.Query())

	failed := distributed.EncodeRange(domain.RangeFailed(domain.EventsQuery{RunID: "run"}, "boom"))
	parsed, err = distributed.RangeFromStruct(failed.ToStruct())
	require.NoError(t, err)
	decoded, err = parsed.Decode()
	require.NoError(t, err)
	assert.False(t, decoded.Succeeded())
	assert.Equal(t, "boom", decoded.ErrorMessage())
	assert.Nil(t, decoded.Query().First)
}

func TestRangeFromStruct_Malformed(t *testing.T) {
	tests := map[string]map[string]any{
		"success not bool":    {"success": "yes"},
		"message not string":  {"error_message": 3},
		"query not struct":    {"query": "run"},
		"query without run":   {"query": map[string]any{"first": "1"}},
		"first not decimal":   {"query": map[string]any{"run_id": "r", "first": "one"}},
		"first as number":     {"query": map[string]any{"run_id": "r", "first": 1}},
		"events not list":     {"events": "none"},
		"event not struct":    {"events": []any{"e"}},
		"event bad timestamp": {"events": []any{map[string]any{"timestamp": "yesterday"}}},
	}
	for name, fields := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := structpb.NewStruct(fields)
			require.NoError(t, err)
			_, err = distributed.RangeFromStruct(s)
			assert.ErrorContains(t, err, distributed.ErrMalformedMessage.Error())
		})
	}
}
