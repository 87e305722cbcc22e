package eventstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/eventstore"
	"go.trai.ch/rig/internal/core/domain"
)

func TestMemoryStore_AppendAndRange(t *testing.T) {
	ctx := context.Background()
	s := eventstore.NewMemoryStore()
	require.NoError(t, s.CreateRun(ctx, "run"))

	for i := range 5 {
		seq, err := s.Append(ctx, "run", domain.BuildSlaveEvent{Type: domain.EventConsole})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}

	wm, err := s.Watermark(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, int64(5), wm)

	events, err := s.Range(ctx, "run", 2, 4)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, domain.RunID("run"), events[0].RunID)
	assert.Equal(t, int64(4), events[2].Seq)
}

func TestMemoryStore_UnknownRun(t *testing.T) {
	ctx := context.Background()
	s := eventstore.NewMemoryStore()

	_, err := s.Append(ctx, "nope", domain.BuildSlaveEvent{})
	assert.ErrorContains(t, err, domain.ErrUnknownRun.Error())
	_, err = s.Watermark(ctx, "nope")
	assert.ErrorContains(t, err, domain.ErrUnknownRun.Error())
	_, err = s.Range(ctx, "nope", 1, 2)
	assert.ErrorContains(t, err, domain.ErrUnknownRun.Error())
}

func TestMemoryStore_ConcurrentAppenders(t *testing.T) {
	ctx := context.Background()
	s := eventstore.NewMemoryStore()
	require.NoError(t, s.CreateRun(ctx, "run"))

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				_, err := s.Append(ctx, "run", domain.BuildSlaveEvent{})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	wm, err := s.Watermark(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), wm)

	events, err := s.Range(ctx, "run", 1, wm)
	require.NoError(t, err)
	require.NoError(t, domain.VerifyContiguous("run", 1, events))
}
