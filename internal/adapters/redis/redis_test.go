package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/redis"
	"go.trai.ch/rig/internal/core/domain"
)

// requireRedis returns the server named by RIG_TEST_REDIS_ADDR or skips the test.
func requireRedis(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("RIG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RIG_TEST_REDIS_ADDR not set")
	}
	return addr
}

func TestArtifactCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := redis.Dial(ctx, requireRedis(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := redis.NewArtifactCache(client, time.Minute)
	var key domain.RuleKey
	copy(key[:], uuid.New().String())

	_, hit, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Put(ctx, key, []byte("blob")))
	blob, hit, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("blob"), blob)
}

func TestEventStore_AppendRange(t *testing.T) {
	ctx := context.Background()
	client, err := redis.Dial(ctx, requireRedis(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s := redis.NewEventStore(client)
	runID := domain.RunID(uuid.NewString())

	_, err = s.Append(ctx, runID, domain.BuildSlaveEvent{})
	require.ErrorContains(t, err, domain.ErrUnknownRun.Error())

	require.NoError(t, s.CreateRun(ctx, runID))
	for i := range 4 {
		seq, err := s.Append(ctx, runID, domain.BuildSlaveEvent{
			Type:    domain.EventConsole,
			Payload: map[string]string{"line": "x"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}

	wm, err := s.Watermark(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), wm)

	events, err := s.Range(ctx, runID, 2, 4)
	require.NoError(t, err)
	require.NoError(t, domain.VerifyContiguous(runID, 2, events))
	assert.Len(t, events, 3)
	assert.Equal(t, "x", events[0].Payload["line"])
}
