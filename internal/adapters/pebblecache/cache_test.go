package pebblecache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/pebblecache"
	"go.trai.ch/rig/internal/core/domain"
)

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := pebblecache.Open(dir)
	require.NoError(t, err)

	var key domain.RuleKey
	key[0] = 0x42

	_, hit, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Put(ctx, key, []byte("archive")))
	blob, hit, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("archive"), blob)
	require.NoError(t, c.Close())

	reopened, err := pebblecache.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	blob, hit, err = reopened.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, hit, "entries survive a reopen")
	assert.Equal(t, []byte("archive"), blob)
}
