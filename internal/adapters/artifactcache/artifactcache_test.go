package artifactcache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/artifactcache"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

var testKey = domain.RuleKey{1, 2, 3}

func TestMemory_PutGet(t *testing.T) {
	ctx := context.Background()
	m, err := artifactcache.NewMemory(2)
	require.NoError(t, err)

	blob := []byte("data")
	require.NoError(t, m.Put(ctx, testKey, blob))
	blob[0] = 'X'

	got, hit, err := m.Get(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("data"), got, "stored blobs are copies")

	require.NoError(t, m.Put(ctx, domain.RuleKey{2}, nil))
	require.NoError(t, m.Put(ctx, domain.RuleKey{3}, nil))
	assert.Equal(t, 2, m.Len())
	_, hit, err = m.Get(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, hit, "least recently used entry is evicted")
}

func setupTiered(t *testing.T) (*artifactcache.Tiered, *mocks.MockArtifactCache, *mocks.MockArtifactCache, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	local := mocks.NewMockArtifactCache(ctrl)
	remote := mocks.NewMockArtifactCache(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	local.EXPECT().Name().Return("dir").AnyTimes()
	remote.EXPECT().Name().Return("redis").AnyTimes()
	return artifactcache.NewTiered(local, remote, logger), local, remote, logger
}

func TestTiered_LocalHit(t *testing.T) {
	c, local, _, _ := setupTiered(t)
	local.EXPECT().Get(gomock.Any(), testKey).Return([]byte("l"), true, nil)

	blob, hit, err := c.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("l"), blob)
	assert.Equal(t, "dir+redis", c.Name())
}

func TestTiered_RemoteHitFillsLocal(t *testing.T) {
	c, local, remote, _ := setupTiered(t)
	gomock.InOrder(
		local.EXPECT().Get(gomock.Any(), testKey).Return(nil, false, nil),
		remote.EXPECT().Get(gomock.Any(), testKey).Return([]byte("r"), true, nil),
		local.EXPECT().Put(gomock.Any(), testKey, []byte("r")).Return(nil),
	)

	blob, hit, err := c.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("r"), blob)
}

func TestTiered_LocalErrorFallsThrough(t *testing.T) {
	c, local, remote, logger := setupTiered(t)
	local.EXPECT().Get(gomock.Any(), testKey).Return(nil, false, errors.New("disk"))
	remote.EXPECT().Get(gomock.Any(), testKey).Return(nil, false, nil)
	logger.EXPECT().Warn("local artifact cache failed, trying remote", gomock.Any())

	_, hit, err := c.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTiered_RemoteErrorIsReported(t *testing.T) {
	c, local, remote, _ := setupTiered(t)
	remoteErr := errors.New("connection refused")
	local.EXPECT().Get(gomock.Any(), testKey).Return(nil, false, nil)
	remote.EXPECT().Get(gomock.Any(), testKey).Return(nil, false, remoteErr)

	_, _, err := c.Get(context.Background(), testKey)
	assert.ErrorIs(t, err, remoteErr)
}

func TestTiered_PutIgnoresRemoteFailure(t *testing.T) {
	c, local, remote, logger := setupTiered(t)
	local.EXPECT().Put(gomock.Any(), testKey, []byte("b")).Return(nil)
	remote.EXPECT().Put(gomock.Any(), testKey, []byte("b")).Return(errors.New("timeout"))
	logger.EXPECT().Warn("remote artifact cache write failed", gomock.Any())

	require.NoError(t, c.Put(context.Background(), testKey, []byte("b")))
}

func TestTiered_PutFailsOnLocalFailure(t *testing.T) {
	c, local, _, _ := setupTiered(t)
	localErr := errors.New("read-only")
	local.EXPECT().Put(gomock.Any(), testKey, gomock.Any()).Return(localErr)

	assert.ErrorIs(t, c.Put(context.Background(), testKey, []byte("b")), localErr)
}

func TestOpener_Modes(t *testing.T) {
	ctrl := gomock.NewController(t)
	opener := artifactcache.NewOpener(mocks.NewMockLogger(ctrl))

	tests := []struct {
		mode     string
		wantName string
		wantNil  bool
		wantErr  bool
	}{
		{mode: "none", wantNil: true},
		{mode: "dir", wantName: "dir"},
		{mode: "memory", wantName: "memory"},
		{mode: "pebble", wantName: "pebble"},
		{mode: "dir+memory", wantName: "dir+memory"},
		{mode: "floppy", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := domain.NewConfig(map[string]map[string]string{"cache": {"mode": tt.mode}})
			h, err := opener.Open(context.Background(), t.TempDir(), cfg)
			if tt.wantErr {
				assert.ErrorContains(t, err, artifactcache.ErrUnknownMode.Error())
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = h.Close() })
			if tt.wantNil {
				assert.Nil(t, h.Cache)
				return
			}
			assert.Equal(t, tt.wantName, h.Cache.Name())
		})
	}
}

func TestOpener_DefaultIsDir(t *testing.T) {
	ctrl := gomock.NewController(t)
	opener := artifactcache.NewOpener(mocks.NewMockLogger(ctrl))

	h, err := opener.Open(context.Background(), t.TempDir(), domain.NewConfig(nil))
	require.NoError(t, err)
	assert.Equal(t, "dir", h.Cache.Name())

	ctx := context.Background()
	require.NoError(t, h.Cache.Put(ctx, testKey, []byte("x")))
	blob, hit, err := h.Cache.Get(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("x"), blob)
}
