package watcher_test

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/watcher"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func eventSeq(events ...ports.WatchEvent) iter.Seq[ports.WatchEvent] {
	return func(yield func(ports.WatchEvent) bool) {
		for _, e := range events {
			if !yield(e) {
				return
			}
		}
	}
}

func TestPump_FlushesOnEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	w := mocks.NewMockWatcher(ctrl)
	inv := mocks.NewMockInvalidator(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug("invalidating changed paths", gomock.Any()).AnyTimes()

	w.EXPECT().Start(gomock.Any(), "/repo").Return(nil)
	w.EXPECT().Events().Return(eventSeq(
		ports.WatchEvent{Path: "/repo/b/../a.txt", Operation: ports.OpWrite},
		ports.WatchEvent{Path: "/repo/c.txt", Operation: ports.OpCreate},
	))
	inv.EXPECT().Invalidate([]string{"/repo/a.txt", "/repo/c.txt"}).Times(1)

	p := watcher.NewPump(w, inv, logger, time.Hour)
	require.NoError(t, p.Run(context.Background(), "/repo"))
}

func TestPump_StartFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	w := mocks.NewMockWatcher(ctrl)
	w.EXPECT().Start(gomock.Any(), "/repo").Return(assert.AnError)

	p := watcher.NewPump(w, mocks.NewMockInvalidator(ctrl), mocks.NewMockLogger(ctrl), 0)
	assert.ErrorIs(t, p.Run(context.Background(), "/repo"), assert.AnError)
}

func TestWatcher_ReportsChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, domain.RigDirName), domain.DirPerm))

	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()

	w, err := watcher.NewWatcher(logger)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, root))
	defer func() { _ = w.Stop() }()

	target := filepath.Join(root, "input.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), domain.FilePerm))

	found := make(chan struct{})
	go func() {
		for e := range w.Events() {
			if e.Path == target {
				close(found)
				return
			}
		}
	}()

	select {
	case <-found:
	case <-time.After(5 * time.Second):
		t.Fatal("no event for the written file")
	}
}
