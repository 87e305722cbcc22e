package workers_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/workers"
	"go.trai.ch/rig/internal/core/domain"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p := workers.NewPool("javac", 2)
		var (
			active, peak atomic.Int32
			wg           sync.WaitGroup
		)
		for range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := p.Run(context.Background(), func(context.Context) error {
					n := active.Add(1)
					for {
						old := peak.Load()
						if n <= old || peak.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(time.Second)
					active.Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(2), peak.Load())
		assert.Equal(t, int64(6), p.Runs())
	})
}

func TestPool_CancelWhileWaiting(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p := workers.NewPool("one", 1)
		release := make(chan struct{})
		go func() {
			_ = p.Run(context.Background(), func(context.Context) error {
				<-release
				return nil
			})
		}()
		synctest.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := p.Run(ctx, func(context.Context) error { return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		close(release)
	})
}

func TestRegistry_Configure(t *testing.T) {
	r := workers.NewRegistry()
	require.NoError(t, r.Configure(map[string]string{"javac": "2", "kotlinc": "1"}))
	assert.Equal(t, []string{"javac", "kotlinc"}, r.Names())

	p, err := r.Pool("javac")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Capacity())

	require.NoError(t, r.Configure(map[string]string{"javac": "2"}))
	again, err := r.Pool("javac")
	require.NoError(t, err)
	assert.Same(t, p, again, "unchanged pools are kept")

	_, err = r.Pool("kotlinc")
	assert.ErrorContains(t, err, domain.ErrUnknownWorkerPool.Error())

	err = r.Configure(map[string]string{"bad": "zero"})
	assert.ErrorContains(t, err, domain.ErrInvalidConfigValue.Error())
}
