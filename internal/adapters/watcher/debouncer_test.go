package watcher_test

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/watcher"
)

type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) record(paths []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, paths)
}

func (b *batches) all() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.got
}

func TestDebouncer_CoalescesAndSorts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(100*time.Millisecond, b.record)

		d.Add("/p/b.go")
		d.Add("/p/a.go")
		d.Add("/p/b.go")

		time.Sleep(150 * time.Millisecond)
		synctest.Wait()

		require.Len(t, b.all(), 1)
		assert.Equal(t, []string{"/p/a.go", "/p/b.go"}, b.all()[0])
	})
}

func TestDebouncer_TimerReset(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(100*time.Millisecond, b.record)

		d.Add("/p/1")
		time.Sleep(60 * time.Millisecond)
		d.Add("/p/2")
		time.Sleep(60 * time.Millisecond)
		synctest.Wait()
		assert.Empty(t, b.all(), "window restarts on every add")

		time.Sleep(60 * time.Millisecond)
		synctest.Wait()
		require.Len(t, b.all(), 1)
		assert.Equal(t, []string{"/p/1", "/p/2"}, b.all()[0])
	})
}

func TestDebouncer_Flush(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(time.Second, b.record)

		d.Flush()
		assert.Empty(t, b.all(), "nothing pending")

		d.Add("/p/x")
		d.Flush()
		require.Len(t, b.all(), 1)

		time.Sleep(2 * time.Second)
		synctest.Wait()
		assert.Len(t, b.all(), 1, "flushed paths are not delivered twice")

		d.Add("/p/y")
		time.Sleep(2 * time.Second)
		synctest.Wait()
		require.Len(t, b.all(), 2)
		assert.Equal(t, []string{"/p/y"}, b.all()[1])
	})
}

func TestDebouncer_NilCallback(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d := watcher.NewDebouncer(10*time.Millisecond, nil)
		d.Add("/p/x")
		time.Sleep(20 * time.Millisecond)
		synctest.Wait()
		d.Flush()
	})
}
