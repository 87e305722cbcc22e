// Package telemetry records rule execution as OpenTelemetry spans and forwards the
// span lifecycle to renderers and the distributed event log.
package telemetry

import (
	"bytes"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/zerr"
)

const (
	// DefaultSizeLimit is the buffered byte count that forces a flush.
	DefaultSizeLimit = 4096
	// DefaultTimeLimit is the flush interval of buffered output.
	DefaultTimeLimit = 50 * time.Millisecond
)

// ErrBatcherClosed is returned by writes after Close.
var ErrBatcherClosed = zerr.New("log batcher is closed")

// LogBatcher buffers rule output until a size or time limit is reached. It is safe
// for concurrent use.
type LogBatcher struct {
	sizeLimit int
	timeLimit time.Duration
	onFlush   func([]byte)

	mu     sync.Mutex
	buffer bytes.Buffer
	ticker clockwork.Ticker
	stopCh chan struct{}
	closed bool
}

// NewLogBatcher starts a batcher driven by clock. Non-positive limits select the
// defaults. Call Close to stop it.
func NewLogBatcher(clock clockwork.Clock, sizeLimit int, timeLimit time.Duration, onFlush func([]byte)) *LogBatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}

	b := &LogBatcher{
		sizeLimit: sizeLimit,
		timeLimit: timeLimit,
		onFlush:   onFlush,
		ticker:    clock.NewTicker(timeLimit),
		stopCh:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Write buffers p and flushes once the size limit is reached.
func (b *LogBatcher) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBatcherClosed
	}
	n, _ := b.buffer.Write(p)
	if b.buffer.Len() >= b.sizeLimit {
		b.flushLocked()
		b.ticker.Reset(b.timeLimit)
	}
	return n, nil
}

// Flush hands buffered output to the callback.
func (b *LogBatcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.flushLocked()
	}
}

// Close stops the ticker and flushes what is left. It is idempotent.
func (b *LogBatcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.stopCh)
	b.flushLocked()
	return nil
}

func (b *LogBatcher) run() {
	for {
		select {
		case <-b.ticker.Chan():
			b.Flush()
		case <-b.stopCh:
			b.ticker.Stop()
			return
		}
	}
}

// flushLocked runs the callback under mu so chunks keep their order.
func (b *LogBatcher) flushLocked() {
	if b.buffer.Len() == 0 {
		return
	}
	data := bytes.Clone(b.buffer.Bytes())
	b.buffer.Reset()
	if b.onFlush != nil {
		b.onFlush(data)
	}
}
