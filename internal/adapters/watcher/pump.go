package watcher

import (
	"context"
	"path/filepath"
	"time"

	"go.trai.ch/rig/internal/core/ports"
)

// DefaultDebounceWindow is the time window for debouncing file events.
const DefaultDebounceWindow = 50 * time.Millisecond

// Pump forwards debounced watcher events to an Invalidator.
type Pump struct {
	watcher     ports.Watcher
	invalidator ports.Invalidator
	logger      ports.Logger
	window      time.Duration
}

// NewPump creates a Pump. A zero window selects DefaultDebounceWindow.
func NewPump(w ports.Watcher, inv ports.Invalidator, logger ports.Logger, window time.Duration) *Pump {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Pump{watcher: w, invalidator: inv, logger: logger, window: window}
}

// Run watches root and invalidates changed paths until the event sequence ends.
// Pending paths are flushed before it returns.
func (p *Pump) Run(ctx context.Context, root string) error {
	if err := p.watcher.Start(ctx, root); err != nil {
		return err
	}

	d := NewDebouncer(p.window, func(paths []string) {
		p.logger.Debug("invalidating changed paths", "count", len(paths))
		p.invalidator.Invalidate(paths)
	})
	for event := range p.watcher.Events() {
		d.Add(filepath.Clean(event.Path))
	}
	d.Flush()
	return nil
}
