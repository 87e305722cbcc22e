package daemon

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is the inactivity period after which the daemon exits, unless
// `[daemon] idle_timeout` sets another.
const DefaultIdleTimeout = 3 * time.Hour

// Lifecycle manages daemon inactivity timeout and shutdown. Requests in flight keep
// the daemon alive regardless of the timeout.
type Lifecycle struct {
	mu           sync.Mutex
	timer        *time.Timer
	startTime    time.Time
	lastActivity time.Time
	timeout      time.Duration
	inFlight     int
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycle creates a new lifecycle manager. A non-positive timeout selects
// DefaultIdleTimeout.
func NewLifecycle(timeout time.Duration) *Lifecycle {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	now := time.Now()
	l := &Lifecycle{
		startTime:    now,
		lastActivity: now,
		timeout:      timeout,
		shutdownChan: make(chan struct{}),
	}
	l.timer = time.AfterFunc(timeout, l.triggerShutdown)
	return l
}

// ResetTimer records activity and restarts the inactivity timer.
func (l *Lifecycle) ResetTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastActivity = time.Now()
	if l.inFlight == 0 {
		l.timer.Reset(l.timeout)
	}
}

// Begin marks a long running request. The timer is paused until the returned
// function is called.
func (l *Lifecycle) Begin() (end func()) {
	l.mu.Lock()
	l.inFlight++
	l.lastActivity = time.Now()
	l.timer.Stop()
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.inFlight--
			l.lastActivity = time.Now()
			if l.inFlight == 0 {
				l.timer.Reset(l.timeout)
			}
		})
	}
}

// IdleRemaining returns the duration until auto-shutdown.
func (l *Lifecycle) IdleRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		return l.timeout
	}
	remaining := l.timeout - time.Since(l.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Uptime returns how long the daemon has been running.
func (l *Lifecycle) Uptime() time.Duration {
	return time.Since(l.startTime)
}

// LastActivity returns the timestamp of the last activity.
func (l *Lifecycle) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastActivity
}

// ShutdownChan returns a channel that closes when shutdown is triggered.
func (l *Lifecycle) ShutdownChan() <-chan struct{} {
	return l.shutdownChan
}

func (l *Lifecycle) triggerShutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownChan)
	})
}

// Shutdown stops the timer and triggers shutdown.
func (l *Lifecycle) Shutdown() {
	l.timer.Stop()
	l.triggerShutdown()
}
