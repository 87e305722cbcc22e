package ports

import (
	"context"
	"time"

	"go.trai.ch/rig/internal/core/domain"
)

//go:generate mockgen -source=daemon.go -destination=mocks/mock_daemon.go -package=mocks

// DaemonStatus represents the current state of the daemon.
type DaemonStatus struct {
	Running       bool
	PID           int
	Uptime        time.Duration
	LastActivity  time.Time
	IdleRemaining time.Duration
	// GraphCacheHits and GraphCacheMisses report the action graph cache of the session.
	GraphCacheHits   int64
	GraphCacheMisses int64
}

// BuildRequest asks the daemon to build targets of the workspace at Cwd.
type BuildRequest struct {
	Cwd      string
	Targets  []string
	NoCache  bool
	KeysOnly bool
	RunID    domain.RunID
}

// DaemonClient defines the interface for communicating with the daemon.
type DaemonClient interface {
	// Ping checks if the daemon is alive and resets the inactivity timer.
	Ping(ctx context.Context) error

	// Status returns the current daemon status.
	Status(ctx context.Context) (*DaemonStatus, error)

	// Build runs a build inside the daemon session.
	Build(ctx context.Context, req BuildRequest) (*domain.BuildResult, error)

	// Shutdown requests a graceful daemon shutdown.
	Shutdown(ctx context.Context) error

	// Close releases client resources.
	Close() error
}

// DaemonConnector manages daemon lifecycle from the CLI perspective.
type DaemonConnector interface {
	// Connect returns a client to the daemon, spawning it if necessary.
	Connect(ctx context.Context) (DaemonClient, error)

	// Dial returns a client to a running daemon without spawning one.
	Dial(ctx context.Context) (DaemonClient, error)

	// IsRunning checks if the daemon process is currently running.
	IsRunning() bool

	// Spawn starts a new daemon process in the background.
	Spawn(ctx context.Context) error
}
