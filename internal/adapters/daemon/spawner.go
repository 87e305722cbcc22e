package daemon

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	pollInterval    = 100 * time.Millisecond
	maxPollDuration = 5 * time.Second
	pingTimeout     = time.Second
)

// Connector implements ports.DaemonConnector for the workspace around the working
// directory.
type Connector struct {
	executablePath string
	root           func() (string, error)
}

var _ ports.DaemonConnector = (*Connector)(nil)

// NewConnector creates a connector whose workspace root is discovered by loader from
// the working directory.
func NewConnector(loader ports.ConfigLoader) (*Connector, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to determine executable path")
	}
	return &Connector{
		executablePath: exe,
		root: func() (string, error) {
			cwd, err := os.Getwd()
			if err != nil {
				return "", zerr.Wrap(err, "failed to get working directory")
			}
			return loader.DiscoverRoot(cwd)
		},
	}, nil
}

// Connect returns a client, spawning the daemon if necessary.
func (c *Connector) Connect(ctx context.Context) (ports.DaemonClient, error) {
	if client, err := c.Dial(ctx); err == nil {
		return client, nil
	}

	if err := c.Spawn(ctx); err != nil {
		return nil, err
	}

	client, err := c.Dial(ctx)
	if err != nil {
		return nil, zerr.Wrap(err, "daemon started but is not responsive")
	}
	return client, nil
}

// Dial returns a client to a running daemon. It fails when the daemon does not answer
// a ping.
func (c *Connector) Dial(ctx context.Context) (ports.DaemonClient, error) {
	root, err := c.root()
	if err != nil {
		return nil, err
	}
	client, err := Dial(root)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// IsRunning checks if the daemon is running and responsive.
func (c *Connector) IsRunning() bool {
	client, err := c.Dial(context.Background())
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// Spawn starts the daemon process in the background and waits until it answers.
func (c *Connector) Spawn(ctx context.Context) error {
	root, err := c.root()
	if err != nil {
		return err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return zerr.Wrap(err, "failed to resolve absolute root path")
	}

	logPath := domain.DaemonLogPath(absRoot)
	if err := os.MkdirAll(filepath.Dir(logPath), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create daemon directory")
	}

	//nolint:gosec // G304: logPath is derived from the workspace root
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, domain.PrivateFilePerm)
	if err != nil {
		return zerr.Wrap(err, "failed to open daemon log")
	}

	//nolint:gosec // G204: executablePath is controlled, args are fixed literals
	cmd := exec.Command(c.executablePath, "--json-logs", "daemon", "serve")
	cmd.Dir = absRoot
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrDaemonSpawnFailed.Error()), "root", absRoot)
	}

	go func() {
		_ = cmd.Wait()
		_ = logFile.Close()
	}()

	return c.waitForStartup(ctx)
}

func (c *Connector) waitForStartup(ctx context.Context) error {
	deadline := time.Now().Add(maxPollDuration)
	for time.Now().Before(deadline) {
		if c.IsRunning() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return zerr.Wrap(domain.ErrDaemonUnavailable, "daemon failed to start within timeout")
}
