package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.trai.ch/rig/internal/adapters/daemon"
	"go.trai.ch/rig/internal/adapters/watcher"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/engine/session"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// ServeDaemon runs the daemon of the workspace around the working directory until
// ctx is done, the daemon is idle for [daemon] idle_timeout, or it is stopped.
func (a *App) ServeDaemon(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return zerr.Wrap(err, "failed to get working directory")
	}
	root, err := a.loader.DiscoverRoot(cwd)
	if err != nil {
		return err
	}
	ws, err := a.loader.Load(root)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}
	cfg := ws.Config

	idle, err := cfg.Duration(domain.SectionDaemon, domain.KeyIdleTimeout, daemon.DefaultIdleTimeout)
	if err != nil {
		return err
	}

	sess, err := a.newSession(ws)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	log, closeLog, err := a.openEventLog(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	handler := &daemonHandler{
		app:    a,
		sess:   sess,
		loader: daemon.NewCachingLoader(a.loader, daemon.NewServerCache()),
		events: log,
	}
	opts := []daemon.Option{daemon.WithEventLog(log)}
	if a.metrics != nil {
		opts = append(opts, daemon.WithMetrics(cfg.String(domain.SectionDaemon, domain.KeyMetricsAddr, ""), a.metrics.Handler()))
	}
	srv := daemon.NewServer(daemon.NewLifecycle(idle), handler, a.logger, opts...)

	g, gctx := errgroup.WithContext(ctx)
	if a.watcher != nil {
		pump := watcher.NewPump(a.watcher, sess, a.logger, 0)
		g.Go(func() error {
			return pump.Run(gctx, root)
		})
	}
	g.Go(func() error {
		defer func() {
			if a.watcher != nil {
				_ = a.watcher.Stop()
			}
		}()
		return srv.Serve(gctx, root)
	})
	return g.Wait()
}

// daemonHandler serves daemon builds from one long lived session.
type daemonHandler struct {
	app    *App
	sess   *session.Session
	loader ports.ConfigLoader
	events ports.EventLog
}

var _ daemon.Handler = (*daemonHandler)(nil)

func (h *daemonHandler) Build(ctx context.Context, req ports.BuildRequest) (*domain.BuildResult, error) {
	ws, err := h.loader.Load(req.Cwd)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	if ws.Root != h.sess.Root() {
		return nil, zerr.With(zerr.With(domain.ErrWorkspaceMismatch, "root", ws.Root), "served", h.sess.Root())
	}
	end, err := h.sess.BeginBuild(ctx)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to wait for the running build")
	}
	defer end()
	return h.app.run(ctx, h.sess, ws, req, runOptions{events: h.events, render: true})
}

func (h *daemonHandler) GraphCacheStats() (hits, misses int64) {
	st := h.sess.Stats().Graph
	return st.Hits, st.Misses
}

// DaemonStatus prints the status of the workspace daemon.
func (a *App) DaemonStatus(ctx context.Context) error {
	client, err := a.connector.Dial(ctx)
	if err != nil {
		_, werr := fmt.Fprintln(a.stdout, "daemon is not running")
		return werr
	}
	defer func() { _ = client.Close() }()

	st, err := client.Status(ctx)
	if err != nil {
		return zerr.Wrap(err, "failed to query daemon status")
	}
	_, err = fmt.Fprintf(a.stdout,
		"running\tpid %d\nuptime\t%s\nlast activity\t%s\nidle remaining\t%s\naction graph cache\t%d hits, %d misses\n",
		st.PID,
		st.Uptime.Round(time.Second),
		st.LastActivity.Local().Format(time.RFC3339),
		st.IdleRemaining.Round(time.Second),
		st.GraphCacheHits, st.GraphCacheMisses,
	)
	return err
}

// StopDaemon asks the workspace daemon to shut down.
func (a *App) StopDaemon(ctx context.Context) error {
	client, err := a.connector.Dial(ctx)
	if err != nil {
		a.logger.Info("daemon is not running")
		return nil
	}
	defer func() { _ = client.Close() }()

	if err := client.Shutdown(ctx); err != nil {
		return zerr.Wrap(err, "failed to stop daemon")
	}
	a.logger.Info("daemon stopped")
	return nil
}
