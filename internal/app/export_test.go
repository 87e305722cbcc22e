package app

import (
	"go.trai.ch/rig/internal/adapters/daemon"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
)

// NewDaemonHandler returns the handler the daemon serves for ws, and a func closing
// its session.
func NewDaemonHandler(a *App, ws *domain.Workspace, loader ports.ConfigLoader) (daemon.Handler, func() error, error) {
	sess, err := a.newSession(ws)
	if err != nil {
		return nil, nil, err
	}
	return &daemonHandler{app: a, sess: sess, loader: loader}, sess.Close, nil
}
