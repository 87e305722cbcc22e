package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/grindlemire/graft"
	"go.trai.ch/rig/internal/core/ports"
)

// NodeID is the unique identifier for the logger Graft node.
const NodeID graft.ID = "adapter.logger"

// EnvVar holds comma separated logger defaults: "json" and "debug".
// Command line flags override it.
const EnvVar = "RIG_LOG"

func init() {
	graft.Register(graft.Node[ports.Logger]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Logger, error) {
			return FromEnv(os.Getenv(EnvVar)), nil
		},
	})
}

// FromEnv creates a Logger configured by an EnvVar value. Unknown options are ignored.
func FromEnv(value string) *Logger {
	l := &Logger{output: os.Stderr, level: slog.LevelInfo}
	for _, opt := range strings.Split(value, ",") {
		switch strings.TrimSpace(opt) {
		case "json":
			l.jsonMode = true
		case "debug":
			l.level = slog.LevelDebug
		}
	}
	l.rebuild()
	return l
}
