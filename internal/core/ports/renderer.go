package ports

import (
	"context"
	"time"

	"go.trai.ch/rig/internal/core/domain"
)

// Renderer is the abstraction for output rendering.
// It decouples telemetry collection from presentation logic.
//
//go:generate mockgen -source=renderer.go -destination=mocks/mock_renderer.go -package=mocks
type Renderer interface {
	// Start initializes the renderer and begins its lifecycle.
	Start(ctx context.Context) error

	// Stop signals the renderer to stop accepting new events and flush buffered output.
	Stop() error

	// Wait blocks until the renderer has fully terminated.
	Wait() error

	// OnPlanEmit is called when the scheduler has planned the rules to run.
	// rules: all rule names of the plan
	// deps: dependency map (rule -> list of dependencies)
	// targets: the user-requested targets
	OnPlanEmit(rules []string, deps map[string][]string, targets []string)

	// OnRuleStart is called when a rule begins execution.
	OnRuleStart(spanID, parentID, name string, startTime time.Time)

	// OnRuleLog is called when a rule emits output. Data may contain partial lines.
	OnRuleLog(spanID string, data []byte)

	// OnRuleComplete is called when a rule finishes. cached reports an artifact cache hit.
	OnRuleComplete(spanID string, endTime time.Time, cached bool, err error)

	// OnBuildSummary is called once with the final build result.
	OnBuildSummary(result *domain.BuildResult)
}
