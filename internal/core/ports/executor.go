package ports

import (
	"context"
	"io"

	"go.trai.ch/rig/internal/core/domain"
)

// StepExecutor runs the build steps of a rule.
//
//go:generate mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type StepExecutor interface {
	// Execute runs the steps of the batch in order and stops at the first failing step.
	// It returns one result per attempted step and the error of the failing step.
	Execute(ctx context.Context, batch domain.StepBatch, stdout, stderr io.Writer) ([]domain.StepResult, error)
}
