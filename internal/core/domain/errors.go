package domain

import (
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

var (
	// ErrInvalidBuildTarget is returned when a build target string cannot be parsed.
	ErrInvalidBuildTarget = zerr.New("invalid build target")

	// ErrTargetAlreadyExists is returned when two nodes share a build target.
	ErrTargetAlreadyExists = zerr.New("target already exists")

	// ErrMissingDependency is returned when a node references a target that is not in the graph.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when the target graph contains a cycle.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrTargetNotFound is returned when a requested target is not in the graph.
	ErrTargetNotFound = zerr.New("target not found")

	// ErrUnknownRuleType is returned when no rule description is registered for a rule type.
	ErrUnknownRuleType = zerr.New("unknown rule type")

	// ErrInvalidAttribute is returned when a rule attribute has the wrong shape.
	ErrInvalidAttribute = zerr.New("invalid rule attribute")

	// ErrMissingAttribute is returned when a required rule attribute is absent.
	ErrMissingAttribute = zerr.New("missing required rule attribute")

	// ErrInvalidMacro is returned when a command macro cannot be expanded.
	ErrInvalidMacro = zerr.New("invalid macro")

	// ErrMissingInput is the sentinel behind MissingInputError.
	ErrMissingInput = zerr.New("missing input")

	// ErrDependencyFailed is the sentinel behind DependencyFailedError.
	ErrDependencyFailed = zerr.New("dependency failed")

	// ErrCacheUnavailable is the sentinel behind CacheUnavailableError.
	ErrCacheUnavailable = zerr.New("cache unavailable")

	// ErrLogSequenceGap is the sentinel behind LogSequenceGapError.
	ErrLogSequenceGap = zerr.New("event log sequence gap")

	// ErrUnknownRun is returned when an event log run identifier is not known.
	ErrUnknownRun = zerr.New("unknown distributed build run")

	// ErrInvalidEventsRange is returned when a wire events range violates the result-or-error contract.
	ErrInvalidEventsRange = zerr.New("inconsistent events range")

	// ErrInvalidRuleKey is returned when a rule key string cannot be decoded.
	ErrInvalidRuleKey = zerr.New("invalid rule key")

	// ErrNoTargetsSpecified is returned when a command needs at least one target.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrBuildExecutionFailed is returned when at least one rule failed.
	ErrBuildExecutionFailed = zerr.New("build execution failed")

	// ErrRuleExecutionFailed is returned when a rule's steps fail.
	ErrRuleExecutionFailed = zerr.New("rule execution failed")

	// ErrBuildCancelled marks rules that were never dispatched because the build was cancelled.
	ErrBuildCancelled = zerr.New("build cancelled")

	// ErrStepFailed is returned when a build step exits unsuccessfully.
	ErrStepFailed = zerr.New("build step failed")

	// ErrUnknownStep is returned when the executor receives a step kind it cannot run.
	ErrUnknownStep = zerr.New("unknown build step")

	// ErrUnknownWorkerPool is returned when a step names a pool that is not configured.
	ErrUnknownWorkerPool = zerr.New("unknown worker pool")

	// ErrOutputPathOutsideRoot is returned when an output path escapes the project root.
	ErrOutputPathOutsideRoot = zerr.New("output path is outside project root")

	// ErrFailedToCleanOutput is returned when an output path cannot be removed.
	ErrFailedToCleanOutput = zerr.New("failed to clean output")

	// ErrOutputMissing is returned when a rule completes without producing its declared output.
	ErrOutputMissing = zerr.New("rule did not produce its output")

	// ErrArchiveFailed is returned when a rule output cannot be packed into an artifact.
	ErrArchiveFailed = zerr.New("failed to archive rule output")

	// ErrMaterializeFailed is returned when a cached artifact cannot be unpacked.
	ErrMaterializeFailed = zerr.New("failed to materialize cached artifact")

	// ErrStoreCreateFailed is returned when a store directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create store directory")

	// ErrStoreReadFailed is returned when a store entry cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read store entry")

	// ErrStoreWriteFailed is returned when a store entry cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write store entry")

	// ErrStoreCorrupt is returned when a store entry cannot be decoded.
	ErrStoreCorrupt = zerr.New("store entry is corrupt")

	// ErrConfigReadFailed is returned when a config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when a config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when no rig.yaml or rig.work.yaml exists above the working directory.
	ErrConfigNotFound = zerr.New("could not find rig.yaml or rig.work.yaml")

	// ErrInvalidConfigValue is returned when a config value cannot be converted to the requested type.
	ErrInvalidConfigValue = zerr.New("invalid config value")

	// ErrFileHashFailed is returned when a file cannot be hashed.
	ErrFileHashFailed = zerr.New("failed to hash file content")

	// ErrDaemonSpawnFailed is returned when the daemon process cannot be started.
	ErrDaemonSpawnFailed = zerr.New("failed to spawn daemon")

	// ErrDaemonUnavailable is returned when the daemon does not answer.
	ErrDaemonUnavailable = zerr.New("daemon unavailable")

	// ErrWorkspaceMismatch is returned when a daemon is asked to build a workspace it does not serve.
	ErrWorkspaceMismatch = zerr.New("workspace is not served by this daemon")

	// ErrEventsQueryFailed is returned when an events range query reports a failure.
	ErrEventsQueryFailed = zerr.New("events query failed")

	// ErrUnknownEventStore is returned for an unsupported [events] store.
	ErrUnknownEventStore = zerr.New("unknown event store")
)

// MissingInputError reports a declared input that could not be located while a rule key
// was computed. It fails only the rule that declared the input.
type MissingInputError struct {
	Target BuildTarget
	Path   string
	Err    error
}

func (e *MissingInputError) Error() string {
	msg := fmt.Sprintf("%s: %s (declared by %s)", ErrMissingInput.Error(), e.Path, e.Target)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel and the underlying cause.
func (e *MissingInputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMissingInput}
	}
	return []error{ErrMissingInput, e.Err}
}

// CyclicDependencyError reports a cycle in the target graph. Path lists the targets of the
// cycle with the first element repeated at the end.
type CyclicDependencyError struct {
	Path []BuildTarget
}

func (e *CyclicDependencyError) Error() string {
	parts := make([]string, len(e.Path))
	for i, t := range e.Path {
		parts[i] = t.String()
	}
	return ErrCycleDetected.Error() + ": " + strings.Join(parts, " -> ")
}

// Unwrap exposes ErrCycleDetected.
func (e *CyclicDependencyError) Unwrap() error {
	return ErrCycleDetected
}

// DependencyFailedError marks a rule that was skipped because FailedDep failed.
type DependencyFailedError struct {
	Target    BuildTarget
	FailedDep BuildTarget
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("%s: %s skipped because %s failed", ErrDependencyFailed.Error(), e.Target, e.FailedDep)
}

// Unwrap exposes ErrDependencyFailed.
func (e *DependencyFailedError) Unwrap() error {
	return ErrDependencyFailed
}

// CacheUnavailableError reports an artifact cache or event store that could not be reached.
// Callers degrade to a cache miss or a failed query response.
type CacheUnavailableError struct {
	Backend string
	Op      string
	Err     error
}

func (e *CacheUnavailableError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", ErrCacheUnavailable.Error(), e.Backend, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel and the underlying cause.
func (e *CacheUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCacheUnavailable}
	}
	return []error{ErrCacheUnavailable, e.Err}
}

// LogSequenceGapError reports that the event log returned a non-contiguous range.
// It is always surfaced to the caller.
type LogSequenceGapError struct {
	RunID    RunID
	Expected int64
	Got      int64
}

func (e *LogSequenceGapError) Error() string {
	return fmt.Sprintf("%s in run %s: expected sequence %d, got %d",
		ErrLogSequenceGap.Error(), e.RunID, e.Expected, e.Got)
}

// Unwrap exposes ErrLogSequenceGap.
func (e *LogSequenceGapError) Unwrap() error {
	return ErrLogSequenceGap
}
