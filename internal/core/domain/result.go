package domain

import (
	"slices"
	"time"
)

// RuleStatus is the state of a rule within one build.
type RuleStatus uint8

const (
	// StatusPending rules wait for their dependencies.
	StatusPending RuleStatus = iota
	// StatusCacheCheck rules are computing their key and querying the artifact cache.
	StatusCacheCheck
	// StatusBuilding rules are executing their steps.
	StatusBuilding
	// StatusDone rules completed, see RuleOutcome.
	StatusDone
	// StatusFailed rules failed.
	StatusFailed
	// StatusSkipped rules were never attempted.
	StatusSkipped
)

func (s RuleStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCacheCheck:
		return "cache_check"
	case StatusBuilding:
		return "building"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen.
func (s RuleStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

// RuleOutcome tells how a done rule obtained its output.
type RuleOutcome uint8

const (
	// OutcomeNone is the outcome of rules that are not done.
	OutcomeNone RuleOutcome = iota
	// OutcomeCacheHit rules were restored from the artifact cache.
	OutcomeCacheHit
	// OutcomeBuilt rules ran their steps.
	OutcomeBuilt
	// OutcomeKeyOnly rules only had their key computed.
	OutcomeKeyOnly
)

func (o RuleOutcome) String() string {
	switch o {
	case OutcomeCacheHit:
		return "cache_hit"
	case OutcomeBuilt:
		return "built"
	case OutcomeKeyOnly:
		return "key_only"
	default:
		return "none"
	}
}

// RuleResult is the final state of one rule.
type RuleResult struct {
	Target    BuildTarget
	Status    RuleStatus
	Outcome   RuleOutcome
	Key       RuleKey
	Err       error
	Duration  time.Duration
	Artifacts []string
}

// BuildResult summarizes a build.
type BuildResult struct {
	Rules   []RuleResult
	Failed  []BuildTarget
	Skipped []BuildTarget
	Hits    int
	Built   int
}

// Result returns the result of one target.
func (r *BuildResult) Result(t BuildTarget) (RuleResult, bool) {
	i := slices.IndexFunc(r.Rules, func(rr RuleResult) bool { return rr.Target == t })
	if i < 0 {
		return RuleResult{}, false
	}
	return r.Rules[i], true
}

// Succeeded reports whether no rule failed or was skipped.
func (r *BuildResult) Succeeded() bool {
	return len(r.Failed) == 0 && len(r.Skipped) == 0
}
