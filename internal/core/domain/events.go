package domain

import (
	"slices"
	"time"
)

// RunID identifies a distributed build.
type RunID string

func (r RunID) String() string { return string(r) }

// EventType classifies a build slave event.
type EventType string

const (
	// EventRuleStarted is published when a rule starts building.
	EventRuleStarted EventType = "rule_started"
	// EventRuleFinished is published when a rule finished, successfully or not.
	EventRuleFinished EventType = "rule_finished"
	// EventCacheHit is published when a rule was restored from the artifact cache.
	EventCacheHit EventType = "cache_hit"
	// EventConsole carries console output of a slave.
	EventConsole EventType = "console"
	// EventBuildFinished is published once per slave at the end of its build.
	EventBuildFinished EventType = "build_finished"
)

// BuildSlaveEvent is one entry of the distributed event log. Seq starts at 1 and is
// assigned by the log.
type BuildSlaveEvent struct {
	RunID     RunID
	Seq       int64
	Timestamp time.Time
	SlaveID   string
	Type      EventType
	Payload   map[string]string
}

// EventsQuery asks for the events of a run within [First, Last]. A nil First means the
// start of the run and a nil Last means the committed end at the time of the query.
type EventsQuery struct {
	RunID RunID
	First *int64
	Last  *int64
}

// Seq returns a pointer to n, for building queries.
func Seq(n int64) *int64 {
	return &n
}

// EventsRange is the answer to an EventsQuery. It either succeeded and carries events,
// or failed and carries a message. Construct it with RangeSucceeded or RangeFailed.
type EventsRange struct {
	query   EventsQuery
	events  []BuildSlaveEvent
	message string
	ok      bool
}

// RangeSucceeded builds a successful range.
func RangeSucceeded(q EventsQuery, events []BuildSlaveEvent) EventsRange {
	if events == nil {
		events = []BuildSlaveEvent{}
	}
	return EventsRange{query: q, events: events, ok: true}
}

// RangeFailed builds a failed range.
func RangeFailed(q EventsQuery, message string) EventsRange {
	return EventsRange{query: q, message: message}
}

// Succeeded reports whether the query was answered.
func (r EventsRange) Succeeded() bool { return r.ok }

// Query returns the query this range answers.
func (r EventsRange) Query() EventsQuery { return r.query }

// Events returns the events of a successful range. It is nil for a failed range.
func (r EventsRange) Events() []BuildSlaveEvent { return slices.Clone(r.events) }

// ErrorMessage returns the failure description of a failed range.
func (r EventsRange) ErrorMessage() string { return r.message }

// LastSeq returns the sequence of the final event, or 0 when there is none.
func (r EventsRange) LastSeq() int64 {
	if len(r.events) == 0 {
		return 0
	}
	return r.events[len(r.events)-1].Seq
}

// VerifyContiguous checks that events carry the sequences first, first+1, ... with no
// gaps or duplicates.
func VerifyContiguous(runID RunID, first int64, events []BuildSlaveEvent) error {
	expected := first
	for _, e := range events {
		if e.Seq != expected {
			return &LogSequenceGapError{RunID: runID, Expected: expected, Got: e.Seq}
		}
		expected++
	}
	return nil
}
