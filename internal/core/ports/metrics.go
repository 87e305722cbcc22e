package ports

//go:generate mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks

// Metrics records engine counters.
type Metrics interface {
	// RuleFinished counts a rule reaching a terminal status.
	RuleFinished(status, outcome string)
	// ArtifactCacheRequest counts an artifact cache operation. Result is one of
	// "hit", "miss", "error" or "ok".
	ArtifactCacheRequest(backend, op, result string)
	// ActionGraphCacheLookup counts a lookup of the action graph cache.
	ActionGraphCacheLookup(hit bool)
	// EventsAppended counts appended build slave events.
	EventsAppended(n int)
}
