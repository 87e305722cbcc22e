package telemetry

// Span attribute keys of rule spans.
const (
	AttrTarget  = "rig.target"
	AttrCached  = "rig.cached"
	AttrRuleKey = "rig.rulekey"
)

// msgRuleLog carries a chunk of output of a rule span.
type msgRuleLog struct {
	SpanID string
	Data   []byte
}

// msgPlan announces the rules planned for execution.
type msgPlan struct {
	Rules        []string
	Dependencies map[string][]string
	Targets      []string
}
