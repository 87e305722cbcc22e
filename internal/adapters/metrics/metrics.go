// Package metrics exports engine counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.trai.ch/rig/internal/core/ports"
)

const namespace = "rig"

// Label names.
const (
	StatusLabel  = "status"
	OutcomeLabel = "outcome"
	BackendLabel = "backend"
	OpLabel      = "op"
	ResultLabel  = "result"
	HitLabel     = "hit"
)

// Prometheus implements ports.Metrics with counters registered on a Registerer.
type Prometheus struct {
	gatherer prometheus.Gatherer

	RulesFinished         *prometheus.CounterVec
	ArtifactCacheRequests *prometheus.CounterVec
	ActionGraphLookups    *prometheus.CounterVec
	EventsAppendedTotal   prometheus.Counter
}

var _ ports.Metrics = (*Prometheus)(nil)

// New registers the engine counters on a fresh registry.
func New() (*Prometheus, error) {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers the engine counters on reg. Gatherer backs Handler.
func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Prometheus, error) {
	p := &Prometheus{
		gatherer: gatherer,
		RulesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "rules_finished_total",
			Help:      "Number of rules that reached a terminal status, by status and outcome.",
		}, []string{StatusLabel, OutcomeLabel}),
		ArtifactCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifact_cache",
			Name:      "requests_total",
			Help:      "Number of artifact cache operations, by backend, operation and result.",
		}, []string{BackendLabel, OpLabel, ResultLabel}),
		ActionGraphLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action_graph",
			Name:      "cache_lookups_total",
			Help:      "Number of action graph cache lookups, by hit.",
		}, []string{HitLabel}),
		EventsAppendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "appended_total",
			Help:      "Number of build slave events appended to the event log.",
		}),
	}
	for _, c := range []prometheus.Collector{
		p.RulesFinished, p.ArtifactCacheRequests, p.ActionGraphLookups, p.EventsAppendedTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// RuleFinished implements ports.Metrics.
func (p *Prometheus) RuleFinished(status, outcome string) {
	p.RulesFinished.With(prometheus.Labels{StatusLabel: status, OutcomeLabel: outcome}).Inc()
}

// ArtifactCacheRequest implements ports.Metrics.
func (p *Prometheus) ArtifactCacheRequest(backend, op, result string) {
	p.ArtifactCacheRequests.With(prometheus.Labels{
		BackendLabel: backend,
		OpLabel:      op,
		ResultLabel:  result,
	}).Inc()
}

// ActionGraphCacheLookup implements ports.Metrics.
func (p *Prometheus) ActionGraphCacheLookup(hit bool) {
	p.ActionGraphLookups.With(prometheus.Labels{HitLabel: strconv.FormatBool(hit)}).Inc()
}

// EventsAppended implements ports.Metrics.
func (p *Prometheus) EventsAppended(n int) {
	if n > 0 {
		p.EventsAppendedTotal.Add(float64(n))
	}
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// RegisterHandlers mounts Handler at /metrics on mux.
func (p *Prometheus) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", p.Handler())
}
