// Package metrics exposes approval engine counters to Prometheus
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts engine actions and failed status hooks
type Recorder struct {
	registry     *prometheus.Registry
	actions      *prometheus.CounterVec
	hookFailures *prometheus.CounterVec
}

// NewRecorder creates a Recorder on its own registry, including Go runtime
// and process collectors
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_actions_total",
			Help: "Committed approval actions by entity type and action",
		}, []string{"entity_type", "action"}),
		hookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_hook_failures_total",
			Help: "Status hooks that failed and rolled back a transition",
		}, []string{"entity_type", "status"}),
	}
}

func (r *Recorder) RecordAction(entityType, action string) {
	r.actions.WithLabelValues(entityType, action).Inc()
}

func (r *Recorder) RecordHookFailure(entityType, status string) {
	r.hookFailures.WithLabelValues(entityType, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
