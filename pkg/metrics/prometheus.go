package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "metastates"

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	created     *prom.CounterVec
	transitions *prom.CounterVec
	rejections  *prom.CounterVec
	callbacks   *prom.CounterVec
	dispatch    *prom.HistogramVec
	evictions   *prom.CounterVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors and registers them with reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	pr := &PrometheusRecorder{
		created: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "states_created_total",
			Help:      "State records created, by owner kind, state type and initial status",
		}, []string{"owner_kind", "state_type", "status"}),
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Status changes of existing state records",
		}, []string{"state_type", "from", "to"}),
		rejections: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Failed validation rules on state writes",
		}, []string{"state_type", "rule"}),
		callbacks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "callback_executions_total",
			Help:      "Callback executions by outcome",
		}, []string{"state_type", "outcome"}),
		dispatch: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent running the callbacks of one transition",
			Buckets:   prom.DefBuckets,
		}, []string{"state_type"}),
		evictions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "callback_evictions_total",
			Help:      "Callbacks removed after reaching their execution cap",
		}, []string{"state_type"}),
	}
	reg.MustRegister(pr.created, pr.transitions, pr.rejections, pr.callbacks, pr.dispatch, pr.evictions)
	return pr
}

func (p *PrometheusRecorder) IncStateCreated(ownerKind, stateType, status string) {
	if p == nil {
		return
	}
	p.created.WithLabelValues(ownerKind, stateType, status).Inc()
}

func (p *PrometheusRecorder) IncTransition(stateType, from, to string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(stateType, from, to).Inc()
}

func (p *PrometheusRecorder) IncValidationFailure(stateType, rule string) {
	if p == nil {
		return
	}
	p.rejections.WithLabelValues(stateType, rule).Inc()
}

func (p *PrometheusRecorder) IncCallbackResult(stateType string, outcome Outcome) {
	if p == nil {
		return
	}
	p.callbacks.WithLabelValues(stateType, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveDispatchDuration(stateType string, d time.Duration) {
	if p == nil {
		return
	}
	p.dispatch.WithLabelValues(stateType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCallbackEvicted(stateType string) {
	if p == nil {
		return
	}
	p.evictions.WithLabelValues(stateType).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prom.Gatherer) http.Handler {
	if g == nil {
		g = prom.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
