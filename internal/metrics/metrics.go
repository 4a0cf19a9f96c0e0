package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"approval-tracker/internal/domain"
)

const namespace = "approval_tracker"

type Recorder struct {
	registry     *prometheus.Registry
	transitions  *prometheus.CounterVec
	drift        prometheus.Gauge
	syncFailures prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Document mutations applied, by action and resulting state.",
		}, []string{"action", "state"}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inconsistent_documents",
			Help:      "Documents whose stored state disagrees with their version at the last scan.",
		}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Documents that failed to sync during batch resyncs.",
		}),
	}
	reg.MustRegister(
		r.transitions,
		r.drift,
		r.syncFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObserveTransition(action domain.Action, state domain.WorkflowState) {
	r.transitions.WithLabelValues(string(action), string(state)).Inc()
}

func (r *Recorder) ObserveDrift(count int) {
	r.drift.Set(float64(count))
}

func (r *Recorder) ObserveSyncFailure() {
	r.syncFailures.Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
