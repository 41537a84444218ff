package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "carelay"

// Pipeline holds the relay's prometheus collectors.
type Pipeline struct {
	registry    *prometheus.Registry
	started     *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	forwarded   *prometheus.CounterVec
	pending     *prometheus.GaugeVec
	sends       *prometheus.CounterVec
	errors      *prometheus.CounterVec
}

// NewPipeline registers every collector on a dedicated registry together
// with the Go and process collectors.
func NewPipeline() *Pipeline {
	m := &Pipeline{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "started_total",
			Help: "Pipeline instances opened, by chain.",
		}, []string{"chain"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "skipped_total",
			Help: "Source messages that did not open an instance, by chain and reason.",
		}, []string{"chain", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "transitions_total",
			Help: "Stage transitions, by chain and stage pair.",
		}, []string{"chain", "from", "to"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "forwarded_total",
			Help: "Terminal forwards, by chain and delivery outcome.",
		}, []string{"chain", "outcome"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "pending",
			Help: "Instances currently waiting, by chain and stage.",
		}, []string{"chain", "stage"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "outbound", Name: "sends_total",
			Help: "Outbound send attempts, by outcome.",
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Recorded errors, by category.",
		}, []string{"category"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.started, m.skipped, m.transitions, m.forwarded, m.pending, m.sends, m.errors,
	)
	return m
}

func (m *Pipeline) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Pipeline) PipelineStarted(chain string) {
	m.started.WithLabelValues(chain).Inc()
}

func (m *Pipeline) PipelineSkipped(chain, reason string) {
	m.skipped.WithLabelValues(chain, reason).Inc()
}

func (m *Pipeline) StageAdvanced(chain, from, to string) {
	m.transitions.WithLabelValues(chain, from, to).Inc()
}

func (m *Pipeline) Forwarded(chain string, delivered bool) {
	m.forwarded.WithLabelValues(chain, outcome(delivered)).Inc()
}

func (m *Pipeline) OutboundSent(delivered bool) {
	m.sends.WithLabelValues(outcome(delivered)).Inc()
}

func (m *Pipeline) RecordError(category string) {
	m.errors.WithLabelValues(category).Inc()
}

func (m *Pipeline) SetPending(chain, stage string, count int) {
	m.pending.WithLabelValues(chain, stage).Set(float64(count))
}

func outcome(delivered bool) string {
	if delivered {
		return "ok"
	}
	return "failed"
}
