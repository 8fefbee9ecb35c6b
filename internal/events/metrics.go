package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the event pipeline. A nil *Metrics disables recording.
type Metrics struct {
	published  prometheus.Counter
	dropped    prometheus.Counter
	flushed    prometheus.Counter
	sinkErrors prometheus.Counter
	queueDepth prometheus.Gauge
}

// NewMetrics registers the event collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tributary",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total events accepted into the pipeline queue.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tributary",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total events dropped because the queue was full.",
		}),
		flushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tributary",
			Subsystem: "events",
			Name:      "flushed_total",
			Help:      "Total events delivered to the sink.",
		}),
		sinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tributary",
			Subsystem: "events",
			Name:      "sink_errors_total",
			Help:      "Total batch writes rejected by the sink.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tributary",
			Subsystem: "events",
			Name:      "queue_depth",
			Help:      "Events currently waiting in the pipeline queue.",
		}),
	}
}

func (m *Metrics) eventPublished() {
	if m != nil {
		m.published.Inc()
	}
}

func (m *Metrics) eventDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) eventsFlushed(count int) {
	if m != nil {
		m.flushed.Add(float64(count))
	}
}

func (m *Metrics) sinkError() {
	if m != nil {
		m.sinkErrors.Inc()
	}
}

func (m *Metrics) setQueueDepth(depth int) {
	if m != nil {
		m.queueDepth.Set(float64(depth))
	}
}
