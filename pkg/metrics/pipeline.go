package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics counts messages moved by the outbox publisher and the
// analytics consumer.
type PipelineMetrics struct {
	messages *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline counters for the named component.
func NewPipelineMetrics(reg prometheus.Registerer, component string) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "pipeline",
		Name:        "messages_total",
		Help:        "Messages handled by event pipeline components.",
		ConstLabels: prometheus.Labels{"component": normalizeLabel(component)},
	}, []string{"event_type", "outcome"})
	reg.MustRegister(messages)
	return &PipelineMetrics{messages: messages}
}

// Inc counts one message outcome (published, failed, inserted, duplicate, dropped).
func (m *PipelineMetrics) Inc(eventType, outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
