package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgentMetrics exposes counters/histograms for the conversation pipeline.
type AgentMetrics struct {
	processedTotal   *prometheus.CounterVec
	intentTotal      *prometheus.CounterVec
	llmVerifyTotal   *prometheus.CounterVec
	fallbackTotal    *prometheus.CounterVec
	handoffTotal     *prometheus.CounterVec
	pipelineLatency  *prometheus.HistogramVec
	collaboratorErrs *prometheus.CounterVec
}

func NewAgentMetrics(reg prometheus.Registerer) *AgentMetrics {
	m := &AgentMetrics{
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "agent",
			Name:      "messages_processed_total",
			Help:      "Inbound messages processed, by processing result and channel",
		}, []string{"result", "channel"}),
		intentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "intent",
			Name:      "detections_total",
			Help:      "Detected primary intents by source (pattern or llm)",
		}, []string{"intent", "source"}),
		llmVerifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "intent",
			Name:      "llm_verifications_total",
			Help:      "LLM intent verification attempts by outcome",
		}, []string{"outcome"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "agent",
			Name:      "template_fallbacks_total",
			Help:      "Replies served from templates instead of the LLM, by reason",
		}, []string{"reason"}),
		handoffTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "agent",
			Name:      "handoffs_total",
			Help:      "Conversations flagged for human handoff, by trigger",
		}, []string{"trigger"}),
		pipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "realty",
			Subsystem: "agent",
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end latency of a process_message pass",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		collaboratorErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "agent",
			Name:      "collaborator_errors_total",
			Help:      "Swallowed collaborator failures (compliance, crm, ab tracking, preferences)",
		}, []string{"collaborator"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.processedTotal,
		m.intentTotal,
		m.llmVerifyTotal,
		m.fallbackTotal,
		m.handoffTotal,
		m.pipelineLatency,
		m.collaboratorErrs,
	)
	return m
}

func (m *AgentMetrics) ObserveProcessed(result, channel string, seconds float64) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(result, channel).Inc()
	m.pipelineLatency.WithLabelValues(result).Observe(seconds)
}

func (m *AgentMetrics) ObserveIntent(intent string, usedLLM bool) {
	if m == nil {
		return
	}
	source := "pattern"
	if usedLLM {
		source = "llm"
	}
	m.intentTotal.WithLabelValues(intent, source).Inc()
}

func (m *AgentMetrics) ObserveLLMVerification(outcome string) {
	if m == nil {
		return
	}
	m.llmVerifyTotal.WithLabelValues(outcome).Inc()
}

func (m *AgentMetrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(reason).Inc()
}

func (m *AgentMetrics) ObserveHandoff(trigger string) {
	if m == nil {
		return
	}
	m.handoffTotal.WithLabelValues(trigger).Inc()
}

func (m *AgentMetrics) ObserveCollaboratorError(collaborator string) {
	if m == nil {
		return
	}
	m.collaboratorErrs.WithLabelValues(collaborator).Inc()
}
