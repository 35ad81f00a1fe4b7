package metrics

import (
	"time"
)

// RunMetrics provides methods to record orchestrator run metrics.
type RunMetrics struct {
	registry *Registry
}

// Run returns the run metrics interface for the registry.
func (r *Registry) Run() *RunMetrics {
	return &RunMetrics{registry: r}
}

// DispatchOutcome is the result of one dispatch attempt.
type DispatchOutcome string

const (
	DispatchAcked   DispatchOutcome = "acked"
	DispatchFaulted DispatchOutcome = "faulted"
	DispatchTimeout DispatchOutcome = "timeout"
)

// RecordRun records a run reaching a terminal state.
func (m *RunMetrics) RecordRun(state string) {
	m.registry.runsTotal.WithLabelValues(state).Inc()
}

// RecordDispatch records a dispatch attempt and its round-trip time.
func (m *RunMetrics) RecordDispatch(deviceName string, outcome DispatchOutcome, duration time.Duration) {
	m.registry.dispatchesTotal.WithLabelValues(deviceName, string(outcome)).Inc()
	m.registry.dispatchDuration.WithLabelValues(deviceName).Observe(duration.Seconds())
}

// RecordRetry records a dispatch retry for a device.
func (m *RunMetrics) RecordRetry(deviceName string) {
	m.registry.dispatchRetries.WithLabelValues(deviceName).Inc()
}

// IncActiveRuns increments the active run gauge.
func (m *RunMetrics) IncActiveRuns() {
	m.registry.activeRuns.Inc()
}

// DecActiveRuns decrements the active run gauge.
func (m *RunMetrics) DecActiveRuns() {
	m.registry.activeRuns.Dec()
}

// SetJournalEntries sets the retained journal entry gauge.
func (m *RunMetrics) SetJournalEntries(count int) {
	m.registry.journalEntries.Set(float64(count))
}
