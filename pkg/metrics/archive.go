package metrics

import (
	"strings"
	"time"
)

// ArchiveMetrics provides methods to record run-archive metrics.
type ArchiveMetrics struct {
	registry *Registry
}

// Archive returns the archive metrics interface for the registry.
func (r *Registry) Archive() *ArchiveMetrics {
	return &ArchiveMetrics{registry: r}
}

// ArchiveOp names a run-archive operation.
type ArchiveOp string

const (
	ArchiveOpInsert ArchiveOp = "insert"
	ArchiveOpSelect ArchiveOp = "select"
	ArchiveOpDelete ArchiveOp = "delete"
)

// RecordOp records a completed archive operation.
func (a *ArchiveMetrics) RecordOp(op ArchiveOp, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	a.registry.archiveOpsTotal.WithLabelValues(string(op), status).Inc()
	a.registry.archiveOpDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
}

// OpTimer times one archive operation.
type OpTimer struct {
	metrics *ArchiveMetrics
	op      ArchiveOp
	start   time.Time
}

// NewOpTimer creates a timer for an archive operation.
func (a *ArchiveMetrics) NewOpTimer(op ArchiveOp) *OpTimer {
	return &OpTimer{metrics: a, op: op, start: time.Now()}
}

// Done records the operation duration and any error.
func (t *OpTimer) Done(err error) {
	t.metrics.RecordOp(t.op, time.Since(t.start), err)
}

// ClassifyArchiveError classifies an archive error for logging.
func ClassifyArchiveError(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "locked") || strings.Contains(errStr, "busy"):
		return "locked"
	case strings.Contains(errStr, "constraint"):
		return "constraint_violation"
	case strings.Contains(errStr, "no rows"):
		return "not_found"
	default:
		return "unknown"
	}
}
