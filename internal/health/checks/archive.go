package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/NK-639/ALHS-Backend/internal/health"
)

// ArchiveChecker checks run-archive database connectivity.
type ArchiveChecker struct {
	archive  HealthReporter
	timeout  time.Duration
	severity health.Severity
}

// ArchiveOption is a functional option for ArchiveChecker.
type ArchiveOption func(*ArchiveChecker)

// WithArchiveTimeout sets the check timeout.
func WithArchiveTimeout(d time.Duration) ArchiveOption {
	return func(c *ArchiveChecker) {
		c.timeout = d
	}
}

// WithArchiveSeverity sets the severity level.
func WithArchiveSeverity(s health.Severity) ArchiveOption {
	return func(c *ArchiveChecker) {
		c.severity = s
	}
}

// NewArchiveChecker creates a new archive health checker. An
// unreachable archive loses finished-run records, so it affects
// readiness.
func NewArchiveChecker(archive HealthReporter, opts ...ArchiveOption) *ArchiveChecker {
	c := &ArchiveChecker{
		archive:  archive,
		timeout:  2 * time.Second,
		severity: health.SeverityCritical,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of this health check.
func (c *ArchiveChecker) Name() string {
	return "archive"
}

// Severity returns the severity level of this check.
func (c *ArchiveChecker) Severity() health.Severity {
	return c.severity
}

// Check performs the archive health check.
func (c *ArchiveChecker) Check(ctx context.Context) health.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.archive.Health(ctx); err != nil {
		return health.CheckResult{
			Status:  health.StatusUnhealthy,
			Message: fmt.Sprintf("archive ping failed: %v", err),
		}
	}

	return health.CheckResult{
		Status: health.StatusHealthy,
	}
}
