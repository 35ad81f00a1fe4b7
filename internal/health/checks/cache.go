package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/NK-639/ALHS-Backend/internal/health"
)

// HealthReporter is a service that can report its own reachability.
type HealthReporter interface {
	Health(ctx context.Context) error
}

// CacheChecker checks compilation cache connectivity.
type CacheChecker struct {
	cache    HealthReporter
	timeout  time.Duration
	severity health.Severity
}

// CacheOption is a functional option for CacheChecker.
type CacheOption func(*CacheChecker)

// WithCacheTimeout sets the check timeout.
func WithCacheTimeout(d time.Duration) CacheOption {
	return func(c *CacheChecker) {
		c.timeout = d
	}
}

// WithCacheSeverity sets the severity level.
func WithCacheSeverity(s health.Severity) CacheOption {
	return func(c *CacheChecker) {
		c.severity = s
	}
}

// NewCacheChecker creates a new cache health checker. A lost cache
// slows compilation but never blocks runs, so the default severity is
// warning.
func NewCacheChecker(cache HealthReporter, opts ...CacheOption) *CacheChecker {
	c := &CacheChecker{
		cache:    cache,
		timeout:  1 * time.Second,
		severity: health.SeverityWarning,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of this health check.
func (c *CacheChecker) Name() string {
	return "cache"
}

// Severity returns the severity level of this check.
func (c *CacheChecker) Severity() health.Severity {
	return c.severity
}

// Check performs the cache health check.
func (c *CacheChecker) Check(ctx context.Context) health.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.cache.Health(ctx); err != nil {
		return health.CheckResult{
			Status:  health.StatusUnhealthy,
			Message: fmt.Sprintf("cache health check failed: %v", err),
		}
	}

	return health.CheckResult{
		Status: health.StatusHealthy,
	}
}
