package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/NK-639/ALHS-Backend/internal/controller"
	"github.com/NK-639/ALHS-Backend/internal/health"
)

// StatusQuerier is the slice of the hardware controller the checker
// needs.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, deviceName string) (controller.DeviceStatus, error)
}

// ControllerChecker checks motion controller reachability. An
// unreachable controller means no run can start or make progress.
type ControllerChecker struct {
	ctrl     StatusQuerier
	timeout  time.Duration
	severity health.Severity
}

// ControllerOption is a functional option for ControllerChecker.
type ControllerOption func(*ControllerChecker)

// WithControllerTimeout sets the status query timeout.
func WithControllerTimeout(d time.Duration) ControllerOption {
	return func(c *ControllerChecker) {
		c.timeout = d
	}
}

// WithControllerSeverity sets the severity level.
func WithControllerSeverity(s health.Severity) ControllerOption {
	return func(c *ControllerChecker) {
		c.severity = s
	}
}

// NewControllerChecker creates a new controller health checker.
func NewControllerChecker(ctrl StatusQuerier, opts ...ControllerOption) *ControllerChecker {
	c := &ControllerChecker{
		ctrl:     ctrl,
		timeout:  3 * time.Second,
		severity: health.SeverityCritical,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of this health check.
func (c *ControllerChecker) Name() string {
	return "controller"
}

// Severity returns the severity level of this check.
func (c *ControllerChecker) Severity() health.Severity {
	return c.severity
}

// Check performs the controller health check.
func (c *ControllerChecker) Check(ctx context.Context) health.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.ctrl.QueryStatus(ctx, "")
	if err != nil {
		return health.CheckResult{
			Status:  health.StatusUnhealthy,
			Message: fmt.Sprintf("controller unreachable: %v", err),
		}
	}

	result := health.CheckResult{
		Status: health.StatusHealthy,
		Details: map[string]any{
			"state": status.State,
		},
	}
	if status.State != "ready" {
		result.Status = health.StatusDegraded
		result.Message = fmt.Sprintf("controller state %q", status.State)
		if status.Message != "" {
			result.Message += ": " + status.Message
		}
	}
	return result
}
