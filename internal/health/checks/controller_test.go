package checks

import (
	"context"
	"errors"
	"testing"

	"github.com/NK-639/ALHS-Backend/internal/controller"
	"github.com/NK-639/ALHS-Backend/internal/health"
	"github.com/stretchr/testify/assert"
)

type stubQuerier struct {
	status controller.DeviceStatus
	err    error
}

func (s *stubQuerier) QueryStatus(ctx context.Context, deviceName string) (controller.DeviceStatus, error) {
	return s.status, s.err
}

func TestControllerChecker(t *testing.T) {
	t.Run("ready controller is healthy", func(t *testing.T) {
		checker := NewControllerChecker(&stubQuerier{
			status: controller.DeviceStatus{State: "ready"},
		})

		result := checker.Check(context.Background())

		assert.Equal(t, health.StatusHealthy, result.Status)
		assert.Equal(t, "ready", result.Details["state"])
	})

	t.Run("unreachable controller is unhealthy", func(t *testing.T) {
		checker := NewControllerChecker(&stubQuerier{err: errors.New("connection refused")})

		result := checker.Check(context.Background())

		assert.Equal(t, health.StatusUnhealthy, result.Status)
		assert.Contains(t, result.Message, "connection refused")
	})

	t.Run("non-ready state is degraded", func(t *testing.T) {
		checker := NewControllerChecker(&stubQuerier{
			status: controller.DeviceStatus{State: "shutdown", Message: "klippy reports shutdown"},
		})

		result := checker.Check(context.Background())

		assert.Equal(t, health.StatusDegraded, result.Status)
		assert.Contains(t, result.Message, "shutdown")
		assert.Contains(t, result.Message, "klippy reports shutdown")
	})

	t.Run("name", func(t *testing.T) {
		checker := NewControllerChecker(&stubQuerier{})
		assert.Equal(t, "controller", checker.Name())
	})

	t.Run("default severity is critical", func(t *testing.T) {
		checker := NewControllerChecker(&stubQuerier{})
		assert.Equal(t, health.SeverityCritical, checker.Severity())
	})

	t.Run("custom severity", func(t *testing.T) {
		checker := NewControllerChecker(&stubQuerier{}, WithControllerSeverity(health.SeverityWarning))
		assert.Equal(t, health.SeverityWarning, checker.Severity())
	})
}
