package health_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NK-639/ALHS-Backend/internal/archive"
	"github.com/NK-639/ALHS-Backend/internal/cache"
	"github.com/NK-639/ALHS-Backend/internal/controller"
	"github.com/NK-639/ALHS-Backend/internal/health"
	"github.com/NK-639/ALHS-Backend/internal/health/checks"
)

// newTestServices wires real in-process backends: an in-memory
// compilation cache, an in-memory run archive, and a simulated motion
// controller.
func newTestServices(t *testing.T) (cache.Cache, *archive.Archive, *controller.Simulator) {
	t.Helper()

	store := cache.NewMemory(cache.DefaultConfig())
	t.Cleanup(func() { store.Close() })

	a, err := archive.Open(archive.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	sim := controller.NewSimulator()
	t.Cleanup(func() { sim.Close() })

	return store, a, sim
}

func TestRegistryWithRealServices(t *testing.T) {
	store, a, sim := newTestServices(t)

	registry := health.NewRegistry("test")
	registry.Register(checks.NewCacheChecker(store))
	registry.Register(checks.NewArchiveChecker(a))
	registry.Register(checks.NewControllerChecker(sim))

	resp := registry.Health(context.Background())

	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Len(t, resp.Checks, 3)
	for name, check := range resp.Checks {
		assert.Equal(t, health.StatusHealthy, check.Status, "check %s", name)
	}
}

func TestReadinessIgnoresWarningFailures(t *testing.T) {
	_, a, sim := newTestServices(t)

	// A closed cache fails its health check, but the cache is a
	// warning-level dependency.
	store := cache.NewMemory(cache.DefaultConfig())
	require.NoError(t, store.Close())

	registry := health.NewRegistry("test")
	registry.Register(checks.NewCacheChecker(store))
	registry.Register(checks.NewArchiveChecker(a))
	registry.Register(checks.NewControllerChecker(sim))

	ready := registry.Readiness(context.Background())
	assert.NotEqual(t, health.StatusUnhealthy, ready.Status)

	full := registry.Health(context.Background())
	assert.Equal(t, health.StatusUnhealthy, full.Checks["cache"].Status)
}

func TestReadinessFailsOnCriticalFailure(t *testing.T) {
	store, a, sim := newTestServices(t)

	// Closing the archive makes its ping fail, and the archive is
	// critical.
	require.NoError(t, a.Close())

	registry := health.NewRegistry("test")
	registry.Register(checks.NewCacheChecker(store))
	registry.Register(checks.NewArchiveChecker(a))
	registry.Register(checks.NewControllerChecker(sim))

	ready := registry.Readiness(context.Background())
	assert.Equal(t, health.StatusUnhealthy, ready.Status)
}

func TestControllerDegradedStateSurfaces(t *testing.T) {
	store, a, sim := newTestServices(t)
	sim.SetDeviceState("", "shutdown")

	registry := health.NewRegistry("test")
	registry.Register(checks.NewCacheChecker(store))
	registry.Register(checks.NewArchiveChecker(a))
	registry.Register(checks.NewControllerChecker(sim))

	resp := registry.Health(context.Background())

	assert.Equal(t, health.StatusDegraded, resp.Checks["controller"].Status)
	assert.Contains(t, resp.Checks["controller"].Message, "shutdown")
}

func TestHealthEndpoints(t *testing.T) {
	store, a, sim := newTestServices(t)

	registry := health.NewRegistry("1.0.0-test")
	registry.Register(checks.NewCacheChecker(store))
	registry.Register(checks.NewArchiveChecker(a))
	registry.Register(checks.NewControllerChecker(sim))

	mux := http.NewServeMux()
	health.NewHandler(registry).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := &http.Client{Timeout: 5 * time.Second}

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		resp, err := client.Get(server.URL + path)
		require.NoError(t, err, "GET %s", path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", path)
		resp.Body.Close()
	}

	resp, err := client.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body health.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "1.0.0-test", body.Version)
	assert.Len(t, body.Checks, 3)
}

func TestReadinessEndpointReturns503(t *testing.T) {
	store, a, sim := newTestServices(t)
	require.NoError(t, a.Close())

	registry := health.NewRegistry("test")
	registry.Register(checks.NewCacheChecker(store))
	registry.Register(checks.NewArchiveChecker(a))
	registry.Register(checks.NewControllerChecker(sim))

	mux := http.NewServeMux()
	health.NewHandler(registry).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
