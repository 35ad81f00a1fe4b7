package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NK-639/ALHS-Backend/internal/api"
	"github.com/NK-639/ALHS-Backend/internal/api/handlers"
	"github.com/NK-639/ALHS-Backend/internal/api/types"
	"github.com/NK-639/ALHS-Backend/internal/archive"
	"github.com/NK-639/ALHS-Backend/internal/cache"
	"github.com/NK-639/ALHS-Backend/internal/compiler"
	"github.com/NK-639/ALHS-Backend/internal/controller"
	"github.com/NK-639/ALHS-Backend/internal/device"
	"github.com/NK-639/ALHS-Backend/internal/health"
	"github.com/NK-639/ALHS-Backend/internal/health/checks"
	"github.com/NK-639/ALHS-Backend/internal/orchestrator"
	"github.com/NK-639/ALHS-Backend/internal/parser"
	"github.com/NK-639/ALHS-Backend/pkg/metrics"
)

const scenarioSource = `dispense(pumpA, 5mL); wait(2s); mix(stirrerB, 100rpm, 10s)`

type testEnv struct {
	server  *httptest.Server
	sim     *controller.Simulator
	archive *archive.Archive
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry, err := device.NewStaticRegistry(
		device.Spec{
			Name:       "pumpA",
			Class:      device.ClassDispenser,
			Operations: []string{"dispense", "set"},
			Envelopes: map[string]device.Envelope{
				"volume_ml": {Min: 0, Max: 50},
			},
		},
		device.Spec{
			Name:       "stirrerB",
			Class:      device.ClassMixer,
			Operations: []string{"mix", "set"},
			Envelopes: map[string]device.Envelope{
				"speed_rpm":  {Min: 0, Max: 500},
				"duration_s": {Min: 0, Max: 600},
			},
		},
	)
	require.NoError(t, err)

	store := cache.NewMemory(cache.DefaultConfig())
	t.Cleanup(func() { store.Close() })

	arch, err := archive.Open(archive.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { arch.Close() })

	sim := controller.NewSimulator()
	t.Cleanup(func() { sim.Close() })

	comp := compiler.New(registry, compiler.DefaultConfig(), compiler.WithCache(store))
	orch := orchestrator.New(sim, orchestrator.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
		AckTimeout:  100 * time.Millisecond,
		AbortGrace:  time.Second,
	})

	handler := handlers.NewHandler(comp, orch, registry, arch, nil)

	healthReg := health.NewRegistry("test")
	healthReg.Register(checks.NewCacheChecker(store))
	healthReg.Register(checks.NewArchiveChecker(arch))
	healthReg.Register(checks.NewControllerChecker(sim))

	router := api.NewRouterWithConfig(handler, api.RouterConfig{
		Health:  health.NewHandler(healthReg),
		Metrics: metrics.NewRegistry(metrics.DefaultConfig()),
		Version: "test",
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, sim: sim, archive: arch}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestVersionEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/version")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[types.VersionResponse](t, resp)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, parser.GrammarVersion, body.GrammarVersion)
}

func TestCompileEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/compile", types.CompileRequest{
		SourceName: "scenario.alp",
		Source:     scenarioSource,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[types.CompileResponse](t, resp)
	assert.Equal(t, "scenario.alp", body.SourceName)
	assert.Equal(t, 3, body.Commands)
	assert.Contains(t, body.Script, "FEED DEVICE=pumpA VOLUME=5")
	assert.Contains(t, body.Script, "G4 P2000")
	assert.False(t, body.Cached)

	// Same source again is served from cache.
	resp = env.postJSON(t, "/compile", types.CompileRequest{
		SourceName: "scenario.alp",
		Source:     scenarioSource,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[types.CompileResponse](t, resp).Cached)
}

func TestCompileValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing source", func(t *testing.T) {
		resp := env.postJSON(t, "/compile", types.CompileRequest{SourceName: "x.alp"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(env.server.URL+"/compile", "application/json", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCompileSourceErrors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("syntax error", func(t *testing.T) {
		resp := env.postJSON(t, "/compile", types.CompileRequest{Source: "dispense(pumpA"})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		body := decodeBody[types.ErrorResponse](t, resp)
		assert.Equal(t, "syntax error", body.Error)
	})

	t.Run("unknown device", func(t *testing.T) {
		resp := env.postJSON(t, "/compile", types.CompileRequest{Source: "dispense(ghost, 5mL)"})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		body := decodeBody[types.ErrorResponse](t, resp)
		assert.Equal(t, "semantic analysis failed", body.Error)
		assert.NotEmpty(t, body.Details)
	})
}

func TestDeviceEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/devices")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	specs := decodeBody[[]device.Spec](t, resp)
	require.Len(t, specs, 2)
	assert.Equal(t, "pumpA", specs[0].Name)

	resp = env.get(t, "/devices/stirrerB")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	spec := decodeBody[device.Spec](t, resp)
	assert.Equal(t, device.ClassMixer, spec.Class)

	resp = env.get(t, "/devices/ghost")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/runs", types.StartRunRequest{
		SourceName: "scenario.alp",
		Source:     scenarioSource,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	started := decodeBody[types.RunResponse](t, resp)
	assert.Equal(t, 3, started.Total)
	assert.Equal(t, "scenario.alp", started.SourceName)
	assert.NotEqual(t, started.CompilationID.String(), "00000000-0000-0000-0000-000000000000")

	// Poll the active run until it completes.
	require.Eventually(t, func() bool {
		resp := env.get(t, "/runs/active")
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		return decodeBody[types.RunResponse](t, resp).State == orchestrator.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// The finished run lands in the archive.
	require.Eventually(t, func() bool {
		resp := env.get(t, fmt.Sprintf("/runs/%s", started.ID))
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	resp = env.get(t, fmt.Sprintf("/runs/%s", started.ID))
	rec := decodeBody[archive.Record](t, resp)
	assert.Equal(t, "completed", rec.State)
	assert.Equal(t, 3, rec.CommandsTotal)
	assert.Equal(t, 3, rec.CommandsDone)
	assert.Equal(t, started.CompilationID, rec.CompilationID)

	resp = env.get(t, "/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[types.RunListResponse](t, resp)
	require.Len(t, list.Runs, 1)

	resp = env.get(t, fmt.Sprintf("/runs/%s/journal", started.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	journal := decodeBody[types.JournalResponse](t, resp)
	assert.Len(t, journal.Entries, 3)
	for _, entry := range journal.Entries {
		assert.Equal(t, "acked", entry.Outcome)
	}
}

func TestStartRunConflicts(t *testing.T) {
	env := newTestEnv(t)

	// Hold the ack back so the first run stays active.
	env.sim.ScriptOutcomes(0, controller.SimOutcome{
		Type:      controller.EventAck,
		Delay:     2 * time.Second,
		Completed: true,
	})

	resp := env.postJSON(t, "/runs", types.StartRunRequest{Source: "dispense(pumpA, 5mL)"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/runs", types.StartRunRequest{Source: "dispense(pumpA, 1mL)"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunControls(t *testing.T) {
	env := newTestEnv(t)

	env.sim.ScriptOutcomes(0, controller.SimOutcome{
		Type:      controller.EventAck,
		Delay:     time.Second,
		Completed: true,
	})

	resp := env.postJSON(t, "/runs", types.StartRunRequest{Source: scenarioSource})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/runs/active/pause", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		resp := env.get(t, "/runs/active")
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		return decodeBody[types.RunResponse](t, resp).State == orchestrator.StatePaused
	}, 5*time.Second, 10*time.Millisecond)

	// Pausing twice is a state conflict.
	resp = env.postJSON(t, "/runs/active/pause", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/runs/active/resume", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		resp := env.get(t, "/runs/active")
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		return decodeBody[types.RunResponse](t, resp).State == orchestrator.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAbortRun(t *testing.T) {
	env := newTestEnv(t)

	env.sim.ScriptOutcomes(0, controller.SimOutcome{
		Type:      controller.EventAck,
		Delay:     2 * time.Second,
		Completed: true,
	})

	resp := env.postJSON(t, "/runs", types.StartRunRequest{Source: scenarioSource})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/runs/active/abort", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		resp := env.get(t, "/runs/active")
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		return decodeBody[types.RunResponse](t, resp).State == orchestrator.StateAborted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, env.sim.StopCalls())
}

func TestRunNotFoundAndBadID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/runs/active")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/runs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/runs/8c2f9a1e-4242-4d61-9f3a-000000000001")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/runs/8c2f9a1e-4242-4d61-9f3a-000000000001/journal")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProbesAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		resp := env.get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", path)
		resp.Body.Close()
	}
}
