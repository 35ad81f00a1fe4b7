package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NK-639/ALHS-Backend/internal/gcode"
	"github.com/NK-639/ALHS-Backend/pkg/integration"
)

type fakeMoonraker struct {
	mu         sync.Mutex
	scripts    []string
	apiKeys    []string
	failScript bool
	stops      int
}

func (f *fakeMoonraker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/printer/gcode/script", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Script string `json:"script"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.scripts = append(f.scripts, req.Script)
		f.apiKeys = append(f.apiKeys, r.Header.Get("X-Api-Key"))
		fail := f.failScript
		f.mu.Unlock()

		if fail {
			http.Error(w, `{"error": "klippy shutdown"}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"result": "ok"}`))
	})
	mux.HandleFunc("/printer/info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": {"state": "ready", "state_message": "Printer is ready"}}`))
	})
	mux.HandleFunc("/printer/emergency_stop", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.stops++
		f.mu.Unlock()
		w.Write([]byte(`{"result": "ok"}`))
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakeMoonraker) *MoonrakerClient {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := DefaultMoonrakerConfig(srv.URL)
	cfg.APIKey = "test-key"
	cfg.Retry = integration.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}
	client := NewMoonrakerClient(cfg)
	t.Cleanup(func() { client.Close() })
	return client
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no controller event within deadline")
		return Event{}
	}
}

func TestMoonrakerDispatchAcks(t *testing.T) {
	fake := &fakeMoonraker{}
	client := newTestClient(t, fake)

	cmd := gcode.Command{Seq: 0, Device: "pumpA", Op: gcode.OpcodeFeed, Volume: 5}
	require.NoError(t, client.Dispatch(context.Background(), cmd))

	ev := waitEvent(t, client.Events())
	assert.Equal(t, EventAck, ev.Type)
	assert.Equal(t, uint64(0), ev.Seq)
	assert.Equal(t, "pumpA", ev.Device)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.scripts, 1)
	assert.Equal(t, "FEED DEVICE=pumpA VOLUME=5", fake.scripts[0])
	assert.Equal(t, "test-key", fake.apiKeys[0])
}

func TestMoonrakerDispatchFaults(t *testing.T) {
	fake := &fakeMoonraker{failScript: true}
	client := newTestClient(t, fake)

	cmd := gcode.Command{Seq: 3, Device: "shaker1", Op: gcode.OpcodeHome}
	require.NoError(t, client.Dispatch(context.Background(), cmd))

	ev := waitEvent(t, client.Events())
	assert.Equal(t, EventFault, ev.Type)
	assert.Equal(t, uint64(3), ev.Seq)
	assert.NotEmpty(t, ev.Reason)
}

func TestMoonrakerQueryStatusTracksCompletion(t *testing.T) {
	fake := &fakeMoonraker{}
	client := newTestClient(t, fake)

	status, err := client.QueryStatus(context.Background(), "pumpA")
	require.NoError(t, err)
	assert.Equal(t, "ready", status.State)
	assert.False(t, status.HasCompleted)

	require.NoError(t, client.Dispatch(context.Background(),
		gcode.Command{Seq: 7, Device: "pumpA", Op: gcode.OpcodeFeed, Volume: 1}))
	waitEvent(t, client.Events())

	status, err = client.QueryStatus(context.Background(), "pumpA")
	require.NoError(t, err)
	assert.True(t, status.HasCompleted)
	assert.Equal(t, uint64(7), status.LastCompletedSeq)
	assert.Equal(t, "Printer is ready", status.Message)
}

func TestMoonrakerEmergencyStop(t *testing.T) {
	fake := &fakeMoonraker{}
	client := newTestClient(t, fake)

	require.NoError(t, client.EmergencyStop(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.stops)
}

func TestMoonrakerDispatchAfterClose(t *testing.T) {
	fake := &fakeMoonraker{}
	client := newTestClient(t, fake)

	require.NoError(t, client.Close())
	err := client.Dispatch(context.Background(), gcode.Command{Seq: 0})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSimulatorScriptedFaults(t *testing.T) {
	sim := NewSimulator()
	t.Cleanup(func() { sim.Close() })

	sim.FaultTimes(0, 2, "timeout")

	cmd := gcode.Command{Seq: 0, Device: "pumpA", Op: gcode.OpcodeFeed, Volume: 5}
	for _, wantType := range []EventType{EventFault, EventFault, EventAck} {
		require.NoError(t, sim.Dispatch(context.Background(), cmd))
		ev := waitEvent(t, sim.Events())
		assert.Equal(t, wantType, ev.Type)
	}

	assert.Len(t, sim.Dispatched(), 3)
}

func TestSimulatorLostAckStillCompletes(t *testing.T) {
	sim := NewSimulator()
	t.Cleanup(func() { sim.Close() })

	sim.ScriptOutcomes(2, SimOutcome{Drop: true, Completed: true})

	cmd := gcode.Command{Seq: 2, Device: "shaker1", Op: gcode.OpcodeHome}
	require.NoError(t, sim.Dispatch(context.Background(), cmd))

	// No event arrives, but hardware truth shows the command complete.
	select {
	case ev := <-sim.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	status, err := sim.QueryStatus(context.Background(), "shaker1")
	require.NoError(t, err)
	assert.True(t, status.HasCompleted)
	assert.Equal(t, uint64(2), status.LastCompletedSeq)
}
