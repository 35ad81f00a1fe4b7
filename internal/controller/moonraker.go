package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/NK-639/ALHS-Backend/internal/gcode"
	"github.com/NK-639/ALHS-Backend/pkg/integration"
	"github.com/NK-639/ALHS-Backend/pkg/metrics"
)

// MoonrakerConfig configures the Moonraker-compatible controller client.
type MoonrakerConfig struct {
	// BaseURL is the Moonraker HTTP endpoint, e.g. http://localhost:7125.
	BaseURL string

	// APIKey authenticates requests when the controller requires it.
	APIKey string

	// ScriptTimeout bounds one script execution, excluding the
	// command's own dwell or mix duration, which is added on top.
	ScriptTimeout time.Duration

	// EventBuffer is the event channel capacity.
	EventBuffer int

	// Retry configures transport-level retries for status queries.
	// Dispatches are never retried here; command retry is the
	// orchestrator's policy.
	Retry integration.RetryConfig

	// CircuitBreaker protects the controller from hammering a dead peer.
	CircuitBreaker integration.CircuitBreakerConfig
}

// DefaultMoonrakerConfig returns the default client configuration.
func DefaultMoonrakerConfig(baseURL string) MoonrakerConfig {
	return MoonrakerConfig{
		BaseURL:        baseURL,
		ScriptTimeout:  30 * time.Second,
		EventBuffer:    64,
		Retry:          integration.DefaultRetryConfig(),
		CircuitBreaker: integration.DefaultCircuitBreakerConfig(),
	}
}

// MoonrakerClient talks to a Moonraker-compatible hardware controller
// over HTTP. Script execution blocks server-side until the queued
// motion completes, so a successful POST is the command's ack.
type MoonrakerClient struct {
	config  MoonrakerConfig
	http    *http.Client
	breaker *integration.CircuitBreaker
	retryer *integration.Retryer
	logger  *slog.Logger

	events chan Event

	mu        sync.Mutex
	closed    bool
	completed map[string]uint64
	inflight  sync.WaitGroup
}

// NewMoonrakerClient creates a client for the given configuration.
func NewMoonrakerClient(cfg MoonrakerConfig) *MoonrakerClient {
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = 30 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	return &MoonrakerClient{
		config:    cfg,
		http:      &http.Client{},
		breaker:   integration.NewCircuitBreaker("moonraker", cfg.CircuitBreaker),
		retryer:   integration.NewRetryer(cfg.Retry).WithService("moonraker", "/printer/info"),
		logger:    slog.Default().With("component", "moonraker", "base_url", cfg.BaseURL),
		events:    make(chan Event, cfg.EventBuffer),
		completed: make(map[string]uint64),
	}
}

// Dispatch implements HardwareController. The command is accepted
// immediately; the script round-trip runs in the background and its
// outcome is delivered on the event channel.
func (c *MoonrakerClient) Dispatch(ctx context.Context, cmd gcode.Command) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	if err := c.breaker.Allow(); err != nil {
		c.inflight.Done()
		return err
	}

	go c.execute(cmd)
	return nil
}

func (c *MoonrakerClient) execute(cmd gcode.Command) {
	defer c.inflight.Done()

	// Dwell and mix commands block on the controller for their full
	// duration; allow for it on top of the transport timeout.
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ScriptTimeout+cmd.Duration)
	defer cancel()

	timer := metrics.Global().Integration().NewCallTimer("moonraker", "/printer/gcode/script")
	err := c.postScript(ctx, cmd.Format())
	if err != nil {
		c.breaker.RecordFailure()
		timer.Error(metrics.ClassifyError(err))
		c.logger.Warn("script dispatch failed", "seq", cmd.Seq, "device", cmd.Device, "error", err)
		c.emit(Event{Seq: cmd.Seq, Device: cmd.Device, Type: EventFault, Reason: err.Error(), At: time.Now()})
		return
	}

	c.breaker.RecordSuccess()
	timer.Success()
	c.markCompleted(cmd)
	c.emit(Event{Seq: cmd.Seq, Device: cmd.Device, Type: EventAck, At: time.Now()})
}

func (c *MoonrakerClient) markCompleted(cmd gcode.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.completed[cmd.Device]; !ok || cmd.Seq > prev {
		c.completed[cmd.Device] = cmd.Seq
	}
}

func (c *MoonrakerClient) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		// The consumer stopped draining; dropping the oldest would
		// reorder, so drop this event and let the dispatch deadline
		// surface the loss.
		c.logger.Error("event channel full, dropping event", "seq", ev.Seq, "type", ev.Type.String())
	}
}

// Events implements HardwareController.
func (c *MoonrakerClient) Events() <-chan Event {
	return c.events
}

// QueryStatus implements HardwareController. The controller state
// comes from /printer/info; the last completed sequence number is
// tracked client-side from acked scripts.
func (c *MoonrakerClient) QueryStatus(ctx context.Context, deviceName string) (DeviceStatus, error) {
	info, err := integration.DoWithResult(ctx, c.retryer, func(ctx context.Context) (printerInfo, error) {
		return c.fetchInfo(ctx)
	})
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("query status for %q: %w", deviceName, err)
	}

	c.mu.Lock()
	seq, ok := c.completed[deviceName]
	c.mu.Unlock()

	return DeviceStatus{
		Device:           deviceName,
		State:            info.State,
		LastCompletedSeq: seq,
		HasCompleted:     ok,
		Message:          info.StateMessage,
	}, nil
}

// EmergencyStop implements HardwareController. It bypasses the circuit
// breaker: a stop must always be attempted.
func (c *MoonrakerClient) EmergencyStop(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/printer/emergency_stop", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("emergency stop: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return integration.NewHTTPError(resp.StatusCode, "emergency stop rejected")
	}
	c.logger.Warn("emergency stop issued")
	return nil
}

// Close implements HardwareController. It waits for in-flight script
// calls before closing the event channel.
func (c *MoonrakerClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()
	close(c.events)
	return nil
}

// =============================================================================
// HTTP plumbing
// =============================================================================

type scriptRequest struct {
	Script string `json:"script"`
}

type printerInfo struct {
	State        string `json:"state"`
	StateMessage string `json:"state_message"`
}

type infoResponse struct {
	Result printerInfo `json:"result"`
}

func (c *MoonrakerClient) postScript(ctx context.Context, script string) error {
	body, err := json.Marshal(scriptRequest{Script: script})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/printer/gcode/script", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return integration.NewHTTPErrorWithBody(resp.StatusCode,
			fmt.Sprintf("script rejected: %s", http.StatusText(resp.StatusCode)), payload)
	}
	return nil
}

func (c *MoonrakerClient) fetchInfo(ctx context.Context) (printerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"/printer/info", nil)
	if err != nil {
		return printerInfo{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return printerInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return printerInfo{}, integration.NewHTTPError(resp.StatusCode, "printer info request failed")
	}

	var parsed infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return printerInfo{}, fmt.Errorf("decode printer info: %w", err)
	}
	return parsed.Result, nil
}

func (c *MoonrakerClient) setHeaders(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("X-Api-Key", c.config.APIKey)
	}
}
