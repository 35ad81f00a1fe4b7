package shutdown

import "time"

// Config holds configuration for the shutdown manager.
//
// PerHookTimeout has to leave room for the abort grace period of the
// orchestrator: aborting a run waits for the in-flight command to
// resolve before the emergency stop is confirmed.
type Config struct {
	// OverallTimeout is the maximum time allowed for all shutdown hooks to complete.
	// Default: 30 seconds.
	OverallTimeout time.Duration

	// PerHookTimeout is the maximum time allowed for a single hook to complete.
	// Default: 10 seconds.
	PerHookTimeout time.Duration

	// SlowHookThreshold is the duration after which a hook is considered slow
	// and a warning is logged.
	// Default: 5 seconds.
	SlowHookThreshold time.Duration
}

// DefaultConfig returns the default shutdown configuration.
func DefaultConfig() Config {
	return Config{
		OverallTimeout:    30 * time.Second,
		PerHookTimeout:    10 * time.Second,
		SlowHookThreshold: 5 * time.Second,
	}
}

// Validate fills in defaults for zero or negative values.
func (c *Config) Validate() {
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = 30 * time.Second
	}
	if c.PerHookTimeout <= 0 {
		c.PerHookTimeout = 10 * time.Second
	}
	if c.SlowHookThreshold <= 0 {
		c.SlowHookThreshold = 5 * time.Second
	}
}
