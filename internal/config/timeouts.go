package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timing values for the orchestrator.
// These values can be customized via environment variables.
type Timeouts struct {
	ProviderCall       time.Duration // Per-call timeout for provider API requests
	GraceDelay         time.Duration // Delay before reconciliation polling starts
	PollInterval       time.Duration // Interval between reconciliation polls
	ProgressTick       time.Duration // Interval between progress recomputations
	MaxProvision       time.Duration // Hard cap on total provisioning duration
	DeletePollInterval time.Duration // Interval between deletion-confirmation polls
	DeleteConfirmBound time.Duration // Hard cap on waiting for deletion confirmation
	SweepInterval      time.Duration // Interval between terminal-record sweeps
	TerminalRetention  time.Duration // Age after which terminal records are purged
	RecoveryRetention  time.Duration // Age past which recovered records are failed
	RetryMaxAttempts   int           // Maximum retry attempts for the create ack
	RetryInitialDelay  time.Duration // Initial delay between retries
}

// LoadTimeouts loads timing configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - CLUSTERD_TIMEOUT_PROVIDER_CALL (default: 30s)
//   - CLUSTERD_GRACE_DELAY (default: 45s)
//   - CLUSTERD_POLL_INTERVAL (default: 10s)
//   - CLUSTERD_PROGRESS_TICK (default: 1s)
//   - CLUSTERD_TIMEOUT_MAX_PROVISION (default: 24h)
//   - CLUSTERD_DELETE_POLL_INTERVAL (default: 15s)
//   - CLUSTERD_DELETE_CONFIRM_BOUND (default: 10m)
//   - CLUSTERD_SWEEP_INTERVAL (default: 5m)
//   - CLUSTERD_TERMINAL_RETENTION (default: 1h)
//   - CLUSTERD_RECOVERY_RETENTION (default: 24h)
//   - CLUSTERD_RETRY_MAX_ATTEMPTS (default: 3)
//   - CLUSTERD_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		ProviderCall:       parseDuration("CLUSTERD_TIMEOUT_PROVIDER_CALL", 30*time.Second),
		GraceDelay:         parseDuration("CLUSTERD_GRACE_DELAY", 45*time.Second),
		PollInterval:       parseDuration("CLUSTERD_POLL_INTERVAL", 10*time.Second),
		ProgressTick:       parseDuration("CLUSTERD_PROGRESS_TICK", 1*time.Second),
		MaxProvision:       parseDuration("CLUSTERD_TIMEOUT_MAX_PROVISION", 24*time.Hour),
		DeletePollInterval: parseDuration("CLUSTERD_DELETE_POLL_INTERVAL", 15*time.Second),
		DeleteConfirmBound: parseDuration("CLUSTERD_DELETE_CONFIRM_BOUND", 10*time.Minute),
		SweepInterval:      parseDuration("CLUSTERD_SWEEP_INTERVAL", 5*time.Minute),
		TerminalRetention:  parseDuration("CLUSTERD_TERMINAL_RETENTION", 1*time.Hour),
		RecoveryRetention:  parseDuration("CLUSTERD_RECOVERY_RETENTION", 24*time.Hour),
		RetryMaxAttempts:   parseInt("CLUSTERD_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:  parseDuration("CLUSTERD_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
