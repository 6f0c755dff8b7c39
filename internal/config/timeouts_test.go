package config

import (
	"testing"
	"time"
)

func TestLoadTimeouts_Defaults(t *testing.T) {
	timeouts := LoadTimeouts()

	if timeouts.ProviderCall != 30*time.Second {
		t.Errorf("Expected ProviderCall default 30s, got %v", timeouts.ProviderCall)
	}
	if timeouts.GraceDelay != 45*time.Second {
		t.Errorf("Expected GraceDelay default 45s, got %v", timeouts.GraceDelay)
	}
	if timeouts.PollInterval != 10*time.Second {
		t.Errorf("Expected PollInterval default 10s, got %v", timeouts.PollInterval)
	}
	if timeouts.ProgressTick != 1*time.Second {
		t.Errorf("Expected ProgressTick default 1s, got %v", timeouts.ProgressTick)
	}
	if timeouts.MaxProvision != 24*time.Hour {
		t.Errorf("Expected MaxProvision default 24h, got %v", timeouts.MaxProvision)
	}
	if timeouts.DeletePollInterval != 15*time.Second {
		t.Errorf("Expected DeletePollInterval default 15s, got %v", timeouts.DeletePollInterval)
	}
	if timeouts.DeleteConfirmBound != 10*time.Minute {
		t.Errorf("Expected DeleteConfirmBound default 10m, got %v", timeouts.DeleteConfirmBound)
	}
	if timeouts.SweepInterval != 5*time.Minute {
		t.Errorf("Expected SweepInterval default 5m, got %v", timeouts.SweepInterval)
	}
	if timeouts.TerminalRetention != 1*time.Hour {
		t.Errorf("Expected TerminalRetention default 1h, got %v", timeouts.TerminalRetention)
	}
	if timeouts.RecoveryRetention != 24*time.Hour {
		t.Errorf("Expected RecoveryRetention default 24h, got %v", timeouts.RecoveryRetention)
	}
	if timeouts.RetryMaxAttempts != 3 {
		t.Errorf("Expected RetryMaxAttempts default 3, got %d", timeouts.RetryMaxAttempts)
	}
	if timeouts.RetryInitialDelay != 1*time.Second {
		t.Errorf("Expected RetryInitialDelay default 1s, got %v", timeouts.RetryInitialDelay)
	}
}

func TestLoadTimeouts_EnvOverride(t *testing.T) {
	t.Setenv("CLUSTERD_POLL_INTERVAL", "250ms")
	t.Setenv("CLUSTERD_RETRY_MAX_ATTEMPTS", "7")

	timeouts := LoadTimeouts()

	if timeouts.PollInterval != 250*time.Millisecond {
		t.Errorf("Expected PollInterval 250ms, got %v", timeouts.PollInterval)
	}
	if timeouts.RetryMaxAttempts != 7 {
		t.Errorf("Expected RetryMaxAttempts 7, got %d", timeouts.RetryMaxAttempts)
	}
}

func TestLoadTimeouts_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CLUSTERD_POLL_INTERVAL", "not-a-duration")
	t.Setenv("CLUSTERD_RETRY_MAX_ATTEMPTS", "lots")

	timeouts := LoadTimeouts()

	if timeouts.PollInterval != 10*time.Second {
		t.Errorf("Expected PollInterval fallback 10s, got %v", timeouts.PollInterval)
	}
	if timeouts.RetryMaxAttempts != 3 {
		t.Errorf("Expected RetryMaxAttempts fallback 3, got %d", timeouts.RetryMaxAttempts)
	}
}
