package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.BaseDelay != 1*time.Second {
		t.Errorf("expected 1s base delay, got %v", cfg.BaseDelay)
	}
	if !cfg.Jitter {
		t.Error("expected jitter enabled")
	}
}

func TestLLMConfig(t *testing.T) {
	cfg := LLMConfig()
	if cfg.BaseDelay != 2*time.Second {
		t.Errorf("expected 2s base delay, got %v", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("expected 60s max delay, got %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.5 {
		t.Errorf("expected 2.5 multiplier, got %f", cfg.Multiplier)
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		return nil
	})

	if !res.Success {
		t.Error("expected success")
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoEventualSuccess(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	if !res.Success {
		t.Errorf("expected success, last error: %v", res.LastError)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid api key")
	res := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		return permanent
	})

	if res.Success {
		t.Error("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(res.LastError, permanent) {
		t.Errorf("expected the permanent error, got %v", res.LastError)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		return errors.New("rate limit exceeded")
	})

	if res.Success {
		t.Error("expected failure")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls (1 + 3 retries), got %d", calls)
	}
	if res.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", res.Attempts)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := fastConfig()
	cfg.BaseDelay = 100 * time.Millisecond

	res := Do(ctx, cfg, zerolog.Nop(), func() error {
		calls++
		cancel()
		return errors.New("connection refused")
	})

	if res.Success {
		t.Error("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("request timeout"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("no such host"), true},
		{errors.New("invalid api key"), false},
		{errors.New("malformed response"), false},
		{errors.New("400 bad request"), false},
	}

	for _, tc := range cases {
		got := IsRetryable(tc.err)
		if got != tc.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := Config{
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	if d := backoffDelay(cfg, 0); d != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", d)
	}
	if d := backoffDelay(cfg, 1); d != 2*time.Second {
		t.Errorf("attempt 1: expected 2s, got %v", d)
	}
	if d := backoffDelay(cfg, 2); d != 4*time.Second {
		t.Errorf("attempt 2: expected 4s, got %v", d)
	}
	// Capped at MaxDelay from here on.
	if d := backoffDelay(cfg, 3); d != 5*time.Second {
		t.Errorf("attempt 3: expected 5s cap, got %v", d)
	}
}

func TestBackoffDelayJitterStaysInRange(t *testing.T) {
	cfg := Config{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	for i := 0; i < 50; i++ {
		d := backoffDelay(cfg, 1)
		if d < 1800*time.Millisecond || d > 2200*time.Millisecond {
			t.Errorf("jittered delay out of range: %v", d)
		}
	}
}
