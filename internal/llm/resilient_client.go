package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/onechat/internal/chat"
	"github.com/onechat/internal/retry"
)

// ResilientClient wraps a ModelClient with retry logic, an optional per-call
// timeout, and a client-side rate limiter. The composer never retries; this
// wrapper is where transient provider failures are absorbed.
type ResilientClient struct {
	inner       chat.ModelClient
	retryConfig retry.Config
	limiter     *rate.Limiter
	timeout     time.Duration
	log         zerolog.Logger
}

// ResilientOption configures a ResilientClient.
type ResilientOption func(*ResilientClient)

// WithTimeout bounds each Complete call, retries included.
func WithTimeout(d time.Duration) ResilientOption {
	return func(rc *ResilientClient) { rc.timeout = d }
}

// WithRateLimit throttles outbound calls to rps requests per second.
func WithRateLimit(rps float64, burst int) ResilientOption {
	return func(rc *ResilientClient) { rc.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func NewResilientClient(inner chat.ModelClient, cfg retry.Config, logger zerolog.Logger, opts ...ResilientOption) *ResilientClient {
	rc := &ResilientClient{
		inner:       inner,
		retryConfig: cfg,
		log:         logger,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Complete implements chat.ModelClient. Retryable errors back off
// exponentially; malformed responses and other permanent failures surface
// immediately.
func (rc *ResilientClient) Complete(ctx context.Context, req *chat.Request) (string, error) {
	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	var reply string
	result := retry.Do(ctx, rc.retryConfig, rc.log, func() error {
		if rc.limiter != nil {
			if err := rc.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %v", ErrRemoteCall, err)
			}
		}
		out, err := rc.inner.Complete(ctx, req)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})

	if !result.Success {
		rc.log.Warn().Err(result.LastError).Int("attempts", result.Attempts).
			Dur("elapsed", result.TotalDuration).
			Msg("Model call failed")
		return "", result.LastError
	}
	return reply, nil
}
