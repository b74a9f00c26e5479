package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	// Timeout bounds a single attempt. Zero leaves attempts unbounded.
	Timeout time.Duration
}

type retryProvider struct {
	inner Provider
	cfg   RetryConfig
}

// WithRetry retries transient failures with exponential backoff. A response
// that fails validation is retried once.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &retryProvider{inner: p, cfg: cfg}
}

func (r *retryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	invalidSeen := false

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		resp, err := r.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var invalid *ErrInvalidResponse
		if errors.As(err, &invalid) {
			if invalidSeen {
				return nil, err
			}
			invalidSeen = true
		}
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.wait(attempt, err)):
		}
	}
	return nil, lastErr
}

func (r *retryProvider) attempt(ctx context.Context, req Request) (*Response, error) {
	if r.cfg.Timeout <= 0 {
		return r.inner.Generate(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.inner.Generate(ctx, req)
}

func (r *retryProvider) ModelID() string { return r.inner.ModelID() }

func (r *retryProvider) wait(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	d := float64(r.cfg.InitialWait) * math.Pow(r.cfg.Multiplier, float64(attempt))
	if r.cfg.MaxWait > 0 && d > float64(r.cfg.MaxWait) {
		d = float64(r.cfg.MaxWait)
	}
	// +-20% jitter
	d += d * 0.2 * (2*rand.Float64() - 1)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
