package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestRetry(t *testing.T) {
	down := func() MockResponse { return MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}} }
	ok := MockResponse{Content: json.RawMessage(`{"ok":true}`)}
	invalid := func() MockResponse { return MockResponse{Err: &ErrInvalidResponse{Err: errors.New("bad json")}} }

	tests := []struct {
		name      string
		responses []MockResponse
		wantErr   bool
		wantCalls int
	}{
		{"first attempt", []MockResponse{ok}, false, 1},
		{"transient then success", []MockResponse{down(), ok}, false, 2},
		{"all attempts fail", []MockResponse{down(), down(), down(), ok}, true, 3},
		{"rate limit retried", []MockResponse{{Err: &ErrRateLimit{RetryAfter: time.Millisecond}}, ok}, false, 2},
		{"invalid response retried once", []MockResponse{invalid(), ok}, false, 2},
		{"second invalid response stops", []MockResponse{invalid(), invalid(), ok}, true, 2},
		{"timed out attempt retried", []MockResponse{{Err: context.DeadlineExceeded}, ok}, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.responses...)
			p := WithRetry(mock, fastRetry())

			resp, err := p.Generate(context.Background(), Request{})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.JSONEq(t, `{"ok":true}`, string(resp.Content))
			}
			assert.Equal(t, tt.wantCalls, mock.CallCount())
		})
	}
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	p := WithRetry(mock, RetryConfig{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Generate(ctx, Request{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.CallCount())
}

type slowProvider struct{ deadlines []bool }

func (s *slowProvider) Generate(ctx context.Context, _ Request) (*Response, error) {
	_, ok := ctx.Deadline()
	s.deadlines = append(s.deadlines, ok)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowProvider) ModelID() string { return "slow" }

func TestRetry_TimeoutBoundsEachAttempt(t *testing.T) {
	slow := &slowProvider{}
	cfg := fastRetry()
	cfg.MaxAttempts = 2
	cfg.Timeout = 10 * time.Millisecond
	p := WithRetry(slow, cfg)

	_, err := p.Generate(context.Background(), Request{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []bool{true, true}, slow.deadlines)
}

func TestRetry_ZeroAttemptsStillCalls(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithRetry(mock, RetryConfig{})

	_, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ModelID())
}

func TestMockProvider_EmptyQueue(t *testing.T) {
	mock := NewMockProvider()
	_, err := mock.Generate(context.Background(), Request{System: "s"})

	var unavailable *ErrProviderUnavailable
	require.ErrorAs(t, err, &unavailable)
	last, ok := mock.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "s", last.System)
}
