// Package adapters implements the adapter contract: every oracle backend is a
// Provider wrapped by Base, which turns arbitrary provider failures into a
// well-formed contracts.AdapterResponse.
package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

// Adapter is the uniform boundary the router and orchestrator consume.
// Invoke never returns nil and never panics.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, prompt string) *contracts.AdapterResponse
}

// Provider is the provider-specific step. It may fail in any way.
type Provider interface {
	DoInvoke(ctx context.Context, prompt string) (map[string]any, error)
}

// ConcurrentProvider is implemented by providers that are safe for
// concurrent DoInvoke calls. Providers are single-flight otherwise.
type ConcurrentProvider interface {
	Concurrent() bool
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, prompt string) (map[string]any, error)

func (f ProviderFunc) DoInvoke(ctx context.Context, prompt string) (map[string]any, error) {
	return f(ctx, prompt)
}

// Option configures a Base adapter.
type Option func(*Base)

// WithTimeout bounds every invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(b *Base) { b.timeout = d }
}

// WithRateLimit gates invocations with a token bucket; exhausted budget is
// reported as quota_exceeded without calling the provider.
func WithRateLimit(perMinute, burst int) Option {
	return func(b *Base) {
		if perMinute <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
	}
}

// WithLogger overrides the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Base) { b.logger = l }
}

// Base wraps a Provider with the envelope contract.
type Base struct {
	nodeID     string
	provider   Provider
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	concurrent bool
	mu         sync.Mutex
}

// New wraps provider as the adapter nodeID.
func New(nodeID string, provider Provider, opts ...Option) *Base {
	if nodeID == "" {
		nodeID = "unnamed"
	}
	b := &Base{
		nodeID:   nodeID,
		provider: provider,
		logger:   slog.Default().With("component", "adapter", "node_id", nodeID),
	}
	if cp, ok := provider.(ConcurrentProvider); ok {
		b.concurrent = cp.Concurrent()
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) Name() string { return b.nodeID }

// Invoke runs the provider and always returns an envelope.
func (b *Base) Invoke(ctx context.Context, prompt string) *contracts.AdapterResponse {
	start := time.Now()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if b.limiter != nil && !b.limiter.Allow() {
		return b.failure(ctx, &ProviderError{Provider: b.nodeID, StatusCode: 429, Err: ErrQuotaExceeded}, start)
	}

	payload, err := b.call(ctx, prompt)
	if err != nil {
		return b.failure(ctx, err, start)
	}

	latency := time.Since(start)
	resp, err := contracts.NewAdapterResponse(contracts.StatusOK, b.nodeID, payload, nil, &latency)
	if err != nil {
		return b.failure(ctx, err, start)
	}
	return resp
}

type outcome struct {
	payload map[string]any
	err     error
}

// call runs the provider in its own goroutine so a provider that ignores
// cancellation cannot hold the caller past the deadline.
func (b *Base) call(ctx context.Context, prompt string) (map[string]any, error) {
	if b.provider == nil {
		return nil, fmt.Errorf("%s: provider not configured (unavailable)", b.nodeID)
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%s: provider panic: %v", b.nodeID, r)}
			}
		}()
		if !b.concurrent {
			b.mu.Lock()
			defer b.mu.Unlock()
		}
		if err := ctx.Err(); err != nil {
			done <- outcome{err: fmt.Errorf("%s: timeout waiting for provider: %w", b.nodeID, err)}
			return
		}
		payload, err := b.provider.DoInvoke(ctx, prompt)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case o := <-done:
		return o.payload, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: timeout: %w", b.nodeID, ctx.Err())
	}
}

func (b *Base) failure(ctx context.Context, cause error, start time.Time) *contracts.AdapterResponse {
	resp := Failure(b.nodeID, cause, time.Since(start))
	b.logger.WarnContext(ctx, "adapter invocation failed",
		"code", resp.Err().Code,
		"status", resp.Status(),
		"error", cause,
	)
	return resp
}

// Failure builds the envelope for a failed invocation: error when the code
// carries a retry hint, unavailable otherwise, with a placeholder payload.
func Failure(nodeID string, cause error, latency time.Duration) *contracts.AdapterResponse {
	code := Classify(cause)
	retryAfter := code.RetryAfter()

	status := contracts.StatusUnavailable
	if retryAfter != nil {
		status = contracts.StatusError
	}
	if nodeID == "" {
		nodeID = "unnamed"
	}

	return contracts.MustAdapterResponse(status, nodeID, placeholderPayload(), &contracts.AdapterError{
		Code:       code,
		Message:    cause.Error(),
		RetryAfter: retryAfter,
	}, &latency)
}

func placeholderPayload() map[string]any {
	return map[string]any{"content": nil, "model": nil, "tokens_used": nil}
}

// Close releases the provider when it holds resources.
func (b *Base) Close() error {
	if c, ok := b.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
