package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/botlode/brain/internal/observability/metrics"
	"github.com/botlode/brain/pkg/logging"
)

var oracleTracer = otel.Tracer("botlode.internal.conversation.oracle")

const (
	defaultOracleRetries   = 3
	defaultOracleBaseDelay = time.Second
)

// RetryConfig bounds the retry loop around a completion oracle.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay doubles after every failed attempt.
	BaseDelay time.Duration
	// AttemptTimeout bounds one attempt; zero leaves it to the caller's context.
	AttemptTimeout time.Duration
}

// RetryingLLMClient retries transport and provider failures with exponential
// backoff and reports ErrOracleUnavailable once the ceiling is reached.
type RetryingLLMClient struct {
	next    LLMClient
	cfg     RetryConfig
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetryingLLMClient wraps next with retry/backoff.
func NewRetryingLLMClient(next LLMClient, cfg RetryConfig, m *metrics.ConversationMetrics, logger *logging.Logger) *RetryingLLMClient {
	if next == nil {
		panic("conversation: retrying client requires an LLM client")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultOracleRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultOracleBaseDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryingLLMClient{
		next:    next,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		sleep:   sleepContext,
	}
}

// Complete calls the wrapped client up to MaxRetries+1 times.
func (c *RetryingLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	ctx, span := oracleTracer.Start(ctx, "oracle.complete", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.Int("oracle.attempts", attempt+1))
			return resp, nil
		}
		lastErr = err
		c.logger.Warn("completion oracle attempt failed",
			"attempt", attempt+1,
			"max_attempts", attempts,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}

	span.SetAttributes(attribute.Int("oracle.attempts", attempts))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "oracle unavailable")
	return LLMResponse{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, lastErr)
}

func (c *RetryingLLMClient) attempt(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	status := "ok"
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	c.metrics.ObserveOracleAttempt(status, time.Since(start).Seconds())
	return resp, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
