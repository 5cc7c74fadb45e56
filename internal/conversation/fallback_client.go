package conversation

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/botlode/brain/pkg/logging"
)

// FallbackLLMClient sends each request to a secondary provider when the
// primary one fails, e.g. Bedrock behind Gemini.
type FallbackLLMClient struct {
	primary   LLMClient
	secondary LLMClient
	logger    *logging.Logger
}

// NewFallbackLLMClient chains primary and secondary. A nil secondary makes
// the client a pass-through.
func NewFallbackLLMClient(primary, secondary LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: fallback client requires a primary LLM client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, secondary: secondary, logger: logger}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, primaryErr := c.primary.Complete(ctx, req)
	if primaryErr == nil {
		return resp, nil
	}
	if c.secondary == nil || ctx.Err() != nil {
		return LLMResponse{}, primaryErr
	}

	ctx, span := oracleTracer.Start(ctx, "oracle.fallback")
	defer span.End()
	c.logger.Warn("primary oracle failed, trying secondary", "error", primaryErr)

	resp, secondaryErr := c.secondary.Complete(ctx, req)
	span.SetAttributes(attribute.Bool("oracle.fallback_ok", secondaryErr == nil))
	if secondaryErr != nil {
		return LLMResponse{}, errors.Join(primaryErr, secondaryErr)
	}
	return resp, nil
}
