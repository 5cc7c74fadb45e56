package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/botlode/brain/internal/config"
	"github.com/botlode/brain/internal/conversation"
	"github.com/botlode/brain/internal/notify"
	"github.com/botlode/brain/internal/observability/metrics"
	"github.com/botlode/brain/internal/sentiment"
	"github.com/botlode/brain/internal/worker/background"
	"github.com/botlode/brain/pkg/logging"
)

// Oracles holds the completion clients for the reply and the meeting
// classifier. The classifier never retries; a miss only means "no meeting".
type Oracles struct {
	Reply      conversation.LLMClient
	Classifier conversation.LLMClient
	closers    []func() error
}

// Close releases provider clients that hold connections.
func (o *Oracles) Close() error {
	if o == nil {
		return nil
	}
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// BuildOracles chains Gemini and Bedrock, whichever are configured, with
// Gemini first.
func BuildOracles(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, m *metrics.ConversationMetrics, logger *logging.Logger) (*Oracles, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	oracles := &Oracles{}
	var primary, secondary conversation.LLMClient

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		oracles.closers = append(oracles.closers, gemini.Close)
		primary = gemini
		logger.Info("gemini oracle enabled", "model", cfg.GeminiModelID)
	}

	if modelID := strings.TrimSpace(cfg.BedrockModelID); modelID != "" {
		bedrock := conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), modelID)
		if primary == nil {
			primary = bedrock
		} else {
			secondary = bedrock
		}
		logger.Info("bedrock oracle enabled", "model", modelID, "fallback", secondary != nil)
	}

	if primary == nil {
		return nil, fmt.Errorf("bootstrap: no completion oracle configured")
	}

	var chain conversation.LLMClient = primary
	if secondary != nil {
		chain = conversation.NewFallbackLLMClient(primary, secondary, logger)
	}
	oracles.Classifier = chain
	oracles.Reply = conversation.NewRetryingLLMClient(chain, conversation.RetryConfig{
		MaxRetries:     cfg.OracleMaxRetries,
		BaseDelay:      cfg.OracleBaseDelay,
		AttemptTimeout: cfg.OracleTimeout,
	}, m, logger)
	return oracles, nil
}

// ServiceDeps are the collaborators BuildConversationService wires together.
type ServiceDeps struct {
	Stores   *Stores
	Oracles  *Oracles
	Notifier notify.Notifier
	Tasks    background.Submitter
	Metrics  *metrics.ConversationMetrics
}

// BuildConversationService assembles the turn pipeline from config.
func BuildConversationService(cfg *appconfig.Config, deps ServiceDeps, logger *logging.Logger) (*conversation.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Stores == nil || deps.Stores.Store == nil {
		return nil, fmt.Errorf("bootstrap: record store is required")
	}
	if deps.Oracles == nil || deps.Oracles.Reply == nil || deps.Oracles.Classifier == nil {
		return nil, fmt.Errorf("bootstrap: oracles are required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	oracle := conversation.NewReplyOracle(deps.Oracles.Reply, cfg.ReplyTemperature, cfg.ReplyMaxTokens, logger)
	classifier := conversation.NewMeetingClassifier(deps.Oracles.Classifier, cfg.MeetingTemperature, cfg.MeetingMaxTokens, logger)

	opts := []conversation.ServiceOption{
		conversation.WithDetector(sentiment.NewDetector(nil)),
		conversation.WithMetrics(deps.Metrics),
	}
	if deps.Stores.Bots != nil {
		opts = append(opts, conversation.WithBotStore(deps.Stores.Bots))
	}
	if deps.Notifier != nil {
		opts = append(opts, conversation.WithNotifier(deps.Notifier))
	}
	if deps.Tasks != nil {
		opts = append(opts, conversation.WithTaskRunner(deps.Tasks))
	}

	return conversation.NewService(deps.Stores.Store, oracle, classifier, conversation.ServiceConfig{
		HistoryLimit:           cfg.HistoryLimit,
		PendingMeetingLookback: cfg.PendingMeetingLookback,
		MaxMessageLength:       cfg.MaxMessageLength,
		AlertThreshold:         cfg.AlertThreshold,
	}, logger, opts...), nil
}
