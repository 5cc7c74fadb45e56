package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/botlode/brain/internal/config"
	"github.com/botlode/brain/internal/notify"
	"github.com/botlode/brain/pkg/logging"
)

// BuildEmailSender prefers SendGrid, then SES, then a logging stub outside
// production. Nil means email alerts are off.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		logger.Info("lead alert email via sendgrid")
		return sg
	}
	if from := strings.TrimSpace(cfg.SESFromEmail); from != "" {
		logger.Info("lead alert email via ses")
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: from,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if !cfg.IsProduction() {
		return notify.NewStubEmailSender(logger)
	}
	return nil
}

// BuildNotifier wires every configured alert channel. It returns nil when no
// channel is configured, which turns lead alerts off.
func BuildNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.Notifier {
	if logger == nil {
		logger = logging.Default()
	}

	var dispatchers notify.MultiDispatcher
	if sender := BuildEmailSender(cfg, awsCfg, logger); sender != nil {
		if email := notify.NewEmailDispatcher(sender, cfg.AlertEmailRecipients); email != nil {
			dispatchers = append(dispatchers, email)
		}
	}
	if queueURL := strings.TrimSpace(cfg.LeadAlertQueueURL); queueURL != "" {
		dispatchers = append(dispatchers, notify.NewSQSDispatcher(sqs.NewFromConfig(awsCfg), queueURL))
	}

	if len(dispatchers) == 0 {
		logger.Warn("no lead alert channel configured; high-intent alerts disabled")
		return nil
	}
	logger.Info("lead alerts enabled", "channels", len(dispatchers), "threshold", cfg.AlertThreshold)
	return notify.NewAlertService(dispatchers, logger)
}
