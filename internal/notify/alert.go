package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/botlode/brain/internal/leads"
	"github.com/botlode/brain/pkg/logging"
)

// LeadAlert describes a session that crossed the high-intent threshold.
type LeadAlert struct {
	SessionID   string       `json:"session_id"`
	ChatID      string       `json:"chat_id"`
	BotID       string       `json:"bot_id"`
	BotName     string       `json:"bot_name"`
	Vendor      string       `json:"vendor,omitempty"`
	IntentScore int          `json:"intent_score"`
	Mood        string       `json:"mood"`
	LastMessage string       `json:"last_message"`
	Reply       string       `json:"reply"`
	Contacts    []leads.Fact `json:"contacts,omitempty"`
	Meeting     string       `json:"meeting,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// Dispatcher delivers a lead alert to one channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert LeadAlert) error
}

// Notifier is what the turn pipeline calls.
type Notifier interface {
	NotifyHighIntent(ctx context.Context, alert LeadAlert) error
}

// MultiDispatcher fans an alert out to every dispatcher and joins the errors.
type MultiDispatcher []Dispatcher

func (m MultiDispatcher) Dispatch(ctx context.Context, alert LeadAlert) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmailDispatcher renders the alert and emails every recipient.
type EmailDispatcher struct {
	sender     EmailSender
	recipients []string
}

func NewEmailDispatcher(sender EmailSender, recipients []string) *EmailDispatcher {
	if sender == nil || len(recipients) == 0 {
		return nil
	}
	return &EmailDispatcher{sender: sender, recipients: recipients}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, alert LeadAlert) error {
	if d == nil {
		return nil
	}
	subject := alertSubject(alert)
	body := alertBody(alert)
	htmlBody := "<pre>" + html.EscapeString(body) + "</pre>"

	var errs []error
	for _, to := range d.recipients {
		err := d.sender.Send(ctx, EmailMessage{To: to, Subject: subject, Body: body, HTML: htmlBody})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify: email %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

// AlertService is the Notifier backed by one or more dispatchers.
type AlertService struct {
	dispatcher Dispatcher
	logger     *logging.Logger
}

func NewAlertService(dispatcher Dispatcher, logger *logging.Logger) *AlertService {
	if logger == nil {
		logger = logging.Default()
	}
	return &AlertService{dispatcher: dispatcher, logger: logger}
}

// NotifyHighIntent delivers alert. A service without dispatchers only logs.
func (s *AlertService) NotifyHighIntent(ctx context.Context, alert LeadAlert) error {
	if alert.SessionID == "" {
		return errors.New("notify: lead alert missing session id")
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}
	if s == nil || s.dispatcher == nil {
		return nil
	}
	if err := s.dispatcher.Dispatch(ctx, alert); err != nil {
		s.logger.Error("lead alert delivery failed", "error", err, "session_id", alert.SessionID)
		return err
	}
	s.logger.Info("lead alert delivered", "session_id", alert.SessionID, "bot_id", alert.BotID, "intent_score", alert.IntentScore)
	return nil
}

func alertSubject(a LeadAlert) string {
	name := a.BotName
	if name == "" {
		name = a.BotID
	}
	return fmt.Sprintf("Lead caliente (%d/100) en %s", a.IntentScore, name)
}

func alertBody(a LeadAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bot: %s\n", firstNonEmpty(a.BotName, a.BotID))
	if a.Vendor != "" {
		fmt.Fprintf(&b, "Vendedor: %s\n", a.Vendor)
	}
	fmt.Fprintf(&b, "Sesión: %s\n", a.SessionID)
	if a.ChatID != "" && a.ChatID != a.SessionID {
		fmt.Fprintf(&b, "Chat: %s\n", a.ChatID)
	}
	fmt.Fprintf(&b, "Intención: %d/100 (%s)\n", a.IntentScore, a.Mood)
	if len(a.Contacts) > 0 {
		b.WriteString("\nContactos:\n")
		for _, c := range a.Contacts {
			fmt.Fprintf(&b, "- %s: %s\n", c.Type, c.Value)
		}
	}
	if a.Meeting != "" {
		fmt.Fprintf(&b, "\nReunión: %s\n", a.Meeting)
	}
	fmt.Fprintf(&b, "\nÚltimo mensaje:\n%s\n", a.LastMessage)
	fmt.Fprintf(&b, "\nRespuesta del bot:\n%s\n", a.Reply)
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
