package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/botlode/brain/internal/contacts"
	"github.com/botlode/brain/internal/leads"
	"github.com/botlode/brain/internal/notify"
	"github.com/botlode/brain/internal/observability/metrics"
	"github.com/botlode/brain/internal/sentiment"
	"github.com/botlode/brain/internal/worker/background"
	"github.com/botlode/brain/pkg/logging"
)

const (
	defaultHistoryLimit     = 12
	defaultMaxMessageLength = 5000
	defaultAlertThreshold   = 80

	taskPersistTurn = "persist_turn"
	taskLeadAlert   = "lead_alert"
)

var turnTracer = otel.Tracer("botlode.internal.conversation")

// TurnRequest is one inbound chat message.
type TurnRequest struct {
	SessionID string `json:"sessionId"`
	ChatID    string `json:"chatId,omitempty"`
	BotID     string `json:"botId"`
	Message   string `json:"message"`
}

// TurnResponse is what the chat client renders.
type TurnResponse struct {
	Reply       string `json:"reply"`
	Mood        Mood   `json:"mood"`
	IntentScore int    `json:"intent_score"`
}

// ServiceConfig holds the tunables of the turn pipeline.
type ServiceConfig struct {
	HistoryLimit           int
	PendingMeetingLookback int
	MaxMessageLength       int
	AlertThreshold         int
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = defaultMaxMessageLength
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = defaultAlertThreshold
	}
	if c.PendingMeetingLookback < 0 {
		c.PendingMeetingLookback = defaultPendingMeetingWindow
	}
	return c
}

// Service runs one chat turn end to end.
type Service struct {
	store      leads.Store
	bots       leads.BotStore
	oracle     *ReplyOracle
	classifier *MeetingClassifier
	reconciler *Reconciler
	detector   *sentiment.Detector
	notifier   notify.Notifier
	tasks      background.Submitter
	metrics    *metrics.ConversationMetrics
	cfg        ServiceConfig
	now        func() time.Time
	logger     *logging.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithBotStore overrides where bot profiles are read from, typically a cache
// in front of the primary store.
func WithBotStore(bots leads.BotStore) ServiceOption {
	return func(s *Service) {
		if bots != nil {
			s.bots = bots
		}
	}
}

func WithDetector(d *sentiment.Detector) ServiceOption {
	return func(s *Service) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithNotifier enables lead alerts.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithTaskRunner sets where post-response work runs. Defaults to inline.
func WithTaskRunner(r background.Submitter) ServiceOption {
	return func(s *Service) { s.tasks = r }
}

func WithMetrics(m *metrics.ConversationMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the turn pipeline.
func NewService(store leads.Store, oracle *ReplyOracle, classifier *MeetingClassifier, cfg ServiceConfig, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("conversation: service requires a store")
	}
	if oracle == nil {
		panic("conversation: service requires a reply oracle")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()
	s := &Service{
		store:      store,
		bots:       store,
		oracle:     oracle,
		classifier: classifier,
		reconciler: NewReconciler(cfg.PendingMeetingLookback),
		detector:   sentiment.NewDetector(nil),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tasks == nil {
		s.tasks = background.NewInline(s.metrics, logger)
	}
	return s
}

// HandleTurn validates req, drafts the reply with the oracle, reconciles it
// against the session's history and schedules persistence and alerts.
// Only validation, bot lookup and oracle failures are returned.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	started := s.now()

	req, err := s.validate(req)
	if err != nil {
		s.metrics.ObserveTurn("invalid")
		return TurnResponse{}, err
	}
	logger := s.logger.With("session_id", req.SessionID, "chat_id", req.ChatID, "bot_id", req.BotID)

	ctx, span := turnTracer.Start(ctx, "turn.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("turn.bot_id", req.BotID)),
	)
	defer span.End()

	bot, err := s.bots.GetBot(ctx, req.BotID)
	if err != nil {
		s.metrics.ObserveTurn("bot_error")
		return TurnResponse{}, fmt.Errorf("conversation: load bot: %w", err)
	}
	vendor := ExtractVendorName(bot.SystemPrompt)

	recent, err := s.store.RecentMessages(ctx, req.SessionID, s.cfg.HistoryLimit)
	if err != nil {
		logger.Warn("history lookup failed, continuing without it", "error", err)
		recent = nil
	}

	var (
		draft   OracleReply
		meeting MeetingJudgment
		facts   []leads.Fact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reply, err := s.oracle.Generate(gctx, OracleRequest{
			BotName: bot.Name,
			Persona: bot.SystemPrompt,
			Vendor:  vendor,
			Message: req.Message,
			History: oldestFirst(recent),
		})
		if err != nil {
			return err
		}
		draft = reply
		return nil
	})
	// The user message is stored with its judgment so a later turn that
	// brings the contact can recover the meeting.
	g.Go(func() error {
		meeting = s.classifier.Classify(gctx, req.Message, vendor)
		err := s.store.InsertMessage(ctx, leads.ChatMessage{
			SessionID: req.SessionID,
			BotID:     req.BotID,
			Role:      leads.RoleUser,
			Content:   req.Message,
			Meeting:   meetingNote(meeting),
			CreatedAt: started,
		})
		if err != nil {
			logger.Warn("failed to store user message", "error", err)
		}
		return nil
	})
	// The lookups and writes below must not be cancelled by an oracle failure.
	g.Go(func() error {
		list, err := s.store.ListFacts(ctx, req.SessionID)
		if err != nil {
			logger.Warn("fact history lookup failed, reconciling with this turn only", "error", err)
			return nil
		}
		facts = list
		return nil
	})
	g.Go(func() error {
		err := s.store.MarkOnline(ctx, leads.SessionPresence{
			SessionID: req.SessionID,
			ChatID:    req.ChatID,
			BotID:     req.BotID,
			IsOnline:  true,
			LastSeen:  started,
		})
		if err != nil {
			logger.Warn("failed to update session heartbeat", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.metrics.ObserveTurn("oracle_error")
		return TurnResponse{}, err
	}

	found := contacts.Extract(req.Message)

	signal := s.detector.Analyze(ctx, req.Message)
	score := sentiment.ApplySignal(signal, draft.IntentScore)
	if score != draft.IntentScore {
		s.metrics.ObserveScoreAdjustment(strconv.Itoa(signal.Strength))
		logger.Debug("intent score overridden", "category", signal.Category, "farewell", signal.Farewell,
			"from", draft.IntentScore, "to", score)
	}

	outcome := s.reconciler.Reconcile(TurnInput{
		SessionID:          req.SessionID,
		BotID:              req.BotID,
		Vendor:             vendor,
		Message:            req.Message,
		Contacts:           found,
		Meeting:            meeting,
		Draft:              draft.Reply,
		History:            facts,
		RecentUserMessages: userMessages(recent),
	})
	for _, action := range outcome.Actions {
		s.metrics.ObserveReconcilerAction(action)
	}

	resp := TurnResponse{Reply: outcome.Reply, Mood: draft.Mood, IntentScore: score}
	s.schedulePersistence(ctx, logger, req, resp, outcome)
	if score >= s.cfg.AlertThreshold {
		s.scheduleAlert(ctx, req, bot, vendor, resp, outcome, facts)
	}

	span.SetAttributes(
		attribute.Int("turn.intent_score", score),
		attribute.Bool("turn.has_contact", outcome.State.HasContact),
	)
	s.metrics.ObserveTurn("ok")
	logger.Info("turn processed",
		"intent_score", score,
		"mood", resp.Mood,
		"contacts", len(found),
		"has_contact", outcome.State.HasContact,
		"has_meeting", outcome.State.HasMeeting,
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	return resp, nil
}

func (s *Service) validate(req TurnRequest) (TurnRequest, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.ChatID = strings.TrimSpace(req.ChatID)
	req.BotID = strings.TrimSpace(req.BotID)

	switch {
	case req.SessionID == "":
		return req, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	case req.BotID == "":
		return req, fmt.Errorf("%w: botId is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Message) == "":
		return req, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	case utf8.RuneCountInString(req.Message) > s.cfg.MaxMessageLength:
		return req, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidRequest, s.cfg.MaxMessageLength)
	}
	if req.ChatID == "" {
		s.logger.Info("chatId missing, using sessionId", "session_id", req.SessionID)
		req.ChatID = req.SessionID
	}
	return req, nil
}

func (s *Service) schedulePersistence(ctx context.Context, logger *logging.Logger, req TurnRequest, resp TurnResponse, outcome TurnOutcome) {
	assistant := leads.ChatMessage{
		SessionID:   req.SessionID,
		BotID:       req.BotID,
		Role:        leads.RoleAssistant,
		Content:     resp.Reply,
		IntentScore: resp.IntentScore,
		CreatedAt:   s.now(),
	}
	facts := outcome.Facts
	err := s.tasks.Submit(ctx, background.Task{
		Name: taskPersistTurn,
		Run: func(ctx context.Context) error {
			if err := s.store.InsertMessage(ctx, assistant); err != nil {
				return fmt.Errorf("conversation: store assistant message: %w", err)
			}
			if len(facts) == 0 {
				return nil
			}
			if err := s.store.UpsertFacts(ctx, facts); err != nil {
				return fmt.Errorf("conversation: store facts: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		logger.Error("failed to schedule turn persistence", "error", err)
	}
}

func (s *Service) scheduleAlert(ctx context.Context, req TurnRequest, bot *leads.BotProfile, vendor string, resp TurnResponse, outcome TurnOutcome, history []leads.Fact) {
	if s.notifier == nil {
		return
	}
	alert := notify.LeadAlert{
		SessionID:   req.SessionID,
		ChatID:      req.ChatID,
		BotID:       req.BotID,
		BotName:     bot.Name,
		Vendor:      vendor,
		IntentScore: resp.IntentScore,
		Mood:        string(resp.Mood),
		LastMessage: req.Message,
		Reply:       resp.Reply,
		OccurredAt:  s.now(),
	}
	all := mergeFacts(history, outcome.Facts)
	for _, f := range all {
		if f.Type.IsContact() {
			alert.Contacts = append(alert.Contacts, f)
		}
	}
	if m, ok := leads.FirstOfType(all, leads.FactMeeting); ok {
		alert.Meeting = m.Value
	}

	err := s.tasks.Submit(ctx, background.Task{
		Name: taskLeadAlert,
		Run:  func(ctx context.Context) error { return s.sendAlert(ctx, alert) },
	})
	if err != nil {
		s.logger.Error("failed to schedule lead alert", "error", err, "session_id", req.SessionID)
	}
}

// sendAlert delivers at most one alert per session. A failed delivery
// releases the claim so a later turn can retry.
func (s *Service) sendAlert(ctx context.Context, alert notify.LeadAlert) error {
	claimed, err := s.store.ClaimAlert(ctx, alert.SessionID, alert.IntentScore)
	if err != nil {
		s.metrics.ObserveLeadAlert("ledger_error")
		return fmt.Errorf("conversation: claim lead alert: %w", err)
	}
	if !claimed {
		s.metrics.ObserveLeadAlert("duplicate")
		return nil
	}
	if err := s.notifier.NotifyHighIntent(ctx, alert); err != nil {
		s.metrics.ObserveLeadAlert("failed")
		if releaseErr := s.store.ReleaseAlert(ctx, alert.SessionID); releaseErr != nil {
			s.logger.Error("failed to release lead alert claim", "error", releaseErr, "session_id", alert.SessionID)
		}
		return fmt.Errorf("conversation: notify lead alert: %w", err)
	}
	s.metrics.ObserveLeadAlert("sent")
	return nil
}

// oldestFirst reverses a newest-first transcript.
func oldestFirst(recent []leads.ChatMessage) []leads.ChatMessage {
	out := make([]leads.ChatMessage, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		out = append(out, recent[i])
	}
	return out
}

// userMessages keeps user-authored messages, preserving newest-first order.
func userMessages(recent []leads.ChatMessage) []leads.ChatMessage {
	var out []leads.ChatMessage
	for _, m := range recent {
		if !m.Role.IsAssistant() {
			out = append(out, m)
		}
	}
	return out
}

func mergeFacts(groups ...[]leads.Fact) []leads.Fact {
	seen := make(map[string]struct{})
	var out []leads.Fact
	for _, group := range groups {
		for _, f := range group {
			if _, ok := seen[f.Key()]; ok {
				continue
			}
			seen[f.Key()] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
