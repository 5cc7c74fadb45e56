package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlode/brain/internal/leads"
	"github.com/botlode/brain/internal/notify"
	"github.com/botlode/brain/internal/observability/metrics"
)

const noMeeting = `{"confirmed": false, "date": null, "time": null}`

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.LeadAlert
	err    error
}

func (n *recordingNotifier) NotifyHighIntent(ctx context.Context, alert notify.LeadAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

type failingStore struct {
	*leads.MemoryStore
	factsErr   error
	historyErr error
}

func (s *failingStore) ListFacts(ctx context.Context, sessionID string) ([]leads.Fact, error) {
	if s.factsErr != nil {
		return nil, s.factsErr
	}
	return s.MemoryStore.ListFacts(ctx, sessionID)
}

func (s *failingStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]leads.ChatMessage, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.MemoryStore.RecentMessages(ctx, sessionID, limit)
}

type serviceFixture struct {
	store      *leads.MemoryStore
	oracle     *stubLLMClient
	classifier *stubLLMClient
	notifier   *recordingNotifier
	registry   *prometheus.Registry
	service    *Service
}

func newServiceFixture(t *testing.T, store leads.Store) *serviceFixture {
	t.Helper()
	mem := leads.NewMemoryStore()
	mem.PutBot(leads.BotProfile{ID: "bot-1", Name: "Lode", SystemPrompt: "Soy Ignacio, asesor comercial de BotLode."})
	if store == nil {
		store = mem
	} else if fs, ok := store.(*failingStore); ok {
		fs.MemoryStore = mem
	}

	f := &serviceFixture{
		store:      mem,
		oracle:     &stubLLMClient{},
		classifier: &stubLLMClient{responses: []string{noMeeting}},
		notifier:   &recordingNotifier{},
		registry:   prometheus.NewRegistry(),
	}
	m := metrics.NewConversationMetrics(f.registry)
	f.service = NewService(store,
		NewReplyOracle(f.oracle, 0.5, 600, nil),
		NewMeetingClassifier(f.classifier, 0.1, 150, nil),
		ServiceConfig{HistoryLimit: 12, PendingMeetingLookback: 5, MaxMessageLength: 5000, AlertThreshold: 80},
		nil,
		WithNotifier(f.notifier),
		WithMetrics(m),
		WithClock(func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }),
	)
	return f
}

func (f *serviceFixture) turn(t *testing.T, sessionID, message, oracleJSON, meetingJSON string) TurnResponse {
	t.Helper()
	f.oracle.responses = []string{oracleJSON}
	f.oracle.calls = 0
	f.classifier.responses = []string{meetingJSON}
	f.classifier.calls = 0
	resp, err := f.service.HandleTurn(context.Background(), TurnRequest{
		SessionID: sessionID,
		ChatID:    "chat-1",
		BotID:     "bot-1",
		Message:   message,
	})
	require.NoError(t, err)
	return resp
}

func (f *serviceFixture) facts(t *testing.T, sessionID string) []leads.Fact {
	t.Helper()
	facts, err := f.store.ListFacts(context.Background(), sessionID)
	require.NoError(t, err)
	return facts
}

func TestHandleTurn_Greeting(t *testing.T) {
	f := newServiceFixture(t, nil)
	resp := f.turn(t, "sess-1", "Hola", `{"reply":"¡Hola! ¿En qué te puedo ayudar?","mood":"neutral","intent_score":30}`, noMeeting)

	assert.Equal(t, TurnResponse{Reply: "¡Hola! ¿En qué te puedo ayudar?", Mood: MoodNeutral, IntentScore: 30}, resp)
	assert.GreaterOrEqual(t, resp.IntentScore, 20)
	assert.LessOrEqual(t, resp.IntentScore, 40)
	assert.False(t, replyAlreadyRequestsContact(resp.Reply))
	assert.Empty(t, f.facts(t, "sess-1"))

	msgs, err := f.store.RecentMessages(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, leads.RoleAssistant, msgs[0].Role)
	assert.Equal(t, 30, msgs[0].IntentScore)
	assert.Equal(t, leads.RoleUser, msgs[1].Role)
	assert.Equal(t, 0, msgs[1].IntentScore)
	assert.Equal(t, "Hola", msgs[1].Content)

	assert.Empty(t, f.notifier.alerts)
	assert.Equal(t, 1.0, turnCount(t, f.registry, "ok"))
}

func TestHandleTurn_ContactAndMeeting(t *testing.T) {
	f := newServiceFixture(t, nil)
	resp := f.turn(t, "sess-1", "mi email es juan@test.com, agendemos para el lunes",
		`{"reply":"¡Genial, Juan!","mood":"happy","intent_score":90}`,
		`{"confirmed": true, "date": "lunes", "time": null}`)

	assert.Contains(t, resp.Reply, "lunes")
	assert.False(t, replyAlreadyRequestsContact(resp.Reply))
	assert.Equal(t, 90, resp.IntentScore)

	facts := f.facts(t, "sess-1")
	email, ok := leads.FirstOfType(facts, leads.FactEmail)
	require.True(t, ok)
	assert.Equal(t, "juan@test.com", email.Value)
	meeting, ok := leads.FirstOfType(facts, leads.FactMeeting)
	require.True(t, ok)
	assert.Equal(t, "Reunión agendada - lunes", meeting.Value)

	require.Len(t, f.notifier.alerts, 1)
	alert := f.notifier.alerts[0]
	assert.Equal(t, "sess-1", alert.SessionID)
	assert.Equal(t, "Ignacio", alert.Vendor)
	assert.Equal(t, "Reunión agendada - lunes", alert.Meeting)
	require.Len(t, alert.Contacts, 1)
	assert.Equal(t, "juan@test.com", alert.Contacts[0].Value)

	// A second hot turn in the same session does not alert again.
	f.turn(t, "sess-1", "¿cómo pago?", `{"reply":"Te paso el link.","mood":"sales","intent_score":95}`, noMeeting)
	assert.Len(t, f.notifier.alerts, 1)
}

func TestHandleTurn_RejectionLowersScore(t *testing.T) {
	f := newServiceFixture(t, nil)
	resp := f.turn(t, "sess-1", "no me interesa, es muy caro",
		`{"reply":"Entiendo, gracias por tu tiempo.","mood":"neutral","intent_score":70}`, noMeeting)

	assert.LessOrEqual(t, resp.IntentScore, 20)
	msgs, err := f.store.RecentMessages(context.Background(), "sess-1", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.LessOrEqual(t, msgs[0].IntentScore, 20)
}

func TestHandleTurn_RecoversPendingMeeting(t *testing.T) {
	f := newServiceFixture(t, nil)

	first := f.turn(t, "sess-1", "dale, agendemos el jueves a las 18",
		`{"reply":"¡Buenísimo!","mood":"happy","intent_score":75}`,
		`{"confirmed": true, "date": "jueves", "time": "18"}`)
	assert.True(t, replyAlreadyRequestsContact(first.Reply))
	assert.Empty(t, f.facts(t, "sess-1"))

	f.turn(t, "sess-1", "¿y cuánto sale?", `{"reply":"Depende del plan.","mood":"sales","intent_score":70}`, noMeeting)
	assert.Empty(t, f.facts(t, "sess-1"))

	third := f.turn(t, "sess-1", "mi whatsapp es 11 5555 1234", `{"reply":"¡Gracias!","mood":"happy","intent_score":78}`, noMeeting)
	assert.Contains(t, third.Reply, "jueves")

	facts := f.facts(t, "sess-1")
	wa, ok := leads.FirstOfType(facts, leads.FactWhatsApp)
	require.True(t, ok)
	assert.Equal(t, "1155551234", wa.Value)
	meeting, ok := leads.FirstOfType(facts, leads.FactMeeting)
	require.True(t, ok)
	assert.Equal(t, "Reunión agendada - jueves a las 18", meeting.Value)
	assert.Equal(t, "true", meeting.Metadata["recovered"])
}

func TestHandleTurn_StoresMeetingJudgmentWithUserMessage(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.turn(t, "sess-1", "Sí, el lunes a las 10 está bien",
		`{"reply":"¡Buenísimo!","mood":"happy","intent_score":70}`,
		`{"confirmed": true, "date": "lunes", "time": "10"}`)

	msgs, err := f.store.RecentMessages(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].Meeting)
	assert.Equal(t, leads.RoleUser, msgs[1].Role)
	assert.Equal(t, &leads.MeetingNote{Date: "lunes", Time: "10"}, msgs[1].Meeting)

	resp := f.turn(t, "sess-1", "ana@mail.com", `{"reply":"¡Gracias!","mood":"happy","intent_score":75}`, noMeeting)
	assert.Contains(t, resp.Reply, "para el lunes a las 10")
	meeting, ok := leads.FirstOfType(f.facts(t, "sess-1"), leads.FactMeeting)
	require.True(t, ok)
	assert.Equal(t, "Reunión agendada - lunes a las 10", meeting.Value)
}

func TestHandleTurn_NoMeetingFromUnconfirmedMessages(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.turn(t, "sess-1", "Perfecto, mañana te paso mi mail", `{"reply":"Dale.","mood":"neutral","intent_score":50}`, noMeeting)
	f.turn(t, "sess-1", "Listo, hoy no puedo hablar, ¿nos vemos otro día?", `{"reply":"Claro.","mood":"neutral","intent_score":50}`, noMeeting)
	resp := f.turn(t, "sess-1", "ana@mail.com", `{"reply":"¡Gracias!","mood":"happy","intent_score":60}`, noMeeting)

	assert.NotContains(t, resp.Reply, "reunión")
	_, ok := leads.FirstOfType(f.facts(t, "sess-1"), leads.FactMeeting)
	assert.False(t, ok)
}

func TestHandleTurn_PresenceSingleOnline(t *testing.T) {
	f := newServiceFixture(t, nil)
	reply := `{"reply":"Hola","mood":"neutral","intent_score":25}`
	f.turn(t, "sess-a", "Hola", reply, noMeeting)
	f.turn(t, "sess-b", "Hola de nuevo", reply, noMeeting)

	rows := f.store.Presence("chat-1")
	require.Len(t, rows, 2)
	var online []string
	for _, p := range rows {
		if p.IsOnline {
			online = append(online, p.SessionID)
		}
	}
	assert.Equal(t, []string{"sess-b"}, online)
}

func TestHandleTurn_ChatIDDefaultsToSession(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.oracle.responses = []string{`{"reply":"Hola","mood":"neutral","intent_score":25}`}
	_, err := f.service.HandleTurn(context.Background(), TurnRequest{SessionID: "sess-1", BotID: "bot-1", Message: "Hola"})
	require.NoError(t, err)

	rows := f.store.Presence("sess-1")
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsOnline)
}

func TestHandleTurn_Validation(t *testing.T) {
	f := newServiceFixture(t, nil)
	tests := []struct {
		name string
		req  TurnRequest
	}{
		{name: "missing session", req: TurnRequest{BotID: "bot-1", Message: "hola"}},
		{name: "missing bot", req: TurnRequest{SessionID: "s", Message: "hola"}},
		{name: "blank message", req: TurnRequest{SessionID: "s", BotID: "bot-1", Message: "   "}},
		{name: "too long", req: TurnRequest{SessionID: "s", BotID: "bot-1", Message: strings.Repeat("ñ", 5001)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.HandleTurn(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Equal(t, 0, f.oracle.callCount())
}

func TestHandleTurn_MessageAtLimitAccepted(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.oracle.responses = []string{`{"reply":"Ok","mood":"neutral","intent_score":25}`}
	_, err := f.service.HandleTurn(context.Background(), TurnRequest{SessionID: "s", BotID: "bot-1", Message: strings.Repeat("ñ", 5000)})
	assert.NoError(t, err)
}

func TestHandleTurn_UnknownBot(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.service.HandleTurn(context.Background(), TurnRequest{SessionID: "s", BotID: "nope", Message: "hola"})
	assert.ErrorIs(t, err, leads.ErrBotNotFound)
	assert.Equal(t, 0, f.oracle.callCount())
}

func TestHandleTurn_OracleFailure(t *testing.T) {
	f := newServiceFixture(t, nil)
	boom := errors.New("gemini 503")
	f.oracle.errs = []error{boom}

	_, err := f.service.HandleTurn(context.Background(), TurnRequest{SessionID: "s", BotID: "bot-1", Message: "hola"})
	assert.ErrorIs(t, err, boom)

	// The user's own message is still recorded.
	msgs, listErr := f.store.RecentMessages(context.Background(), "s", 10)
	require.NoError(t, listErr)
	require.Len(t, msgs, 1)
	assert.Equal(t, leads.RoleUser, msgs[0].Role)
	assert.Equal(t, 1.0, turnCount(t, f.registry, "oracle_error"))
}

func TestHandleTurn_DegradesWhenHistoryFails(t *testing.T) {
	store := &failingStore{factsErr: errors.New("db down"), historyErr: errors.New("db down")}
	f := newServiceFixture(t, store)

	resp := f.turn(t, "sess-1", "mi mail es ana@mail.com", `{"reply":"¡Gracias!","mood":"happy","intent_score":60}`, noMeeting)
	assert.Contains(t, resp.Reply, "Ya tengo tu contacto")

	email, ok := leads.FirstOfType(f.facts(t, "sess-1"), leads.FactEmail)
	require.True(t, ok)
	assert.Equal(t, "ana@mail.com", email.Value)
}

func TestHandleTurn_AlertFailureReleasesClaim(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.notifier.err = errors.New("sendgrid down")
	hot := `{"reply":"Te paso el link.","mood":"sales","intent_score":92}`

	f.turn(t, "sess-1", "quiero contratar", hot, noMeeting)
	f.turn(t, "sess-1", "¿cómo pago?", hot, noMeeting)
	assert.Len(t, f.notifier.alerts, 2, "a failed delivery is retried on the next hot turn")

	f.notifier.err = nil
	f.turn(t, "sess-1", "listo, pagado", hot, noMeeting)
	f.turn(t, "sess-1", "gracias", hot, noMeeting)
	assert.Len(t, f.notifier.alerts, 3)
}

func TestHandleTurn_UsesBotStoreOverride(t *testing.T) {
	f := newServiceFixture(t, nil)
	other := leads.NewMemoryStore()
	other.PutBot(leads.BotProfile{ID: "bot-1", Name: "Cached", SystemPrompt: "Me llamo Sofía."})
	WithBotStore(other)(f.service)

	f.turn(t, "s", "hola", `{"reply":"Hola","mood":"neutral","intent_score":25}`, noMeeting)
	assert.Contains(t, f.oracle.lastRequest().System[0], `Sos "Cached"`)
	assert.Contains(t, f.oracle.lastRequest().System[0], "reunión con Sofía")
}

func TestOldestFirstAndUserMessages(t *testing.T) {
	recent := []leads.ChatMessage{
		{Role: leads.RoleAssistant, Content: "c"},
		{Role: leads.RoleUser, Content: "b"},
		{Role: leads.RoleBot, Content: "a2"},
		{Role: leads.RoleUser, Content: "a"},
	}
	ordered := oldestFirst(recent)
	assert.Equal(t, "a", ordered[0].Content)
	assert.Equal(t, "c", ordered[3].Content)
	users := userMessages(recent)
	require.Len(t, users, 2)
	assert.Equal(t, "b", users[0].Content)
	assert.Equal(t, "a", users[1].Content)
}

func turnCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "brain_turns_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
