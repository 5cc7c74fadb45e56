package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTurnHandler struct {
	resp TurnResponse
	err  error
	got  TurnRequest
}

func (s *stubTurnHandler) HandleTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	s.got = req
	return s.resp, s.err
}

func TestHandler_Chat(t *testing.T) {
	svc := &stubTurnHandler{resp: TurnResponse{Reply: "¡Hola!", Mood: MoodHappy, IntentScore: 35}}
	h := NewHandler(svc, nil)

	body := `{"sessionId":"sess-1","chatId":"chat-1","botId":"bot-1","message":"Hola"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"reply":"¡Hola!","mood":"happy","intent_score":35}`, rec.Body.String())
	assert.Equal(t, TurnRequest{SessionID: "sess-1", ChatID: "chat-1", BotID: "bot-1", Message: "Hola"}, svc.got)
}

func TestHandler_ChatFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{name: "invalid json", body: `{"sessionId":`},
		{name: "validation", body: `{"botId":"b","message":"hola"}`, err: ErrInvalidRequest},
		{name: "oracle unavailable", body: `{"sessionId":"s","botId":"b","message":"hola"}`, err: ErrOracleUnavailable},
		{name: "anything else", body: `{"sessionId":"s","botId":"b","message":"hola"}`, err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&stubTurnHandler{err: tt.err}, nil)
			rec := httptest.NewRecorder()
			h.Chat(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			var got TurnResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, FallbackResponse(), got)
			assert.Equal(t, MoodConfused, got.Mood)
			assert.Equal(t, 0, got.IntentScore)
		})
	}
}

func TestHandler_ChatBodyTooLarge(t *testing.T) {
	svc := &stubTurnHandler{}
	h := NewHandler(svc, nil)
	big := strings.Repeat("a", maxRequestBodyBytes+1)

	rec := httptest.NewRecorder()
	h.Chat(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(big)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, svc.got.SessionID)
}

func TestHandler_Preflight(t *testing.T) {
	h := NewHandler(&stubTurnHandler{}, nil)
	rec := httptest.NewRecorder()
	h.Preflight(rec, httptest.NewRequest(http.MethodOptions, "/chat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandler_Respond(t *testing.T) {
	h := NewHandler(&stubTurnHandler{resp: TurnResponse{Reply: "ok", Mood: MoodSales, IntentScore: 50}}, nil)
	status, resp := h.Respond(context.Background(), []byte(`{"sessionId":"s","botId":"b","message":"hola"}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 50, resp.IntentScore)
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "invalid_request", failureKind(ErrInvalidRequest))
	assert.Equal(t, "oracle_unavailable", failureKind(ErrOracleUnavailable))
	assert.Equal(t, "cancelled", failureKind(context.Canceled))
	assert.Equal(t, "internal", failureKind(errors.New("x")))
}
