package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/botlode/brain/pkg/logging"
)

const (
	maxRequestBodyBytes = 64 << 10
	fallbackReply       = "Error en el sistema. Por favor, intenta nuevamente."
)

// TurnHandler is the slice of Service the HTTP layer needs.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req TurnRequest) (TurnResponse, error)
}

// Handler exposes the turn pipeline over HTTP.
type Handler struct {
	service TurnHandler
	logger  *logging.Logger
}

func NewHandler(service TurnHandler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// FallbackResponse is returned to the client whenever a turn fails.
func FallbackResponse() TurnResponse {
	return TurnResponse{Reply: fallbackReply, Mood: MoodConfused, IntentScore: 0}
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		h.logger.Error("failed to read chat request", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, FallbackResponse())
		return
	}
	status, resp := h.Respond(r.Context(), body)
	h.writeJSON(w, status, resp)
}

// Preflight handles OPTIONS /chat; CORS headers come from middleware.
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Respond runs one turn from a raw JSON body. It is transport neutral so the
// Lambda entrypoint shares it. Every failure maps to the fallback body.
func (h *Handler) Respond(ctx context.Context, body []byte) (int, TurnResponse) {
	var req TurnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Error("failed to decode chat request", "error", err)
		return http.StatusInternalServerError, FallbackResponse()
	}

	resp, err := h.service.HandleTurn(ctx, req)
	if err != nil {
		h.logger.Error("chat turn failed", "error", err, "kind", failureKind(err),
			"session_id", req.SessionID, "bot_id", req.BotID)
		return http.StatusInternalServerError, FallbackResponse()
	}
	return http.StatusOK, resp
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrOracleUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", fmt.Errorf("conversation: encode response: %w", err))
	}
}
