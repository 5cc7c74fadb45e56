package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlode/brain/internal/conversation"
	httpmiddleware "github.com/botlode/brain/internal/http/middleware"
	"github.com/botlode/brain/pkg/logging"
)

type fakeTurns struct {
	got conversation.TurnRequest
	err error
}

func (f *fakeTurns) HandleTurn(ctx context.Context, req conversation.TurnRequest) (conversation.TurnResponse, error) {
	f.got = req
	if f.err != nil {
		return conversation.TurnResponse{}, f.err
	}
	return conversation.TurnResponse{Reply: "¡Hola!", Mood: conversation.MoodHappy, IntentScore: 25}, nil
}

func newTestApp(turns conversation.TurnHandler) *app {
	logger := logging.New("error")
	return &app{
		chat:   conversation.NewHandler(turns, logger),
		cors:   httpmiddleware.NewCORSPolicy([]string{"*"}),
		logger: logger,
	}
}

func event(method, path, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: map[string]string{"Origin": "https://site.example.com"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: method, Path: path},
		},
	}
}

func TestHandlePreflight(t *testing.T) {
	resp, err := newTestApp(&fakeTurns{}).handle(context.Background(), event(http.MethodOptions, "/", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", resp.Body)
	assert.Equal(t, "*", resp.Headers["access-control-allow-origin"])
	assert.Equal(t, "POST, OPTIONS", resp.Headers["access-control-allow-methods"])
}

func TestHandleRejectsGet(t *testing.T) {
	resp, err := newTestApp(&fakeTurns{}).handle(context.Background(), event(http.MethodGet, "/", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleChat(t *testing.T) {
	turns := &fakeTurns{}
	body := `{"sessionId":"s-1","chatId":"c-1","botId":"bot-1","message":"hola"}`
	evt := event(http.MethodPost, "/", base64.StdEncoding.EncodeToString([]byte(body)))
	evt.IsBase64Encoded = true

	resp, err := newTestApp(turns).handle(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["content-type"])
	assert.Equal(t, "c-1", turns.got.ChatID)

	var out conversation.TurnResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	assert.Equal(t, "¡Hola!", out.Reply)
	assert.Equal(t, 25, out.IntentScore)
}

func TestHandleChatFailureReturnsFallback(t *testing.T) {
	turns := &fakeTurns{err: errors.New("boom")}

	resp, err := newTestApp(turns).handle(context.Background(), event(http.MethodPost, "/", `{"sessionId":"s-1","botId":"b","message":"hola"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var out conversation.TurnResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	assert.Equal(t, conversation.FallbackResponse(), out)
}

func TestHandleBadBase64(t *testing.T) {
	evt := event(http.MethodPost, "/", "%%%")
	evt.IsBase64Encoded = true

	resp, err := newTestApp(&fakeTurns{}).handle(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "*", resp.Headers["access-control-allow-origin"])
}
