package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/botlode/brain/internal/app/bootstrap"
	appconfig "github.com/botlode/brain/internal/config"
	"github.com/botlode/brain/internal/conversation"
	httpmiddleware "github.com/botlode/brain/internal/http/middleware"
	"github.com/botlode/brain/internal/worker/background"
	"github.com/botlode/brain/pkg/logging"
)

// app serves the chat turn from API Gateway HTTP API events. Post-response
// work runs inline because the sandbox freezes once the handler returns.
type app struct {
	chat   *conversation.Handler
	cors   *httpmiddleware.CORSPolicy
	logger *logging.Logger
}

func main() {
	cfg, err := appconfig.Load()
	if err != nil {
		logging.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize lambda", "error", err)
		os.Exit(1)
	}
	lambda.Start(a.handle)
}

func newApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stores, err := bootstrap.BuildStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	oracles, err := bootstrap.BuildOracles(ctx, cfg, awsCfg, nil, logger)
	if err != nil {
		return nil, err
	}
	service, err := bootstrap.BuildConversationService(cfg, bootstrap.ServiceDeps{
		Stores:   stores,
		Oracles:  oracles,
		Notifier: bootstrap.BuildNotifier(cfg, awsCfg, logger),
		Tasks:    background.NewInline(nil, logger),
	}, logger)
	if err != nil {
		return nil, err
	}
	return &app{
		chat:   conversation.NewHandler(service, logger),
		cors:   httpmiddleware.NewCORSPolicy(cfg.CORSAllowedOrigins),
		logger: logger,
	}, nil
}

func (a *app) handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	headers := http.Header{}
	a.cors.Apply(headers, headerValue(evt.Headers, "origin"))

	switch {
	case method == http.MethodOptions:
		return respond(http.StatusOK, "ok", "text/plain", headers), nil
	case path == "/health":
		return respond(http.StatusOK, "ok", "text/plain", headers), nil
	case method != http.MethodPost:
		return respond(http.StatusMethodNotAllowed, "", "", headers), nil
	}

	var (
		status int
		resp   conversation.TurnResponse
	)
	body, err := decodeBody(evt)
	if err != nil {
		a.logger.Error("failed to decode lambda body", "error", err)
		status, resp = http.StatusInternalServerError, conversation.FallbackResponse()
	} else {
		status, resp = a.chat.Respond(ctx, body)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	return respond(status, string(payload), "application/json", headers), nil
}

func respond(status int, body, contentType string, headers http.Header) events.APIGatewayV2HTTPResponse {
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{},
	}
	for k := range headers {
		out.Headers[strings.ToLower(k)] = headers.Get(k)
	}
	if contentType != "" {
		out.Headers["content-type"] = contentType
	}
	return out
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
