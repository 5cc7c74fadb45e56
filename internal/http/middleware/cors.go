package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "authorization, x-client-info, apikey, content-type, x-client-session-id"
	corsAllowedMethods = "POST, OPTIONS"
)

// CORSPolicy decides which origins may call the chat endpoint. It is shared by
// the HTTP middleware and the Lambda entrypoint.
type CORSPolicy struct {
	allowAny bool
	allow    map[string]struct{}
}

// NewCORSPolicy accepts exact origins; "*" allows any origin.
func NewCORSPolicy(allowedOrigins []string) *CORSPolicy {
	p := &CORSPolicy{allow: map[string]struct{}{}}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			p.allowAny = true
		default:
			p.allow[origin] = struct{}{}
		}
	}
	return p
}

// Apply writes the CORS response headers for a request from origin. Nothing
// is written for an origin outside the policy.
func (p *CORSPolicy) Apply(h http.Header, origin string) {
	origin = strings.TrimSpace(origin)
	switch {
	case p.allowAny:
		h.Set("Access-Control-Allow-Origin", "*")
	case origin != "":
		if _, ok := p.allow[origin]; !ok {
			return
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	default:
		return
	}
	h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
	h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
	h.Set("Access-Control-Max-Age", "600")
}

// CORS sets the headers the chat widget needs. Preflight requests fall
// through to the route's OPTIONS handler.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := NewCORSPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy.Apply(w.Header(), r.Header.Get("Origin"))
			next.ServeHTTP(w, r)
		})
	}
}
