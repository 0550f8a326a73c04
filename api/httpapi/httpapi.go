package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "questkit/adapters/websocket"
	"questkit/core"
	"questkit/engine"
	"questkit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// questRequest is the body shared by the quest mutation endpoints.
type questRequest struct {
	UserID  core.UserID  `json:"user_id"`
	QuestID core.QuestID `json:"quest_id"`
}

type signInRequest struct {
	UserID core.UserID `json:"user_id"`
}

// NewMux builds an http.Handler exposing the quest REST API and WebSocket stream.
// Routes:
//   - POST {prefix}/assign-quest       {"user_id": 1, "quest_id": 2}
//   - POST {prefix}/complete-quest     {"user_id": 1, "quest_id": 2}
//   - POST {prefix}/claim-quest        {"user_id": 1, "quest_id": 2}
//   - POST {prefix}/track-sign-in      {"user_id": 1}
//   - GET  {prefix}/user-quests/{id}
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(svc *engine.QuestService, hub *realtime.Hub, opts Options) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, svc)
	})

	// WebSocket events
	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/assign-quest"), func(w http.ResponseWriter, r *http.Request) {
		var req questRequest
		if !decodePost(w, r, &req) {
			return
		}
		rec, err := svc.Assign(r.Context(), req.UserID, req.QuestID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]any{"record": rec})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/complete-quest"), func(w http.ResponseWriter, r *http.Request) {
		var req questRequest
		if !decodePost(w, r, &req) {
			return
		}
		rec, err := svc.Complete(r.Context(), req.UserID, req.QuestID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]any{"record": rec})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/claim-quest"), func(w http.ResponseWriter, r *http.Request) {
		var req questRequest
		if !decodePost(w, r, &req) {
			return
		}
		rec, reward, err := svc.Claim(r.Context(), req.UserID, req.QuestID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]any{"record": rec, "reward": reward})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/track-sign-in"), func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if !decodePost(w, r, &req) {
			return
		}
		messages, err := svc.TrackSignIn(r.Context(), req.UserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]any{"messages": messages})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/user-quests/"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		raw := strings.TrimPrefix(r.URL.Path, withPrefix(opts.PathPrefix, "/user-quests/"))
		raw = strings.TrimSuffix(raw, "/")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user", "user id must be an integer", nil)
			return
		}
		recs, err := svc.Progress(r.Context(), core.UserID(id))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if recs == nil {
			recs = []core.ProgressRecord{}
		}
		writeJSON(w, map[string]any{"quests": recs})
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// Helpers

// healthCheck verifies the ledger answers before reporting healthy.
func healthCheck(w http.ResponseWriter, r *http.Request, svc *engine.QuestService) {
	// A probe user never has records; the call only has to not error.
	_, err := svc.Progress(r.Context(), core.UserID(1))

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"ledger": "ok",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["ledger"] = "failed"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// decodePost rejects non-POST methods and malformed bodies, reporting
// whether the handler should continue.
func decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required", nil)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return false
	}
	return true
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, core.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error(), nil)
	case errors.Is(err, core.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid_transition", err.Error(), nil)
	case errors.Is(err, core.ErrDuplicationLimit):
		writeError(w, http.StatusBadRequest, "duplication_limit", err.Error(), nil)
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, core.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", err.Error(), nil)
	case errors.Is(err, core.ErrSettlementFailed):
		writeError(w, http.StatusBadGateway, "settlement_failed", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
