package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/m-check1B/callguard/internal/circuitbreaker"
	"github.com/m-check1B/callguard/internal/config"
	"github.com/m-check1B/callguard/internal/ratelimit"
)

const testSecret = "test-secret-key"

type staticProvider struct {
	cfg *config.Config
}

func (p *staticProvider) Current() *config.Config { return p.cfg }

func testConfig() *config.Config {
	return &config.Config{
		Admin: config.AdminConfig{
			Enabled:           true,
			JWTSecret:         testSecret,
			IPAllowlist:       []string{"127.0.0.0/8"},
			RequestsPerSecond: 100,
			BurstSize:         100,
		},
	}
}

func signToken(t *testing.T, scope string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "test-operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func newTestBreaker(t *testing.T, name string) *circuitbreaker.CircuitBreaker {
	t.Helper()
	cb, err := circuitbreaker.New(circuitbreaker.Config{Name: name}, name)
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}
	return cb
}

func setupHandler(t *testing.T) (*Handler, *circuitbreaker.Registry) {
	t.Helper()
	registry := circuitbreaker.NewRegistry()
	for _, name := range []string{"openai", "twilio"} {
		if err := registry.Register(newTestBreaker(t, name)); err != nil {
			t.Fatalf("failed to register breaker: %v", err)
		}
	}

	cfg := testConfig()
	limiter := ratelimit.New(cfg.Admin.RequestsPerSecond, cfg.Admin.BurstSize)
	t.Cleanup(limiter.Stop)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(registry, &staticProvider{cfg: cfg}, limiter, cfg.Admin.IPAllowlist, logger)
	return h, registry
}

func serve(h *Handler, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func newRequest(method, target, token string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = "127.0.0.1:54321"
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAdmin_ListBreakers(t *testing.T) {
	h, _ := setupHandler(t)

	w := serve(h, newRequest(http.MethodGet, "/admin/breakers", signToken(t, "")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Breakers []circuitbreaker.Status `json:"breakers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Breakers) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(resp.Breakers))
	}
	// Registry output is sorted by name.
	if resp.Breakers[0].Name != "openai" || resp.Breakers[1].Name != "twilio" {
		t.Errorf("unexpected breaker order: %q, %q", resp.Breakers[0].Name, resp.Breakers[1].Name)
	}
}

func TestAdmin_GetBreaker(t *testing.T) {
	h, _ := setupHandler(t)

	w := serve(h, newRequest(http.MethodGet, "/admin/breakers/openai", signToken(t, "")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var status circuitbreaker.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Name != "openai" {
		t.Errorf("expected breaker openai, got %q", status.Name)
	}
	if status.State != "closed" {
		t.Errorf("expected closed state, got %q", status.State)
	}
}

func TestAdmin_GetBreaker_NotFound(t *testing.T) {
	h, _ := setupHandler(t)

	w := serve(h, newRequest(http.MethodGet, "/admin/breakers/unknown", signToken(t, "")))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp["error_code"] != "CALLGUARD_CIRCUIT_NOT_FOUND" {
		t.Errorf("expected CALLGUARD_CIRCUIT_NOT_FOUND, got %q", resp["error_code"])
	}
}

func TestAdmin_ResetBreaker(t *testing.T) {
	h, registry := setupHandler(t)

	cb, _ := registry.Get("openai")
	cb.ForceOpen()
	if cb.State() != circuitbreaker.StateOpen {
		t.Fatal("expected breaker open after ForceOpen")
	}

	w := serve(h, newRequest(http.MethodPost, "/admin/breakers/openai/reset", signToken(t, "callguard:admin")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cb.State() != circuitbreaker.StateClosed {
		t.Errorf("expected breaker closed after reset, got %v", cb.State())
	}
}

func TestAdmin_ForceOpenBreaker(t *testing.T) {
	h, registry := setupHandler(t)

	w := serve(h, newRequest(http.MethodPost, "/admin/breakers/twilio/open", signToken(t, "callguard:admin")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	cb, _ := registry.Get("twilio")
	if cb.State() != circuitbreaker.StateOpen {
		t.Errorf("expected breaker open, got %v", cb.State())
	}

	err := cb.Do(context.Background(), func(context.Context) error { return nil })
	if !circuitbreaker.IsOpen(err) {
		t.Errorf("expected open circuit rejection, got %v", err)
	}
}

func TestAdmin_MutationRequiresScope(t *testing.T) {
	h, registry := setupHandler(t)

	// Valid token, but no callguard:admin scope.
	w := serve(h, newRequest(http.MethodPost, "/admin/breakers/openai/reset", signToken(t, "callguard:read")))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp["error_code"] != "CALLGUARD_AUTH_INSUFFICIENT_SCOPE" {
		t.Errorf("expected CALLGUARD_AUTH_INSUFFICIENT_SCOPE, got %q", resp["error_code"])
	}

	cb, _ := registry.Get("openai")
	if cb.State() != circuitbreaker.StateClosed {
		t.Error("breaker must not change state on rejected request")
	}
}

func TestAdmin_ReadDoesNotRequireScope(t *testing.T) {
	h, _ := setupHandler(t)

	w := serve(h, newRequest(http.MethodGet, "/admin/breakers", signToken(t, "")))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for scopeless read, got %d", w.Code)
	}
}

func TestAdmin_MissingToken(t *testing.T) {
	h, _ := setupHandler(t)

	w := serve(h, newRequest(http.MethodGet, "/admin/breakers", ""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp["error_code"] != "CALLGUARD_AUTH_MISSING_TOKEN" {
		t.Errorf("expected CALLGUARD_AUTH_MISSING_TOKEN, got %q", resp["error_code"])
	}
}

func TestAdmin_InvalidToken(t *testing.T) {
	h, _ := setupHandler(t)

	// Signed with the wrong key.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "intruder",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	w := serve(h, newRequest(http.MethodGet, "/admin/breakers", signed))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdmin_ExpiredToken(t *testing.T) {
	h, _ := setupHandler(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "test-operator",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	w := serve(h, newRequest(http.MethodGet, "/admin/breakers", signed))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", w.Code)
	}
}

func TestAdmin_IPAllowlistBlocks(t *testing.T) {
	h, _ := setupHandler(t)

	r := newRequest(http.MethodGet, "/admin/breakers", signToken(t, ""))
	r.RemoteAddr = "10.1.2.3:44444"
	w := serve(h, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed IP, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp["error_code"] != "CALLGUARD_FORBIDDEN" {
		t.Errorf("expected CALLGUARD_FORBIDDEN, got %q", resp["error_code"])
	}
}

func TestAdmin_RateLimitExceeded(t *testing.T) {
	registry := circuitbreaker.NewRegistry()
	if err := registry.Register(newTestBreaker(t, "openai")); err != nil {
		t.Fatalf("failed to register breaker: %v", err)
	}

	cfg := testConfig()
	cfg.Admin.RequestsPerSecond = 1
	cfg.Admin.BurstSize = 2
	limiter := ratelimit.New(cfg.Admin.RequestsPerSecond, cfg.Admin.BurstSize)
	t.Cleanup(limiter.Stop)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(registry, &staticProvider{cfg: cfg}, limiter, cfg.Admin.IPAllowlist, logger)

	token := signToken(t, "")
	var last *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		last = serve(h, newRequest(http.MethodGet, "/admin/breakers", token))
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst exhausted, got %d", last.Code)
	}
}

func TestAdmin_ConfigRedactsSecret(t *testing.T) {
	h, _ := setupHandler(t)

	w := serve(h, newRequest(http.MethodGet, "/admin/config", signToken(t, "")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Admin struct {
			JWTSecret string `json:"jwt_secret"`
		} `json:"admin"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Admin.JWTSecret != "***" {
		t.Errorf("expected redacted secret, got %q", resp.Admin.JWTSecret)
	}
}

func TestAdmin_ResetNotFound(t *testing.T) {
	h, _ := setupHandler(t)

	w := serve(h, newRequest(http.MethodPost, "/admin/breakers/unknown/reset", signToken(t, "callguard:admin")))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"192.168.1.1", "192.168.1.1"},
	}
	for _, tt := range tests {
		if got := extractIP(tt.remoteAddr); got != tt.want {
			t.Errorf("extractIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestAdmin_ErrorsAreOpaque(t *testing.T) {
	// Auth failures must not leak signature or parsing detail to clients.
	h, _ := setupHandler(t)

	w := serve(h, newRequest(http.MethodGet, "/admin/breakers", "not-a-jwt"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp["message"] != "invalid token" {
		t.Errorf("expected opaque message, got %q", resp["message"])
	}
}

func TestAdmin_BreakerErrorPropagation(t *testing.T) {
	// Sanity check that breaker errors flow through Do unmodified; the admin
	// API surfaces state derived from the same machinery.
	cb := newTestBreaker(t, "probe")
	wantErr := errors.New("upstream exploded")
	err := cb.Do(context.Background(), func(context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error to propagate, got %v", err)
	}
}
