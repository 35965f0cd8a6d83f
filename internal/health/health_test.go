package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-check1B/callguard/internal/circuitbreaker"
)

func newRegistry(t *testing.T, names ...string) *circuitbreaker.Registry {
	t.Helper()
	registry := circuitbreaker.NewRegistry()
	for _, name := range names {
		cb, err := circuitbreaker.New(circuitbreaker.Config{Name: name}, name)
		if err != nil {
			t.Fatalf("failed to create breaker: %v", err)
		}
		if err := registry.Register(cb); err != nil {
			t.Fatalf("failed to register breaker: %v", err)
		}
	}
	return registry
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestReadinessHandler_AllClosed(t *testing.T) {
	registry := newRegistry(t, "openai", "twilio")

	w := httptest.NewRecorder()
	ReadinessHandler(registry)(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Status   string `json:"status"`
		Circuits []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"circuits"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("expected ready, got %q", resp.Status)
	}
	if len(resp.Circuits) != 2 {
		t.Errorf("expected 2 circuits, got %d", len(resp.Circuits))
	}
}

func TestReadinessHandler_OpenCircuitDegrades(t *testing.T) {
	registry := newRegistry(t, "openai", "twilio")
	cb, _ := registry.Get("twilio")
	cb.ForceOpen()

	w := httptest.NewRecorder()
	ReadinessHandler(registry)(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with an open circuit, got %d", w.Code)
	}

	var resp struct {
		Status   string `json:"status"`
		Circuits []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"circuits"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("expected degraded, got %q", resp.Status)
	}
	for _, c := range resp.Circuits {
		if c.Name == "twilio" && c.State != "open" {
			t.Errorf("expected twilio open, got %q", c.State)
		}
	}
}

func TestReadinessHandler_EmptyRegistry(t *testing.T) {
	registry := circuitbreaker.NewRegistry()

	w := httptest.NewRecorder()
	ReadinessHandler(registry)(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty registry, got %d", w.Code)
	}
}
