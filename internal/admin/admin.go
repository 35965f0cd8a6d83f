// Package admin provides the admin API for runtime inspection and control
// of circuit breakers. All endpoints are protected by IP allowlist, a
// per-client rate limit, and JWT bearer auth; mutating endpoints
// additionally require the callguard:admin scope.
package admin

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/m-check1B/callguard/internal/apierror"
	"github.com/m-check1B/callguard/internal/auth"
	"github.com/m-check1B/callguard/internal/circuitbreaker"
	"github.com/m-check1B/callguard/internal/config"
	"github.com/m-check1B/callguard/internal/metrics"
	"github.com/m-check1B/callguard/internal/ratelimit"
)

// ConfigProvider abstracts config access so handlers always see the
// currently active configuration under hot reload.
type ConfigProvider interface {
	Current() *config.Config
}

// Handler provides admin API endpoints over a registry of breakers.
type Handler struct {
	registry    *circuitbreaker.Registry
	provider    ConfigProvider
	limiter     *ratelimit.Limiter
	allowedNets []*net.IPNet
	logger      *slog.Logger
}

// New creates an admin Handler. The allowlist CIDRs must be pre-validated
// (config validation ensures this).
func New(
	registry *circuitbreaker.Registry,
	provider ConfigProvider,
	limiter *ratelimit.Limiter,
	allowlist []string,
	logger *slog.Logger,
) *Handler {
	nets := make([]*net.IPNet, 0, len(allowlist))
	for _, cidr := range allowlist {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // already validated by config
		}
		nets = append(nets, ipNet)
	}
	return &Handler{
		registry:    registry,
		provider:    provider,
		limiter:     limiter,
		allowedNets: nets,
		logger:      logger,
	}
}

// RegisterRoutes adds admin routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/breakers", h.guard("", h.listBreakers))
	mux.HandleFunc("GET /admin/breakers/{name}", h.guard("", h.getBreaker))
	mux.HandleFunc("POST /admin/breakers/{name}/reset", h.guard(auth.ScopeAdmin, h.resetBreaker))
	mux.HandleFunc("POST /admin/breakers/{name}/open", h.guard(auth.ScopeAdmin, h.openBreaker))
	mux.HandleFunc("GET /admin/config", h.guard("", h.configHandler))
}

// guard wraps a handler with the IP allowlist, rate limit, and JWT checks.
// When scope is non-empty, the token must also carry it.
func (h *Handler) guard(scope string, next func(http.ResponseWriter, *http.Request, *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		ip := extractIP(r.RemoteAddr)

		if !h.isAllowed(ip) {
			h.logger.Warn("admin access denied", "client_ip", ip, "path", endpoint)
			h.count(endpoint, http.StatusForbidden)
			apierror.WriteJSON(w, http.StatusForbidden, apierror.Forbidden, "client address not allowed")
			return
		}

		if !h.limiter.Allow(ip) {
			metrics.RateLimitHits.Inc()
			h.count(endpoint, http.StatusTooManyRequests)
			apierror.WriteJSON(w, http.StatusTooManyRequests, apierror.RateLimitExceeded, "rate limit exceeded, retry later")
			return
		}

		adminCfg := h.provider.Current().Admin

		tokenStr, ok := auth.ExtractBearerToken(r)
		if !ok {
			metrics.AuthFailures.WithLabelValues("missing_token").Inc()
			h.count(endpoint, http.StatusUnauthorized)
			apierror.WriteJSON(w, http.StatusUnauthorized, apierror.AuthMissingToken, "missing or malformed Authorization header")
			return
		}

		claims, err := auth.ValidateToken(tokenStr, adminCfg)
		if err != nil {
			h.logger.Warn("admin auth failure", "error", err, "path", endpoint)
			metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
			h.count(endpoint, http.StatusUnauthorized)
			apierror.WriteJSON(w, http.StatusUnauthorized, apierror.AuthInvalidToken, "invalid token")
			return
		}

		if scope != "" {
			if err := auth.RequireScope(claims, scope); err != nil {
				metrics.AuthFailures.WithLabelValues("insufficient_scope").Inc()
				h.count(endpoint, http.StatusForbidden)
				apierror.WriteJSON(w, http.StatusForbidden, apierror.AuthInsufficientScope, err.Error())
				return
			}
		}

		next(w, r, claims)
	}
}

func (h *Handler) isAllowed(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range h.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func (h *Handler) count(endpoint string, status int) {
	metrics.AdminRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (h *Handler) listBreakers(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	all := h.registry.All()
	statuses := make([]circuitbreaker.Status, len(all))
	for i, cb := range all {
		statuses[i] = cb.Status()
	}

	h.count(r.URL.Path, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]interface{}{"breakers": statuses})
}

func (h *Handler) getBreaker(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	name := r.PathValue("name")
	cb, ok := h.registry.Get(name)
	if !ok {
		h.count(r.URL.Path, http.StatusNotFound)
		apierror.WriteJSON(w, http.StatusNotFound, apierror.CircuitNotFound, "no such circuit: "+name)
		return
	}

	h.count(r.URL.Path, http.StatusOK)
	writeJSON(w, http.StatusOK, cb.Status())
}

func (h *Handler) resetBreaker(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	name := r.PathValue("name")
	cb, ok := h.registry.Get(name)
	if !ok {
		h.count(r.URL.Path, http.StatusNotFound)
		apierror.WriteJSON(w, http.StatusNotFound, apierror.CircuitNotFound, "no such circuit: "+name)
		return
	}

	cb.Reset()
	h.logger.Info("admin reset circuit breaker",
		"circuit", name,
		"subject", claims.Subject,
		"client_ip", extractIP(r.RemoteAddr),
	)

	h.count(r.URL.Path, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"circuit": name, "state": cb.State().String()})
}

func (h *Handler) openBreaker(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	name := r.PathValue("name")
	cb, ok := h.registry.Get(name)
	if !ok {
		h.count(r.URL.Path, http.StatusNotFound)
		apierror.WriteJSON(w, http.StatusNotFound, apierror.CircuitNotFound, "no such circuit: "+name)
		return
	}

	cb.ForceOpen()
	h.logger.Info("admin forced circuit breaker open",
		"circuit", name,
		"subject", claims.Subject,
		"client_ip", extractIP(r.RemoteAddr),
	)

	h.count(r.URL.Path, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"circuit": name, "state": cb.State().String()})
}

func (h *Handler) configHandler(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	cfg := h.provider.Current()

	// Shallow copy and redact the secret.
	redacted := *cfg
	if redacted.Admin.JWTSecret != "" {
		redacted.Admin.JWTSecret = "***"
	}

	h.count(r.URL.Path, http.StatusOK)
	writeJSON(w, http.StatusOK, redacted)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
