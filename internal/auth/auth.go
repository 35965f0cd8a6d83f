// Package auth provides JWT Bearer token validation for the callguard
// admin API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/m-check1B/callguard/internal/config"
)

// ScopeAdmin is required for mutating admin operations (reset, force-open).
// Read-only status endpoints only require a valid token.
const ScopeAdmin = "callguard:admin"

// Claims represents the validated JWT claims of an admin request.
type Claims struct {
	Subject string
	Scopes  []string
}

// HasScope reports whether the token carries the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ExtractBearerToken pulls the token out of the Authorization header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// ValidateToken parses and validates an HS256 token against the admin
// configuration. Issuer and audience are enforced only when configured.
// Expiration is always required.
func ValidateToken(tokenStr string, cfg config.AdminConfig) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	claims := &Claims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	// Scopes are a space-separated string per OAuth2 convention.
	if scopeStr, ok := mapClaims["scope"].(string); ok {
		claims.Scopes = strings.Fields(scopeStr)
	}

	return claims, nil
}

// ScopeError indicates the token is valid but lacks a required scope.
type ScopeError struct {
	MissingScope string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("missing required scope: %s", e.MissingScope)
}

// IsScopeError reports whether err is a scope failure, as opposed to an
// invalid token.
func IsScopeError(err error) bool {
	var se *ScopeError
	return errors.As(err, &se)
}

// RequireScope returns a ScopeError when claims lack the given scope.
func RequireScope(claims *Claims, scope string) error {
	if !claims.HasScope(scope) {
		return &ScopeError{MissingScope: scope}
	}
	return nil
}
