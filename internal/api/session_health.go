package api

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/brianfong96/CookieMonster/internal/capturestore"
)

// SessionHealthResult is the default /session-health response shape.
type SessionHealthResult struct {
	HasCookie        bool    `json:"has_cookie"`
	BearerTokenCount int     `json:"bearer_token_count"`
	JWTExpired       *bool   `json:"jwt_expired"`
	JWTExpiresAt     *string `json:"jwt_expires_at"`
}

// SessionHealthCollaborator is the interface the /session-health handler
// delegates to; AnalyzeSessionHealth below is the default implementation.
type SessionHealthCollaborator interface {
	AnalyzeSessionHealth(records []capturestore.CaptureRecord) SessionHealthResult
}

type defaultSessionHealth struct{}

// NewDefaultSessionHealth returns the core's built-in session-health
// analyzer: cookie/bearer-token presence plus best-effort JWT expiry.
func NewDefaultSessionHealth() SessionHealthCollaborator {
	return defaultSessionHealth{}
}

func (defaultSessionHealth) AnalyzeSessionHealth(records []capturestore.CaptureRecord) SessionHealthResult {
	return AnalyzeSessionHealth(records)
}

// AnalyzeSessionHealth inspects captured headers for cookie/bearer-token
// presence and, if a bearer token looks like a JWT, its expiry.
func AnalyzeSessionHealth(records []capturestore.CaptureRecord) SessionHealthResult {
	hasCookie := false
	var bearerTokens []string

	for _, rec := range records {
		for name, value := range rec.Headers {
			lower := strings.ToLower(name)
			if lower == "cookie" {
				hasCookie = true
			}
			if lower == "authorization" {
				if tok, ok := strings.CutPrefix(value, "Bearer "); ok {
					bearerTokens = append(bearerTokens, tok)
				} else if tok, ok := strings.CutPrefix(value, "bearer "); ok {
					bearerTokens = append(bearerTokens, tok)
				}
			}
		}
	}

	result := SessionHealthResult{HasCookie: hasCookie, BearerTokenCount: len(bearerTokens)}
	if len(bearerTokens) == 0 {
		return result
	}

	exp, ok := decodeJWTExpiry(bearerTokens[len(bearerTokens)-1])
	if !ok {
		return result
	}
	expStr := exp.UTC().Format(time.RFC3339)
	expired := !exp.After(time.Now().UTC())
	result.JWTExpiresAt = &expStr
	result.JWTExpired = &expired
	return result
}

func decodeJWTExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var claims struct {
		Exp *int64 `json:"exp"`
	}
	if err := json.Unmarshal(decoded, &claims); err != nil || claims.Exp == nil {
		return time.Time{}, false
	}
	return time.Unix(*claims.Exp, 0), true
}
