// Package headerpolicy classifies HTTP header names and redacts their
// values for safe display. It is pure and stateless: no network or disk
// access, and no mutable state beyond the fixed classification tables.
package headerpolicy

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// Classification describes how a header name is treated.
type Classification int

const (
	Safe Classification = iota
	Auth
	Sensitive
)

func (c Classification) String() string {
	switch c {
	case Auth:
		return "auth"
	case Sensitive:
		return "sensitive"
	default:
		return "safe"
	}
}

var authHeaders = map[string]bool{
	"cookie":              true,
	"authorization":       true,
	"proxy-authorization": true,
	"x-csrf-token":        true,
	"set-cookie":          true,
}

var sensitiveHeaders = map[string]bool{
	"referer":    true,
	"origin":     true,
	"user-agent": true,
}

const authPrefix = "x-auth-"

// Classify returns how name should be treated. Comparison is case-insensitive.
func Classify(name string) Classification {
	lower := strings.ToLower(strings.TrimSpace(name))
	if authHeaders[lower] || strings.HasPrefix(lower, authPrefix) {
		return Auth
	}
	if sensitiveHeaders[lower] {
		return Sensitive
	}
	return Safe
}

// Retain reports whether a header should be kept when include_all_headers is
// false: auth and sensitive headers are retained, everything else is dropped.
func Retain(name string, includeAll bool) bool {
	if includeAll {
		return true
	}
	c := Classify(name)
	return c == Auth || c == Sensitive
}

// Redact produces a deterministic, irreversible stand-in for a header value:
// a short hash prefix plus a length marker. Equal inputs always redact to
// the same string; different inputs redact to different strings with
// overwhelming probability, which keeps diffing two redacted captures useful
// without reproducing the original secret.
func Redact(name, value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(name) + "\x00" + value))
	hash := base64.RawURLEncoding.EncodeToString(sum[:6])
	return fmt.Sprintf("redacted:%s:len=%d", hash, len(value))
}

// RedactHeaders returns a copy of headers with auth-classified values
// replaced via Redact. Non-auth headers pass through unchanged.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if Classify(k) == Auth {
			out[k] = Redact(k, v)
		} else {
			out[k] = v
		}
	}
	return out
}
