// Package capturestore implements the append-only JSONL capture file format:
// reading, writing, per-line optional AEAD encryption, and selection.
package capturestore

import "time"

// CaptureRecord is one observed browser request, as described in spec §3.
type CaptureRecord struct {
	RequestID     string            `json:"request_id"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Host          string            `json:"host"`
	ResourceType  string            `json:"resource_type"`
	Headers       map[string]string `json:"headers"`
	PostData      *string           `json:"post_data"`
	CapturedAt    time.Time         `json:"captured_at"`
	InitiatorHost *string           `json:"initiator_host,omitempty"`

	// Extra carries unknown top-level keys seen on load, preserved for
	// round-trip where feasible (spec §6: "unknown top-level keys are
	// preserved on round-trip where feasible").
	Extra map[string]any `json:"-"`
}

var standardVerbs = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
	"HEAD": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
}

// ValidMethod reports whether method is one of the standard HTTP verbs.
func ValidMethod(method string) bool {
	return standardVerbs[method]
}
