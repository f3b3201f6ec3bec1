package capturestore

import (
	"encoding/json"
	"time"
)

// recordWire is the on-disk shape; a plain struct keeps json.Marshal fast
// for the common case, while MarshalJSON/UnmarshalJSON below fold in Extra.
type recordWire struct {
	RequestID     string            `json:"request_id"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Host          string            `json:"host"`
	ResourceType  string            `json:"resource_type"`
	Headers       map[string]string `json:"headers"`
	PostData      *string           `json:"post_data"`
	CapturedAt    time.Time         `json:"captured_at"`
	InitiatorHost *string           `json:"initiator_host,omitempty"`
}

var knownKeys = map[string]bool{
	"request_id": true, "method": true, "url": true, "host": true,
	"resource_type": true, "headers": true, "post_data": true,
	"captured_at": true, "initiator_host": true,
}

// MarshalJSON emits the known fields plus any preserved unknown top-level
// keys from Extra.
func (r CaptureRecord) MarshalJSON() ([]byte, error) {
	wire := recordWire{
		RequestID:     r.RequestID,
		Method:        r.Method,
		URL:           r.URL,
		Host:          r.Host,
		ResourceType:  r.ResourceType,
		Headers:       r.Headers,
		PostData:      r.PostData,
		CapturedAt:    r.CapturedAt,
		InitiatorHost: r.InitiatorHost,
	}
	if r.Headers == nil {
		wire.Headers = map[string]string{}
	}
	base, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if knownKeys[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes known fields and stashes unrecognized top-level
// keys into Extra so a later re-marshal round-trips them.
func (r *CaptureRecord) UnmarshalJSON(data []byte) error {
	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	r.RequestID = wire.RequestID
	r.Method = wire.Method
	r.URL = wire.URL
	r.Host = wire.Host
	r.ResourceType = wire.ResourceType
	r.Headers = wire.Headers
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.PostData = wire.PostData
	r.CapturedAt = wire.CapturedAt
	r.InitiatorHost = wire.InitiatorHost

	var extra map[string]any
	for k, raw := range all {
		if knownKeys[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		extra[k] = v
	}
	r.Extra = extra
	return nil
}
