package capturestore

import "strings"

// Selector constrains which CaptureRecord a replay should use.
type Selector struct {
	URLContains  string
	Method       string
	ResourceType string
	Index        *int // nil means "last match wins"
}

// Select applies the selector's filters in record order. When Index is set
// it picks the Nth match (0-based); otherwise the last match wins, since
// the most recent observation is most likely to carry still-valid auth
// (spec §4.C).
func Select(records []CaptureRecord, sel Selector) (CaptureRecord, bool) {
	var matches []CaptureRecord
	for _, r := range records {
		if sel.URLContains != "" && !strings.Contains(strings.ToLower(r.URL), strings.ToLower(sel.URLContains)) {
			continue
		}
		if sel.Method != "" && !strings.EqualFold(r.Method, sel.Method) {
			continue
		}
		if sel.ResourceType != "" && !strings.EqualFold(r.ResourceType, sel.ResourceType) {
			continue
		}
		matches = append(matches, r)
	}

	if len(matches) == 0 {
		return CaptureRecord{}, false
	}

	if sel.Index != nil {
		if *sel.Index < 0 || *sel.Index >= len(matches) {
			return CaptureRecord{}, false
		}
		return matches[*sel.Index], true
	}

	return matches[len(matches)-1], true
}
