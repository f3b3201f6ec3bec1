package api

import (
	"sort"
	"strings"

	"github.com/brianfong96/CookieMonster/internal/capturestore"
	"github.com/brianfong96/CookieMonster/internal/cmerrors"
	"github.com/brianfong96/CookieMonster/internal/crypto"
)

// CaptureDiff reports how the most recent record of two capture files
// differ in header shape and method.
type CaptureDiff struct {
	HeadersAdded   []string `json:"headers_added"`
	HeadersRemoved []string `json:"headers_removed"`
	MethodChanged  bool     `json:"method_changed"`
}

// DiffCollaborator is the interface the /diff handler delegates to.
type DiffCollaborator interface {
	CompareCaptureFiles(pathA, pathB string, keyA, keyB *crypto.Key) (CaptureDiff, error)
}

type defaultDiff struct{}

// NewDefaultDiff returns the core's built-in header/method differ.
func NewDefaultDiff() DiffCollaborator {
	return defaultDiff{}
}

func (defaultDiff) CompareCaptureFiles(pathA, pathB string, keyA, keyB *crypto.Key) (CaptureDiff, error) {
	return CompareCaptureFiles(pathA, pathB, keyA, keyB)
}

// CompareCaptureFiles diffs the header-name set and method of the last
// record in each of two capture stores.
func CompareCaptureFiles(pathA, pathB string, keyA, keyB *crypto.Key) (CaptureDiff, error) {
	resultA, err := capturestore.LoadAll(pathA, keyA)
	if err != nil {
		return CaptureDiff{}, err
	}
	resultB, err := capturestore.LoadAll(pathB, keyB)
	if err != nil {
		return CaptureDiff{}, err
	}
	if len(resultA.Records) == 0 || len(resultB.Records) == 0 {
		return CaptureDiff{}, cmerrors.New(cmerrors.CodeNoMatchingCapture, "both capture files must contain at least one record")
	}

	headersA, methodA := signature(resultA.Records[len(resultA.Records)-1])
	headersB, methodB := signature(resultB.Records[len(resultB.Records)-1])

	return CaptureDiff{
		HeadersAdded:   sortedDifference(headersB, headersA),
		HeadersRemoved: sortedDifference(headersA, headersB),
		MethodChanged:  !strings.EqualFold(methodA, methodB),
	}, nil
}

func signature(rec capturestore.CaptureRecord) (map[string]bool, string) {
	names := make(map[string]bool, len(rec.Headers))
	for name := range rec.Headers {
		names[strings.ToLower(name)] = true
	}
	return names, strings.ToUpper(rec.Method)
}

func sortedDifference(a, b map[string]bool) []string {
	var out []string
	for name := range a {
		if !b[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
