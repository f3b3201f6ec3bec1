// Package replay reconstructs an HTTP request from a stored capture and
// executes it against a live endpoint, enforcing safety guards before any
// network I/O and retrying on transient failure.
package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/brianfong96/CookieMonster/internal/capturestore"
	"github.com/brianfong96/CookieMonster/internal/cmerrors"
	"github.com/brianfong96/CookieMonster/internal/crypto"
)

// BodyKind selects how the outbound request body is built.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyUseCaptured
	BodyInline
	BodyFile
	BodyJSON
)

// Body describes config.body per spec §3.
type Body struct {
	Kind   BodyKind
	Inline []byte
	Path   string
	JSON   any
}

// RetryPolicy controls the retry-with-backoff loop.
type RetryPolicy struct {
	Attempts       int
	BackoffSeconds float64
	Jitter         bool
}

// Config is one replay request description (spec §3).
type Config struct {
	CaptureFile        string
	Selector           capturestore.Selector
	RequestURL         string
	Method             string
	Body               Body
	ExtraHeaders       map[string]string
	Retry              RetryPolicy
	TimeoutSeconds     float64
	EnforceCaptureHost bool
	EncryptionKey      *crypto.Key
}

// Result is what a replay produces (spec §3).
type Result struct {
	StatusCode             int               `json:"status_code"`
	ResponseHeaders        map[string]string `json:"response_headers"`
	ResponseBodyBytes      []byte            `json:"-"`
	ElapsedMS              int64             `json:"elapsed_ms"`
	Attempts               int               `json:"attempts"`
	FinalURLAfterRedirects string            `json:"final_url_after_redirects"`
	SelectedCaptureReqID   string            `json:"selected_capture_request_id"`
}

const (
	maxRedirects     = 10
	maxResponseBytes = 64 << 20
)

var hopByHopHeaders = map[string]bool{
	"connection":        true,
	"keep-alive":        true,
	"transfer-encoding": true,
	"upgrade":           true,
}

func isProxyHeader(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "proxy-")
}

// Run loads the capture store, selects a record, enforces guards, and
// executes the replay with retries. No outbound socket is opened until
// every guard has passed (testable property 5).
func Run(ctx context.Context, cfg Config, policy *Policy) (Result, error) {
	loaded, err := capturestore.LoadAll(cfg.CaptureFile, cfg.EncryptionKey)
	if err != nil {
		return Result{}, err
	}

	capture, ok := capturestore.Select(loaded.Records, cfg.Selector)
	if !ok {
		return Result{}, cmerrors.New(cmerrors.CodeNoMatchingCapture, "no capture matched the selector")
	}

	target, err := url.Parse(cfg.RequestURL)
	if err != nil || !target.IsAbs() {
		return Result{}, cmerrors.New(cmerrors.CodeConfigInvalid, "request_url must be an absolute URL")
	}

	method := cfg.Method
	if method == "" {
		method = capture.Method
	}

	if err := enforceGuards(target, method, capture, cfg, policy); err != nil {
		return Result{}, err
	}

	headers := buildHeaders(capture, cfg.ExtraHeaders)
	bodyBytes, err := resolveBody(cfg.Body, capture)
	if err != nil {
		return Result{}, err
	}
	if cfg.Body.Kind == BodyJSON {
		if _, exists := headers["Content-Type"]; !exists {
			headers["Content-Type"] = "application/json"
		}
	}

	result, err := execute(ctx, method, target, headers, bodyBytes, cfg, policy)
	if err != nil {
		return Result{}, err
	}
	result.SelectedCaptureReqID = capture.RequestID
	return result, nil
}

func enforceGuards(target *url.URL, method string, capture capturestore.CaptureRecord, cfg Config, policy *Policy) error {
	enforceHost := cfg.EnforceCaptureHost
	if policy != nil && policy.EnforceCaptureHost {
		enforceHost = true
	}
	if enforceHost && !strings.EqualFold(target.Hostname(), capture.Host) {
		return cmerrors.New(cmerrors.CodeCaptureHostMismatch, fmt.Sprintf("target host %q does not match capture host %q", target.Hostname(), capture.Host))
	}

	if policy != nil && len(policy.AllowedDomains) > 0 && !hostAllowed(target.Hostname(), policy.AllowedDomains) {
		return cmerrors.New(cmerrors.CodeDomainNotAllowed, "host "+target.Hostname()+" is not in the allowed domains")
	}

	if policy != nil {
		if idx := checkDenyRules(policy.DenyRules, target, method); idx >= 0 {
			return cmerrors.New(cmerrors.CodePolicyDenied, fmt.Sprintf("denied by policy rule %d", idx))
		}
	}

	return nil
}

func buildHeaders(capture capturestore.CaptureRecord, extra map[string]string) map[string]string {
	headers := make(map[string]string, len(capture.Headers)+len(extra))
	for k, v := range capture.Headers {
		lower := strings.ToLower(k)
		if hopByHopHeaders[lower] || isProxyHeader(k) {
			continue
		}
		headers[k] = v
	}
	for k, v := range extra {
		for existing := range headers {
			if strings.EqualFold(existing, k) {
				delete(headers, existing)
			}
		}
		headers[k] = v
	}
	return headers
}

func resolveBody(b Body, capture capturestore.CaptureRecord) ([]byte, error) {
	switch b.Kind {
	case BodyNone:
		return nil, nil
	case BodyUseCaptured:
		if capture.PostData == nil {
			return nil, nil
		}
		return []byte(*capture.PostData), nil
	case BodyInline:
		return b.Inline, nil
	case BodyFile:
		data, err := os.ReadFile(b.Path)
		if err != nil {
			return nil, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "read replay body file", err)
		}
		return data, nil
	case BodyJSON:
		data, err := json.Marshal(b.JSON)
		if err != nil {
			return nil, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "marshal structured JSON body", err)
		}
		return data, nil
	default:
		return nil, nil
	}
}

func execute(ctx context.Context, method string, target *url.URL, headers map[string]string, body []byte, cfg Config, policy *Policy) (Result, error) {
	attempts := cfg.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := time.Duration(cfg.TimeoutSeconds * float64(time.Second))
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	enforceHost := cfg.EnforceCaptureHost || (policy != nil && policy.EnforceCaptureHost)

	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			// Under the capture-host guard a cross-host redirect is not
			// followed; the 3xx is returned as the final response.
			if enforceHost && !strings.EqualFold(req.URL.Hostname(), target.Hostname()) {
				return http.ErrUseLastResponse
			}
			if policy != nil && len(policy.AllowedDomains) > 0 && !hostAllowed(req.URL.Hostname(), policy.AllowedDomains) {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	start := time.Now()
	var lastResp *http.Response
	var lastErr error
	attemptCount := 0

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCount = attempt
		if attempt > 1 {
			wait := backoffFor(cfg.Retry, attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Result{}, cmerrors.New(cmerrors.CodeCancelled, "replay cancelled during backoff")
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(body))
		if err != nil {
			return Result{}, fmt.Errorf("replay: build request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = cmerrors.Wrap(cmerrors.CodeTransient, "outbound request failed", err)
			continue
		}

		if resp.StatusCode >= 500 && attempt < attempts {
			resp.Body.Close()
			lastErr = nil
			lastResp = nil
			continue
		}

		lastResp = resp
		lastErr = nil
		break
	}

	if lastResp == nil {
		if lastErr != nil {
			return Result{}, lastErr
		}
		return Result{}, cmerrors.New(cmerrors.CodeTransient, "replay exhausted retries")
	}
	defer lastResp.Body.Close()

	limited := io.LimitReader(lastResp.Body, maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return Result{}, fmt.Errorf("replay: read response body: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		return Result{}, cmerrors.New(cmerrors.CodeResponseTooLarge, "response body exceeds 64MiB cap")
	}

	respHeaders := make(map[string]string, len(lastResp.Header))
	for k := range lastResp.Header {
		respHeaders[k] = lastResp.Header.Get(k)
	}

	return Result{
		StatusCode:             lastResp.StatusCode,
		ResponseHeaders:        respHeaders,
		ResponseBodyBytes:      respBody,
		ElapsedMS:              time.Since(start).Milliseconds(),
		Attempts:               attemptCount,
		FinalURLAfterRedirects: lastResp.Request.URL.String(),
	}, nil
}

func backoffFor(r RetryPolicy, attempt int) time.Duration {
	base := r.BackoffSeconds * float64(int(1)<<uint(attempt-2))
	d := time.Duration(base * float64(time.Second))
	if r.Jitter && d > 0 {
		d = time.Duration(rand.Float64() * float64(d))
	}
	return d
}
