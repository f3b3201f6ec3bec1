// Package discovery probes a browser's DevTools HTTP endpoints to find a
// debuggable target and its WebSocket debugger URL.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brianfong96/CookieMonster/internal/cmerrors"
)

const (
	baseBackoff = 250 * time.Millisecond
	capBackoff  = 2 * time.Second
)

// Target is one entry from the browser's /json endpoint.
type Target struct {
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	Title                string `json:"title"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type versionInfo struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Options configures a discovery attempt.
type Options struct {
	Host       string
	Port       int
	TargetHint string
	Timeout    time.Duration
	Retries    int
}

func (o Options) base() string {
	return fmt.Sprintf("http://%s:%d", o.Host, o.Port)
}

// Discover probes /json/version with retry/backoff, lists targets via
// /json, and selects a page target per spec §4.E, returning its
// WebSocket debugger URL.
func Discover(ctx context.Context, opts Options) (string, error) {
	if err := probeVersion(ctx, opts); err != nil {
		return "", err
	}

	targets, err := listTargets(ctx, opts)
	if err != nil {
		return "", err
	}

	target, ok := pickTarget(targets, opts.TargetHint)
	if !ok {
		return "", cmerrors.New(cmerrors.CodeNoDebuggableTarget, "no page targets available")
	}
	return target.WebSocketDebuggerURL, nil
}

func probeVersion(ctx context.Context, opts Options) error {
	url := opts.base() + "/json/version"
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			wait := backoffDuration(attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return cmerrors.New(cmerrors.CodeCancelled, "discovery cancelled")
			}
		}

		var v versionInfo
		if err := getJSON(ctx, opts, url, &v); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return cmerrors.Wrap(cmerrors.CodeCdpConnectFailed, "browser DevTools endpoint unreachable after retries", lastErr)
}

func listTargets(ctx context.Context, opts Options) ([]Target, error) {
	var targets []Target
	if err := getJSON(ctx, opts, opts.base()+"/json", &targets); err != nil {
		return nil, cmerrors.Wrap(cmerrors.CodeCdpConnectFailed, "list DevTools targets", err)
	}
	return targets, nil
}

func pickTarget(targets []Target, hint string) (Target, bool) {
	var firstPage *Target
	lowerHint := strings.ToLower(hint)

	for i := range targets {
		t := targets[i]
		if t.Type != "page" {
			continue
		}
		if firstPage == nil {
			firstPage = &targets[i]
		}
		if lowerHint == "" {
			continue
		}
		if strings.Contains(strings.ToLower(t.URL), lowerHint) || strings.Contains(strings.ToLower(t.Title), lowerHint) {
			return t, true
		}
	}

	if firstPage != nil {
		return *firstPage, true
	}
	return Target{}, false
}

func backoffDuration(attempt int) time.Duration {
	d := baseBackoff * time.Duration(1<<uint(attempt-1))
	if d > capBackoff {
		d = capBackoff
	}
	return d
}

func getJSON(ctx context.Context, opts Options, url string, out any) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
