// Package capturepipeline drives a capture run: it subscribes to CDP
// network events, filters and classifies them, and streams accepted
// records into a capture store.
package capturepipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/google/uuid"

	"github.com/brianfong96/CookieMonster/internal/adapters"
	"github.com/brianfong96/CookieMonster/internal/capturestore"
	"github.com/brianfong96/CookieMonster/internal/cdptransport"
	"github.com/brianfong96/CookieMonster/internal/cmerrors"
	"github.com/brianfong96/CookieMonster/internal/crypto"
	"github.com/brianfong96/CookieMonster/internal/headerpolicy"
)

// queueCapacity bounds the event queue between the transport's reader
// goroutine and the pipeline consumer (spec §5); on overflow the oldest
// queued event is dropped.
const queueCapacity = 1024

// Config describes one capture run.
type Config struct {
	TargetHint         string
	DurationSeconds    float64
	MaxRecords         int
	IncludeAllHeaders  bool
	CapturePostData    bool
	CaptureResponses   bool
	MethodFilter       []string
	HostFilter         []string
	ResourceTypeFilter []string
	OutputFile         string
	EncryptionKey      *crypto.Key

	// Adapter rewrites retained headers before they are persisted, for
	// sites that need domain-specific tweaks (spec.md §9 "plugin
	// adapters"). Nil means headers pass through unchanged.
	Adapter adapters.HeaderAdapter
}

// Summary reports what a capture run produced.
type Summary struct {
	SessionID       string `json:"session_id"`
	Count           int    `json:"count"`
	BytesWritten    int64  `json:"bytes_written"`
	DroppedByFilter int    `json:"dropped_by_filter"`
	PostDataMisses  int    `json:"post_data_misses"`
	QueueDrops      int    `json:"queue_drops"`
	ElapsedMS       int64  `json:"elapsed_ms"`
	OutputPath      string `json:"output_path"`

	// FailedLoads and ResponsesObserved are only populated when
	// Config.CaptureResponses subscribes to the optional
	// Network.loadingFailed/responseReceived events (spec.md §9); they stay
	// zero otherwise.
	FailedLoads       int `json:"failed_loads"`
	ResponsesObserved int `json:"responses_observed"`
}

type rawEvent struct {
	method string
	params json.RawMessage
}

// Run executes a capture per cfg against an already-connected transport,
// terminating on duration, max_records, or ctx cancellation, whichever
// comes first.
func Run(ctx context.Context, transport *cdptransport.Transport, cfg Config) (Summary, error) {
	summary := Summary{SessionID: uuid.NewString(), OutputPath: cfg.OutputFile}
	start := time.Now()

	queue := make(chan rawEvent, queueCapacity)
	var queueDrops int
	var queueMu sync.Mutex

	enqueue := func(method string, params json.RawMessage) {
		ev := rawEvent{method: method, params: params}
		select {
		case queue <- ev:
		default:
			// Drop oldest, then enqueue, per spec §5 overflow policy.
			select {
			case <-queue:
			default:
			}
			queueMu.Lock()
			queueDrops++
			queueMu.Unlock()
			select {
			case queue <- ev:
			default:
			}
		}
	}

	transport.Subscribe("Network.requestWillBeSent", func(params json.RawMessage) {
		enqueue("Network.requestWillBeSent", params)
	})

	// responseReceived/loadingFailed are optional (spec.md §9): only
	// subscribed when the caller asks for them, since the transport reader's
	// per-event budget (spec §5, 5ms) shouldn't pay for handlers nobody reads.
	if cfg.CaptureResponses {
		transport.Subscribe("Network.responseReceived", func(params json.RawMessage) {
			enqueue("Network.responseReceived", params)
		})
		transport.Subscribe("Network.loadingFailed", func(params json.RawMessage) {
			enqueue("Network.loadingFailed", params)
		})
	}

	// Handlers are registered before Network.enable so events the browser
	// emits right after enabling the domain are queued, not dropped.
	if _, err := transport.Call(ctx, "Network.enable", struct{}{}, 10*time.Second); err != nil {
		return summary, cmerrors.Wrap(cmerrors.CodeCdpConnectFailed, "Network.enable failed", err)
	}

	writer, err := capturestore.OpenAppend(cfg.OutputFile, cfg.EncryptionKey)
	if err != nil {
		return summary, err
	}
	defer writer.Close()

	deadline := time.Now().Add(time.Duration(cfg.DurationSeconds * float64(time.Second)))
	if cfg.DurationSeconds <= 0 {
		deadline = time.Now().Add(365 * 24 * time.Hour)
	}

loop:
	for {
		if cfg.MaxRecords > 0 && summary.Count >= cfg.MaxRecords {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			break loop
		case <-timer.C:
			break loop
		case ev := <-queue:
			timer.Stop()
			switch ev.method {
			case "Network.responseReceived":
				summary.ResponsesObserved++
			case "Network.loadingFailed":
				summary.FailedLoads++
			default:
				accepted, dropped, postMiss, n := processEvent(ctx, transport, ev, cfg, writer)
				if accepted {
					summary.Count++
					summary.BytesWritten += int64(n)
				}
				if dropped {
					summary.DroppedByFilter++
				}
				if postMiss {
					summary.PostDataMisses++
				}
			}
		}
	}

	queueMu.Lock()
	summary.QueueDrops = queueDrops
	queueMu.Unlock()
	summary.ElapsedMS = time.Since(start).Milliseconds()
	return summary, nil
}

func processEvent(ctx context.Context, transport *cdptransport.Transport, ev rawEvent, cfg Config, writer *capturestore.Writer) (accepted, dropped, postMiss bool, bytesWritten int) {
	if ev.method != "Network.requestWillBeSent" {
		return false, false, false, 0
	}

	var wre network.EventRequestWillBeSent
	if err := json.Unmarshal(ev.params, &wre); err != nil {
		return false, false, false, 0
	}
	if wre.Request == nil {
		return false, false, false, 0
	}

	method := strings.ToUpper(wre.Request.Method)
	if !capturestore.ValidMethod(method) {
		return false, false, false, 0
	}

	parsed, err := url.Parse(wre.Request.URL)
	if err != nil || !parsed.IsAbs() {
		return false, false, false, 0
	}
	host := parsed.Hostname()

	if len(cfg.HostFilter) > 0 && !matchesAny(host, cfg.HostFilter) {
		return false, true, false, 0
	}
	if len(cfg.MethodFilter) > 0 && !containsFold(cfg.MethodFilter, method) {
		return false, true, false, 0
	}
	resourceType := string(wre.Type)
	if len(cfg.ResourceTypeFilter) > 0 && !containsFold(cfg.ResourceTypeFilter, resourceType) {
		return false, true, false, 0
	}

	headers := make(map[string]string, len(wre.Request.Headers))
	for k, v := range wre.Request.Headers {
		if s, ok := v.(string); ok {
			if headerpolicy.Retain(k, cfg.IncludeAllHeaders) {
				headers[k] = s
			}
		}
	}
	if cfg.Adapter != nil {
		headers = cfg.Adapter.RewriteHeaders(headers)
	}

	rec := capturestore.CaptureRecord{
		RequestID:    string(wre.RequestID),
		Method:       method,
		URL:          wre.Request.URL,
		Host:         host,
		ResourceType: resourceType,
		Headers:      headers,
		CapturedAt:   time.Now().UTC(),
	}

	if cfg.CapturePostData {
		body, err := fetchPostData(ctx, transport, wre.RequestID)
		if err != nil {
			postMiss = true
		} else if body != "" {
			rec.PostData = &body
		}
	}

	n, err := writer.Append(rec)
	if err != nil {
		slog.Warn("capturepipeline: append failed", "request_id", rec.RequestID, "error", err)
		return false, false, postMiss, 0
	}
	return true, false, postMiss, n
}

func fetchPostData(ctx context.Context, transport *cdptransport.Transport, requestID network.RequestID) (string, error) {
	params := struct {
		RequestID network.RequestID `json:"requestId"`
	}{RequestID: requestID}

	raw, err := transport.Call(ctx, "Network.getRequestPostData", params, 3*time.Second)
	if err != nil {
		return "", err
	}
	var out struct {
		PostData string `json:"postData"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("capturepipeline: unmarshal post data: %w", err)
	}
	return out.PostData, nil
}

func matchesAny(host string, filters []string) bool {
	lower := strings.ToLower(host)
	for _, f := range filters {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

func containsFold(set []string, value string) bool {
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}
