package discovery

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newFakeBrowser(t *testing.T, targets []Target) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(versionInfo{WebSocketDebuggerURL: "ws://ignored"})
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(targets)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func hostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func TestDiscoverPicksFirstPageWithoutHint(t *testing.T) {
	srv := newFakeBrowser(t, []Target{
		{Type: "background_page", URL: "chrome-extension://x"},
		{Type: "page", URL: "https://example.com", WebSocketDebuggerURL: "ws://target1"},
		{Type: "page", URL: "https://other.com", WebSocketDebuggerURL: "ws://target2"},
	})
	host, port := hostPort(t, srv)

	got, err := Discover(context.Background(), Options{Host: host, Port: port, Timeout: time.Second, Retries: 1})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got != "ws://target1" {
		t.Fatalf("expected first page target, got %q", got)
	}
}

func TestDiscoverMatchesHint(t *testing.T) {
	srv := newFakeBrowser(t, []Target{
		{Type: "page", URL: "https://example.com", WebSocketDebuggerURL: "ws://target1"},
		{Type: "page", URL: "https://tradingview.com/chart", WebSocketDebuggerURL: "ws://target2"},
	})
	host, port := hostPort(t, srv)

	got, err := Discover(context.Background(), Options{Host: host, Port: port, TargetHint: "tradingview", Timeout: time.Second, Retries: 1})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got != "ws://target2" {
		t.Fatalf("expected hinted target, got %q", got)
	}
}

func TestDiscoverNoTargetsFails(t *testing.T) {
	srv := newFakeBrowser(t, nil)
	host, port := hostPort(t, srv)

	_, err := Discover(context.Background(), Options{Host: host, Port: port, Timeout: time.Second, Retries: 1})
	if err == nil {
		t.Fatalf("expected NoDebuggableTarget error")
	}
	if !strings.Contains(err.Error(), "NO_DEBUGGABLE_TARGET") {
		t.Fatalf("expected NO_DEBUGGABLE_TARGET, got %v", err)
	}
}
