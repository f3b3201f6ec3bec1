package cdptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestCallRequestResponseRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()

		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		resp := struct {
			ID     int64 `json:"id"`
			Result struct {
				OK bool `json:"ok"`
			} `json:"result"`
		}{ID: req.ID}
		resp.Result.OK = true
		out, _ := json.Marshal(resp)
		_ = wsutil.WriteServerText(conn, out)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	tr, err := Connect(context.Background(), wsURL(srv.URL), time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	raw, err := tr.Call(context.Background(), "Network.enable", nil, time.Second)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected ok=true")
	}
}

func TestCallSurfacesCdpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.Unmarshal(data, &req)
		resp := struct {
			ID    int64 `json:"id"`
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}{ID: req.ID}
		resp.Error.Code = -32000
		resp.Error.Message = "boom"
		out, _ := json.Marshal(resp)
		_ = wsutil.WriteServerText(conn, out)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	tr, err := Connect(context.Background(), wsURL(srv.URL), time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	_, err = tr.Call(context.Background(), "Broken.method", nil, time.Second)
	cdpErr, ok := err.(*CdpError)
	if !ok {
		t.Fatalf("expected *CdpError, got %T: %v", err, err)
	}
	if cdpErr.Message != "boom" {
		t.Fatalf("expected message boom, got %q", cdpErr.Message)
	}
}

func TestCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never respond.
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	tr, err := Connect(context.Background(), wsURL(srv.URL), time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	_, err = tr.Call(context.Background(), "Slow.method", nil, 50*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		event := struct {
			Method string `json:"method"`
			Params struct {
				RequestID string `json:"requestId"`
			} `json:"params"`
		}{Method: "Network.requestWillBeSent"}
		event.Params.RequestID = "abc"
		out, _ := json.Marshal(event)
		// Give the client time to register its handler: events that arrive
		// before Subscribe have no subscriber to reach.
		time.Sleep(100 * time.Millisecond)
		_ = wsutil.WriteServerText(conn, out)
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	tr, err := Connect(context.Background(), wsURL(srv.URL), time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	received := make(chan string, 1)
	tr.Subscribe("Network.requestWillBeSent", func(params json.RawMessage) {
		var p struct {
			RequestID string `json:"requestId"`
		}
		_ = json.Unmarshal(params, &p)
		received <- p.RequestID
	})

	select {
	case id := <-received:
		if id != "abc" {
			t.Fatalf("expected requestId abc, got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
}
