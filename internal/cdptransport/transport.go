// Package cdptransport is a minimal JSON-RPC-over-WebSocket client for the
// Chrome DevTools Protocol. It intentionally avoids chromedp's heavy
// session/domain initialization (SetAutoAttach, DOM.enable, ...) — the core
// only needs Network domain events, and a lighter transport is less likely
// to destabilize the target browser, the same tradeoff the teacher's own
// rawcdp.go makes.
package cdptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/brianfong96/CookieMonster/internal/cmerrors"
)

// maxFrameBytes caps inbound frame size; oversize frames close the
// transport per spec §4.D.
const maxFrameBytes = 16 << 20

// Transport is a single-connection CDP client.
type Transport struct {
	conn   net.Conn
	seq    atomic.Int64
	closed atomic.Bool

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan json.RawMessage

	subMu sync.RWMutex
	subs  map[string][]func(json.RawMessage)

	unknownFrames atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// Connect dials ws_url and starts the background reader. connectTimeout
// bounds the dial itself.
func Connect(ctx context.Context, wsURL string, connectTimeout time.Duration) (*Transport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, _, err := ws.Dial(dialCtx, wsURL)
	if err != nil {
		return nil, cmerrors.Wrap(cmerrors.CodeCdpConnectFailed, "dial CDP websocket", err)
	}

	t := &Transport{
		conn:    conn,
		pending: make(map[int64]chan json.RawMessage),
		subs:    make(map[string][]func(json.RawMessage)),
	}
	go t.readLoop()
	return t, nil
}

type wireEnvelope struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CdpError surfaces a CDP-reported error.message for a failed Call.
type CdpError struct {
	Code    int
	Message string
}

func (e *CdpError) Error() string { return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message) }

func (t *Transport) readLoop() {
	for {
		data, err := wsutil.ReadServerText(t.conn)
		if err != nil {
			t.shutdown(err)
			return
		}
		if len(data) > maxFrameBytes {
			t.shutdown(cmerrors.New(cmerrors.CodeCdpFrameOversize, "inbound CDP frame exceeds 16MiB"))
			return
		}

		var env wireEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.unknownFrames.Add(1)
			continue
		}

		switch {
		case env.ID != 0:
			t.pendingMu.Lock()
			ch, ok := t.pending[env.ID]
			if ok {
				delete(t.pending, env.ID)
			}
			t.pendingMu.Unlock()
			if ok {
				ch <- data
			} else {
				t.unknownFrames.Add(1)
			}
		case env.Method != "":
			t.dispatch(env.Method, env.Params)
		default:
			t.unknownFrames.Add(1)
		}
	}
}

func (t *Transport) dispatch(method string, params json.RawMessage) {
	t.subMu.RLock()
	handlers := append([]func(json.RawMessage){}, t.subs[method]...)
	t.subMu.RUnlock()
	for _, h := range handlers {
		h(params)
	}
}

func (t *Transport) shutdown(cause error) {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.closeErr = cause
		t.pendingMu.Lock()
		for id, ch := range t.pending {
			close(ch)
			delete(t.pending, id)
		}
		t.pendingMu.Unlock()
		_ = t.conn.Close()
	})
}

// Call issues a CDP command and waits for its matching response, or
// requestTimeout, or ctx cancellation, whichever comes first. The pending-id
// table lets multiple calls be in flight at once; writeMu only serializes
// the frame write itself so two concurrent calls can't interleave bytes on
// the same connection (spec §4.D).
func (t *Transport) Call(ctx context.Context, method string, params any, requestTimeout time.Duration) (json.RawMessage, error) {
	if t.closed.Load() {
		return nil, cmerrors.New(cmerrors.CodeCdpConnectFailed, "transport is closed")
	}

	id := t.seq.Add(1)
	req := struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("cdptransport: marshal request: %w", err)
	}

	ch := make(chan json.RawMessage, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	t.writeMu.Lock()
	err = wsutil.WriteClientText(t.conn, data)
	t.writeMu.Unlock()
	if err != nil {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, cmerrors.Wrap(cmerrors.CodeCdpConnectFailed, "write CDP frame", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, cmerrors.New(cmerrors.CodeCdpConnectFailed, "transport closed while awaiting response")
		}
		var env wireEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("cdptransport: unmarshal response: %w", err)
		}
		if env.Error != nil {
			return nil, &CdpError{Code: env.Error.Code, Message: env.Error.Message}
		}
		return env.Result, nil
	case <-timeoutCtx.Done():
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		if ctx.Err() != nil {
			return nil, cmerrors.New(cmerrors.CodeCancelled, "call cancelled")
		}
		return nil, cmerrors.New(cmerrors.CodeCdpCallTimeout, "timed out waiting for "+method)
	}
}

// Subscribe registers handler to be invoked for every inbound event frame
// whose method equals eventName. Handlers run on the transport's reader
// goroutine and must not block it.
func (t *Transport) Subscribe(eventName string, handler func(params json.RawMessage)) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.subs[eventName] = append(t.subs[eventName], handler)
}

// UnknownFrames returns the count of frames with neither a matching id nor
// a method — diagnostic only.
func (t *Transport) UnknownFrames() int64 { return t.unknownFrames.Load() }

// Close terminates the connection and releases pending calls.
func (t *Transport) Close() error {
	t.shutdown(cmerrors.New(cmerrors.CodeCancelled, "transport closed"))
	return nil
}
