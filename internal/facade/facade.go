// Package facade exposes a single typed entry point over the capture
// pipeline and replay engine, for callers embedding CookieMonster as a
// library instead of talking to the control-plane HTTP server.
package facade

import (
	"context"
	"time"

	"github.com/brianfong96/CookieMonster/internal/capturepipeline"
	"github.com/brianfong96/CookieMonster/internal/cdptransport"
	"github.com/brianfong96/CookieMonster/internal/cmerrors"
	"github.com/brianfong96/CookieMonster/internal/discovery"
	"github.com/brianfong96/CookieMonster/internal/replay"
)

// Facade owns no long-lived connections: every Capture call discovers a
// target and opens a fresh transport, and every Replay call opens the
// capture store fresh, matching spec.md's "every instance owns its own
// transport and store handles".
type Facade struct {
	discovery discovery.Options
	policy    *replay.Policy
}

// New builds a Facade bound to a browser's debugging endpoint and an
// optional replay guard policy.
func New(discoveryOpts discovery.Options, policy *replay.Policy) *Facade {
	return &Facade{discovery: discoveryOpts, policy: policy}
}

// Capture discovers a debuggable target, connects over CDP, and drives the
// capture pipeline per cfg until duration/max_records/cancellation.
func (f *Facade) Capture(ctx context.Context, cfg capturepipeline.Config) (capturepipeline.Summary, error) {
	wsURL, err := discovery.Discover(ctx, f.withHint(cfg.TargetHint))
	if err != nil {
		return capturepipeline.Summary{}, err
	}

	connectTimeout := f.discovery.Timeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	transport, err := cdptransport.Connect(ctx, wsURL, connectTimeout)
	if err != nil {
		return capturepipeline.Summary{}, cmerrors.Wrap(cmerrors.CodeCdpConnectFailed, "connect to CDP target", err)
	}
	defer transport.Close()

	return capturepipeline.Run(ctx, transport, cfg)
}

// Replay loads the capture store named by cfg.CaptureFile, selects a
// record, enforces guards, and executes the outbound HTTP request.
func (f *Facade) Replay(ctx context.Context, cfg replay.Config) (replay.Result, error) {
	return replay.Run(ctx, cfg, f.policy)
}

func (f *Facade) withHint(hint string) discovery.Options {
	opts := f.discovery
	if hint != "" {
		opts.TargetHint = hint
	}
	return opts
}
