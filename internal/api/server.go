package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brianfong96/CookieMonster/internal/capturepipeline"
	"github.com/brianfong96/CookieMonster/internal/cmerrors"
	"github.com/brianfong96/CookieMonster/internal/netutil"
	"github.com/brianfong96/CookieMonster/internal/replay"
)

// Facade is the control-plane server's only dependency on the capture/replay
// core; internal/facade.Facade satisfies it.
type Facade interface {
	Capture(ctx context.Context, cfg capturepipeline.Config) (capturepipeline.Summary, error)
	Replay(ctx context.Context, cfg replay.Config) (replay.Result, error)
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	BindAddr     string
	AllowRemote  bool
	APIToken     string
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 1 << 20

func NewServer(f Facade, health SessionHealthCollaborator, diff DiffCollaborator, cfg ServerConfig) http.Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(bodySizeLimit(maxBody))
	router.Use(tokenAuth(cfg.APIToken))

	humaCfg := huma.DefaultConfig("CookieMonster API", version)
	humaCfg.DocsPath = ""
	api := humachi.New(router, humaCfg)

	registerHealthHandlers(api)
	registerCaptureHandlers(api, f)
	registerReplayHandlers(api, f)
	registerSessionHandlers(api, f, health, diff)

	return router
}

// Listen resolves cfg.BindAddr and refuses to open a socket on a
// non-loopback address unless cfg.AllowRemote is set.
func Listen(cfg ServerConfig) (net.Listener, error) {
	if !cfg.AllowRemote && !netutil.IsLoopbackAddr(cfg.BindAddr) {
		return nil, cmerrors.New(cmerrors.CodeNonLoopbackBindRefused, fmt.Sprintf("refusing to bind %q: not a loopback address (set allow_remote to override)", cfg.BindAddr))
	}
	return net.Listen("tcp", cfg.BindAddr)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cmerrors.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cmerrors.CodeConfigInvalid, cmerrors.CodeRecordTooLarge:
			return huma.Error400BadRequest(coded.Message)
		case cmerrors.CodeUnauthorized:
			return huma.Error401Unauthorized(coded.Message)
		case cmerrors.CodeCaptureHostMismatch, cmerrors.CodeDomainNotAllowed, cmerrors.CodePolicyDenied:
			return huma.Error403Forbidden(coded.Message)
		case cmerrors.CodeNoMatchingCapture, cmerrors.CodeNoDebuggableTarget:
			return huma.Error404NotFound(coded.Message)
		case cmerrors.CodeRequestBodyTooLarge:
			return huma.Error413RequestEntityTooLarge(coded.Message)
		case cmerrors.CodeCancelled:
			return huma.NewError(499, coded.Message)
		case cmerrors.CodeResponseTooLarge, cmerrors.CodeCdpConnectFailed, cmerrors.CodeCdpCallTimeout:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
