package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/brianfong96/CookieMonster/internal/api"
	"github.com/brianfong96/CookieMonster/internal/config"
	"github.com/brianfong96/CookieMonster/internal/discovery"
	"github.com/brianfong96/CookieMonster/internal/facade"
	"github.com/brianfong96/CookieMonster/internal/netutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		slog.Debug("log directory creation failed", "error", err)
	}

	logWriter := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting CookieMonster")

	slog.Info("Configuration loaded",
		"cdp_host", cfg.CDPHost,
		"cdp_port", cfg.CDPPort,
		"data_dir", cfg.DataDir,
		"bind_addr", cfg.BindAddr,
		"allow_remote", cfg.AllowRemote,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("Failed to select a bind address", "error", err)
		os.Exit(1)
	}

	f := facade.New(discovery.Options{
		Host:    cfg.CDPHost,
		Port:    cfg.CDPPort,
		Timeout: 10 * time.Second,
		Retries: 5,
	}, nil)

	serverCfg := api.ServerConfig{
		BindAddr:    bindAddr,
		AllowRemote: cfg.AllowRemote,
		APIToken:    cfg.APIToken,
	}
	handler2 := api.NewServer(f, api.NewDefaultSessionHealth(), api.NewDefaultDiff(), serverCfg)

	ln, err := api.Listen(serverCfg)
	if err != nil {
		slog.Error("Failed to bind control-plane listener", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{Handler: handler2}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("Shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Graceful shutdown failed", "error", err)
		}
		cancel()
	}()

	slog.Info("CookieMonster control plane listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server stopped unexpectedly", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("CookieMonster stopped")
}
