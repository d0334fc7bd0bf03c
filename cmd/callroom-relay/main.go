package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/assistant"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/room"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/signaling"
)

// Set with -ldflags "-X main.buildCommit=... -X main.buildTime=...".
var (
	buildCommit string
	buildTime   string
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	slog.SetDefault(logger)

	m := metrics.New()
	ai := newProvider(cfg.AI)
	bridge := assistant.New(assistant.Config{
		AgentName:      cfg.AI.AgentName,
		Personality:    cfg.AI.Personality,
		Credential:     cfg.AI.APIKey,
		LocalProvider:  ai.local,
		RequestTimeout: cfg.AI.RequestTimeout,
		Logger:         logger.With("component", "assistant"),
		Metrics:        m,
	}, ai.provider)

	logger.Info("starting callroom-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"static_dir", cfg.StaticDir,
		"allowed_origins", cfg.AllowedOrigins,
		"ai_provider", cfg.AI.Provider,
		"ai_model", ai.model,
		"ai_enabled", bridge.Enabled(),
		"ice_servers", len(cfg.ICEServers),
	)
	logStartupWarnings(logger, cfg, bridge.Enabled())
	if err := cfg.ICEConfigError(); err != nil {
		logger.Error("invalid ICE server configuration; /webrtc/ice will fail", "err", err)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.ListenAddr, "err", err)
		return 1
	}

	store := room.New(room.Config{
		Logger:  logger.With("component", "room"),
		Metrics: m,
	})
	router := signaling.NewRouter(signaling.RouterConfig{
		Store:   store,
		Bridge:  bridge,
		Logger:  logger.With("component", "router"),
		Metrics: m,
	})
	sig := signaling.NewServer(signaling.Config{
		Store:                store,
		Router:               router,
		Logger:               logger.With("component", "signaling"),
		Metrics:              m,
		AllowedOrigins:       cfg.AllowedOrigins,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		SendQueueSize:        cfg.SignalingSendQueueSize,
	})

	srv := httpserver.New(cfg, logger, buildInfo())
	srv.SetRoom(store)
	sig.RegisterRoutes(srv.Mux())
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m, metrics.Gauge{
		Name:  "callroom_room_members",
		Help:  "Endpoints currently in the room.",
		Value: store.Len,
	}))
	// Browsers open the signaling socket on the page URL itself.
	srv.Mux().Handle("GET /", sig.UpgradeOr(httpserver.StaticHandler(cfg.StaticDir)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routerCtx, stopRouter := context.WithCancel(context.Background())
	defer stopRouter()
	go router.Run(routerCtx)

	logAccessURLs(logger, ln.Addr())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	var exitErr error
	select {
	case exitErr = <-serveErr:
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdown(logger, cfg, srv, sig, exitErr == nil)
	stopRouter()

	if exitErr == nil {
		exitErr = <-serveErr
	}
	if exitErr != nil && !errors.Is(exitErr, http.ErrServerClosed) {
		logger.Error("http server exited", "err", exitErr)
		return 1
	}
	return 0
}

// shutdown drains HTTP (when still serving) and then the signaling sockets,
// which http.Server does not track once hijacked.
func shutdown(logger *slog.Logger, cfg config.Config, srv *httpserver.Server, sig *signaling.Server, serving bool) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if serving {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("http server shutdown failed", "err", err)
		}
	}
	if err := sig.Shutdown(ctx); err != nil {
		logger.Error("signaling shutdown incomplete", "err", err)
	}
}

// buildInfo prefers ldflags values and falls back to the VCS stamp that
// `go build` embeds.
func buildInfo() httpserver.BuildInfo {
	info := httpserver.BuildInfo{Commit: buildCommit, BuildTime: buildTime}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && info.Commit == "" {
			info.Commit = s.Value
		}
		if s.Key == "vcs.time" && info.BuildTime == "" {
			info.BuildTime = s.Value
		}
	}
	return info
}
