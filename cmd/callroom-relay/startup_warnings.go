package main

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/config"
)

type startupCheck struct {
	code  string
	msg   string
	fires func(cfg config.Config, aiEnabled bool) bool
	attrs func(cfg config.Config) []any
}

var startupChecks = []startupCheck{
	{
		code:  "ai_disabled",
		msg:   "AI agent disabled; set ANTHROPIC_API_KEY (or AI_PROVIDER=ollama) to enable AI mode",
		fires: func(_ config.Config, aiEnabled bool) bool { return !aiEnabled },
		attrs: func(cfg config.Config) []any { return []any{"ai_provider", cfg.AI.Provider} },
	},
	{
		code:  "allowed_origins_wildcard",
		msg:   "ALLOWED_ORIGINS contains '*'; any web page may join the room",
		fires: func(cfg config.Config, _ bool) bool { return slices.Contains(cfg.AllowedOrigins, "*") },
		attrs: func(cfg config.Config) []any { return []any{"allowed_origins", cfg.AllowedOrigins} },
	},
	{
		code: "signaling_rate_limit_disabled_in_prod",
		msg:  "MAX_SIGNALING_MESSAGES_PER_SECOND is 0 (unlimited) in prod mode",
		fires: func(cfg config.Config, _ bool) bool {
			return cfg.Mode == config.ModeProd && cfg.MaxSignalingMessagesPerSecond <= 0
		},
		attrs: func(cfg config.Config) []any {
			return []any{"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond}
		},
	},
	{
		code: "signaling_idle_timeout_disabled_in_prod",
		msg:  "SIGNALING_WS_IDLE_TIMEOUT is 0; a stalled client holds its room slot until it disconnects",
		fires: func(cfg config.Config, _ bool) bool {
			return cfg.Mode == config.ModeProd && cfg.SignalingWSIdleTimeout <= 0
		},
	},
	{
		code:  "signaling_message_cap_large",
		msg:   "MAX_SIGNALING_MESSAGE_BYTES exceeds 1MiB; SDP payloads are a few KiB",
		fires: func(cfg config.Config, _ bool) bool { return cfg.MaxSignalingMessageBytes > 1<<20 },
		attrs: func(cfg config.Config) []any {
			return []any{"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes}
		},
	},
	{
		code: "no_turn_server_in_prod",
		msg:  "no TURN server configured; peers behind symmetric NAT will fail to connect",
		fires: func(cfg config.Config, _ bool) bool {
			return cfg.Mode == config.ModeProd && !hasTURN(cfg)
		},
		attrs: func(cfg config.Config) []any { return []any{"ice_servers", len(cfg.ICEServers)} },
	},
}

// logStartupWarnings logs one warning per misconfiguration that weakens the
// relay. Nothing is fatal here; config.Load rejects invalid values.
func logStartupWarnings(logger *slog.Logger, cfg config.Config, aiEnabled bool) int {
	if logger == nil {
		logger = slog.Default()
	}

	n := 0
	for _, c := range startupChecks {
		if !c.fires(cfg, aiEnabled) {
			continue
		}
		args := []any{"warning_code", c.code, "mode", cfg.Mode}
		if c.attrs != nil {
			args = append(args, c.attrs(cfg)...)
		}
		logger.Warn("startup warning: "+c.msg, args...)
		n++
	}
	return n
}

func hasTURN(cfg config.Config) bool {
	for _, s := range cfg.ICEServers {
		for _, u := range s.URLs {
			if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
				return true
			}
		}
	}
	return false
}
