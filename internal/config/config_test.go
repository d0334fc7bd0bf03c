package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func emptyLookup(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(emptyLookup, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want debug", cfg.LogLevel)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.StaticDir != DefaultStaticDir {
		t.Fatalf("StaticDir=%q, want %q", cfg.StaticDir, DefaultStaticDir)
	}
	if cfg.SignalingWSIdleTimeout != DefaultSignalingWSIdleTimeout || cfg.SignalingWSPingInterval != DefaultSignalingWSPingInterval {
		t.Fatalf("keepalive=%v/%v", cfg.SignalingWSIdleTimeout, cfg.SignalingWSPingInterval)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d", cfg.MaxSignalingMessageBytes)
	}
	if cfg.MaxSignalingMessagesPerSecond != 0 {
		t.Fatalf("MaxSignalingMessagesPerSecond=%d, want unlimited by default", cfg.MaxSignalingMessagesPerSecond)
	}
	if cfg.SignalingSendQueueSize != DefaultSignalingSendQueueSize {
		t.Fatalf("SignalingSendQueueSize=%d", cfg.SignalingSendQueueSize)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("AllowedOrigins=%v, want empty", cfg.AllowedOrigins)
	}

	ai := cfg.AI
	if ai.Provider != AIProviderAnthropic || ai.APIKey != "" || ai.Model != "" {
		t.Fatalf("ai=%+v", ai)
	}
	if ai.AgentName != DefaultAIAgentName || ai.Personality != DefaultAIAgentPersonality {
		t.Fatalf("agent=%q/%q", ai.AgentName, ai.Personality)
	}
	if ai.MaxTokens != DefaultAIMaxTokens || ai.RequestTimeout != DefaultAIRequestTimeout {
		t.Fatalf("ai limits=%d/%v", ai.MaxTokens, ai.RequestTimeout)
	}
	if ai.OllamaEndpoint != DefaultOllamaEndpoint || ai.OllamaModel != DefaultOllamaModel {
		t.Fatalf("ollama=%q/%q", ai.OllamaEndpoint, ai.OllamaModel)
	}

	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError: %v", err)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != DefaultSTUNURL {
		t.Fatalf("ICEServers=%#v", cfg.ICEServers)
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(emptyLookup, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want info", cfg.LogLevel)
	}
}

func TestDefaultsProdWhenModeEnvSet(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMode: "production"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd || cfg.LogFormat != LogFormatJSON {
		t.Fatalf("mode=%q logFormat=%q", cfg.Mode, cfg.LogFormat)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(emptyLookup, []string{"--mode", "prod", "--log-format", "text"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarListenAddr: "127.0.0.1:4000",
		envVarAIProvider: "ollama",
	}), []string{"--listen-addr", "127.0.0.1:5000", "--ai-provider", "anthropic"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:5000" {
		t.Fatalf("ListenAddr=%q", cfg.ListenAddr)
	}
	if cfg.AI.Provider != AIProviderAnthropic {
		t.Fatalf("Provider=%q", cfg.AI.Provider)
	}
}

func TestAIEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarAnthropicAPIKey:    "  sk-ant-test  ",
		envVarAIAgentName:        "Nova",
		envVarAIAgentPersonality: "terse pirate",
		envVarAIProvider:         "OLLAMA",
		envVarAIModel:            "mistral",
		envVarAIMaxTokens:        "300",
		envVarAIRequestTimeout:   "5s",
		envVarOllamaEndpoint:     "http://gpu-box:11434/",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ai := cfg.AI
	if ai.APIKey != "sk-ant-test" {
		t.Fatalf("APIKey=%q", ai.APIKey)
	}
	if ai.AgentName != "Nova" || ai.Personality != "terse pirate" {
		t.Fatalf("agent=%q/%q", ai.AgentName, ai.Personality)
	}
	if ai.Provider != AIProviderOllama || ai.Model != "mistral" {
		t.Fatalf("provider=%q model=%q", ai.Provider, ai.Model)
	}
	if ai.MaxTokens != 300 || ai.RequestTimeout != 5*time.Second {
		t.Fatalf("limits=%d/%v", ai.MaxTokens, ai.RequestTimeout)
	}
	if ai.OllamaEndpoint != "http://gpu-box:11434" {
		t.Fatalf("OllamaEndpoint=%q", ai.OllamaEndpoint)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{name: "mode", args: []string{"--mode", "staging"}, want: "invalid mode"},
		{name: "log format", env: map[string]string{envVarLogFormat: "xml"}, want: "invalid log format"},
		{name: "log level flag", args: []string{"--log-level", "loud"}, want: "-log-level"},
		{name: "log level env", env: map[string]string{envVarLogLevel: "loud"}, want: envVarLogLevel},
		{name: "mode env", env: map[string]string{envVarMode: "qa"}, want: "invalid mode"},
		{name: "message bytes parse", env: map[string]string{envVarMaxSignalingMessageBytes: "64k"}, want: envVarMaxSignalingMessageBytes},
		{name: "provider", env: map[string]string{envVarAIProvider: "openai"}, want: envVarAIProvider},
		{name: "max tokens", env: map[string]string{envVarAIMaxTokens: "0"}, want: envVarAIMaxTokens},
		{name: "max tokens parse", env: map[string]string{envVarAIMaxTokens: "many"}, want: envVarAIMaxTokens},
		{name: "ai timeout", env: map[string]string{envVarAIRequestTimeout: "soon"}, want: envVarAIRequestTimeout},
		{name: "idle timeout", env: map[string]string{envVarSignalingWSIdleTimeout: "-1s"}, want: envVarSignalingWSIdleTimeout},
		{name: "ping >= idle", env: map[string]string{envVarSignalingWSIdleTimeout: "10s", envVarSignalingWSPingInterval: "10s"}, want: envVarSignalingWSPingInterval},
		{name: "message bytes", env: map[string]string{envVarMaxSignalingMessageBytes: "0"}, want: envVarMaxSignalingMessageBytes},
		{name: "send queue", env: map[string]string{envVarSignalingSendQueueSize: "-3"}, want: envVarSignalingSendQueueSize},
		{name: "shutdown", env: map[string]string{envVarShutdownTimeout: "0s"}, want: envVarShutdownTimeout},
		{name: "origins", env: map[string]string{envVarAllowedOrigins: "example.com"}, want: envVarAllowedOrigins},
		{name: "extra args", args: []string{"serve"}, want: "unexpected arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), tc.args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestHelpFlag(t *testing.T) {
	_, err := load(emptyLookup, []string{"-h"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err=%v, want flag.ErrHelp", err)
	}
}

func TestRateLimitCanBeDisabled(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMaxSignalingMessagesPerSecond: "0"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxSignalingMessagesPerSecond != 0 {
		t.Fatalf("MaxSignalingMessagesPerSecond=%d", cfg.MaxSignalingMessagesPerSecond)
	}
}

func TestInvalidICEConfigDoesNotFailLoad(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envTurnURLs: "turn:turn.example.com:3478"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error")
	}
	if len(cfg.ICEServers) != 0 {
		t.Fatalf("ICEServers=%v, want none", cfg.ICEServers)
	}
}

func TestParseAllowedOrigins_NormalizesAndValidates(t *testing.T) {
	got, err := parseAllowedOrigins("HTTPS://Example.COM:443, http://localhost:5173/")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2 (%v)", len(got), got)
	}
	if got[0] != "https://example.com" {
		t.Fatalf("got[0]=%q, want %q", got[0], "https://example.com")
	}
	if got[1] != "http://localhost:5173" {
		t.Fatalf("got[1]=%q, want %q", got[1], "http://localhost:5173")
	}
}

func TestParseAllowedOrigins_AllowsStarAndNull(t *testing.T) {
	got, err := parseAllowedOrigins("*,null")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 || got[0] != "*" || got[1] != "null" {
		t.Fatalf("got=%v, want [* null]", got)
	}
}

func TestParseAllowedOrigins_RejectsPathQueryAndCredentials(t *testing.T) {
	cases := []string{
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com/?q=1",
		"https://user@example.com",
		"https://example.com/#frag",
	}
	for _, raw := range cases {
		if _, err := parseAllowedOrigins(raw); err == nil {
			t.Fatalf("expected error for %q, got nil", raw)
		}
	}
}

func TestLogLevelFromEnvBeatsMode(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMode:     "prod",
		envVarLogLevel: "WARN",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("logLevel=%v, want warn", cfg.LogLevel)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want json from mode", cfg.LogFormat)
	}
}

func TestLogLevelFlagAcceptsOffsets(t *testing.T) {
	cfg, err := load(emptyLookup, []string{"--log-level", "info+2"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != slog.LevelInfo+2 {
		t.Fatalf("logLevel=%v, want INFO+2", cfg.LogLevel)
	}
}

func TestEnvReaderKeepsFirstError(t *testing.T) {
	e := envReader{lookup: lookupMap(map[string]string{
		"A": "nope",
		"B": "also-nope",
		"C": " 7 ",
	})}
	if got := e.integer("A", 1); got != 1 {
		t.Fatalf("A=%d, want fallback", got)
	}
	if got := e.duration("B", time.Second); got != time.Second {
		t.Fatalf("B=%v, want fallback", got)
	}
	if got := e.integer("C", 1); got != 1 {
		t.Fatalf("C=%d after error, want fallback", got)
	}
	if e.err == nil || !strings.Contains(e.err.Error(), `invalid A "nope"`) {
		t.Fatalf("err=%v, want the first failure", e.err)
	}
}

func TestEnvReaderBlankIsUnset(t *testing.T) {
	e := envReader{lookup: lookupMap(map[string]string{"K": "   "})}
	if got := e.str("K", "fallback"); got != "fallback" {
		t.Fatalf("str=%q", got)
	}
	var m Mode = ModeDev
	if e.text("K", &m) || m != ModeDev {
		t.Fatalf("text reported set, mode=%q", m)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, Config{LogFormat: LogFormatJSON, LogLevel: slog.LevelInfo})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("want one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Fatalf("record=%v", rec)
	}

	if _, err := newLogger(&buf, Config{LogFormat: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
