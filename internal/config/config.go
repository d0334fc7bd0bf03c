// Package config resolves relay settings from an optional .env file, the
// process environment and command-line flags, in increasing precedence.
package config

import (
	"encoding"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/origin"
)

const (
	envVarListenAddr      = "CALLROOM_LISTEN_ADDR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "CALLROOM_LOG_FORMAT"
	envVarLogLevel        = "CALLROOM_LOG_LEVEL"
	envVarShutdownTimeout = "CALLROOM_SHUTDOWN_TIMEOUT"
	envVarMode            = "CALLROOM_MODE"
	envVarStaticDir       = "CALLROOM_STATIC_DIR"

	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingSendQueueSize        = "SIGNALING_SEND_QUEUE_SIZE"

	envVarAnthropicAPIKey    = "ANTHROPIC_API_KEY"
	envVarAIAgentName        = "AI_AGENT_NAME"
	envVarAIAgentPersonality = "AI_AGENT_PERSONALITY"
	envVarAIProvider         = "AI_PROVIDER"
	envVarAIModel            = "AI_MODEL"
	envVarAIMaxTokens        = "AI_MAX_TOKENS"
	envVarAIRequestTimeout   = "AI_REQUEST_TIMEOUT"
	envVarOllamaEndpoint     = "OLLAMA_ENDPOINT"
	envVarOllamaModel        = "OLLAMA_MODEL"
)

const (
	DefaultListenAddr           = "0.0.0.0:3000"
	DefaultShutdown             = 15 * time.Second
	DefaultMode            Mode = ModeDev
	DefaultStaticDir            = "public"

	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 0
	DefaultSignalingSendQueueSize        = 256

	DefaultAIAgentName        = "AI Assistant"
	DefaultAIAgentPersonality = "friendly and helpful assistant"
	DefaultAIProvider         = AIProviderAnthropic
	DefaultAIMaxTokens        = 150
	DefaultAIRequestTimeout   = 60 * time.Second
	DefaultOllamaEndpoint     = "http://localhost:11434"
	DefaultOllamaModel        = "llama3.2"

	// DefaultEnvFile is read from the working directory when present. Values
	// already set in the environment win.
	DefaultEnvFile = ".env"
)

// Mode selects logging defaults and which startup warnings apply.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

func (m Mode) MarshalText() ([]byte, error) { return []byte(m), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "dev", "development":
		*m = ModeDev
	case "prod", "production":
		*m = ModeProd
	default:
		return fmt.Errorf("invalid mode %q (expected dev or prod)", b)
	}
	return nil
}

func (m Mode) logFormat() LogFormat {
	if m == ModeProd {
		return LogFormatJSON
	}
	return LogFormatText
}

func (m Mode) logLevel() slog.Level {
	if m == ModeProd {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

func (f LogFormat) MarshalText() ([]byte, error) { return []byte(f), nil }

func (f *LogFormat) UnmarshalText(b []byte) error {
	switch v := LogFormat(strings.ToLower(strings.TrimSpace(string(b)))); v {
	case LogFormatText, LogFormatJSON:
		*f = v
		return nil
	}
	return fmt.Errorf("invalid log format %q (expected text or json)", b)
}

type AIProvider string

const (
	AIProviderAnthropic AIProvider = "anthropic"
	AIProviderOllama    AIProvider = "ollama"
)

func (p AIProvider) MarshalText() ([]byte, error) { return []byte(p), nil }

func (p *AIProvider) UnmarshalText(b []byte) error {
	switch v := AIProvider(strings.ToLower(strings.TrimSpace(string(b)))); v {
	case AIProviderAnthropic, AIProviderOllama:
		*p = v
		return nil
	}
	return fmt.Errorf("invalid %s %q (expected %s or %s)", envVarAIProvider, b, AIProviderAnthropic, AIProviderOllama)
}

type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode
	// StaticDir holds the browser client. Empty disables static serving.
	StaticDir string

	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SignalingSendQueueSize        int

	AI AIConfig

	ICEServers   []webrtc.ICEServer
	iceConfigErr error
}

type AIConfig struct {
	Provider    AIProvider
	APIKey      string
	AgentName   string
	Personality string
	// Model overrides the provider default when set.
	Model          string
	MaxTokens      int
	RequestTimeout time.Duration

	OllamaEndpoint string
	OllamaModel    string
}

// ICEConfigError reports an invalid ICE server configuration. It does not
// fail Load: the relay still serves signaling, but /webrtc/ice and /readyz
// report the error.
func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

// Load reads DefaultEnvFile (if present), then the environment, then args.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", DefaultEnvFile, err)
	}
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	env := envReader{lookup: lookup}

	cfg := Config{
		ListenAddr:      env.str(envVarListenAddr, DefaultListenAddr),
		StaticDir:       env.str(envVarStaticDir, DefaultStaticDir),
		ShutdownTimeout: env.duration(envVarShutdownTimeout, DefaultShutdown),
		Mode:            DefaultMode,

		SignalingWSIdleTimeout:        env.duration(envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout),
		SignalingWSPingInterval:       env.duration(envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval),
		MaxSignalingMessageBytes:      env.integer64(envVarMaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes),
		MaxSignalingMessagesPerSecond: env.integer(envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond),
		SignalingSendQueueSize:        env.integer(envVarSignalingSendQueueSize, DefaultSignalingSendQueueSize),

		AI: AIConfig{
			Provider:       DefaultAIProvider,
			APIKey:         env.str(envVarAnthropicAPIKey, ""),
			AgentName:      env.str(envVarAIAgentName, DefaultAIAgentName),
			Personality:    env.str(envVarAIAgentPersonality, DefaultAIAgentPersonality),
			Model:          env.str(envVarAIModel, ""),
			MaxTokens:      env.integer(envVarAIMaxTokens, DefaultAIMaxTokens),
			RequestTimeout: env.duration(envVarAIRequestTimeout, DefaultAIRequestTimeout),
			OllamaEndpoint: env.str(envVarOllamaEndpoint, DefaultOllamaEndpoint),
			OllamaModel:    env.str(envVarOllamaModel, DefaultOllamaModel),
		},
	}
	env.text(envVarMode, &cfg.Mode)
	env.text(envVarAIProvider, &cfg.AI.Provider)

	// Log format and level follow the mode unless given explicitly.
	formatFromEnv := env.text(envVarLogFormat, &cfg.LogFormat)
	if !formatFromEnv {
		cfg.LogFormat = cfg.Mode.logFormat()
	}
	levelFromEnv := env.text(envVarLogLevel, &cfg.LogLevel)
	if !levelFromEnv {
		cfg.LogLevel = cfg.Mode.logLevel()
	}

	origins := env.str(envVarAllowedOrigins, "")
	ice := iceInputs{
		JSON:           env.str(envICEServersJSON, ""),
		STUNURLs:       env.str(envStunURLs, ""),
		TURNURLs:       env.str(envTurnURLs, ""),
		TURNUsername:   env.str(envTurnUsername, ""),
		TURNCredential: env.str(envTurnCredential, ""),
	}

	if env.err != nil {
		return Config{}, env.err
	}

	fs := flag.NewFlagSet("callroom-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "HTTP listen address (host:port)")
	fs.StringVar(&origins, "allowed-origins", origins, "Comma-separated browser origins allowed to connect (env "+envVarAllowedOrigins+")")
	fs.TextVar(&cfg.Mode, "mode", cfg.Mode, "Run mode: dev or prod")
	fs.TextVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")
	fs.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "Directory with the browser client, served at / (env "+envVarStaticDir+")")

	fs.DurationVar(&cfg.SignalingWSIdleTimeout, "signaling-ws-idle-timeout", cfg.SignalingWSIdleTimeout, "Close signaling WebSockets idle for this long, 0 disables (env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&cfg.SignalingWSPingInterval, "signaling-ws-ping-interval", cfg.SignalingWSPingInterval, "Signaling WebSocket ping interval (env "+envVarSignalingWSPingInterval+")")
	fs.Int64Var(&cfg.MaxSignalingMessageBytes, "max-signaling-message-bytes", cfg.MaxSignalingMessageBytes, "Max inbound signaling frame size (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&cfg.MaxSignalingMessagesPerSecond, "max-signaling-messages-per-second", cfg.MaxSignalingMessagesPerSecond, "Max inbound signaling frames/sec per connection, 0 = unlimited (env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.IntVar(&cfg.SignalingSendQueueSize, "signaling-send-queue-size", cfg.SignalingSendQueueSize, "Outbound frames buffered per connection (env "+envVarSignalingSendQueueSize+")")

	fs.TextVar(&cfg.AI.Provider, "ai-provider", cfg.AI.Provider, "AI provider: anthropic or ollama (env "+envVarAIProvider+")")
	fs.StringVar(&cfg.AI.Model, "ai-model", cfg.AI.Model, "AI model override (env "+envVarAIModel+")")
	fs.StringVar(&cfg.AI.AgentName, "ai-agent-name", cfg.AI.AgentName, "AI agent display name (env "+envVarAIAgentName+")")
	fs.StringVar(&cfg.AI.Personality, "ai-agent-personality", cfg.AI.Personality, "AI agent personality (env "+envVarAIAgentPersonality+")")
	fs.IntVar(&cfg.AI.MaxTokens, "ai-max-tokens", cfg.AI.MaxTokens, "Max tokens per AI reply (env "+envVarAIMaxTokens+")")
	fs.DurationVar(&cfg.AI.RequestTimeout, "ai-request-timeout", cfg.AI.RequestTimeout, "Timeout for one AI request (env "+envVarAIRequestTimeout+")")
	fs.StringVar(&cfg.AI.OllamaEndpoint, "ollama-endpoint", cfg.AI.OllamaEndpoint, "Ollama base URL (env "+envVarOllamaEndpoint+")")
	fs.StringVar(&cfg.AI.OllamaModel, "ollama-model", cfg.AI.OllamaModel, "Ollama model (env "+envVarOllamaModel+")")

	fs.StringVar(&ice.JSON, "ice-servers-json", ice.JSON, "ICE servers as JSON (env "+envICEServersJSON+")")
	fs.StringVar(&ice.STUNURLs, "stun-urls", ice.STUNURLs, "Comma-separated STUN URLs (env "+envStunURLs+")")
	fs.StringVar(&ice.TURNURLs, "turn-urls", ice.TURNURLs, "Comma-separated TURN URLs (env "+envTurnURLs+")")
	fs.StringVar(&ice.TURNUsername, "turn-username", ice.TURNUsername, "TURN username (env "+envTurnUsername+")")
	fs.StringVar(&ice.TURNCredential, "turn-credential", ice.TURNCredential, "TURN credential (env "+envTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if !formatFromEnv && !explicit["log-format"] {
		cfg.LogFormat = cfg.Mode.logFormat()
	}
	if !levelFromEnv && !explicit["log-level"] {
		cfg.LogLevel = cfg.Mode.logLevel()
	}

	var err error
	if cfg.AllowedOrigins, err = parseAllowedOrigins(origins); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envVarAllowedOrigins, err)
	}
	cfg.StaticDir = strings.TrimSpace(cfg.StaticDir)
	cfg.AI.APIKey = strings.TrimSpace(cfg.AI.APIKey)
	cfg.AI.Model = strings.TrimSpace(cfg.AI.Model)
	cfg.AI.OllamaModel = strings.TrimSpace(cfg.AI.OllamaModel)
	cfg.AI.OllamaEndpoint = strings.TrimRight(strings.TrimSpace(cfg.AI.OllamaEndpoint), "/")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if cfg.ICEServers, err = ice.servers(); err != nil {
		cfg.ICEServers, cfg.iceConfigErr = nil, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%s must be > 0", envVarShutdownTimeout)
	case c.SignalingWSIdleTimeout < 0 || c.SignalingWSPingInterval < 0:
		return fmt.Errorf("%s and %s must be >= 0", envVarSignalingWSIdleTimeout, envVarSignalingWSPingInterval)
	case c.SignalingWSIdleTimeout > 0 && c.SignalingWSPingInterval >= c.SignalingWSIdleTimeout:
		return fmt.Errorf("%s (%s) must be less than %s (%s)",
			envVarSignalingWSPingInterval, c.SignalingWSPingInterval, envVarSignalingWSIdleTimeout, c.SignalingWSIdleTimeout)
	case c.MaxSignalingMessageBytes <= 0:
		return fmt.Errorf("%s must be > 0", envVarMaxSignalingMessageBytes)
	case c.SignalingSendQueueSize <= 0:
		return fmt.Errorf("%s must be > 0", envVarSignalingSendQueueSize)
	case c.AI.MaxTokens <= 0:
		return fmt.Errorf("%s must be > 0", envVarAIMaxTokens)
	case c.AI.RequestTimeout <= 0:
		return fmt.Errorf("%s must be > 0", envVarAIRequestTimeout)
	}
	return nil
}

// NewLogger builds the process logger on stdout.
func NewLogger(cfg Config) (*slog.Logger, error) {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	switch cfg.LogFormat {
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case LogFormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
}

// envReader reads typed values from the environment. Blank values count as
// unset. The first parse failure sticks in err and later reads return their
// fallbacks.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) raw(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(key, raw string, err error) {
	e.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
}

func (e *envReader) str(key, fallback string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return fallback
}

func (e *envReader) integer(key string, fallback int) int {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *envReader) integer64(key string, fallback int64) int64 {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return d
}

// text decodes key into dst and reports whether it was set and valid.
func (e *envReader) text(key string, dst encoding.TextUnmarshaler) bool {
	v, ok := e.raw(key)
	if !ok {
		return false
	}
	if err := dst.UnmarshalText([]byte(v)); err != nil {
		e.fail(key, v, err)
		return false
	}
	return true
}

// parseAllowedOrigins canonicalizes a comma-separated origin list. "*" and
// "null" pass through.
func parseAllowedOrigins(raw string) ([]string, error) {
	var out []string
	for _, entry := range splitList(raw) {
		if entry != "*" {
			o, ok := origin.Parse(entry)
			if !ok {
				return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
			}
			entry = o.String()
		}
		out = append(out, entry)
	}
	return out, nil
}
