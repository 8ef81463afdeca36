package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// DefaultUpstreamURL is the hosted inference endpoint the relay forwards to.
const DefaultUpstreamURL = "https://chat.onedevai.workers.dev/"

// Upstream modes.
const (
	UpstreamModeHTTP = "http"
	UpstreamModeArk  = "ark"
)

// Relay modes.
const (
	RelayModeNormalize   = "normalize"
	RelayModePassthrough = "passthrough"
)

// Config aggregates the chat server configuration.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Upstream UpstreamConfig
	Relay    RelayConfig
	AI       AIConfig
}

// Load reads the server configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	if upstream.Mode == UpstreamModeArk && !ai.Enabled() {
		return nil, fmt.Errorf("UPSTREAM_MODE=ark requires ARK_MODEL and ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	return &Config{
		Server:   server,
		Log:      loadLogConfig(),
		Upstream: upstream,
		Relay:    relay,
		AI:       ai,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig resolves the listen address from PORT and the CORS origins.
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as well.
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

// UpstreamConfig describes where prompts are sent.
type UpstreamConfig struct {
	URL          string
	Mode         string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// loadUpstreamConfig reads UPSTREAM_URL, UPSTREAM_MODE and the outbound limits.
func loadUpstreamConfig() (UpstreamConfig, error) {
	mode := strings.ToLower(getEnvOrDefault("UPSTREAM_MODE", UpstreamModeHTTP))
	if mode != UpstreamModeHTTP && mode != UpstreamModeArk {
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_MODE value %q", mode)
	}

	timeout, err := parseDurationEnv("UPSTREAM_TIMEOUT", 0)
	if err != nil {
		return UpstreamConfig{}, err
	}

	maxBody := int64(1 << 20)
	if override, err := parseOptionalIntEnv("UPSTREAM_MAX_BODY_BYTES"); err != nil {
		return UpstreamConfig{}, err
	} else if override != nil && *override > 0 {
		maxBody = int64(*override)
	}

	return UpstreamConfig{
		URL:          getEnvOrDefault("UPSTREAM_URL", DefaultUpstreamURL),
		Mode:         mode,
		Timeout:      timeout,
		MaxBodyBytes: maxBody,
	}, nil
}

// RelayConfig controls the GET /api/chat endpoint.
type RelayConfig struct {
	Mode      string
	RateLimit float64
	RateBurst int
}

// loadRelayConfig reads the response mode and per-client rate limit of the relay.
func loadRelayConfig() (RelayConfig, error) {
	mode := strings.ToLower(getEnvOrDefault("RELAY_MODE", RelayModeNormalize))
	if mode != RelayModeNormalize && mode != RelayModePassthrough {
		return RelayConfig{}, fmt.Errorf("invalid RELAY_MODE value %q", mode)
	}

	limit := 0.0
	if parsed, err := parseOptionalFloatEnv("RELAY_RATE_LIMIT"); err != nil {
		return RelayConfig{}, err
	} else if parsed != nil && *parsed > 0 {
		limit = *parsed
	}

	burst := 5
	if parsed, err := parseOptionalIntEnv("RELAY_RATE_BURST"); err != nil {
		return RelayConfig{}, err
	} else if parsed != nil && *parsed > 0 {
		burst = *parsed
	}

	return RelayConfig{Mode: mode, RateLimit: limit, RateBurst: burst}, nil
}

// AIConfig describes the optional Ark chat model upstream.
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	SystemPrompt string
}

// Enabled reports whether a model and credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_MODEL with ARK_API_KEY or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// loadAIConfig reads the Ark model, credentials and sampling overrides.
func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		SystemPrompt: getEnvOrDefault("ARK_SYSTEM_PROMPT", "You are a helpful assistant. Answer concisely."),
	}, nil
}

// ClientConfig holds defaults for the terminal client. Flags override them.
type ClientConfig struct {
	Endpoint string
	RelayURL string
	LogFile  string
	Timeout  time.Duration
}

// LoadClient reads the terminal client defaults from the environment.
func LoadClient() (ClientConfig, error) {
	timeout, err := parseDurationEnv("CHAT_TIMEOUT", 0)
	if err != nil {
		return ClientConfig{}, err
	}

	return ClientConfig{
		Endpoint: getEnvOrDefault("CHAT_ENDPOINT", DefaultUpstreamURL),
		RelayURL: strings.TrimSpace(os.Getenv("CHAT_RELAY_URL")),
		LogFile:  strings.TrimSpace(os.Getenv("CHAT_LOG_FILE")),
		Timeout:  timeout,
	}, nil
}

// Target returns the URL the client should query; a relay wins over the direct origin.
func (c ClientConfig) Target() string {
	if c.RelayURL != "" {
		return c.RelayURL
	}
	return c.Endpoint
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma separated value, dropping empty items.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseDurationEnv accepts Go durations or a bare number of seconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// Bare integers are seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
