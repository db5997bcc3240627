// Package config provides configuration management for wavecoord.
// It supports loading configuration from environment variables, config
// files, and defaults, via spf13/viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kandev/wavecoord/internal/common/logger"
)

// Config holds all configuration sections for wavecoord.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Events      EventsConfig      `mapstructure:"events"`
	Logging     logger.Config     `mapstructure:"logging"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	MCP         MCPConfig         `mapstructure:"mcp"`
}

// ProvidersConfig selects and configures the backends the Provider Router
// dispatches agent turns to. Either section may be left zero-valued; New*
// adapters are only wired into cmd/wavecoord's router when an APIKey is set.
type ProvidersConfig struct {
	Anthropic ProviderBackendConfig `mapstructure:"anthropic"`
	OpenAI    ProviderBackendConfig `mapstructure:"openai"`
}

// ProviderBackendConfig configures a single LLM backend.
type ProviderBackendConfig struct {
	APIKey    string `mapstructure:"apiKey"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"baseUrl"`
	MaxTokens int64  `mapstructure:"maxTokens"`
}

// MCPConfig configures the optional MCP tool-surface exposure.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ServerConfig holds HTTP server configuration for the optional gin API.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

// DatabaseConfig holds connection configuration for the optional Postgres store.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "memory" or "postgres"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
}

// EventsConfig holds event bus configuration.
type EventsConfig struct {
	// Backend selects the EventBus implementation: "memory" (default) or "nats".
	Backend string `mapstructure:"backend"`
	// Buffer is the bounded channel capacity for the in-memory bus.
	Buffer int `mapstructure:"buffer"`
	// NATSURL is the server URL used when Backend == "nats".
	NATSURL string `mapstructure:"natsUrl"`
}

// CoordinatorConfig holds coordination-specific tunables (spec §6).
type CoordinatorConfig struct {
	MaxWaves                 int           `mapstructure:"maxWaves"`
	MaxIterationsRouta       int           `mapstructure:"maxIterationsRouta"`
	MaxIterationsCrafter     int           `mapstructure:"maxIterationsCrafter"`
	MaxIterationsGate        int           `mapstructure:"maxIterationsGate"`
	ProviderTimeout          time.Duration `mapstructure:"providerTimeout"`
	ConversationTailMessages int           `mapstructure:"conversationTailMessages"`
}

// Default returns the zero-config defaults per spec §6.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8090, ReadTimeout: 30, WriteTimeout: 30},
		Database: DatabaseConfig{
			Driver: "memory",
		},
		Events: EventsConfig{
			Backend: "memory",
			Buffer:  256,
		},
		Logging: logger.Config{Level: "info", Format: "console", OutputPath: "stdout"},
		Coordinator: CoordinatorConfig{
			MaxWaves:                 5,
			MaxIterationsRouta:       20,
			MaxIterationsCrafter:     20,
			MaxIterationsGate:        30,
			ProviderTimeout:          300 * time.Second,
			ConversationTailMessages: 20,
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderBackendConfig{Model: "claude-3-5-sonnet-latest", MaxTokens: 4096},
			OpenAI:    ProviderBackendConfig{Model: "gpt-4o"},
		},
		MCP: MCPConfig{Enabled: false, Port: 9191},
	}
}

// Load starts from Default() and overlays the file at configPath when
// configPath is non-empty; a path that cannot be read is returned as an
// error. Environment variables prefixed WAVECOORD_ (nested keys joined with
// "_") override only keys that the file also sets; with no file, the
// environment is not consulted.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("WAVECOORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return cfg, err
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
