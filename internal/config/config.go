package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the agendia service.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Server    ServerConfig    `json:"server"`
	Store     StoreConfig     `json:"store"`
	Provider  ProviderConfig  `json:"provider"`
	TTS       TTSConfig       `json:"tts"`
	Gateway   GatewayConfig   `json:"gateway"`
	Agent     AgentConfig     `json:"agent"`
	Notify    NotifyConfig    `json:"notify"`
	Events    EventsConfig    `json:"events"`
	Retention RetentionConfig `json:"retention"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

// ProviderConfig configures the OpenAI-compatible chat-completions client.
type ProviderConfig struct {
	APIBase        string  `json:"apiBase"`
	APIKey         string  `json:"apiKey,omitempty"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"maxTokens,omitempty"`
	TimeoutSeconds int     `json:"timeoutSeconds"`
}

// TTSConfig configures optional voice-note synthesis for short replies.
type TTSConfig struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"apiKey,omitempty"` // falls back to provider.apiKey
	Model    string `json:"model"`
	Voice    string `json:"voice"`
	MaxChars int    `json:"maxChars"` // replies at or above this length stay text
}

// GatewayConfig holds the bootstrap values used when a webhook arrives for
// an instance that has no channel config yet. The per-instance config in the
// store is authoritative afterwards; the dashboard mutates it there.
type GatewayConfig struct {
	URL             string `json:"url"`
	APIKey          string `json:"apiKey,omitempty"`
	InstanceName    string `json:"instanceName"`
	HumanAgentPhone string `json:"humanAgentPhone,omitempty"`
	IgnoreGroups    bool   `json:"ignoreGroups"`
}

type AgentConfig struct {
	PersonaPath       string `json:"personaPath,omitempty"` // optional persona.yaml override
	HistoryLimit      int    `json:"historyLimit"`
	MaxToolIterations int    `json:"maxToolIterations"`
}

// NotifyConfig configures the optional operator alert channel.
type NotifyConfig struct {
	Telegram TelegramNotifyConfig `json:"telegram"`
}

type TelegramNotifyConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chatId,omitempty"`
}

// EventsConfig configures the optional AMQP lead-event publisher.
type EventsConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"`
	Exchange string `json:"exchange"`
}

type RetentionConfig struct {
	Enabled  bool   `json:"enabled"`
	Days     int    `json:"days"`
	Schedule string `json:"schedule"` // cron expression
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.agendia).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agendia"
	}
	return filepath.Join(home, ".agendia")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Agent.PersonaPath = ExpandPath(cfg.Agent.PersonaPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Provider.TimeoutSeconds < 1 {
		errs = append(errs, "provider.timeoutSeconds must be >= 1")
	}
	if cfg.Agent.HistoryLimit < 1 {
		errs = append(errs, "agent.historyLimit must be >= 1")
	}
	if cfg.Agent.MaxToolIterations < 1 {
		errs = append(errs, "agent.maxToolIterations must be >= 1")
	}
	if cfg.TTS.MaxChars < 0 {
		errs = append(errs, "tts.maxChars must be >= 0")
	}
	if cfg.Retention.Enabled && cfg.Retention.Days < 1 {
		errs = append(errs, "retention.days must be >= 1 when retention is enabled")
	}
	if cfg.Events.Enabled && cfg.Events.URL == "" {
		errs = append(errs, "events.url is required when events are enabled")
	}
	if cfg.Notify.Telegram.Enabled && cfg.Notify.Telegram.Token == "" {
		errs = append(errs, "notify.telegram.token is required when the telegram notifier is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
