// Package config loads bot configuration from config.yaml under the
// chatclaw home directory, with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/chatclaw/internal/otel"
)

// ProviderConfig holds per-provider settings for the LLM client.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LLMConfig selects the language-model provider and model.
type LLMConfig struct {
	// Provider names the active LLM provider: "anthropic", "google", "openai".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// TelegramConfig holds the bot token and the static user allow-list.
type TelegramConfig struct {
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
}

// ExecutorConfig bounds shell command execution.
type ExecutorConfig struct {
	// TimeoutSeconds is the wall clock for interactive and parallel runs.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// BackgroundTimeoutSeconds is the extended wall clock for /bg runs.
	BackgroundTimeoutSeconds int `yaml:"background_timeout_seconds"`
}

// TasksConfig controls background task bookkeeping.
type TasksConfig struct {
	// RetentionMinutes evicts terminal tasks older than this via the janitor.
	// 0 keeps tasks for the process lifetime (source-compatible default).
	RetentionMinutes int `yaml:"retention_minutes"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	Telegram TelegramConfig `yaml:"telegram"`
	LLM      LLMConfig      `yaml:"llm"`
	Executor ExecutorConfig `yaml:"executor"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Otel     otel.Config    `yaml:"otel"`

	// HistoryWindow is the number of recent messages handed to the model.
	HistoryWindow int `yaml:"history_window"`

	// MaxStateBytes caps the serialized session state document.
	MaxStateBytes int `yaml:"max_state_bytes"`

	// Providers holds per-provider API keys and endpoints.
	Providers map[string]ProviderConfig `yaml:"providers"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		LLM: LLMConfig{
			Provider: "anthropic",
		},
		Executor: ExecutorConfig{
			TimeoutSeconds:           60,
			BackgroundTimeoutSeconds: 300,
		},
		HistoryWindow: 20,
		MaxStateBytes: 64 * 1024,
	}
}

// HomeDir returns the chatclaw data directory (CHATCLAW_HOME override).
func HomeDir() string {
	if override := os.Getenv("CHATCLAW_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".chatclaw")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create chatclaw home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.Executor.TimeoutSeconds <= 0 {
		cfg.Executor.TimeoutSeconds = 60
	}
	if cfg.Executor.BackgroundTimeoutSeconds <= 0 {
		cfg.Executor.BackgroundTimeoutSeconds = 300
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	if cfg.MaxStateBytes <= 0 {
		cfg.MaxStateBytes = 64 * 1024
	}
	if cfg.Tasks.RetentionMinutes < 0 {
		cfg.Tasks.RetentionMinutes = 0
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("BOT_TOKEN"); raw != "" && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("CHATCLAW_ALLOWED_USERS"); raw != "" {
		if ids := parseAllowedUsers(raw); len(ids) > 0 {
			cfg.Telegram.AllowedIDs = ids
		}
	}
	if raw := os.Getenv("CHATCLAW_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("CHATCLAW_LLM_PROVIDER"); raw != "" {
		cfg.LLM.Provider = raw
	}
	if raw := os.Getenv("CHATCLAW_LLM_MODEL"); raw != "" {
		cfg.LLM.Model = raw
	}
	if raw := os.Getenv("CHATCLAW_TASK_RETENTION_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Tasks.RetentionMinutes = v
		}
	}
}

// parseAllowedUsers parses a comma-separated id list; malformed entries are skipped.
func parseAllowedUsers(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// LLMProviderAPIKey returns the API key for the given provider.
// Env vars take precedence: ANTHROPIC_API_KEY, GEMINI_API_KEY, OPENAI_API_KEY.
func (c Config) LLMProviderAPIKey(provider string) string {
	envMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"google":    "GEMINI_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}
	if envVar, ok := envMap[provider]; ok {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	if c.Providers != nil {
		if p, ok := c.Providers[provider]; ok {
			return p.APIKey
		}
	}
	return ""
}
