package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHATCLAW_HOME", t.TempDir())
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("CHATCLAW_ALLOWED_USERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Executor.TimeoutSeconds != 60 {
		t.Fatalf("expected 60s interactive timeout, got %d", cfg.Executor.TimeoutSeconds)
	}
	if cfg.Executor.BackgroundTimeoutSeconds != 300 {
		t.Fatalf("expected 300s background timeout, got %d", cfg.Executor.BackgroundTimeoutSeconds)
	}
	if cfg.HistoryWindow != 20 {
		t.Fatalf("expected history window 20, got %d", cfg.HistoryWindow)
	}
	if cfg.Tasks.RetentionMinutes != 0 {
		t.Fatalf("expected retention disabled by default, got %d", cfg.Tasks.RetentionMinutes)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected anthropic default provider, got %q", cfg.LLM.Provider)
	}
}

func TestLoadReadsYAMLAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CHATCLAW_HOME", home)

	yamlBody := `
log_level: debug
telegram:
  token: from-yaml
  allowed_ids: [1, 2]
executor:
  timeout_seconds: 10
llm:
  provider: google
  model: gemini-2.5-flash
`
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("CHATCLAW_ALLOWED_USERS", "7, 8,junk,9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level: got %q", cfg.LogLevel)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("env must override yaml token, got %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AllowedIDs) != 3 || cfg.Telegram.AllowedIDs[2] != 9 {
		t.Fatalf("allow list: got %v", cfg.Telegram.AllowedIDs)
	}
	if cfg.Executor.TimeoutSeconds != 10 {
		t.Fatalf("executor timeout: got %d", cfg.Executor.TimeoutSeconds)
	}
	if cfg.LLM.Provider != "google" || cfg.LLM.Model != "gemini-2.5-flash" {
		t.Fatalf("llm config: got %+v", cfg.LLM)
	}
}

func TestLLMProviderAPIKeyPrecedence(t *testing.T) {
	cfg := Config{Providers: map[string]ProviderConfig{
		"anthropic": {APIKey: "from-config"},
	}}

	t.Setenv("ANTHROPIC_API_KEY", "")
	if got := cfg.LLMProviderAPIKey("anthropic"); got != "from-config" {
		t.Fatalf("expected config key, got %q", got)
	}

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	if got := cfg.LLMProviderAPIKey("anthropic"); got != "from-env" {
		t.Fatalf("expected env key, got %q", got)
	}

	if got := cfg.LLMProviderAPIKey("unknown"); got != "" {
		t.Fatalf("expected empty for unknown provider, got %q", got)
	}
}

func TestParseAllowedUsersSkipsMalformed(t *testing.T) {
	got := parseAllowedUsers("100,, nope ,200")
	if len(got) != 2 || got[0] != 100 || got[1] != 200 {
		t.Fatalf("got %v", got)
	}
}
