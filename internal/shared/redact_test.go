package shared_test

import (
	"strings"
	"testing"

	"github.com/basket/chatclaw/internal/shared"
)

func TestRedactAPIKeyAssignment(t *testing.T) {
	in := `api_key=sk_live_abcdef0123456789abcdef`
	out := shared.Redact(in)
	if strings.Contains(out, "sk_live_abcdef0123456789abcdef") {
		t.Fatalf("secret survived redaction: %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected placeholder in %q", out)
	}
}

func TestRedactBotToken(t *testing.T) {
	in := "sending with token 123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw1"
	out := shared.Redact(in)
	if strings.Contains(out, "AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw1") {
		t.Fatalf("bot token survived redaction: %q", out)
	}
}

func TestRedactLeavesPlainTextAlone(t *testing.T) {
	in := "ran ls -la in /tmp, exit 0"
	if out := shared.Redact(in); out != in {
		t.Fatalf("plain text mutated: %q", out)
	}
}

func TestRedactEnvValue(t *testing.T) {
	if got := shared.RedactEnvValue("TELEGRAM_TOKEN", "abc"); got != "[REDACTED]" {
		t.Fatalf("expected redacted token value, got %q", got)
	}
	if got := shared.RedactEnvValue("LOG_LEVEL", "debug"); got != "debug" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
