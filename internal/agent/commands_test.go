package agent

import "testing"

func TestParseCommandLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"single", "ls -la", []string{"ls -la"}},
		{"multiple", "df -h\nuptime\n", []string{"df -h", "uptime"}},
		{"blank lines dropped", "echo a\n\n\necho b", []string{"echo a", "echo b"}},
		{"refused", "REFUSE", nil},
		{"refused with whitespace", "  REFUSE  ", nil},
		{"refusal line wins", "ls\nREFUSE", nil},
		{"empty", "   ", nil},
		{"code fences stripped", "```sh\ngit status\n```", []string{"git status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCommandLines(tt.content)
			if len(got) != len(tt.want) {
				t.Fatalf("parseCommandLines(%q) = %v, want %v", tt.content, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("command[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestQualifiedModelName(t *testing.T) {
	if got := qualifiedModelName("anthropic", "claude-sonnet-4-20250514"); got != "anthropic/claude-sonnet-4-20250514" {
		t.Errorf("anthropic name = %q", got)
	}
	if got := qualifiedModelName("google", "gemini-2.0-flash"); got != "googleai/gemini-2.0-flash" {
		t.Errorf("google name = %q", got)
	}
	if got := qualifiedModelName("openai_compatible", "llama-3.3-70b"); got != "llama-3.3-70b" {
		t.Errorf("compatible name = %q", got)
	}
}
