package agent

import "testing"

func TestParseTurnPlainJSON(t *testing.T) {
	reply, state, ok := parseTurn(`{"reply": "hello", "state": {"topic": "greetings"}}`)
	if !ok {
		t.Fatal("parseTurn rejected valid object")
	}
	if reply != "hello" {
		t.Errorf("reply = %q", reply)
	}
	if state["topic"] != "greetings" {
		t.Errorf("state = %v", state)
	}
}

func TestParseTurnFencedJSON(t *testing.T) {
	text := "Here you go:\n```json\n{\"reply\": \"done\", \"state\": {}}\n```"
	reply, state, ok := parseTurn(text)
	if !ok {
		t.Fatal("parseTurn rejected fenced object")
	}
	if reply != "done" || len(state) != 0 {
		t.Errorf("reply=%q state=%v", reply, state)
	}
}

func TestParseTurnEmbeddedJSON(t *testing.T) {
	text := `Sure! {"reply": "embedded {braces} inside", "state": {"n": 1}} hope that helps`
	reply, _, ok := parseTurn(text)
	if !ok {
		t.Fatal("parseTurn rejected embedded object")
	}
	if reply != "embedded {braces} inside" {
		t.Errorf("reply = %q", reply)
	}
}

func TestParseTurnMissingState(t *testing.T) {
	reply, state, ok := parseTurn(`{"reply": "stateless"}`)
	if !ok {
		t.Fatal("parseTurn rejected object without state")
	}
	if reply != "stateless" {
		t.Errorf("reply = %q", reply)
	}
	if state == nil {
		t.Error("state = nil, want empty map")
	}
}

func TestParseTurnRawTextFallback(t *testing.T) {
	reply, state, ok := parseTurn("  just prose, no JSON at all  ")
	if ok {
		t.Error("parseTurn reported structured for prose")
	}
	if reply != "just prose, no JSON at all" {
		t.Errorf("reply = %q", reply)
	}
	if state != nil {
		t.Errorf("state = %v, want nil", state)
	}
}

func TestParseTurnSchemaViolation(t *testing.T) {
	// reply must be a string.
	_, _, ok := parseTurn(`{"reply": 42, "state": {}}`)
	if ok {
		t.Error("parseTurn accepted non-string reply")
	}
}

func TestExtractBalancedUnclosed(t *testing.T) {
	if got := extractBalanced(`{"open": "forever`); got != "" {
		t.Errorf("extractBalanced = %q, want empty", got)
	}
}
