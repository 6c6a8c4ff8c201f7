package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// responseSchema is the contract the model is asked to honor: a reply
// string plus an optional state object.
const responseSchema = `{
	"type": "object",
	"required": ["reply"],
	"properties": {
		"reply": {"type": "string"},
		"state": {"type": "object"}
	}
}`

var turnSchema = mustCompileSchema(responseSchema)

func mustCompileSchema(schemaJSON string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("unmarshal response schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("response.json", doc); err != nil {
		panic(fmt.Sprintf("add response schema: %v", err))
	}
	schema, err := c.Compile("response.json")
	if err != nil {
		panic(fmt.Sprintf("compile response schema: %v", err))
	}
	return schema
}

// parseTurn extracts the structured {reply, state} object from raw model
// output. Models that ignore the contract get their whole text treated
// as the reply, with ok=false so the caller keeps the previous state.
func parseTurn(text string) (reply string, state map[string]any, ok bool) {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return strings.TrimSpace(text), nil, false
	}

	// jsonschema wants json.Number values, not float64.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(jsonStr))
	if err != nil {
		return strings.TrimSpace(text), nil, false
	}
	if err := turnSchema.Validate(doc); err != nil {
		return strings.TrimSpace(text), nil, false
	}

	var parsed struct {
		Reply string         `json:"reply"`
		State map[string]any `json:"state"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return strings.TrimSpace(text), nil, false
	}
	if parsed.State == nil {
		parsed.State = map[string]any{}
	}
	return parsed.Reply, parsed.State, true
}

// extractJSON finds a JSON object in model output: a ```json fence
// first, then the first balanced {...} in the raw text.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if start < len(text) && text[start] == '\n' {
			start++
		}
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if isJSON(candidate) {
				return candidate
			}
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			candidate := extractBalanced(text[i:])
			if candidate != "" && isJSON(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func isJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}

// extractBalanced returns the balanced {...} prefix of s, honoring
// strings and escapes, or "" when the braces never close.
func extractBalanced(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[:i+1]
				}
			}
		}
	}
	return ""
}
