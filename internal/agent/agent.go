// Package agent is the LLM layer. It turns a session's history plus the
// incoming message into a structured reply and carried-forward state,
// and converts natural-language requests into shell command lists.
package agent

import (
	"time"

	"github.com/basket/chatclaw/internal/persistence"
)

// TurnRequest is one conversational turn's input.
type TurnRequest struct {
	SessionName string
	State       map[string]any
	History     []persistence.Message
	UserMessage string
}

// TurnResponse is the agent's structured output for a turn. State is the
// full replacement state document to persist.
type TurnResponse struct {
	Reply string
	State map[string]any
	// Model call latency, for the caller's metrics.
	Duration time.Duration
}

// Keep the prompt stable and terse; the structured contract lives in
// responseSchema.
const systemPrompt = `You are a helpful assistant in a Telegram chat.
Answer clearly and concisely.
If the user asks you to run shell commands, tell them to prefix the message with 'run:' and describe what will happen.
Respond with a JSON object: {"reply": "<your answer>", "state": {<facts worth carrying to the next turn>}}.
Carry forward everything from the current state that is still relevant.`
