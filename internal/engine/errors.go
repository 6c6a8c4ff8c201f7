package engine

import "strings"

// ErrorClass categorizes LLM failures for logging and user feedback.
type ErrorClass string

const (
	ErrorClassAuth      ErrorClass = "AUTH"
	ErrorClassRateLimit ErrorClass = "RATE_LIMIT"
	ErrorClassTimeout   ErrorClass = "TIMEOUT"
	ErrorClassOverflow  ErrorClass = "CONTEXT_OVERFLOW"
	ErrorClassUnknown   ErrorClass = "UNKNOWN"
)

// ClassifyError inspects an LLM error's message for known patterns and
// returns the most specific class that matches.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "invalid key") {
		return ErrorClassAuth
	}
	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "too many requests") {
		return ErrorClassRateLimit
	}
	if strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "timeout") {
		return ErrorClassTimeout
	}
	if strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context window") ||
		strings.Contains(msg, "maximum context") ||
		strings.Contains(msg, "too many tokens") {
		return ErrorClassOverflow
	}
	return ErrorClassUnknown
}

// UserMessage maps an error class to the line shown in chat.
func (c ErrorClass) UserMessage() string {
	switch c {
	case ErrorClassAuth:
		return "LLM error: the provider rejected the API key. Check your configuration."
	case ErrorClassRateLimit:
		return "LLM error: rate limited by the provider. Try again in a moment."
	case ErrorClassTimeout:
		return "LLM error: the request timed out. Try again."
	case ErrorClassOverflow:
		return "LLM error: the conversation is too long for the model. Start a new session with /newsession."
	default:
		return "LLM error: something went wrong. Try again."
	}
}
