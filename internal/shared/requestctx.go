// Package shared holds request-scoped context helpers and redaction
// utilities used across the bot. Diagnostic identifiers (request, user,
// chat, handler) travel on the context explicitly so concurrent update
// handlers never leak each other's fields into logs.
package shared

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}
type userIDKey struct{}
type chatIDKey struct{}
type handlerKey struct{}

// WithRequestID attaches a request_id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID extracts request_id from context. Returns "-" if absent.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewRequestID generates a new request_id.
func NewRequestID() string {
	return uuid.NewString()
}

// WithUserID attaches the Telegram user id to the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID extracts the user id from context. Returns 0 if absent.
func UserID(ctx context.Context) int64 {
	if v, ok := ctx.Value(userIDKey{}).(int64); ok {
		return v
	}
	return 0
}

// WithChatID attaches the Telegram chat id to the context.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

// ChatID extracts the chat id from context. Returns 0 if absent.
func ChatID(ctx context.Context) int64 {
	if v, ok := ctx.Value(chatIDKey{}).(int64); ok {
		return v
	}
	return 0
}

// WithHandler attaches the handler name to the context.
func WithHandler(ctx context.Context, handler string) context.Context {
	return context.WithValue(ctx, handlerKey{}, handler)
}

// Handler extracts the handler name from context. Returns "-" if absent.
func Handler(ctx context.Context) string {
	if v, ok := ctx.Value(handlerKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}
