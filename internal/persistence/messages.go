package persistence

import (
	"context"
	"fmt"
	"time"
)

// Message is one stored conversation turn.
type Message struct {
	ID        int64
	SessionID int64
	UserID    int64
	ChatID    int64
	Role      string
	Content   string
	Timestamp time.Time
}

// SaveMessage appends a message to the session and bumps the session's
// updated_at. Role must be RoleUser or RoleAssistant.
func (s *Store) SaveMessage(ctx context.Context, sessionID, userID, chatID int64, role, content string) (int64, error) {
	if role != RoleUser && role != RoleAssistant {
		return 0, fmt.Errorf("role %q: %w", role, ErrInvalidRole)
	}
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, user_id, chat_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, userID, chatID, role, content, ts)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message insert id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ? WHERE id = ?`, ts, sessionID); err != nil {
		return 0, fmt.Errorf("touch session: %w", err)
	}
	return id, nil
}

// GetSessionMessages returns the most recent limit messages of the
// session in chronological order. limit <= 0 returns the full history.
func (s *Store) GetSessionMessages(ctx context.Context, sessionID int64, limit int) ([]Message, error) {
	query := `
		SELECT id, session_id, user_id, chat_id, role, content, timestamp
		FROM messages
		WHERE session_id = ?
		ORDER BY timestamp DESC, id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.ChatID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message rows: %w", err)
	}
	// Newest-first window, oldest-first result.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountSessionMessages returns the number of messages in the session.
func (s *Store) CountSessionMessages(ctx context.Context, sessionID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
