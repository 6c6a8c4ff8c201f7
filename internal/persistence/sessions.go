package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session is one conversation thread owned by a (user, chat) pair.
// State is an opaque JSON document the agent carries across turns.
type Session struct {
	ID        int64
	UserID    int64
	ChatID    int64
	Name      string
	ProjectID *int64
	State     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionSummary is a Session plus its message count, as returned by
// ListSessions.
type SessionSummary struct {
	Session
	MessageCount int
}

// CreateSession creates a new session. An empty name gets a default of
// the form "Session 2006-01-02 15:04" from the current UTC time.
// projectID may be nil for a session outside any project.
func (s *Store) CreateSession(ctx context.Context, userID, chatID int64, name string, projectID *int64) (*Session, error) {
	ts := now()
	if name == "" {
		name = "Session " + ts.Format("2006-01-02 15:04")
	}
	if projectID != nil {
		if _, err := s.GetProject(ctx, *projectID, userID, chatID); err != nil {
			return nil, err
		}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, chat_id, name, project_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, '{}', ?, ?)`,
		userID, chatID, name, projectIDValue(projectID), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session insert id: %w", err)
	}
	return &Session{
		ID:        id,
		UserID:    userID,
		ChatID:    chatID,
		Name:      name,
		ProjectID: projectID,
		State:     map[string]any{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// GetSession returns the session by id, scoped to its owner. A miss or
// an ownership mismatch both return ErrNotFound.
func (s *Store) GetSession(ctx context.Context, sessionID, userID, chatID int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, chat_id, name, project_id, state, created_at, updated_at
		FROM sessions
		WHERE id = ? AND user_id = ? AND chat_id = ?`,
		sessionID, userID, chatID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the owner's sessions, most recently used first.
// Recency is the timestamp of the latest user message; sessions with no
// user messages sort after all that have one, newest created first.
// A limit of 0 returns everything; offset skips past rows in that order.
func (s *Store) ListSessions(ctx context.Context, userID, chatID int64, limit, offset int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.chat_id, s.name, s.project_id, s.state, s.created_at, s.updated_at,
		       COUNT(m.id) AS message_count,
		       MAX(CASE WHEN m.role = 'user' THEN m.timestamp END) AS last_user_message_time
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		WHERE s.user_id = ? AND s.chat_id = ?
		GROUP BY s.id
		ORDER BY (last_user_message_time IS NULL), last_user_message_time DESC, s.created_at DESC
		LIMIT ? OFFSET ?`,
		userID, chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sess      Session
			projectID sql.NullInt64
			stateJSON string
			count     int
			lastUser  sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.ChatID, &sess.Name,
			&projectID, &stateJSON, &sess.CreatedAt, &sess.UpdatedAt,
			&count, &lastUser); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if projectID.Valid {
			id := projectID.Int64
			sess.ProjectID = &id
		}
		if err := decodeState(stateJSON, &sess.State); err != nil {
			return nil, err
		}
		out = append(out, SessionSummary{Session: sess, MessageCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session rows: %w", err)
	}
	return out, nil
}

// CountSessions returns how many sessions the (user, chat) pair owns.
func (s *Store) CountSessions(ctx context.Context, userID, chatID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE user_id = ? AND chat_id = ?`,
		userID, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// RenameSession renames the owner's session.
func (s *Store) RenameSession(ctx context.Context, sessionID, userID, chatID int64, name string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET name = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND chat_id = ?`,
		name, now(), sessionID, userID, chatID)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return requireAffected(res, sessionID)
}

// DeleteSession removes the session, its messages, and any active-session
// pointer referencing it (both via ON DELETE CASCADE).
func (s *Store) DeleteSession(ctx context.Context, sessionID, userID, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id = ? AND user_id = ? AND chat_id = ?`,
		sessionID, userID, chatID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireAffected(res, sessionID)
}

// AssignSessionProject moves the session into a project, or out of any
// project when projectID is nil.
func (s *Store) AssignSessionProject(ctx context.Context, sessionID, userID, chatID int64, projectID *int64) error {
	if projectID != nil {
		if _, err := s.GetProject(ctx, *projectID, userID, chatID); err != nil {
			return err
		}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET project_id = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND chat_id = ?`,
		projectIDValue(projectID), now(), sessionID, userID, chatID)
	if err != nil {
		return fmt.Errorf("assign session project: %w", err)
	}
	return requireAffected(res, sessionID)
}

// UpdateSessionState replaces the session's state document. The
// serialized form is capped; oversized documents return ErrStateTooLarge
// and leave the stored state untouched.
func (s *Store) UpdateSessionState(ctx context.Context, sessionID, userID, chatID int64, state map[string]any) error {
	if state == nil {
		state = map[string]any{}
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if len(encoded) > s.maxStateBytes {
		return fmt.Errorf("state is %d bytes (cap %d): %w", len(encoded), s.maxStateBytes, ErrStateTooLarge)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND chat_id = ?`,
		string(encoded), now(), sessionID, userID, chatID)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	return requireAffected(res, sessionID)
}

// GetActiveSession returns the active session for the (user, chat) pair,
// or ErrNotFound when no pointer exists.
func (s *Store) GetActiveSession(ctx context.Context, userID, chatID int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, s.chat_id, s.name, s.project_id, s.state, s.created_at, s.updated_at
		FROM active_sessions a
		JOIN sessions s ON s.id = a.session_id
		WHERE a.user_id = ? AND a.chat_id = ?`,
		userID, chatID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active session for user %d chat %d: %w", userID, chatID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query active session: %w", err)
	}
	return sess, nil
}

// SetActiveSession points the (user, chat) pair at the given session,
// replacing any previous pointer. The session must belong to the pair.
func (s *Store) SetActiveSession(ctx context.Context, userID, chatID, sessionID int64) error {
	if _, err := s.GetSession(ctx, sessionID, userID, chatID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_sessions (user_id, chat_id, session_id)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, chat_id) DO UPDATE SET session_id = excluded.session_id`,
		userID, chatID, sessionID)
	if err != nil {
		return fmt.Errorf("set active session: %w", err)
	}
	return nil
}

// GetOrCreateActiveSession returns the active session, creating a fresh
// default-named session and activating it when the pair has none.
func (s *Store) GetOrCreateActiveSession(ctx context.Context, userID, chatID int64) (*Session, error) {
	sess, err := s.GetActiveSession(ctx, userID, chatID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	sess, err = s.CreateSession(ctx, userID, chatID, "", nil)
	if err != nil {
		return nil, err
	}
	if err := s.SetActiveSession(ctx, userID, chatID, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var (
		sess      Session
		projectID sql.NullInt64
		stateJSON string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.ChatID, &sess.Name,
		&projectID, &stateJSON, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		id := projectID.Int64
		sess.ProjectID = &id
	}
	if err := decodeState(stateJSON, &sess.State); err != nil {
		return nil, err
	}
	return &sess, nil
}

func decodeState(raw string, dst *map[string]any) error {
	if raw == "" {
		*dst = map[string]any{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}
	if *dst == nil {
		*dst = map[string]any{}
	}
	return nil
}

func projectIDValue(projectID *int64) any {
	if projectID == nil {
		return nil
	}
	return *projectID
}

func requireAffected(res sql.Result, sessionID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	return nil
}
