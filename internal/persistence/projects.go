package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Project groups sessions under a shared working directory.
type Project struct {
	ID         int64
	UserID     int64
	ChatID     int64
	Name       string
	WorkingDir string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateProject creates a project for the (user, chat) pair.
func (s *Store) CreateProject(ctx context.Context, userID, chatID int64, name, workingDir string) (*Project, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (user_id, chat_id, name, working_dir, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, chatID, name, workingDir, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("project insert id: %w", err)
	}
	return &Project{
		ID:         id,
		UserID:     userID,
		ChatID:     chatID,
		Name:       name,
		WorkingDir: workingDir,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}, nil
}

// GetProject returns the project by id, scoped to its owner.
func (s *Store) GetProject(ctx context.Context, projectID, userID, chatID int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, chat_id, name, working_dir, created_at, updated_at
		FROM projects
		WHERE id = ? AND user_id = ? AND chat_id = ?`,
		projectID, userID, chatID)
	var p Project
	err := row.Scan(&p.ID, &p.UserID, &p.ChatID, &p.Name, &p.WorkingDir, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return &p, nil
}

// ListProjects returns the owner's projects in name order.
func (s *Store) ListProjects(ctx context.Context, userID, chatID int64) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, chat_id, name, working_dir, created_at, updated_at
		FROM projects
		WHERE user_id = ? AND chat_id = ?
		ORDER BY name`,
		userID, chatID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.ChatID, &p.Name, &p.WorkingDir, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project rows: %w", err)
	}
	return out, nil
}

// UpdateProject changes the project's name and/or working directory.
// Nil fields keep their current value.
func (s *Store) UpdateProject(ctx context.Context, projectID, userID, chatID int64, name, workingDir *string) error {
	if name == nil && workingDir == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name = COALESCE(?, name), working_dir = COALESCE(?, working_dir), updated_at = ?
		WHERE id = ? AND user_id = ? AND chat_id = ?`,
		name, workingDir, now(), projectID, userID, chatID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireAffected(res, projectID)
}

// DeleteProject removes the project. Sessions assigned to it survive
// with their project reference cleared (ON DELETE SET NULL).
func (s *Store) DeleteProject(ctx context.Context, projectID, userID, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM projects WHERE id = ? AND user_id = ? AND chat_id = ?`,
		projectID, userID, chatID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	return nil
}
