// Package persistence is the durable store for projects, sessions,
// messages, and the per-(user,chat) active-session pointer, backed by a
// single SQLite database file.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultMaxStateBytes = 64 * 1024

// Sentinel errors surfaced to callers. Everything else is a wrapped
// storage error.
var (
	// ErrNotFound reports a session/project lookup miss or an ownership
	// mismatch between the record and the requesting (user, chat) pair.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRole reports a message role outside {user, assistant}.
	ErrInvalidRole = errors.New("invalid role")

	// ErrStateTooLarge reports a session state document over the size cap.
	ErrStateTooLarge = errors.New("session state too large")
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Store struct {
	db            *sql.DB
	maxStateBytes int
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".chatclaw", "chatclaw.db")
}

// Open opens (creating if necessary) the SQLite database at path.
// maxStateBytes caps serialized session state documents; <=0 uses the
// 64 KiB default.
func Open(path string, maxStateBytes int) (*Store, error) {
	if path == "" {
		path = DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if maxStateBytes <= 0 {
		maxStateBytes = defaultMaxStateBytes
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	// A single connection serializes writers; every operation is its own
	// atomic unit against the file.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, maxStateBytes: maxStateBytes}
	if err := store.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA synchronous=FULL;`); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}
	return nil
}

// initSchema creates the schema if missing and applies additive column
// migrations against older databases. It never drops or rewrites data.
func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			working_dir TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			project_id INTEGER REFERENCES projects(id) ON DELETE SET NULL,
			state TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS active_sessions (
			user_id INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			session_id INTEGER NOT NULL,
			PRIMARY KEY (user_id, chat_id),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_user_chat ON projects(user_id, chat_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_chat ON sessions(user_id, chat_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return s.migrateSessionColumns(ctx)
}

// migrateSessionColumns adds columns introduced after the first release to
// databases created before them.
func (s *Store) migrateSessionColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(sessions);`)
	if err != nil {
		return fmt.Errorf("inspect sessions table: %w", err)
	}
	defer rows.Close()

	existing := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("scan table_info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("table_info rows: %w", err)
	}

	if !existing["state"] {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE sessions ADD COLUMN state TEXT NOT NULL DEFAULT '{}';`); err != nil {
			return fmt.Errorf("add state column: %w", err)
		}
	}
	if !existing["project_id"] {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE sessions ADD COLUMN project_id INTEGER REFERENCES projects(id) ON DELETE SET NULL;`); err != nil {
			return fmt.Errorf("add project_id column: %w", err)
		}
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
