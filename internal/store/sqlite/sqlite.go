package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/linechat/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath, creating its directory, and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup opens a SQLite store and runs a setup function.
// Tests use it with ":memory:" and Migrate.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate creates missing tables. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_admin)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, username, passwordHash, isAdmin); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByUsername(ctx, username)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_admin, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// SetAdmin grants or revokes admin rights.
func (s *SQLiteStore) SetAdmin(ctx context.Context, username string, isAdmin bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = ? WHERE username = ?`, isAdmin, username)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

// SaveMessage appends a message to the log.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (sender, body, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.Sender, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// ListMessages returns up to limit most recent messages, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, sender, body, created_at
		FROM messages
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

// ==== ModerationStore implementation ====

// AddBan records a permanent ban.
func (s *SQLiteStore) AddBan(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO banned_users (username) VALUES (?)`, username); err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

// AddMute records a mute.
func (s *SQLiteStore) AddMute(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO muted_users (username) VALUES (?)`, username); err != nil {
		return fmt.Errorf("insert mute: %w", err)
	}
	return nil
}

// RemoveMute deletes a mute. Removing a missing mute is not an error.
func (s *SQLiteStore) RemoveMute(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM muted_users WHERE username = ?`, username); err != nil {
		return fmt.Errorf("delete mute: %w", err)
	}
	return nil
}

// AddWarning appends a warning and sets its ID.
func (s *SQLiteStore) AddWarning(ctx context.Context, w *store.Warning) error {
	query := `
		INSERT INTO warnings (username, reason, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, w.Username, w.Reason, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert warning: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	w.ID = id
	return nil
}

// LoadModeration reads bans, mutes and warnings.
func (s *SQLiteStore) LoadModeration(ctx context.Context) (*store.Moderation, error) {
	banned, err := s.listNames(ctx, `SELECT username FROM banned_users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("load bans: %w", err)
	}
	muted, err := s.listNames(ctx, `SELECT username FROM muted_users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("load mutes: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, reason, created_at
		FROM warnings
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query warnings: %w", err)
	}
	defer rows.Close()

	var warnings []*store.Warning
	for rows.Next() {
		var w store.Warning
		if err := rows.Scan(&w.ID, &w.Username, &w.Reason, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		warnings = append(warnings, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &store.Moderation{Banned: banned, Muted: muted, Warnings: warnings}, nil
}

func (s *SQLiteStore) listNames(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
