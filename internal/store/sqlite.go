package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteUsers implements Users using SQLite.
type SQLiteUsers struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given path.
// Use ":memory:" for an in-memory database.
func NewSQLite(path string) (*SQLiteUsers, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Each pooled connection to ":memory:" would get its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteUsers{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			username TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
			full_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
	`)
	return err
}

// FindUser looks up a user by username, ignoring case.
func (s *SQLiteUsers) FindUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT username, full_name, password_hash, created_at FROM users
		WHERE username = ? COLLATE NOCASE
	`, username).Scan(&u.Username, &u.FullName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user %q: %w", username, err)
	}
	return u, nil
}

// CreateUser inserts a new account. It fails with ErrUserExists when the
// username is taken, ignoring case.
func (s *SQLiteUsers) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, full_name, password_hash, created_at) VALUES (?, ?, ?, ?)",
		u.Username, u.FullName, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("create user %q: %w", u.Username, err)
	}
	return nil
}

// UpdateUser applies the non-nil fields of upd.
func (s *SQLiteUsers) UpdateUser(ctx context.Context, username string, upd UserUpdate) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback()

	var u User
	err = tx.QueryRowContext(ctx, `
		SELECT username, full_name, password_hash, created_at FROM users
		WHERE username = ? COLLATE NOCASE
	`, username).Scan(&u.Username, &u.FullName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("update user %q: %w", username, err)
	}

	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET full_name = ?, password_hash = ? WHERE username = ?",
		u.FullName, u.PasswordHash, u.Username,
	); err != nil {
		return User{}, fmt.Errorf("update user %q: %w", username, err)
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}
	return u, nil
}

// Close closes the database connection.
func (s *SQLiteUsers) Close() error {
	return s.db.Close()
}
