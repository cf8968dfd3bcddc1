package store

import (
	"context"
	"errors"
	"time"

	"github.com/devaloi/roomrelay/internal/domain"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username already exists")
)

// History defines the bounded per-room message log.
type History interface {
	// Append adds an entry to the room's log, evicting the oldest entry once
	// the log is full.
	Append(room string, e domain.Entry)
	// Recent returns up to limit most recent entries for a room, oldest first.
	Recent(room string, limit int) []domain.Entry
	// Len returns the number of retained entries for a room.
	Len(room string) int
	// Rooms returns the keys of all rooms with history.
	Rooms() []string
}

// User is an account in the user directory.
type User struct {
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserUpdate carries optional account changes. Nil fields are left alone.
type UserUpdate struct {
	FullName     *string
	PasswordHash *string
}

// Users defines the user directory.
type Users interface {
	// FindUser looks a user up by username, ignoring case.
	FindUser(ctx context.Context, username string) (User, error)
	// CreateUser inserts a new account.
	CreateUser(ctx context.Context, u User) error
	// UpdateUser applies changes and returns the updated account.
	UpdateUser(ctx context.Context, username string, upd UserUpdate) (User, error)
	// Close releases any resources held by the store.
	Close() error
}
