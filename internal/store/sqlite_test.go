package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestUsers(t *testing.T) *SQLiteUsers {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteCreateAndFind(t *testing.T) {
	t.Parallel()
	s := newTestUsers(t)
	ctx := context.Background()

	err := s.CreateUser(ctx, User{Username: "Alice", FullName: "Alice Liddell", PasswordHash: "hash"})
	require.NoError(t, err)

	u, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Username)
	require.Equal(t, "Alice Liddell", u.FullName)
	require.Equal(t, "hash", u.PasswordHash)
	require.False(t, u.CreatedAt.IsZero())
}

func TestSQLiteDuplicateIgnoresCase(t *testing.T) {
	t.Parallel()
	s := newTestUsers(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{Username: "bob", FullName: "Bob", PasswordHash: "h"}))
	err := s.CreateUser(ctx, User{Username: "BOB", FullName: "Other Bob", PasswordHash: "h"})
	require.ErrorIs(t, err, ErrUserExists)
}

func TestSQLiteFindMissing(t *testing.T) {
	t.Parallel()
	s := newTestUsers(t)

	_, err := s.FindUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSQLiteUpdateUser(t *testing.T) {
	t.Parallel()
	s := newTestUsers(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User{Username: "carol", FullName: "Carol", PasswordHash: "old"}))

	name := "Carol King"
	u, err := s.UpdateUser(ctx, "CAROL", UserUpdate{FullName: &name})
	require.NoError(t, err)
	require.Equal(t, "Carol King", u.FullName)
	require.Equal(t, "old", u.PasswordHash)

	hash := "new"
	_, err = s.UpdateUser(ctx, "carol", UserUpdate{PasswordHash: &hash})
	require.NoError(t, err)

	got, err := s.FindUser(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, "Carol King", got.FullName)
	require.Equal(t, "new", got.PasswordHash)

	_, err = s.UpdateUser(ctx, "nobody", UserUpdate{FullName: &name})
	require.ErrorIs(t, err, ErrUserNotFound)
}
