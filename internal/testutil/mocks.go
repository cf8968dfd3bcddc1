package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/devaloi/roomrelay/internal/domain"
	"github.com/devaloi/roomrelay/internal/store"
)

// MockClient implements hub.Client for testing.
type MockClient struct {
	Name     string
	messages [][]byte
	mu       sync.Mutex
}

// NewMockClient creates a new MockClient with the given connection id.
func NewMockClient(id string) *MockClient {
	return &MockClient{Name: id}
}

// ID returns the mock client's connection id.
func (m *MockClient) ID() string { return m.Name }

// Send records a message sent to the mock client.
func (m *MockClient) Send(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.messages = append(m.messages, cp)
}

// GetMessages returns a copy of all messages received by the mock client.
func (m *MockClient) GetMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]byte, len(m.messages))
	copy(cp, m.messages)
	return cp
}

// Frames returns every received frame of the given type, in arrival order.
func (m *MockClient) Frames(typ string) []json.RawMessage {
	var out []json.RawMessage
	for _, raw := range m.GetMessages() {
		f, err := domain.DecodeFrame(raw)
		if err == nil && f.Type == typ {
			out = append(out, f.Data)
		}
	}
	return out
}

// Types returns the type of every received frame, in arrival order.
func (m *MockClient) Types() []string {
	var out []string
	for _, raw := range m.GetMessages() {
		if f, err := domain.DecodeFrame(raw); err == nil {
			out = append(out, f.Type)
		}
	}
	return out
}

// Reset discards all recorded messages.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// MockUsers implements store.Users in memory.
type MockUsers struct {
	mu    sync.Mutex
	users map[string]store.User
}

// NewMockUsers creates a MockUsers seeded with the given accounts.
func NewMockUsers(users ...store.User) *MockUsers {
	m := &MockUsers{users: make(map[string]store.User)}
	for _, u := range users {
		m.users[strings.ToLower(u.Username)] = u
	}
	return m
}

// FindUser looks a user up ignoring case.
func (m *MockUsers) FindUser(_ context.Context, username string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(username)]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	return u, nil
}

// CreateUser stores u unless the username is taken.
func (m *MockUsers) CreateUser(_ context.Context, u store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, ok := m.users[key]; ok {
		return store.ErrUserExists
	}
	m.users[key] = u
	return nil
}

// UpdateUser applies the non-nil fields of upd.
func (m *MockUsers) UpdateUser(_ context.Context, username string, upd store.UserUpdate) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(username)
	u, ok := m.users[key]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	m.users[key] = u
	return u, nil
}

// Close is a no-op for the mock store.
func (m *MockUsers) Close() error { return nil }
