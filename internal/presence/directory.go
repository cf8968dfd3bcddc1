// Package presence tracks which username is bound to which live connection.
package presence

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/devaloi/roomrelay/internal/domain"
)

// Directory is a bidirectional username <-> connection id map. At most one
// live connection may hold a username. Usernames compare case-sensitively.
type Directory struct {
	mu     sync.RWMutex
	byName map[string]string
	byConn map[string]string
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Register binds username to connID. It fails with domain.ErrNameInUse when
// the name is held by a different connection. Re-registering the same pair is
// a no-op.
func (d *Directory) Register(username, connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if owner, ok := d.byName[username]; ok {
		if owner == connID {
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrNameInUse, username)
	}
	if prev, ok := d.byConn[connID]; ok {
		delete(d.byName, prev)
	}
	d.byName[username] = connID
	d.byConn[connID] = username
	return nil
}

// Unregister releases the username bound to connID, if any. It returns the
// released username.
func (d *Directory) Unregister(connID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, ok := d.byConn[connID]
	if !ok {
		return "", false
	}
	delete(d.byConn, connID)
	if d.byName[name] == connID {
		delete(d.byName, name)
	}
	return name, true
}

// Lookup returns the connection holding username.
func (d *Directory) Lookup(username string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[username]
	return id, ok
}

// UsernameOf returns the username bound to connID.
func (d *Directory) UsernameOf(connID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.byConn[connID]
	return name, ok
}

// ListUsernames returns a sorted snapshot of all registered usernames.
func (d *Directory) ListUsernames() []string {
	d.mu.RLock()
	names := lo.Keys(d.byName)
	d.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Len returns the number of registered usernames.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byName)
}
