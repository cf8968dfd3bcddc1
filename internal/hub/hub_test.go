package hub

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devaloi/roomrelay/internal/domain"
	"github.com/devaloi/roomrelay/internal/presence"
	"github.com/devaloi/roomrelay/internal/store"
	"github.com/devaloi/roomrelay/internal/testutil"
)

const testPassword = "secret"

func newTestHub(t *testing.T, users UserDirectory) *Hub {
	t.Helper()
	h := New(presence.NewDirectory(), store.NewMemoryHistory(store.DefaultHistoryLimit), Options{
		Password: testPassword,
		Users:    users,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	var seq int
	h.newID = func() string { seq++; return fmt.Sprintf("id-%03d", seq) }
	t.Cleanup(h.Stop)
	return h
}

func connect(h *Hub, id string) *testutil.MockClient {
	c := testutil.NewMockClient(id)
	h.handle(connectRequest{client: c})
	return c
}

func do(h *Hub, c *testutil.MockClient, cmd domain.Command) {
	h.handle(commandRequest{id: c.ID(), cmd: cmd})
}

func join(t *testing.T, h *Hub, name string) *testutil.MockClient {
	t.Helper()
	c := connect(h, "conn-"+name)
	do(h, c, domain.JoinGroup{Name: name, Password: testPassword})
	require.True(t, h.sessions[c.ID()].joined(), "join %s", name)
	return c
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestJoinGroup(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	c := connect(h, "c1")

	do(h, c, domain.JoinGroup{Name: "  alice ", Password: " " + testPassword + " "})

	require.Equal(t, []string{domain.EvSwitchedRoom, domain.EvRoomHistory}, c.Types()[:2])
	sw := decode[domain.SwitchedRoom](t, c.Frames(domain.EvSwitchedRoom)[0])
	require.Equal(t, domain.SwitchedRoom{RoomKey: domain.GroupKey, Label: "Group", IsPrivate: false}, sw)

	s := h.sessions["c1"]
	require.Equal(t, StateJoined, s.state)
	require.Equal(t, "alice", s.username)
	require.Equal(t, domain.GroupKey, s.room)
	require.True(t, s.rooms[domain.GroupKey])

	id, ok := h.presence.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, "c1", id)

	h.wg.Wait()
	lists := c.Frames(domain.EvUsersList)
	require.Len(t, lists, 1)
	require.Equal(t, domain.UsersList{{Username: "alice", FullName: "alice"}}, decode[domain.UsersList](t, lists[0]))
}

func TestJoinGroupFailures(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	join(t, h, "alice")

	tests := []struct {
		cmd  domain.JoinGroup
		code string
	}{
		{domain.JoinGroup{Name: "   ", Password: testPassword}, domain.CodeNameRequired},
		{domain.JoinGroup{Name: "a::b", Password: testPassword}, domain.CodeNameRequired},
		{domain.JoinGroup{Name: "bob", Password: "nope"}, domain.CodeWrongPassword},
		{domain.JoinGroup{Name: "alice", Password: testPassword}, domain.CodeNameInUse},
	}
	for i, tt := range tests {
		c := connect(h, fmt.Sprintf("fail-%d", i))
		do(h, c, tt.cmd)

		require.Equal(t, []string{domain.EvAuthError}, c.Types())
		ae := decode[domain.AuthError](t, c.Frames(domain.EvAuthError)[0])
		require.Equal(t, tt.code, ae.Code)

		s := h.sessions[c.ID()]
		require.Equal(t, StateUnauthenticated, s.state)
		require.Empty(t, s.username)
		require.Empty(t, s.room)
		require.Empty(t, s.rooms)
	}

	require.Equal(t, []string{"alice"}, h.presence.ListUsernames())
	id, _ := h.presence.Lookup("alice")
	require.Equal(t, "conn-alice", id)
}

func TestJoinTwiceIgnored(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	alice := join(t, h, "alice")
	alice.Reset()

	do(h, alice, domain.JoinGroup{Name: "mallory", Password: testPassword})

	require.Empty(t, alice.Types())
	require.Equal(t, []string{"alice"}, h.presence.ListUsernames())
}

func TestJoinUsesClaimedName(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	c := testutil.NewMockClient("c1")
	h.handle(connectRequest{client: c, claimed: "dave"})

	do(h, c, domain.JoinGroup{Password: testPassword})

	require.Equal(t, "dave", h.sessions["c1"].username)
}

func TestJoinRace(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	go h.Run()

	c1 := testutil.NewMockClient("c1")
	c2 := testutil.NewMockClient("c2")
	h.Connect(c1, "")
	h.Connect(c2, "")

	var wg sync.WaitGroup
	for _, c := range []*testutil.MockClient{c1, c2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Dispatch(c, domain.JoinGroup{Name: "alice", Password: testPassword})
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(c1.Frames(domain.EvSwitchedRoom))+len(c1.Frames(domain.EvAuthError)) == 1 &&
			len(c2.Frames(domain.EvSwitchedRoom))+len(c2.Frames(domain.EvAuthError)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	wins := len(c1.Frames(domain.EvSwitchedRoom)) + len(c2.Frames(domain.EvSwitchedRoom))
	require.Equal(t, 1, wins)

	loser := c1
	if len(c2.Frames(domain.EvAuthError)) == 1 {
		loser = c2
	}
	ae := decode[domain.AuthError](t, loser.Frames(domain.EvAuthError)[0])
	require.Equal(t, domain.CodeNameInUse, ae.Code)
}

func TestDisconnectReleasesName(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	alice := join(t, h, "alice")
	bob := join(t, h, "bob")
	h.wg.Wait()
	bob.Reset()

	h.handle(disconnectRequest{id: alice.ID()})

	_, ok := h.presence.Lookup("alice")
	require.False(t, ok)
	require.NotContains(t, h.sessions, alice.ID())
	require.NotContains(t, h.rooms[domain.GroupKey], alice.ID())

	h.wg.Wait()
	lists := bob.Frames(domain.EvUsersList)
	require.Len(t, lists, 1)
	require.Equal(t, domain.UsersList{{Username: "bob", FullName: "bob"}}, decode[domain.UsersList](t, lists[0]))

	// A fresh connection may take the name again.
	c := connect(h, "alice-again")
	do(h, c, domain.JoinGroup{Name: "alice", Password: testPassword})
	require.True(t, h.sessions["alice-again"].joined())

	// Disconnecting twice is harmless.
	h.handle(disconnectRequest{id: alice.ID()})
}

func TestUsersListFullNames(t *testing.T) {
	t.Parallel()
	users := testutil.NewMockUsers(store.User{Username: "Alice", FullName: "Alice Liddell"})
	h := newTestHub(t, users)
	join(t, h, "bob")
	alice := join(t, h, "alice")
	h.wg.Wait()

	lists := alice.Frames(domain.EvUsersList)
	require.NotEmpty(t, lists)
	got := decode[domain.UsersList](t, lists[len(lists)-1])
	require.Equal(t, domain.UsersList{
		{Username: "alice", FullName: "Alice Liddell"},
		{Username: "bob", FullName: "bob"},
	}, got)
}

func TestRequestUsersListBroadcasts(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	alice := join(t, h, "alice")
	anon := connect(h, "anon")
	h.wg.Wait()
	alice.Reset()

	do(h, anon, domain.RequestUsersList{})
	h.wg.Wait()

	require.Len(t, alice.Frames(domain.EvUsersList), 1)
	require.Len(t, anon.Frames(domain.EvUsersList), 1)
}

func TestListRoomsAndSession(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	go h.Run()

	c := testutil.NewMockClient("c1")
	h.Connect(c, "")
	h.Dispatch(c, domain.JoinGroup{Name: "alice", Password: testPassword})
	h.Dispatch(c, domain.PostText{Text: "hello"})

	rooms := h.ListRooms()
	require.Equal(t, []domain.Room{{Key: domain.GroupKey, Members: 1, MessageCount: 1}}, rooms)

	info, ok := h.Session("c1")
	require.True(t, ok)
	require.Equal(t, "alice", info.Username)
	require.Equal(t, domain.GroupKey, info.Room)
	require.Equal(t, 1, h.Online())

	_, ok = h.Session("nope")
	require.False(t, ok)
}

func TestStopUnblocksCallers(t *testing.T) {
	t.Parallel()
	h := newTestHub(t, nil)
	go h.Run()
	h.Stop()

	c := testutil.NewMockClient("c1")
	h.Connect(c, "")
	h.Dispatch(c, domain.RequestUsersList{})
	require.Nil(t, h.ListRooms())
}
