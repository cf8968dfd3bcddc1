package hub

import "github.com/devaloi/roomrelay/internal/domain"

// Client is the interface that the hub expects from a transport connection.
type Client interface {
	ID() string
	Send(data []byte)
}

// State is the lifecycle stage of a session.
type State int

const (
	StateUnauthenticated State = iota
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateJoined:
		return "joined"
	default:
		return "unauthenticated"
	}
}

// Session is the server-side state of one live connection. It is owned by
// the hub goroutine and must not be touched from anywhere else.
type Session struct {
	client   Client
	state    State
	claimed  string
	username string
	room     string
	rooms    map[string]bool
	unread   map[string]int
}

func newSession(c Client, claimed string) *Session {
	return &Session{
		client:  c,
		claimed: claimed,
		rooms:   make(map[string]bool),
		unread:  make(map[string]int),
	}
}

func (s *Session) joined() bool { return s.state == StateJoined }

// SessionInfo is a read-only copy of a session for callers outside the hub.
type SessionInfo struct {
	ID       string
	State    State
	Username string
	Room     string
	Rooms    []string
	Unread   map[string]int
}

func (s *Session) info() SessionInfo {
	rooms := make([]string, 0, len(s.rooms))
	for k := range s.rooms {
		rooms = append(rooms, k)
	}
	unread := make(map[string]int, len(s.unread))
	for k, v := range s.unread {
		unread[k] = v
	}
	return SessionInfo{
		ID:       s.client.ID(),
		State:    s.state,
		Username: s.username,
		Room:     s.room,
		Rooms:    rooms,
		Unread:   unread,
	}
}

func (h *Hub) subscribe(s *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		h.rooms[room] = members
	}
	members[s.client.ID()] = s
	s.rooms[room] = true
}

func (h *Hub) unsubscribe(s *Session, room string) {
	delete(s.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s.client.ID())
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// enterRoom makes room the session's current room and sends it the switch
// acknowledgement followed by recent history.
func (h *Hub) enterRoom(s *Session, room, label string) {
	h.subscribe(s, room)
	s.room = room
	h.send(s, domain.SwitchedRoom{RoomKey: room, Label: label, IsPrivate: domain.IsPrivate(room)})
	h.send(s, domain.RoomHistory{RoomKey: room, Items: h.history.Recent(room, h.fetchLimit)})
}
