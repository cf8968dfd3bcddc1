package hub

import (
	"github.com/devaloi/roomrelay/internal/domain"
)

// switchToGroup moves a joined session back to the group room.
func (h *Hub) switchToGroup(s *Session) {
	if !s.joined() {
		h.drop(s, "unauthenticated")
		return
	}
	if s.room != "" && s.room != domain.GroupKey {
		h.unsubscribe(s, s.room)
	}
	h.enterRoom(s, domain.GroupKey, domain.GroupLabel)
}

// openPrivate moves the session into the private room it shares with
// target. The target is subscribed too, so it receives live messages before
// navigating there itself.
func (h *Hub) openPrivate(s *Session, target string) {
	if !s.joined() {
		h.drop(s, "unauthenticated")
		return
	}
	if target == "" || target == s.username {
		h.drop(s, "invalid_target")
		return
	}
	targetID, ok := h.presence.Lookup(target)
	if !ok {
		h.drop(s, "target_offline")
		return
	}
	peer := h.sessions[targetID]

	key := domain.PrivateKeyOf(s.username, target)
	if s.room != "" && s.room != key {
		h.unsubscribe(s, s.room)
	}
	delete(s.unread, target)
	h.enterRoom(s, key, target)

	if peer != nil {
		h.subscribe(peer, key)
		h.send(peer, domain.PrivatePing{From: s.username, RoomKey: key})
	}
}

// getHistory answers an explicit history request.
func (h *Hub) getHistory(s *Session, key string) {
	if !s.joined() {
		h.drop(s, "unauthenticated")
		return
	}
	if key == "" || !domain.CanRead(key, s.username) {
		h.drop(s, "forbidden_room")
		return
	}
	h.send(s, domain.RoomHistory{RoomKey: key, Items: h.history.Recent(key, h.fetchLimit)})
}

// postMessage stamps e for the session's current room, records it and fans
// it out to every subscriber, sender included.
func (h *Hub) postMessage(s *Session, e domain.Entry) {
	switch {
	case !s.joined():
		h.drop(s, "unauthenticated")
		return
	case s.room == "":
		h.drop(s, "no_room")
		return
	case !s.rooms[s.room]:
		h.drop(s, "stale_room")
		return
	}

	e.ID = h.newID()
	e.RoomKey = s.room
	e.User = s.username
	e.TS = h.now().UnixMilli()

	h.history.Append(e.RoomKey, e)
	metricMessages.WithLabelValues(string(e.Kind)).Inc()

	data, err := domain.Encode(e)
	if err != nil {
		h.log.Error("encode message", "err", err)
		return
	}
	for _, m := range h.rooms[e.RoomKey] {
		m.client.Send(data)
	}

	h.notifyElsewhere(s, e)
}

// notifyElsewhere signals users who are not viewing the room e was posted
// to. Private messages also bump the recipient's unread counter.
func (h *Hub) notifyElsewhere(s *Session, e domain.Entry) {
	if domain.IsPrivate(e.RoomKey) {
		other, ok := domain.OtherParticipant(e.RoomKey, s.username)
		if !ok {
			return
		}
		id, ok := h.presence.Lookup(other)
		if !ok {
			return
		}
		peer, ok := h.sessions[id]
		if !ok || peer.room == e.RoomKey {
			return
		}
		peer.unread[s.username]++
		h.send(peer, e.Unread(peer.unread[s.username]))
		h.send(peer, domain.CrossChatNotification{
			Type:    domain.NotifyPrivate,
			From:    s.username,
			Message: e.CrossChatText(),
			RoomKey: e.RoomKey,
		})
		return
	}

	n := domain.CrossChatNotification{
		Type:    domain.NotifyGroup,
		From:    s.username,
		Message: e.CrossChatText(),
		RoomKey: domain.GroupKey,
	}
	for _, peer := range h.sessions {
		if !peer.joined() || peer == s || peer.room == domain.GroupKey {
			continue
		}
		h.send(peer, n)
	}
}

// typing relays a typing indicator to the other subscribers of the
// session's current room.
func (h *Hub) typing(s *Session, on bool) {
	if !s.joined() || s.room == "" {
		h.drop(s, "unauthenticated")
		return
	}
	ev := domain.Typing{User: s.username, IsTyping: on, RoomKey: s.room}
	for _, m := range h.rooms[s.room] {
		if m != s {
			h.send(m, ev)
		}
	}
}
