package domain

import "strings"

// GroupKey is the key of the single shared room every joined user starts in.
const GroupKey = "group"

// GroupLabel is the display label sent with switchedRoom for the group room.
const GroupLabel = "Group"

const privateSep = "::"

// PrivateKeyOf returns the room key shared by two users. The result does not
// depend on argument order.
func PrivateKeyOf(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + privateSep + b
}

// ValidName reports whether name can be registered. Names may not contain the
// private room separator, so every private key maps to exactly one pair.
func ValidName(name string) bool {
	return name != "" && !strings.Contains(name, privateSep)
}

// IsPrivate reports whether key names a private room.
func IsPrivate(key string) bool {
	return key != GroupKey && strings.Contains(key, privateSep)
}

// OtherParticipant returns the user on the other side of a private room.
// ok is false when key is not a private room that includes me.
func OtherParticipant(key, me string) (string, bool) {
	if !IsPrivate(key) {
		return "", false
	}
	if !ValidName(me) {
		return "", false
	}
	if rest, found := strings.CutPrefix(key, me+privateSep); found && ValidName(rest) {
		return rest, true
	}
	if rest, found := strings.CutSuffix(key, privateSep+me); found && ValidName(rest) {
		return rest, true
	}
	return "", false
}

// CanRead reports whether user may read the history of room key.
func CanRead(key, user string) bool {
	if key == GroupKey {
		return true
	}
	_, ok := OtherParticipant(key, user)
	return ok
}

// Room describes a room for the REST listing.
type Room struct {
	Key          string `json:"key"`
	Private      bool   `json:"private"`
	Members      int    `json:"members"`
	MessageCount int    `json:"message_count"`
}

// OnlineUser is one item of the users list.
type OnlineUser struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}
