package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Outbound frame types.
const (
	EvAuthError             = "authError"
	EvSwitchedRoom          = "switchedRoom"
	EvRoomHistory           = "roomHistory"
	EvMessage               = "message"
	EvPrivatePing           = "privatePing"
	EvPrivateUnread         = "privateUnread"
	EvCrossChatNotification = "crossChatNotification"
	EvTyping                = "typing"
	EvUsersList             = "usersList"
)

// Join failures.
var (
	ErrNameRequired  = errors.New("name is required")
	ErrWrongPassword = errors.New("wrong password")
	ErrNameInUse     = errors.New("name already in use")
)

// ErrNameInvalid is reported on the wire as NameRequired.
var ErrNameInvalid = fmt.Errorf("%w: name contains %q", ErrNameRequired, privateSep)

// Auth error codes carried by the authError event.
const (
	CodeNameRequired  = "NameRequired"
	CodeWrongPassword = "WrongPassword"
	CodeNameInUse     = "NameInUse"
)

// Event is an outbound server message.
type Event interface {
	EventName() string
}

// AuthError rejects a joinGroup attempt.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAuthError maps a join failure onto its wire form.
func NewAuthError(err error) AuthError {
	switch {
	case errors.Is(err, ErrNameInvalid):
		return AuthError{Code: CodeNameRequired, Message: "Name cannot contain \"" + privateSep + "\"."}
	case errors.Is(err, ErrNameRequired):
		return AuthError{Code: CodeNameRequired, Message: "Name is required."}
	case errors.Is(err, ErrWrongPassword):
		return AuthError{Code: CodeWrongPassword, Message: "Wrong password."}
	case errors.Is(err, ErrNameInUse):
		return AuthError{Code: CodeNameInUse, Message: "Name already in use."}
	default:
		return AuthError{Code: "Unknown", Message: err.Error()}
	}
}

// SwitchedRoom tells a session which room it now views.
type SwitchedRoom struct {
	RoomKey   string `json:"roomKey"`
	Label     string `json:"label"`
	IsPrivate bool   `json:"isPrivate"`
}

// RoomHistory carries the recent entries of a room, oldest first.
type RoomHistory struct {
	RoomKey string  `json:"roomKey"`
	Items   []Entry `json:"items"`
}

// PrivatePing tells a user that someone opened a private room with them.
type PrivatePing struct {
	From    string `json:"from"`
	RoomKey string `json:"roomKey"`
}

// PrivateUnread reports a private entry the recipient has not seen.
type PrivateUnread struct {
	From     string `json:"from"`
	Kind     Kind   `json:"kind"`
	Preview  string `json:"preview,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Count    int    `json:"count"`
}

// Cross-chat notification types.
const (
	NotifyGroup   = "group"
	NotifyPrivate = "private"
)

// CrossChatNotification announces activity in a room the recipient is not viewing.
type CrossChatNotification struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Message string `json:"message"`
	RoomKey string `json:"roomKey"`
}

// Typing relays a typing indicator to the other members of a room.
type Typing struct {
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
	RoomKey  string `json:"roomKey"`
}

// UsersList is the online users, sorted by username.
type UsersList []OnlineUser

func (AuthError) EventName() string             { return EvAuthError }
func (SwitchedRoom) EventName() string          { return EvSwitchedRoom }
func (RoomHistory) EventName() string           { return EvRoomHistory }
func (Entry) EventName() string                 { return EvMessage }
func (PrivatePing) EventName() string           { return EvPrivatePing }
func (PrivateUnread) EventName() string         { return EvPrivateUnread }
func (CrossChatNotification) EventName() string { return EvCrossChatNotification }
func (Typing) EventName() string                { return EvTyping }
func (UsersList) EventName() string             { return EvUsersList }

type outFrame struct {
	Type string `json:"type"`
	Data Event  `json:"data"`
}

// Encode serializes an event into a wire frame.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(outFrame{Type: ev.EventName(), Data: ev})
}

// DecodeFrame splits a raw frame into its type and payload.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
