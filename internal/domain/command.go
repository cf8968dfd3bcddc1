package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Inbound frame types.
const (
	CmdJoinGroup        = "joinGroup"
	CmdJoinGroupRoom    = "joinGroupRoom"
	CmdOpenPrivate      = "openPrivate"
	CmdGetHistory       = "getHistory"
	CmdSendMessage      = "sendMessage"
	CmdChatMessage      = "chatMessage"
	CmdVoiceMessage     = "voiceMessage"
	CmdFileMessage      = "fileMessage"
	CmdTyping           = "typing"
	CmdRequestUsersList = "requestUsersList"
)

// ErrUnknownCommand is returned by DecodeCommand for an unrecognised type.
var ErrUnknownCommand = errors.New("unknown command")

// Frame is the JSON envelope used in both directions on the socket.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Command is an inbound client request. The concrete types below are the
// only implementations.
type Command interface {
	command()
}

type JoinGroup struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type JoinGroupRoom struct{}

type OpenPrivate struct {
	Target string
}

type GetHistory struct {
	RoomKey string
}

type PostText struct {
	Text string
}

type PostVoice struct {
	Voice
}

type PostFile struct {
	File
}

type SetTyping struct {
	IsTyping bool
}

type RequestUsersList struct{}

func (JoinGroup) command()        {}
func (JoinGroupRoom) command()    {}
func (OpenPrivate) command()      {}
func (GetHistory) command()       {}
func (PostText) command()         {}
func (PostVoice) command()        {}
func (PostFile) command()         {}
func (SetTyping) command()        {}
func (RequestUsersList) command() {}

// MaxVoiceSeconds caps the duration accepted with a voice message.
const MaxVoiceSeconds = 24 * 60 * 60

type voiceWire struct {
	Audio    string  `json:"audio"`
	MimeType string  `json:"mimeType"`
	Duration float64 `json:"duration"`
}

// DecodeCommand parses one inbound frame.
func DecodeCommand(data []byte) (Command, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case CmdJoinGroup:
		var c JoinGroup
		err := unmarshalData(f, &c)
		return c, err
	case CmdJoinGroupRoom:
		return JoinGroupRoom{}, nil
	case CmdOpenPrivate:
		var c OpenPrivate
		err := unmarshalData(f, &c.Target)
		return c, err
	case CmdGetHistory:
		var c GetHistory
		err := unmarshalData(f, &c.RoomKey)
		return c, err
	case CmdSendMessage, CmdChatMessage:
		var c PostText
		err := unmarshalData(f, &c.Text)
		return c, err
	case CmdVoiceMessage:
		var w voiceWire
		if err := unmarshalData(f, &w); err != nil {
			return nil, err
		}
		return PostVoice{Voice{
			Audio:    w.Audio,
			MimeType: w.MimeType,
			Duration: int(math.Round(math.Min(math.Max(w.Duration, 0), MaxVoiceSeconds))),
		}}, nil
	case CmdFileMessage:
		var c PostFile
		err := unmarshalData(f, &c.File)
		return c, err
	case CmdTyping:
		var c SetTyping
		err := unmarshalData(f, &c.IsTyping)
		return c, err
	case CmdRequestUsersList:
		return RequestUsersList{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, f.Type)
	}
}

func unmarshalData(f Frame, v any) error {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return nil
}
