package domain

import (
	"fmt"
	"unicode/utf8"
)

// Kind is the payload type of a history entry.
type Kind string

// Entry kinds.
const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
	KindFile  Kind = "file"
)

// Preview bounds for notifications.
const (
	CrossChatPreviewLen = 100
	UnreadPreviewLen    = 80
)

const (
	DefaultVoiceMime = "audio/webm"
	DefaultFileMime  = "application/octet-stream"
)

// Voice is an inline audio clip.
type Voice struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType"`
	Duration int    `json:"duration"`
}

// File references an uploaded blob. The relay never carries the bytes.
type File struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
}

// Entry is one immutable history record. It is also the payload of the
// outbound message event.
type Entry struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"type"`
	RoomKey string `json:"roomKey"`
	User    string `json:"user"`
	Text    string `json:"text,omitempty"`
	Voice   *Voice `json:"voice,omitempty"`
	File    *File  `json:"file,omitempty"`
	TS      int64  `json:"ts"`
}

// CrossChatText is the notification text shown for an entry viewed from
// another room.
func (e Entry) CrossChatText() string {
	switch e.Kind {
	case KindVoice:
		return "🎤 Voice message"
	case KindFile:
		return fmt.Sprintf("📎 %s", e.File.Name)
	default:
		return Truncate(e.Text, CrossChatPreviewLen)
	}
}

// Unread builds the privateUnread signal for this entry.
func (e Entry) Unread(count int) PrivateUnread {
	u := PrivateUnread{From: e.User, Kind: e.Kind, Count: count}
	switch e.Kind {
	case KindVoice:
		u.Preview = "Voice message"
	case KindFile:
		u.FileName = e.File.Name
	default:
		u.Preview = Truncate(e.Text, UnreadPreviewLen)
	}
	return u
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
