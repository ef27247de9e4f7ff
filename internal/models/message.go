package models

import (
	"fmt"
	"time"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses; unknown statuses rank 0.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

func (s MessageStatus) Valid() bool {
	return s.Rank() > 0
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
// Skipping (sent -> read) is allowed, staying put or going back is not.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// ReplyRef is a snapshot of the message being replied to.
type ReplyRef struct {
	ID         string `json:"id"`
	Text       string `json:"text,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
}

type Message struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"room_id"`
	Text      string        `json:"text,omitempty"`
	ImageURL  string        `json:"image_url,omitempty"`
	VoiceURL  string        `json:"voice_url,omitempty"`
	Sender    Sender        `json:"sender"`
	CreatedAt time.Time     `json:"created_at"`
	Status    MessageStatus `json:"status"`
	ReplyTo   *ReplyRef     `json:"reply_to,omitempty"`
	Reactions []Reaction    `json:"reactions,omitempty"`
}

type Reaction struct {
	MemberID  string `json:"member_id"`
	Emoji     string `json:"emoji"`
	MessageID string `json:"message_id"`
}

// Draft is the body of a new message.
type Draft struct {
	Text      string `json:"text,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	VoiceURL  string `json:"voice_url,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

func (d Draft) Validate() error {
	if d.Text == "" && d.ImageURL == "" && d.VoiceURL == "" {
		return fmt.Errorf("message needs text, image or voice")
	}
	return nil
}

type ReactRequest struct {
	// Emoji "" clears the caller's reaction.
	Emoji string `json:"emoji"`
}
