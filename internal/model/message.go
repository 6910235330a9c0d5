// Package model defines data structure.
package model

import (
	"strings"
	"time"
)

// TempIDPrefix marks a client-generated placeholder id.
const TempIDPrefix = "temp-"

// IsTempID reports whether id is a placeholder that the server never issued.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Message is the canonical message shape shared by the HTTP API, the
// transport events and the client store.
type Message struct {
	ID            string      `json:"_id"`
	SenderID      string      `json:"senderId"`
	ReceiverID    string      `json:"receiverId"`
	Text          string      `json:"text,omitempty"`
	Image         string      `json:"image,omitempty"`
	ReplyTo       *MessageRef `json:"replyTo,omitempty"`
	ForwardedFrom *MessageRef `json:"forwardedFrom,omitempty"`
	Reactions     []Reaction  `json:"reactions"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`

	// ClientID is the placeholder id the sender used. It is echoed on the
	// send response and the loopback event, and never persisted.
	ClientID string `json:"clientId,omitempty"`

	// Optimistic is set on placeholders that the server has not confirmed.
	Optimistic bool `json:"isOptimistic,omitempty"`
}

// MessageRef is the denormalized copy of a replied-to or forwarded message.
type MessageRef struct {
	ID       string `json:"_id"`
	Text     string `json:"text,omitempty"`
	Image    string `json:"image,omitempty"`
	SenderID string `json:"senderId,omitempty"`
}

// Reaction is a single emoji reaction. A user has at most one per message.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Between reports whether m was exchanged between a and b, in either direction.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

// Ref returns the denormalized reference used for replies and forwards.
func (m Message) Ref() *MessageRef {
	return &MessageRef{
		ID:       m.ID,
		Text:     m.Text,
		Image:    m.Image,
		SenderID: m.SenderID,
	}
}

// Clone returns a copy of m that shares no slices or pointers with it.
func (m Message) Clone() Message {
	c := m
	if m.Reactions != nil {
		c.Reactions = make([]Reaction, len(m.Reactions))
		copy(c.Reactions, m.Reactions)
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		c.ReplyTo = &r
	}
	if m.ForwardedFrom != nil {
		f := *m.ForwardedFrom
		c.ForwardedFrom = &f
	}
	return c
}

// SendRequest is the body of a send call. At least one of Text or Image must
// be non-empty. Image is a data URL or raw base64 payload.
type SendRequest struct {
	Text          string `json:"text,omitempty"`
	Image         string `json:"image,omitempty"`
	ReplyTo       string `json:"replyTo,omitempty"`
	ForwardedFrom string `json:"forwardedFrom,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
}
