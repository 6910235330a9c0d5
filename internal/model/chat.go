package model

import (
	"time"
	"unicode/utf8"
)

// PreviewLen is the number of characters kept in a last-message preview.
const PreviewLen = 50

// ImagePreview replaces the preview of messages carrying an image.
const ImagePreview = "📷 Image"

// ChatSummary is the per-peer record behind the conversation list.
type ChatSummary struct {
	PeerID             string    `json:"_id"`
	FullName           string    `json:"fullName"`
	Username           string    `json:"username"`
	ProfilePic         string    `json:"profilePic,omitempty"`
	LastMessage        *Message  `json:"lastMessage,omitempty"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	UpdatedAt          time.Time `json:"updatedAt"`
	UnreadCount        int       `json:"unreadCount"`
}

// Preview returns the chat-list preview for m: an image marker, or its text
// truncated to PreviewLen characters.
func Preview(m Message) string {
	if m.Image != "" {
		return ImagePreview
	}
	if utf8.RuneCountInString(m.Text) <= PreviewLen {
		return m.Text
	}
	return string([]rune(m.Text)[:PreviewLen])
}
