package chatstate

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/johndosdos/dmchat/internal/model"
)

const snapshotVersion = 1

// Snapshot is the persisted form of the store. Images are reduced to a
// presence flag to bound its size.
type Snapshot struct {
	Version  int                 `json:"version"`
	Chats    []model.ChatSummary `json:"chats"`
	Contacts []model.User        `json:"contacts"`
	Messages []CachedMessage     `json:"messages"`
}

// CachedMessage is a message as stored in a Snapshot.
type CachedMessage struct {
	ID         string            `json:"_id"`
	SenderID   string            `json:"senderId"`
	ReceiverID string            `json:"receiverId"`
	Text       string            `json:"text,omitempty"`
	Image      bool              `json:"image"`
	ReplyTo    *model.MessageRef `json:"replyTo,omitempty"`
	Reactions  []model.Reaction  `json:"reactions"`
	CreatedAt  time.Time         `json:"createdAt"`
	Optimistic bool              `json:"isOptimistic,omitempty"`
}

func cacheMessage(m model.Message) CachedMessage {
	c := CachedMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Image:      m.Image != "",
		Reactions:  m.Clone().Reactions,
		CreatedAt:  m.CreatedAt,
		Optimistic: m.Optimistic,
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		r.Image = stripImage(r.Image)
		c.ReplyTo = &r
	}
	return c
}

func stripImage(img string) string {
	if img == "" {
		return ""
	}
	return ImageMarker
}

// Snapshot returns the persistable view of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Version:  snapshotVersion,
		Chats:    make([]model.ChatSummary, 0, len(s.chats)),
		Contacts: append([]model.User(nil), s.contacts...),
		Messages: make([]CachedMessage, 0, len(s.messages)),
	}
	for _, c := range s.chats {
		if c.LastMessage != nil {
			last := c.LastMessage.Clone()
			last.Image = stripImage(last.Image)
			c.LastMessage = &last
		}
		snap.Chats = append(snap.Chats, c)
	}
	for _, m := range s.messages {
		snap.Messages = append(snap.Messages, cacheMessage(m))
	}
	return snap
}

// Hydrate seeds chat summaries and contacts from a snapshot. Messages in the
// snapshot are ignored; the open conversation is always fetched.
func (s *Store) Hydrate(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = append([]model.ChatSummary(nil), snap.Chats...)
	s.contacts = append([]model.User(nil), snap.Contacts...)
}

// SaveSnapshot writes snap as JSON.
func SaveSnapshot(w io.Writer, snap Snapshot) error {
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("chatstate: encode snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("chatstate: decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("chatstate: unsupported snapshot version %d", snap.Version)
	}
	return snap, nil
}
