package chatstate

import (
	"time"

	"github.com/johndosdos/dmchat/internal/model"
)

// Touch describes a change to a conversation's last message.
type Touch struct {
	Peer        model.UserRef
	LastMessage model.Message
	Preview     string
	At          time.Time

	// Incoming is set for touches caused by the peer. Only those count
	// toward the unread counter.
	Incoming bool
}

// TouchChat moves the peer's summary to the front with the new last message.
// A summary is synthesized when the peer has none. Incoming touches add one
// unread message unless the peer is openPeer, whose counter stays at zero.
// The relative order of every other summary is preserved.
func TouchChat(chats []model.ChatSummary, t Touch, openPeer string) []model.ChatSummary {
	idx := -1
	for i, c := range chats {
		if c.PeerID == t.Peer.ID {
			idx = i
			break
		}
	}

	var c model.ChatSummary
	if idx >= 0 {
		c = chats[idx]
	} else {
		c = model.ChatSummary{
			PeerID:     t.Peer.ID,
			FullName:   t.Peer.FullName,
			Username:   t.Peer.Username,
			ProfilePic: t.Peer.ProfilePic,
		}
	}

	last := t.LastMessage.Clone()
	c.LastMessage = &last
	c.LastMessagePreview = t.Preview
	if c.LastMessagePreview == "" {
		c.LastMessagePreview = model.Preview(last)
	}
	c.UpdatedAt = t.At

	switch {
	case t.Peer.ID == openPeer:
		c.UnreadCount = 0
	case t.Incoming:
		c.UnreadCount++
	}

	out := make([]model.ChatSummary, 0, len(chats)+1)
	out = append(out, c)
	for i, other := range chats {
		if i != idx {
			out = append(out, other)
		}
	}
	return out
}

// ResetUnread zeroes the peer's unread counter.
func ResetUnread(chats []model.ChatSummary, peerID string) []model.ChatSummary {
	out := make([]model.ChatSummary, len(chats))
	copy(out, chats)
	for i := range out {
		if out[i].PeerID == peerID {
			out[i].UnreadCount = 0
		}
	}
	return out
}

// mergeSummaries takes the server's ordering and content but keeps the
// locally tracked unread counters, which the server does not know about.
func mergeSummaries(local, fetched []model.ChatSummary, openPeer string) []model.ChatSummary {
	unread := make(map[string]int, len(local))
	for _, c := range local {
		unread[c.PeerID] = c.UnreadCount
	}

	out := make([]model.ChatSummary, 0, len(fetched))
	for _, c := range fetched {
		if n, ok := unread[c.PeerID]; ok && n > c.UnreadCount {
			c.UnreadCount = n
		}
		if c.PeerID == openPeer {
			c.UnreadCount = 0
		}
		out = append(out, c)
	}
	return out
}
