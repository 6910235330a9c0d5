package chatstate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/dmchat/internal/model"
)

func peers(chats []model.ChatSummary) []string {
	out := make([]string, 0, len(chats))
	for _, c := range chats {
		out = append(out, c.PeerID)
	}
	return out
}

func TestTouchChatMovesToFront(t *testing.T) {
	chats := []model.ChatSummary{
		{PeerID: "a"}, {PeerID: "b"}, {PeerID: "c", UnreadCount: 2}, {PeerID: "d"},
	}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	got := TouchChat(chats, Touch{
		Peer:        model.UserRef{ID: "c"},
		LastMessage: model.Message{ID: "m1", Text: "hello"},
		At:          at,
		Incoming:    true,
	}, "")

	assert.Equal(t, []string{"c", "a", "b", "d"}, peers(got))
	assert.Equal(t, 3, got[0].UnreadCount)
	assert.Equal(t, "hello", got[0].LastMessagePreview)
	assert.Equal(t, at, got[0].UpdatedAt)
	require.NotNil(t, got[0].LastMessage)
	assert.Equal(t, "m1", got[0].LastMessage.ID)

	// The input is not modified.
	assert.Equal(t, []string{"a", "b", "c", "d"}, peers(chats))
}

func TestTouchChatSynthesizes(t *testing.T) {
	chats := []model.ChatSummary{{PeerID: "a"}}
	got := TouchChat(chats, Touch{
		Peer:        model.UserRef{ID: "z", FullName: "Zed", Username: "zed"},
		LastMessage: model.Message{ID: "m1", Image: "https://cdn/x.png"},
		Incoming:    true,
	}, "")

	require.Len(t, got, 2)
	assert.Equal(t, "z", got[0].PeerID)
	assert.Equal(t, "Zed", got[0].FullName)
	assert.Equal(t, 1, got[0].UnreadCount)
	assert.Equal(t, model.ImagePreview, got[0].LastMessagePreview)
}

func TestTouchChatOpenPeerStaysRead(t *testing.T) {
	chats := []model.ChatSummary{{PeerID: "a", UnreadCount: 4}}
	got := TouchChat(chats, Touch{Peer: model.UserRef{ID: "a"}, Incoming: true}, "a")
	assert.Equal(t, 0, got[0].UnreadCount)
}

func TestTouchChatOutgoingKeepsCounter(t *testing.T) {
	chats := []model.ChatSummary{{PeerID: "b"}, {PeerID: "a", UnreadCount: 1}}
	got := TouchChat(chats, Touch{Peer: model.UserRef{ID: "a"}}, "")
	assert.Equal(t, []string{"a", "b"}, peers(got))
	assert.Equal(t, 1, got[0].UnreadCount)
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("é", 80)
	got := model.Preview(model.Message{Text: long})
	assert.Equal(t, model.PreviewLen, len([]rune(got)))
	assert.Equal(t, "short", model.Preview(model.Message{Text: "short"}))
}

func TestMergeSummariesKeepsUnread(t *testing.T) {
	local := []model.ChatSummary{{PeerID: "a", UnreadCount: 3}, {PeerID: "b", UnreadCount: 1}}
	fetched := []model.ChatSummary{{PeerID: "b"}, {PeerID: "a"}, {PeerID: "c"}}

	got := mergeSummaries(local, fetched, "b")
	assert.Equal(t, []string{"b", "a", "c"}, peers(got))
	assert.Equal(t, 0, got[0].UnreadCount)
	assert.Equal(t, 3, got[1].UnreadCount)
	assert.Equal(t, 0, got[2].UnreadCount)
}
