package chatstate

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/dmchat/internal/model"
)

func TestSnapshotStripsImages(t *testing.T) {
	api := &fakeAPI{history: map[string][]model.Message{
		"p1": {
			{ID: "h1", SenderID: "p1", ReceiverID: "me", Image: "data:image/png;base64," + strings.Repeat("A", 4096)},
			{ID: "h2", SenderID: "me", ReceiverID: "p1", Text: "nice"},
		},
	}}
	tr := newFakeTransport()
	s := newTestStore(t, api, tr)
	s.Start()
	require.NoError(t, s.OpenConversation(context.Background(), "p1"))

	tr.emit(model.EventChatListUpdate, model.ChatListUpdate{
		SenderID:    "p2",
		SenderInfo:  model.UserRef{ID: "p2"},
		LastMessage: model.Message{ID: "x", SenderID: "p2", ReceiverID: "me", Image: "https://cdn/big.png"},
	})

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.True(t, snap.Messages[0].Image)
	assert.False(t, snap.Messages[1].Image)
	require.Len(t, snap.Chats, 1)
	assert.Equal(t, ImageMarker, snap.Chats[0].LastMessage.Image)

	var buf bytes.Buffer
	require.NoError(t, SaveSnapshot(&buf, snap))
	assert.NotContains(t, buf.String(), "base64")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	first := raw["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, true, first["image"])

	// The live store still holds the full payload.
	assert.True(t, strings.HasPrefix(s.Messages()[0].Image, "data:image/png"))
}

func TestHydrateSeedsChatsOnly(t *testing.T) {
	snap := Snapshot{
		Version:  snapshotVersion,
		Chats:    []model.ChatSummary{{PeerID: "p1", UnreadCount: 2}},
		Contacts: []model.User{{ID: "p1"}},
		Messages: []CachedMessage{{ID: "old", SenderID: "p1", ReceiverID: "me"}},
	}

	var buf bytes.Buffer
	require.NoError(t, SaveSnapshot(&buf, snap))
	loaded, err := LoadSnapshot(&buf)
	require.NoError(t, err)

	api := &fakeAPI{history: history()}
	s := newTestStore(t, api, newFakeTransport())
	s.Hydrate(loaded)

	assert.Equal(t, 2, s.Unread("p1"))
	assert.Len(t, s.Contacts(), 1)
	assert.Empty(t, s.Messages())

	require.NoError(t, s.OpenConversation(context.Background(), "p1"))
	assert.Equal(t, []string{"h1", "h2"}, ids(s.Messages()))
}

func TestLoadSnapshotRejectsUnknownVersion(t *testing.T) {
	_, err := LoadSnapshot(strings.NewReader(`{"version": 99}`))
	assert.Error(t, err)
}
