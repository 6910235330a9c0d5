package chattest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/model"
)

// RunStoreTests checks the behaviour every chat.Store must share. newStore
// returns an empty store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) chat.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("chat peers", func(t *testing.T) { testChatPeers(t, newStore(t)) })
	t.Run("reactions", func(t *testing.T) { testReactions(t, newStore(t)) })
}

func mustUser(t *testing.T, s chat.Store, name string) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), chat.NewUser{
		FullName:       name + " Test",
		Username:       name,
		Email:          name + "@example.com",
		HashedPassword: "hash-" + name,
	})
	require.NoError(t, err)
	return u
}

func mustMessage(t *testing.T, s chat.Store, m model.Message) model.Message {
	t.Helper()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	m.UpdatedAt = m.CreatedAt
	saved, err := s.CreateMessage(context.Background(), m)
	require.NoError(t, err)
	return saved
}

func testUsers(t *testing.T, s chat.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	assert.NotEmpty(t, alice.ID)
	assert.NotEqual(t, alice.ID, bob.ID)

	_, err := s.CreateUser(ctx, chat.NewUser{FullName: "A", Username: "alice2", Email: "alice@example.com", HashedPassword: "x"})
	assert.ErrorIs(t, err, chat.ErrConflict)
	_, err = s.CreateUser(ctx, chat.NewUser{FullName: "A", Username: "alice", Email: "other@example.com", HashedPassword: "x"})
	assert.ErrorIs(t, err, chat.ErrConflict)

	got, err := s.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice Test", got.FullName)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	u, hash, err := s.GetUserWithPasswordByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, u.ID)
	assert.Equal(t, "hash-bob", hash)

	_, _, err = s.GetUserWithPasswordByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	others, err := s.ListUsersExcept(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, bob.ID, others[0].ID)

	many, err := s.GetUsers(ctx, []string{alice.ID, bob.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, many, 2)
}

func testMessages(t *testing.T, s chat.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := mustMessage(t, s, model.Message{SenderID: alice.ID, ReceiverID: bob.ID, Text: "hi", CreatedAt: base})
	second := mustMessage(t, s, model.Message{
		SenderID:   bob.ID,
		ReceiverID: alice.ID,
		Text:       "hello",
		ReplyTo:    &model.MessageRef{ID: first.ID},
		CreatedAt:  base.Add(time.Second),
	})
	mustMessage(t, s, model.Message{SenderID: alice.ID, ReceiverID: carol.ID, Text: "elsewhere", CreatedAt: base.Add(2 * time.Second)})

	assert.NotEmpty(t, first.ID)
	assert.NotNil(t, first.Reactions)

	got, err := s.GetMessage(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReplyTo)
	assert.Equal(t, first.ID, got.ReplyTo.ID)
	assert.Equal(t, "hi", got.ReplyTo.Text)
	assert.Equal(t, alice.ID, got.ReplyTo.SenderID)
	assert.True(t, got.CreatedAt.Equal(base.Add(time.Second)))

	conv, err := s.ListConversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, first.ID, conv[0].ID)
	assert.Equal(t, second.ID, conv[1].ID)

	_, err = s.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	require.NoError(t, s.DeleteMessage(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteMessage(ctx, first.ID), chat.ErrNotFound)

	// The reply survives its target with the reference cleared.
	got, err = s.GetMessage(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReplyTo)
}

func testChatPeers(t *testing.T, s chat.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")
	base := time.Now().UTC().Truncate(time.Millisecond)

	mustMessage(t, s, model.Message{SenderID: alice.ID, ReceiverID: bob.ID, Text: "1", CreatedAt: base})
	mustMessage(t, s, model.Message{SenderID: carol.ID, ReceiverID: alice.ID, Text: "2", CreatedAt: base.Add(time.Second)})
	mustMessage(t, s, model.Message{SenderID: bob.ID, ReceiverID: alice.ID, Text: "3", CreatedAt: base.Add(2 * time.Second)})

	peers, err := s.ListChatPeers(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, bob.ID, peers[0].PeerID)
	assert.Equal(t, "3", peers[0].LastMessage.Text)
	assert.Equal(t, carol.ID, peers[1].PeerID)

	peers, err = s.ListChatPeers(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, alice.ID, peers[0].PeerID)
}

func testReactions(t *testing.T, s chat.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	msg := mustMessage(t, s, model.Message{SenderID: alice.ID, ReceiverID: bob.ID, Text: "react"})
	at := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.UpsertReaction(ctx, msg.ID, bob.ID, "👍", at)
	require.NoError(t, err)
	_, err = s.UpsertReaction(ctx, msg.ID, alice.ID, "❤️", at.Add(time.Second))
	require.NoError(t, err)
	got, err := s.UpsertReaction(ctx, msg.ID, bob.ID, "😂", at.Add(2*time.Second))
	require.NoError(t, err)

	require.Len(t, got.Reactions, 2)
	byUser := map[string]string{}
	for _, r := range got.Reactions {
		byUser[r.UserID] = r.Emoji
	}
	assert.Equal(t, map[string]string{alice.ID: "❤️", bob.ID: "😂"}, byUser)

	got, err = s.DeleteReaction(ctx, msg.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, alice.ID, got.Reactions[0].UserID)

	// Removing a missing reaction is a no-op.
	got, err = s.DeleteReaction(ctx, msg.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reactions, 1)

	_, err = s.UpsertReaction(ctx, "missing", bob.ID, "👍", at)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}
