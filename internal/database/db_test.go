package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/chat/chattest"
	"github.com/johndosdos/dmchat/internal/database"
	"github.com/johndosdos/dmchat/internal/testutil"
)

func TestQueries(t *testing.T) {
	chattest.RunStoreTests(t, func(t *testing.T) chat.Store {
		return database.New(testutil.DbInit(t))
	})
}

func TestMalformedIDsReadAsMissing(t *testing.T) {
	q := database.New(testutil.DbInit(t))
	ctx := context.Background()

	_, err := q.GetMessage(ctx, "65f1c0ffee0ddba11c0ffee0")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = q.ListConversation(ctx, "nope", "nope")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	users, err := q.ListUsersExcept(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPing(t *testing.T) {
	q := database.New(testutil.DbInit(t))
	assert.NoError(t, q.Ping(context.Background()))
}
