// Package chat implements the message controller: validation, persistence
// and the transport events that keep every session of both participants in
// sync.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/johndosdos/dmchat/internal/model"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrTooLarge   = errors.New("payload too large")
	ErrConflict   = errors.New("already exists")
)

// NewUser is the data needed to create an account.
type NewUser struct {
	FullName       string
	Username       string
	Email          string
	HashedPassword string
}

// ChatPeer is a conversation partner with the last message exchanged.
type ChatPeer struct {
	PeerID      string
	LastMessage model.Message
}

// Store persists users, messages and reactions. Implementations return
// ErrNotFound for missing records and ErrConflict for duplicate users.
type Store interface {
	CreateUser(ctx context.Context, u NewUser) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUsers(ctx context.Context, ids []string) ([]model.User, error)
	GetUserWithPasswordByEmail(ctx context.Context, email string) (model.User, string, error)
	ListUsersExcept(ctx context.Context, id string) ([]model.User, error)

	CreateMessage(ctx context.Context, m model.Message) (model.Message, error)
	GetMessage(ctx context.Context, id string) (model.Message, error)
	ListConversation(ctx context.Context, a, b string) ([]model.Message, error)
	ListChatPeers(ctx context.Context, userID string) ([]ChatPeer, error)
	DeleteMessage(ctx context.Context, id string) error

	UpsertReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) (model.Message, error)
	DeleteReaction(ctx context.Context, messageID, userID string) (model.Message, error)
}

// Emitter delivers a transport event to every session of the given users.
type Emitter interface {
	Emit(ctx context.Context, userIDs []string, event string, data any) error
}

// Presence reports whether a user has at least one live session.
type Presence interface {
	Online(userID string) bool
}

// Uploader hands image payloads to the media host.
type Uploader interface {
	Upload(ctx context.Context, payload string) (string, error)
	Delete(ctx context.Context, url string) error
}

type sanitizer interface {
	Sanitize(s string) string
}
