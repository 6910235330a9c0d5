// Package chattest provides in-memory implementations of the chat
// dependencies for tests.
package chattest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/model"
)

// Store is a chat.Store backed by maps.
type Store struct {
	mu        sync.Mutex
	users     map[string]model.User
	passwords map[string]string
	messages  []model.Message
}

func NewStore() *Store {
	return &Store{
		users:     make(map[string]model.User),
		passwords: make(map[string]string),
	}
}

// AddUser inserts a user with the given id directly.
func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return u
}

func (s *Store) CreateUser(_ context.Context, u chat.NewUser) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) || existing.Username == u.Username {
			return model.User{}, chat.ErrConflict
		}
	}
	user := model.User{
		ID:        uuid.NewString(),
		FullName:  u.FullName,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: time.Now().UTC(),
	}
	s.users[user.ID] = user
	s.passwords[user.ID] = u.HashedPassword
	return user, nil
}

func (s *Store) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, chat.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUsers(_ context.Context, ids []string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) GetUserWithPasswordByEmail(_ context.Context, email string) (model.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, s.passwords[u.ID], nil
		}
	}
	return model.User{}, "", chat.ErrNotFound
}

func (s *Store) ListUsersExcept(_ context.Context, id string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.User{}
	for _, u := range s.users {
		if u.ID != id {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *Store) CreateMessage(_ context.Context, m model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[m.SenderID]; !ok {
		return model.Message{}, chat.ErrNotFound
	}
	if _, ok := s.users[m.ReceiverID]; !ok {
		return model.Message{}, chat.ErrNotFound
	}
	m.ID = uuid.NewString()
	m.Reactions = []model.Reaction{}
	s.messages = append(s.messages, m.Clone())
	return s.resolve(m), nil
}

func (s *Store) GetMessage(_ context.Context, id string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return model.Message{}, chat.ErrNotFound
	}
	return s.resolve(s.messages[i]), nil
}

func (s *Store) ListConversation(_ context.Context, a, b string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Message{}
	for _, m := range s.messages {
		if m.Between(a, b) {
			out = append(out, s.resolve(m))
		}
	}
	return out, nil
}

func (s *Store) ListChatPeers(_ context.Context, userID string) ([]chat.ChatPeer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := make(map[string]model.Message)
	for _, m := range s.messages {
		var peer string
		switch userID {
		case m.SenderID:
			peer = m.ReceiverID
		case m.ReceiverID:
			peer = m.SenderID
		default:
			continue
		}
		last[peer] = m
	}
	out := make([]chat.ChatPeer, 0, len(last))
	for peer, m := range last {
		out = append(out, chat.ChatPeer{PeerID: peer, LastMessage: s.resolve(m)})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return chat.ErrNotFound
	}
	s.messages = slices.Delete(s.messages, i, i+1)
	return nil
}

func (s *Store) UpsertReaction(_ context.Context, messageID, userID, emoji string, at time.Time) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(messageID)
	if i < 0 {
		return model.Message{}, chat.ErrNotFound
	}
	m := &s.messages[i]
	m.Reactions = slices.DeleteFunc(m.Reactions, func(r model.Reaction) bool { return r.UserID == userID })
	m.Reactions = append(m.Reactions, model.Reaction{UserID: userID, Emoji: emoji, CreatedAt: at})
	return s.resolve(*m), nil
}

func (s *Store) DeleteReaction(_ context.Context, messageID, userID string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(messageID)
	if i < 0 {
		return model.Message{}, chat.ErrNotFound
	}
	m := &s.messages[i]
	m.Reactions = slices.DeleteFunc(m.Reactions, func(r model.Reaction) bool { return r.UserID == userID })
	return s.resolve(*m), nil
}

// resolve returns a copy of m with references filled from the messages they
// point at. References to deleted messages read as nil.
func (s *Store) resolve(m model.Message) model.Message {
	c := m.Clone()
	c.ReplyTo = s.ref(m.ReplyTo)
	c.ForwardedFrom = s.ref(m.ForwardedFrom)
	return c
}

func (s *Store) ref(r *model.MessageRef) *model.MessageRef {
	if r == nil {
		return nil
	}
	i := s.index(r.ID)
	if i < 0 {
		return nil
	}
	return s.messages[i].Ref()
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.messages, func(m model.Message) bool { return m.ID == id })
}

// Emitted is one recorded Emit call.
type Emitted struct {
	To    []string
	Event string
	Data  any
}

// Emitter records every event.
type Emitter struct {
	mu     sync.Mutex
	events []Emitted
	Err    error
}

func (e *Emitter) Emit(_ context.Context, to []string, event string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, Emitted{To: append([]string(nil), to...), Event: event, Data: data})
	return e.Err
}

func (e *Emitter) Events() []Emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Emitted(nil), e.events...)
}

// Named returns the recorded events with the given name.
func (e *Emitter) Named(event string) []Emitted {
	var out []Emitted
	for _, ev := range e.Events() {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

// Presence reports the users in the set as online.
type Presence map[string]bool

func (p Presence) Online(userID string) bool { return p[userID] }

// Uploader stores payloads in memory and returns fake URLs.
type Uploader struct {
	mu      sync.Mutex
	Stored  map[string]string
	Deleted []string
	Err     error
}

func (u *Uploader) Upload(_ context.Context, payload string) (string, error) {
	if u.Err != nil {
		return "", u.Err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Stored == nil {
		u.Stored = make(map[string]string)
	}
	url := "https://media.test/" + uuid.NewString() + ".png"
	u.Stored[url] = payload
	return url, nil
}

func (u *Uploader) Delete(_ context.Context, url string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Deleted = append(u.Deleted, url)
	delete(u.Stored, url)
	return nil
}
