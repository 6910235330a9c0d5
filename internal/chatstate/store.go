// Package chatstate keeps a client's view of its conversations in sync with
// the server. It merges optimistic local writes, HTTP responses and pushed
// transport events into one message list, a most-recent-first chat list and
// per-peer unread counters.
package chatstate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/dmchat/internal/model"
)

// ErrNoConversation is returned by operations that need an open conversation.
var ErrNoConversation = errors.New("chatstate: no open conversation")

// API is the persistence side of the server.
type API interface {
	SendMessage(ctx context.Context, peerID string, req model.SendRequest) (model.Message, error)
	FetchMessages(ctx context.Context, peerID string) ([]model.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	SetReaction(ctx context.Context, messageID, emoji string) error
	ClearReaction(ctx context.Context, messageID string) error
	FetchContacts(ctx context.Context) ([]model.User, error)
	FetchChatSummaries(ctx context.Context) ([]model.ChatSummary, error)
}

// Transport delivers pushed events. Handlers for one transport are called
// one at a time, in delivery order.
type Transport interface {
	Subscribe(event string, fn func(json.RawMessage)) model.Handle
	Unsubscribe(h model.Handle)
}

// Notice is a user-visible failure report.
type Notice struct {
	Op      string
	Message string
	Err     error
}

// SendInput is what the user typed or attached.
type SendInput struct {
	Text          string
	Image         string
	ReplyTo       string
	ForwardedFrom string
}

// Store is the client's chat state. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex

	self      model.User
	api       API
	transport Transport
	logger    *slog.Logger
	now       func() time.Time
	newTempID func() string
	onNotice  func(Notice)
	onAlert   func(model.NotificationAlert)

	messages []model.Message
	chats    []model.ChatSummary
	contacts []model.User
	statuses map[string]string
	online   map[string]struct{}
	typing   map[string]time.Time
	open     string

	convSubs   map[string][]model.Handle
	globalSubs []model.Handle
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for dropped or malformed events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTempIDs replaces the placeholder id generator.
func WithTempIDs(gen func() string) Option {
	return func(s *Store) { s.newTempID = gen }
}

// WithNotices registers the sink for user-visible failures. fn runs with the
// store locked and must not call back into it.
func WithNotices(fn func(Notice)) Option {
	return func(s *Store) { s.onNotice = fn }
}

// WithAlerts registers the sink for notification alerts about conversations
// other than the open one.
func WithAlerts(fn func(model.NotificationAlert)) Option {
	return func(s *Store) { s.onAlert = fn }
}

// New returns a Store for the signed-in user.
func New(self model.User, api API, transport Transport, opts ...Option) *Store {
	s := &Store{
		self:      self,
		api:       api,
		transport: transport,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		newTempID: func() string { return model.TempIDPrefix + uuid.NewString() },
		statuses:  make(map[string]string),
		online:    make(map[string]struct{}),
		typing:    make(map[string]time.Time),
		convSubs:  make(map[string][]model.Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Self returns the signed-in user.
func (s *Store) Self() model.User { return s.self }

// Messages returns a copy of the open conversation's message list.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Chats returns a copy of the chat list, most recent first.
func (s *Store) Chats() []model.ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChatSummary(nil), s.chats...)
}

// Contacts returns a copy of the contact list.
func (s *Store) Contacts() []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.User(nil), s.contacts...)
}

// Unread returns the peer's unread counter.
func (s *Store) Unread(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c.PeerID == peerID {
			return c.UnreadCount
		}
	}
	return 0
}

// Status returns the last delivery status seen for a message.
func (s *Store) Status(messageID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[messageID]
}

// Online reports whether the peer is in the latest presence list.
func (s *Store) Online(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[peerID]
	return ok
}

// Typing reports whether the peer signalled typing within the last 3 seconds.
func (s *Store) Typing(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.typing[peerID]
	return ok && s.now().Sub(at) < 3*time.Second
}

// OpenPeer returns the peer of the open conversation, or "".
func (s *Store) OpenPeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// LoadContacts fetches every other user.
func (s *Store) LoadContacts(ctx context.Context) error {
	users, err := s.api.FetchContacts(ctx)
	if err != nil {
		s.mu.Lock()
		s.notice("contacts", "Failed to load contacts", err)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.contacts = users
	s.mu.Unlock()
	return nil
}

// LoadChats fetches the chat list. Locally tracked unread counters survive.
func (s *Store) LoadChats(ctx context.Context) error {
	chats, err := s.api.FetchChatSummaries(ctx)
	if err != nil {
		s.mu.Lock()
		s.notice("chats", "Failed to load chats", err)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.chats = mergeSummaries(s.chats, chats, s.open)
	s.mu.Unlock()
	return nil
}

// OpenConversation makes peerID the open conversation: its unread counter is
// reset, the previous conversation's listeners are detached and the message
// list is fetched again.
func (s *Store) OpenConversation(ctx context.Context, peerID string) error {
	s.mu.Lock()
	if s.open != peerID {
		s.detachConversation(s.open)
		s.open = peerID
		s.messages = nil
	}
	s.chats = ResetUnread(s.chats, peerID)
	s.attachConversation(peerID)
	known := make(map[string]struct{}, len(s.messages))
	for _, m := range s.messages {
		known[m.ID] = struct{}{}
	}
	s.mu.Unlock()

	fetched, err := s.api.FetchMessages(ctx, peerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.notice("messages", "Something went wrong", err)
		return err
	}
	if s.open != peerID {
		return nil
	}
	// The fetched history replaces the list. Only records that arrived while
	// the fetch was in flight, and sends still awaiting confirmation, are
	// carried over, and never in place of a fetched copy.
	list := Dedupe(fetched)
	for _, m := range s.messages {
		_, before := known[m.ID]
		if before && !m.Optimistic {
			continue
		}
		list, _ = Append(list, m)
	}
	s.messages = list
	return nil
}

// CloseConversation detaches the open conversation and drops its messages.
func (s *Store) CloseConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detachConversation(s.open)
	s.open = ""
	s.messages = nil
}

// Send appends an optimistic placeholder, persists the message and swaps the
// placeholder for the server's record. On failure the placeholder is removed
// and the error returned; nothing is retried.
func (s *Store) Send(ctx context.Context, in SendInput) (model.Message, error) {
	s.mu.Lock()
	peer := s.open
	if peer == "" {
		s.mu.Unlock()
		return model.Message{}, ErrNoConversation
	}

	tempID := s.newTempID()
	placeholder := model.Message{
		ID:         tempID,
		SenderID:   s.self.ID,
		ReceiverID: peer,
		Text:       in.Text,
		Reactions:  []model.Reaction{},
		CreatedAt:  s.now(),
		ClientID:   tempID,
		Optimistic: true,
	}
	if in.Image != "" {
		placeholder.Image = ImageMarker
	}
	if in.ReplyTo != "" {
		if orig, ok := find(s.messages, in.ReplyTo); ok {
			placeholder.ReplyTo = orig.Ref()
		} else {
			placeholder.ReplyTo = &model.MessageRef{ID: in.ReplyTo}
		}
	}
	s.messages = append(s.messages, placeholder)
	s.mu.Unlock()

	actual, err := s.api.SendMessage(ctx, peer, model.SendRequest{
		Text:          in.Text,
		Image:         in.Image,
		ReplyTo:       in.ReplyTo,
		ForwardedFrom: in.ForwardedFrom,
		ClientID:      tempID,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.messages = Remove(s.messages, tempID)
		s.notice("send", "Error sending message. Please try again.", err)
		return model.Message{}, err
	}

	if actual.ClientID == "" {
		actual.ClientID = tempID
	}
	if s.open == peer {
		s.messages = ReplacePlaceholder(s.messages, tempID, actual)
	}
	s.chats = TouchChat(s.chats, Touch{
		Peer:        s.peerRef(peer),
		LastMessage: actual,
		At:          actual.CreatedAt,
	}, s.open)
	return actual, nil
}

// Delete removes one of the user's messages on the server, then locally.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteMessage(ctx, id); err != nil {
		s.mu.Lock()
		s.notice("delete", "Failed to delete message", err)
		s.mu.Unlock()
		return err
	}
	s.ApplyDeleted(id)
	return nil
}

// React sets the user's reaction once the server accepts it.
func (s *Store) React(ctx context.Context, messageID, emoji string) error {
	if err := s.api.SetReaction(ctx, messageID, emoji); err != nil {
		s.mu.Lock()
		s.notice("react", "Failed to add reaction", err)
		s.mu.Unlock()
		return err
	}
	s.ApplyReaction(model.ReactionEvent{MessageID: messageID, UserID: s.self.ID, Emoji: emoji})
	return nil
}

// Unreact clears the user's reaction once the server accepts it.
func (s *Store) Unreact(ctx context.Context, messageID string) error {
	if err := s.api.ClearReaction(ctx, messageID); err != nil {
		s.mu.Lock()
		s.notice("unreact", "Failed to remove reaction", err)
		s.mu.Unlock()
		return err
	}
	s.ApplyReactionRemoved(model.ReactionEvent{MessageID: messageID, UserID: s.self.ID})
	return nil
}

// MergeInbound merges a pushed message into the open conversation. Messages
// outside it, and messages already present, are dropped. It reports whether
// the list changed.
func (s *Store) MergeInbound(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == "" || !m.Between(s.self.ID, s.open) {
		return false
	}
	var added bool
	s.messages, added = Append(s.messages, m)
	return added
}

// ApplyDeleted drops a message from the list.
func (s *Store) ApplyDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = Remove(s.messages, id)
}

// ApplyReaction projects a confirmed reaction onto the list.
func (s *Store) ApplyReaction(ev model.ReactionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = AddReaction(s.messages, ev.MessageID, ev.UserID, ev.Emoji, s.now())
}

// ApplyReactionRemoved projects a confirmed reaction removal onto the list.
func (s *Store) ApplyReactionRemoved(ev model.ReactionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = RemoveReaction(s.messages, ev.MessageID, ev.UserID)
}

// ApplyStatus records a delivery status.
func (s *Store) ApplyStatus(ev model.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[ev.MessageID] = ev.Status
}

// ApplyChatListUpdate touches the sender's chat summary.
func (s *Store) ApplyChatListUpdate(ev model.ChatListUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := ev.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	peer := ev.SenderInfo
	peer.ID = ev.SenderID
	s.chats = TouchChat(s.chats, Touch{
		Peer:        peer,
		LastMessage: ev.LastMessage,
		Preview:     ev.LastMessagePreview,
		At:          at,
		Incoming:    true,
	}, s.open)
}

// ApplyNotification forwards an alert unless it is about the open conversation.
func (s *Store) ApplyNotification(alert model.NotificationAlert) {
	s.mu.Lock()
	open := s.open
	fn := s.onAlert
	s.mu.Unlock()

	if fn == nil || alert.SenderID == open {
		return
	}
	fn(alert)
}

// ApplyPresence replaces the set of online peers.
func (s *Store) ApplyPresence(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.online[id] = struct{}{}
	}
}

// ApplyTyping records a typing signal from a peer.
func (s *Store) ApplyTyping(ev model.TypingEvent) {
	if ev.ReceiverID != s.self.ID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing[ev.SenderID] = s.now()
}

// peerRef finds display fields for a peer. Callers hold s.mu.
func (s *Store) peerRef(peerID string) model.UserRef {
	for _, c := range s.chats {
		if c.PeerID == peerID {
			return model.UserRef{ID: c.PeerID, FullName: c.FullName, Username: c.Username, ProfilePic: c.ProfilePic}
		}
	}
	for _, u := range s.contacts {
		if u.ID == peerID {
			return u.Ref()
		}
	}
	return model.UserRef{ID: peerID}
}

// notice reports a failure. Callers hold s.mu.
func (s *Store) notice(op, msg string, err error) {
	var apiMsg interface{ UserMessage() string }
	if errors.As(err, &apiMsg) && apiMsg.UserMessage() != "" {
		msg = apiMsg.UserMessage()
	}
	s.logger.Warn("chat operation failed",
		"op", op,
		"user_id", s.self.ID,
		"error", err)
	if s.onNotice != nil {
		s.onNotice(Notice{Op: op, Message: msg, Err: err})
	}
}
