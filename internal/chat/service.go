package chat

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/johndosdos/dmchat/internal/metrics"
	"github.com/johndosdos/dmchat/internal/model"
)

// MaxImageBytes bounds the encoded image payload accepted by Send.
const MaxImageBytes = 10 << 20

// SendInput is a send request after authentication.
type SendInput struct {
	Text          string
	Image         string
	ReplyTo       string
	ForwardedFrom string
	ClientID      string
}

type Service struct {
	store     Store
	events    Emitter
	presence  Presence
	media     Uploader
	sanitizer sanitizer
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a controller. media may be nil, in which case image
// messages are rejected.
func NewService(store Store, events Emitter, presence Presence, media Uploader, opts ...Option) *Service {
	s := &Service{
		store:     store,
		events:    events,
		presence:  presence,
		media:     media,
		sanitizer: bluemonday.StrictPolicy(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Contacts(ctx context.Context, self string) ([]model.User, error) {
	users, err := s.store.ListUsersExcept(ctx, self)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return users, nil
}

func (s *Service) Conversation(ctx context.Context, self, peer string) ([]model.Message, error) {
	if _, err := s.store.GetUser(ctx, peer); err != nil {
		return nil, fmt.Errorf("load peer %s: %w", peer, err)
	}
	msgs, err := s.store.ListConversation(ctx, self, peer)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return msgs, nil
}

// Chats returns one summary per conversation partner, newest first. Unread
// counts are tracked by clients and always zero here.
func (s *Service) Chats(ctx context.Context, self string) ([]model.ChatSummary, error) {
	peers, err := s.store.ListChatPeers(ctx, self)
	if err != nil {
		return nil, fmt.Errorf("list chat peers: %w", err)
	}
	if len(peers) == 0 {
		return []model.ChatSummary{}, nil
	}

	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.PeerID)
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chat peers: %w", err)
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]model.ChatSummary, 0, len(peers))
	for _, p := range peers {
		u, ok := byID[p.PeerID]
		if !ok {
			// Account removed after the conversation.
			continue
		}
		last := p.LastMessage
		out = append(out, model.ChatSummary{
			PeerID:             u.ID,
			FullName:           u.FullName,
			Username:           u.Username,
			ProfilePic:         u.ProfilePic,
			LastMessage:        &last,
			LastMessagePreview: model.Preview(last),
			UpdatedAt:          last.CreatedAt,
		})
	}
	return out, nil
}

// Send validates, persists and fans out a direct message.
func (s *Service) Send(ctx context.Context, self, peer string, in SendInput) (model.Message, error) {
	text := s.cleanText(in.Text)
	if text == "" && in.Image == "" {
		return model.Message{}, fmt.Errorf("text or image is required: %w", ErrValidation)
	}
	if self == peer {
		return model.Message{}, fmt.Errorf("cannot message yourself: %w", ErrValidation)
	}
	if len(in.Image) > MaxImageBytes {
		return model.Message{}, fmt.Errorf("image exceeds %d bytes: %w", MaxImageBytes, ErrTooLarge)
	}

	sender, err := s.store.GetUser(ctx, self)
	if err != nil {
		return model.Message{}, fmt.Errorf("load sender: %w", err)
	}
	if _, err := s.store.GetUser(ctx, peer); err != nil {
		return model.Message{}, fmt.Errorf("load receiver %s: %w", peer, err)
	}

	msg := model.Message{
		SenderID:   self,
		ReceiverID: peer,
		Text:       text,
	}

	if in.ReplyTo != "" {
		orig, err := s.store.GetMessage(ctx, in.ReplyTo)
		if err != nil {
			return model.Message{}, fmt.Errorf("load reply target: %w", err)
		}
		if !orig.Between(self, peer) {
			return model.Message{}, fmt.Errorf("reply target is in another conversation: %w", ErrValidation)
		}
		msg.ReplyTo = orig.Ref()
	}
	if in.ForwardedFrom != "" {
		orig, err := s.store.GetMessage(ctx, in.ForwardedFrom)
		if err != nil {
			return model.Message{}, fmt.Errorf("load forwarded message: %w", err)
		}
		if orig.SenderID != self && orig.ReceiverID != self {
			return model.Message{}, fmt.Errorf("forwarded message is not visible to sender: %w", ErrForbidden)
		}
		msg.ForwardedFrom = orig.Ref()
	}

	if in.Image != "" {
		if s.media == nil {
			return model.Message{}, fmt.Errorf("image uploads are disabled: %w", ErrValidation)
		}
		url, err := s.media.Upload(ctx, in.Image)
		if err != nil {
			return model.Message{}, fmt.Errorf("upload image: %w", err)
		}
		msg.Image = url
	}

	now := s.now()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	saved, err := s.store.CreateMessage(ctx, msg)
	if err != nil {
		if msg.Image != "" {
			s.discardMedia(ctx, msg.Image)
		}
		return model.Message{}, fmt.Errorf("persist message: %w", err)
	}
	saved.ReplyTo = msg.ReplyTo
	saved.ForwardedFrom = msg.ForwardedFrom
	saved.ClientID = in.ClientID
	metrics.MessagesSent.Inc()

	s.emit(ctx, []string{peer, self}, model.EventNewMessage, saved)

	preview := model.Preview(saved)
	s.emit(ctx, []string{peer}, model.EventChatListUpdate, model.ChatListUpdate{
		SenderID:           self,
		SenderInfo:         sender.Ref(),
		LastMessage:        saved,
		LastMessagePreview: preview,
		Timestamp:          saved.CreatedAt,
		UnreadCount:        1,
	})
	s.emit(ctx, []string{peer}, model.EventNotificationAlert, model.NotificationAlert{
		Type:           "message",
		SenderInfo:     sender.Ref(),
		MessagePreview: preview,
		SenderID:       self,
	})

	status := model.StatusSent
	if s.presence != nil && s.presence.Online(peer) {
		status = model.StatusDelivered
	}
	s.emit(ctx, []string{self}, model.EventMessageStatus, model.StatusEvent{
		MessageID: saved.ID,
		Status:    status,
	})

	return saved, nil
}

// cleanText strips markup and restores the entities the policy escapes, so
// stored text matches what the user typed minus any tags.
func (s *Service) cleanText(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
}

// Delete removes a message. Only its sender may delete it.
func (s *Service) Delete(ctx context.Context, self, id string) error {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("load message %s: %w", id, err)
	}
	if msg.SenderID != self {
		return fmt.Errorf("message %s belongs to another user: %w", id, ErrForbidden)
	}
	if err := s.store.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	metrics.MessagesDeleted.Inc()

	if msg.Image != "" {
		s.discardMedia(ctx, msg.Image)
	}

	s.emit(ctx, []string{msg.ReceiverID, msg.SenderID}, model.EventMessageDeleted, msg.ID)
	return nil
}

// React sets the caller's reaction on a message, replacing any previous one.
func (s *Service) React(ctx context.Context, self, id, emoji string) (model.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return model.Message{}, fmt.Errorf("emoji is required: %w", ErrValidation)
	}
	msg, err := s.participantMessage(ctx, self, id)
	if err != nil {
		return model.Message{}, err
	}
	updated, err := s.store.UpsertReaction(ctx, msg.ID, self, emoji, s.now())
	if err != nil {
		return model.Message{}, fmt.Errorf("save reaction: %w", err)
	}
	metrics.Reactions.WithLabelValues("set").Inc()

	s.emit(ctx, []string{msg.SenderID, msg.ReceiverID}, model.EventMessageReaction, model.ReactionEvent{
		MessageID: msg.ID,
		UserID:    self,
		Emoji:     emoji,
	})
	return updated, nil
}

// Unreact clears the caller's reaction. Clearing a missing reaction is not
// an error.
func (s *Service) Unreact(ctx context.Context, self, id string) (model.Message, error) {
	msg, err := s.participantMessage(ctx, self, id)
	if err != nil {
		return model.Message{}, err
	}
	updated, err := s.store.DeleteReaction(ctx, msg.ID, self)
	if err != nil {
		return model.Message{}, fmt.Errorf("remove reaction: %w", err)
	}
	metrics.Reactions.WithLabelValues("remove").Inc()

	s.emit(ctx, []string{msg.SenderID, msg.ReceiverID}, model.EventMessageReactionRemoved, model.ReactionEvent{
		MessageID: msg.ID,
		UserID:    self,
	})
	return updated, nil
}

// Typing relays a typing indicator to peer.
func (s *Service) Typing(ctx context.Context, self, peer string) error {
	if peer == "" || peer == self {
		return fmt.Errorf("invalid typing target: %w", ErrValidation)
	}
	return s.events.Emit(ctx, []string{peer}, model.EventTyping, model.TypingEvent{
		SenderID:   self,
		ReceiverID: peer,
	})
}

func (s *Service) participantMessage(ctx context.Context, self, id string) (model.Message, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return model.Message{}, fmt.Errorf("load message %s: %w", id, err)
	}
	if msg.SenderID != self && msg.ReceiverID != self {
		return model.Message{}, fmt.Errorf("message %s is not in your conversations: %w", id, ErrForbidden)
	}
	return msg, nil
}

// emit is fire-and-forget: the write already succeeded and clients recover
// missed events on the next fetch.
func (s *Service) emit(ctx context.Context, to []string, event string, data any) {
	if err := s.events.Emit(ctx, to, event, data); err != nil {
		s.logger.WarnContext(ctx, "failed to emit event",
			"event", event,
			"error", err)
	}
}

func (s *Service) discardMedia(ctx context.Context, url string) {
	if s.media == nil {
		return
	}
	if err := s.media.Delete(ctx, url); err != nil {
		s.logger.WarnContext(ctx, "failed to delete media",
			"url", url,
			"error", err)
	}
}
