package chatstate

import (
	"encoding/json"

	"github.com/johndosdos/dmchat/internal/model"
)

// Start attaches the session-wide listeners: chat list updates, alerts,
// presence and typing. They stay attached until Stop regardless of which
// conversation is open.
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.globalSubs != nil {
		return
	}
	s.globalSubs = []model.Handle{
		s.transport.Subscribe(model.EventChatListUpdate, s.onChatListUpdate),
		s.transport.Subscribe(model.EventNotificationAlert, s.onNotificationAlert),
		s.transport.Subscribe(model.EventOnlineUsers, s.onOnlineUsers),
		s.transport.Subscribe(model.EventTyping, s.onTyping),
	}
}

// Stop detaches every listener the store owns.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for peer := range s.convSubs {
		s.detachConversation(peer)
	}
	for _, h := range s.globalSubs {
		s.transport.Unsubscribe(h)
	}
	s.globalSubs = nil
}

// attachConversation subscribes the per-conversation listeners for peer,
// at most once. Callers hold s.mu.
func (s *Store) attachConversation(peer string) {
	if peer == "" {
		return
	}
	if _, ok := s.convSubs[peer]; ok {
		return
	}
	s.convSubs[peer] = []model.Handle{
		s.transport.Subscribe(model.EventNewMessage, s.onNewMessage),
		s.transport.Subscribe(model.EventMessageDeleted, s.onMessageDeleted),
		s.transport.Subscribe(model.EventMessageStatus, s.onMessageStatus),
		s.transport.Subscribe(model.EventMessageReaction, s.onMessageReaction),
		s.transport.Subscribe(model.EventMessageReactionRemoved, s.onMessageReactionRemoved),
	}
}

// detachConversation releases the handles attached for peer. Callers hold s.mu.
func (s *Store) detachConversation(peer string) {
	hs, ok := s.convSubs[peer]
	if !ok {
		return
	}
	for _, h := range hs {
		s.transport.Unsubscribe(h)
	}
	delete(s.convSubs, peer)
}

func (s *Store) onNewMessage(raw json.RawMessage) {
	m, err := Normalize(raw)
	if err != nil {
		s.logger.Warn("dropping malformed event", "event", model.EventNewMessage, "error", err)
		return
	}
	s.MergeInbound(m)
}

func (s *Store) onMessageDeleted(raw json.RawMessage) {
	id, err := NormalizeID(raw)
	if err != nil || id == "" {
		s.logger.Warn("dropping malformed event", "event", model.EventMessageDeleted, "error", err)
		return
	}
	s.ApplyDeleted(id)
}

func (s *Store) onMessageStatus(raw json.RawMessage) {
	var ev model.StatusEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.Warn("dropping malformed event", "event", model.EventMessageStatus, "error", err)
		return
	}
	s.ApplyStatus(ev)
}

func (s *Store) onMessageReaction(raw json.RawMessage) {
	ev, err := NormalizeReaction(raw)
	if err != nil {
		s.logger.Warn("dropping malformed event", "event", model.EventMessageReaction, "error", err)
		return
	}
	s.ApplyReaction(ev)
}

func (s *Store) onMessageReactionRemoved(raw json.RawMessage) {
	ev, err := NormalizeReaction(raw)
	if err != nil {
		s.logger.Warn("dropping malformed event", "event", model.EventMessageReactionRemoved, "error", err)
		return
	}
	s.ApplyReactionRemoved(ev)
}

func (s *Store) onChatListUpdate(raw json.RawMessage) {
	ev, err := NormalizeChatListUpdate(raw)
	if err != nil || ev.SenderID == "" {
		s.logger.Warn("dropping malformed event", "event", model.EventChatListUpdate, "error", err)
		return
	}
	s.ApplyChatListUpdate(ev)
}

func (s *Store) onNotificationAlert(raw json.RawMessage) {
	var alert model.NotificationAlert
	if err := json.Unmarshal(raw, &alert); err != nil {
		s.logger.Warn("dropping malformed event", "event", model.EventNotificationAlert, "error", err)
		return
	}
	s.ApplyNotification(alert)
}

func (s *Store) onOnlineUsers(raw json.RawMessage) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		s.logger.Warn("dropping malformed event", "event", model.EventOnlineUsers, "error", err)
		return
	}
	s.ApplyPresence(ids)
}

func (s *Store) onTyping(raw json.RawMessage) {
	var ev model.TypingEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.Warn("dropping malformed event", "event", model.EventTyping, "error", err)
		return
	}
	s.ApplyTyping(ev)
}
