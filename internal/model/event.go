package model

import (
	"encoding/json"
	"time"
)

// Transport event names.
const (
	EventNewMessage             = "newMessage"
	EventMessageDeleted         = "messageDeleted"
	EventMessageStatus          = "messageStatus"
	EventMessageReaction        = "messageReaction"
	EventMessageReactionRemoved = "messageReactionRemoved"
	EventChatListUpdate         = "chat_list_update"
	EventNotificationAlert      = "notification_alert"
	EventOnlineUsers            = "getOnlineUsers"
	EventTyping                 = "typing"
)

// Envelope is the frame written to and read from a WebSocket session.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals data under the given event name.
func NewEnvelope(event string, data any) (Envelope, error) {
	p, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: p}, nil
}

// ChatListUpdate notifies a receiver that a conversation's last message changed.
type ChatListUpdate struct {
	SenderID           string    `json:"senderId"`
	SenderInfo         UserRef   `json:"senderInfo"`
	LastMessage        Message   `json:"lastMessage"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	Timestamp          time.Time `json:"timestamp"`
	UnreadCount        int       `json:"unreadCount"`
}

// ReactionEvent is pushed to both participants when a reaction changes.
// Emoji is empty for removals.
type ReactionEvent struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji,omitempty"`
}

// Delivery statuses carried by messageStatus.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
)

// StatusEvent tells a sender how far a message got.
type StatusEvent struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// NotificationAlert asks the receiver's UI to raise an alert.
type NotificationAlert struct {
	Type           string  `json:"type"`
	SenderInfo     UserRef `json:"senderInfo"`
	MessagePreview string  `json:"messagePreview"`
	SenderID       string  `json:"senderId"`
}

// TypingEvent is relayed from one participant to the other.
type TypingEvent struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// Handle identifies one transport subscription. It is returned by Subscribe
// and passed back to Unsubscribe.
type Handle struct {
	Event string
	ID    uint64
}
