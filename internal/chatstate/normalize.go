package chatstate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/johndosdos/dmchat/internal/model"
)

// ImageMarker stands in for an image whose payload is not held locally: an
// upload still in flight, or a message restored from a snapshot.
const ImageMarker = "[image]"

type wireMessage struct {
	ID            string          `json:"_id"`
	AltID         string          `json:"id"`
	SenderID      json.RawMessage `json:"senderId"`
	ReceiverID    json.RawMessage `json:"receiverId"`
	Text          string          `json:"text"`
	Image         json.RawMessage `json:"image"`
	ReplyTo       json.RawMessage `json:"replyTo"`
	ForwardedFrom json.RawMessage `json:"forwardedFrom"`
	Reactions     []wireReaction  `json:"reactions"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	ClientID      string          `json:"clientId"`
	Optimistic    bool            `json:"isOptimistic"`

	// Some senders wrap the record as {"message": {...}, "receiverId": ...}.
	Message json.RawMessage `json:"message"`
}

type wireReaction struct {
	UserID    json.RawMessage `json:"userId"`
	Emoji     string          `json:"emoji"`
	CreatedAt time.Time       `json:"createdAt"`
}

type wireRef struct {
	ID       string          `json:"_id"`
	AltID    string          `json:"id"`
	Text     string          `json:"text"`
	Image    json.RawMessage `json:"image"`
	SenderID json.RawMessage `json:"senderId"`
}

// Normalize converts a message payload into the canonical shape. Participant
// and reference fields may arrive as a bare id or as an embedded document,
// the image as a URL or a presence flag, and the whole record may be wrapped
// under "message".
func Normalize(raw json.RawMessage) (model.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Message{}, fmt.Errorf("chatstate: decode message: %w", err)
	}
	if len(w.Message) > 0 && !isNull(w.Message) {
		return Normalize(w.Message)
	}

	sender, err := idOf(w.SenderID)
	if err != nil {
		return model.Message{}, fmt.Errorf("chatstate: senderId: %w", err)
	}
	receiver, err := idOf(w.ReceiverID)
	if err != nil {
		return model.Message{}, fmt.Errorf("chatstate: receiverId: %w", err)
	}
	replyTo, err := refOf(w.ReplyTo)
	if err != nil {
		return model.Message{}, fmt.Errorf("chatstate: replyTo: %w", err)
	}
	forwarded, err := refOf(w.ForwardedFrom)
	if err != nil {
		return model.Message{}, fmt.Errorf("chatstate: forwardedFrom: %w", err)
	}

	m := model.Message{
		ID:            firstNonEmpty(w.ID, w.AltID),
		SenderID:      sender,
		ReceiverID:    receiver,
		Text:          w.Text,
		Image:         imageOf(w.Image),
		ReplyTo:       replyTo,
		ForwardedFrom: forwarded,
		Reactions:     make([]model.Reaction, 0, len(w.Reactions)),
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
		ClientID:      w.ClientID,
		Optimistic:    w.Optimistic,
	}
	for _, r := range w.Reactions {
		uid, err := idOf(r.UserID)
		if err != nil {
			return model.Message{}, fmt.Errorf("chatstate: reaction userId: %w", err)
		}
		m.Reactions = append(m.Reactions, model.Reaction{
			UserID:    uid,
			Emoji:     r.Emoji,
			CreatedAt: r.CreatedAt,
		})
	}
	return m, nil
}

// NormalizeReaction decodes a messageReaction / messageReactionRemoved payload.
func NormalizeReaction(raw json.RawMessage) (model.ReactionEvent, error) {
	var w struct {
		MessageID json.RawMessage `json:"messageId"`
		UserID    json.RawMessage `json:"userId"`
		Emoji     string          `json:"emoji"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.ReactionEvent{}, fmt.Errorf("chatstate: decode reaction: %w", err)
	}
	msgID, err := idOf(w.MessageID)
	if err != nil {
		return model.ReactionEvent{}, err
	}
	userID, err := idOf(w.UserID)
	if err != nil {
		return model.ReactionEvent{}, err
	}
	return model.ReactionEvent{MessageID: msgID, UserID: userID, Emoji: w.Emoji}, nil
}

// NormalizeChatListUpdate decodes a chat_list_update payload.
func NormalizeChatListUpdate(raw json.RawMessage) (model.ChatListUpdate, error) {
	var w struct {
		SenderID           json.RawMessage `json:"senderId"`
		SenderInfo         model.UserRef   `json:"senderInfo"`
		LastMessage        json.RawMessage `json:"lastMessage"`
		LastMessagePreview string          `json:"lastMessagePreview"`
		Timestamp          time.Time       `json:"timestamp"`
		UnreadCount        int             `json:"unreadCount"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.ChatListUpdate{}, fmt.Errorf("chatstate: decode chat list update: %w", err)
	}
	sender, err := idOf(w.SenderID)
	if err != nil {
		return model.ChatListUpdate{}, err
	}
	if sender == "" {
		sender = w.SenderInfo.ID
	}
	if w.SenderInfo.ID == "" {
		w.SenderInfo.ID = sender
	}

	var last model.Message
	if len(w.LastMessage) > 0 && !isNull(w.LastMessage) {
		last, err = Normalize(w.LastMessage)
		if err != nil {
			return model.ChatListUpdate{}, err
		}
	}
	return model.ChatListUpdate{
		SenderID:           sender,
		SenderInfo:         w.SenderInfo,
		LastMessage:        last,
		LastMessagePreview: w.LastMessagePreview,
		Timestamp:          w.Timestamp,
		UnreadCount:        w.UnreadCount,
	}, nil
}

// NormalizeID decodes a payload that is either a bare id or a document
// carrying one, as sent with messageDeleted.
func NormalizeID(raw json.RawMessage) (string, error) {
	var w struct {
		MessageID string `json:"messageId"`
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		if err := json.Unmarshal(raw, &w); err == nil && w.MessageID != "" {
			return w.MessageID, nil
		}
	}
	return idOf(raw)
}

func idOf(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{':
		var doc struct {
			ID    string `json:"_id"`
			AltID string `json:"id"`
		}
		err := json.Unmarshal(raw, &doc)
		return firstNonEmpty(doc.ID, doc.AltID), err
	}
	return "", fmt.Errorf("unexpected id payload %s", raw)
}

func refOf(raw json.RawMessage) (*model.MessageRef, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}
	if raw[0] == '"' {
		id, err := idOf(raw)
		if err != nil || id == "" {
			return nil, err
		}
		return &model.MessageRef{ID: id}, nil
	}

	var w wireRef
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	sender, err := idOf(w.SenderID)
	if err != nil {
		return nil, err
	}
	return &model.MessageRef{
		ID:       firstNonEmpty(w.ID, w.AltID),
		Text:     w.Text,
		Image:    imageOf(w.Image),
		SenderID: sender,
	}, nil
}

func imageOf(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var present bool
	if err := json.Unmarshal(raw, &present); err == nil && present {
		return ImageMarker
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
