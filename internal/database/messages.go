package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/model"
)

const messageColumns = `
	m.id, m.sender_id, m.receiver_id, m.text, m.image, m.created_at, m.updated_at,
	r.id, r.text, r.image, r.sender_id,
	f.id, f.text, f.image, f.sender_id`

const messageJoins = `
LEFT JOIN messages r ON r.id = m.reply_to
LEFT JOIN messages f ON f.id = m.forwarded_from`

func scanMessage(row interface{ Scan(...any) error }) (model.Message, error) {
	var (
		m                            model.Message
		id, sender, receiver         pgtype.UUID
		rID, rSender, fID, fSender   pgtype.UUID
		rText, rImage, fText, fImage pgtype.Text
	)
	err := row.Scan(
		&id, &sender, &receiver, &m.Text, &m.Image, &m.CreatedAt, &m.UpdatedAt,
		&rID, &rText, &rImage, &rSender,
		&fID, &fText, &fImage, &fSender,
	)
	if err != nil {
		return model.Message{}, mapErr(err)
	}

	m.ID = idString(id)
	m.SenderID = idString(sender)
	m.ReceiverID = idString(receiver)
	m.Reactions = []model.Reaction{}
	if rID.Valid {
		m.ReplyTo = &model.MessageRef{ID: idString(rID), Text: rText.String, Image: rImage.String, SenderID: idString(rSender)}
	}
	if fID.Valid {
		m.ForwardedFrom = &model.MessageRef{ID: idString(fID), Text: fText.String, Image: fImage.String, SenderID: idString(fSender)}
	}
	return m, nil
}

func optionalRef(ref *model.MessageRef) (pgtype.UUID, error) {
	if ref == nil || ref.ID == "" {
		return pgtype.UUID{}, nil
	}
	return parseID(ref.ID)
}

func (q *Queries) CreateMessage(ctx context.Context, m model.Message) (model.Message, error) {
	sender, err := parseID(m.SenderID)
	if err != nil {
		return model.Message{}, err
	}
	receiver, err := parseID(m.ReceiverID)
	if err != nil {
		return model.Message{}, err
	}
	replyTo, err := optionalRef(m.ReplyTo)
	if err != nil {
		return model.Message{}, err
	}
	forwarded, err := optionalRef(m.ForwardedFrom)
	if err != nil {
		return model.Message{}, err
	}

	id := uuid.New()
	_, err = q.pool.Exec(ctx, `
INSERT INTO messages (id, sender_id, receiver_id, text, image, reply_to, forwarded_from, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pgtype.UUID{Bytes: id, Valid: true},
		sender,
		receiver,
		m.Text,
		m.Image,
		replyTo,
		forwarded,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", mapErr(err))
	}

	return q.GetMessage(ctx, id.String())
}

func (q *Queries) GetMessage(ctx context.Context, id string) (model.Message, error) {
	mid, err := parseID(id)
	if err != nil {
		return model.Message{}, err
	}
	row := q.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages m`+messageJoins+` WHERE m.id = $1`, mid)
	m, err := scanMessage(row)
	if err != nil {
		return model.Message{}, err
	}

	msgs := []model.Message{m}
	if err := q.loadReactions(ctx, msgs); err != nil {
		return model.Message{}, err
	}
	return msgs[0], nil
}

func (q *Queries) ListConversation(ctx context.Context, a, b string) ([]model.Message, error) {
	ua, err := parseID(a)
	if err != nil {
		return nil, err
	}
	ub, err := parseID(b)
	if err != nil {
		return nil, err
	}

	rows, err := q.pool.Query(ctx, `SELECT `+messageColumns+` FROM messages m`+messageJoins+`
WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)
ORDER BY m.created_at ASC`, ua, ub)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := q.loadReactions(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (q *Queries) ListChatPeers(ctx context.Context, userID string) ([]chat.ChatPeer, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	rows, err := q.pool.Query(ctx, `
SELECT `+messageColumns+` FROM (
	SELECT DISTINCT ON (peer) id FROM (
		SELECT id, created_at,
			CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
	) x
	ORDER BY peer, created_at DESC
) latest
JOIN messages m ON m.id = latest.id`+messageJoins+`
ORDER BY m.created_at DESC`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []chat.ChatPeer
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		peer := m.SenderID
		if peer == userID {
			peer = m.ReceiverID
		}
		peers = append(peers, chat.ChatPeer{PeerID: peer, LastMessage: m})
	}
	return peers, rows.Err()
}

func (q *Queries) DeleteMessage(ctx context.Context, id string) error {
	mid, err := parseID(id)
	if err != nil {
		return err
	}
	tag, err := q.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, mid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (q *Queries) UpsertReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) (model.Message, error) {
	mid, err := parseID(messageID)
	if err != nil {
		return model.Message{}, err
	}
	uid, err := parseID(userID)
	if err != nil {
		return model.Message{}, err
	}

	_, err = q.pool.Exec(ctx, `
INSERT INTO reactions (message_id, user_id, emoji, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (message_id, user_id) DO UPDATE
SET emoji = EXCLUDED.emoji, created_at = EXCLUDED.created_at`,
		mid, uid, emoji, at)
	if err != nil {
		return model.Message{}, fmt.Errorf("upsert reaction: %w", mapErr(err))
	}
	return q.GetMessage(ctx, messageID)
}

func (q *Queries) DeleteReaction(ctx context.Context, messageID, userID string) (model.Message, error) {
	mid, err := parseID(messageID)
	if err != nil {
		return model.Message{}, err
	}
	uid, err := parseID(userID)
	if err != nil {
		return model.Message{}, err
	}

	if _, err := q.pool.Exec(ctx, `DELETE FROM reactions WHERE message_id = $1 AND user_id = $2`, mid, uid); err != nil {
		return model.Message{}, err
	}
	return q.GetMessage(ctx, messageID)
}

// loadReactions fills Reactions on msgs in place, oldest first.
func (q *Queries) loadReactions(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	index := make(map[string]int, len(msgs))
	ids := make([]string, 0, len(msgs))
	for i, m := range msgs {
		index[m.ID] = i
		ids = append(ids, m.ID)
	}

	rows, err := q.pool.Query(ctx, `
SELECT message_id, user_id, emoji, created_at FROM reactions
WHERE message_id = ANY($1::uuid[])
ORDER BY created_at ASC`, ids)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			mid, uid pgtype.UUID
			r        model.Reaction
		)
		if err := rows.Scan(&mid, &uid, &r.Emoji, &r.CreatedAt); err != nil {
			return err
		}
		r.UserID = idString(uid)
		if i, ok := index[idString(mid)]; ok {
			msgs[i].Reactions = append(msgs[i].Reactions, r)
		}
	}
	return rows.Err()
}
