package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/model"
)

type reactionDoc struct {
	UserID    string    `bson:"userId"`
	Emoji     string    `bson:"emoji"`
	CreatedAt time.Time `bson:"createdAt"`
}

type messageDoc struct {
	ID            bson.ObjectID  `bson:"_id,omitempty"`
	SenderID      bson.ObjectID  `bson:"senderId"`
	ReceiverID    bson.ObjectID  `bson:"receiverId"`
	Text          string         `bson:"text,omitempty"`
	Image         string         `bson:"image,omitempty"`
	ReplyTo       *bson.ObjectID `bson:"replyTo,omitempty"`
	ForwardedFrom *bson.ObjectID `bson:"forwardedFrom,omitempty"`
	Reactions     []reactionDoc  `bson:"reactions"`
	CreatedAt     time.Time      `bson:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt"`
}

func (d messageDoc) model() model.Message {
	m := model.Message{
		ID:         d.ID.Hex(),
		SenderID:   d.SenderID.Hex(),
		ReceiverID: d.ReceiverID.Hex(),
		Text:       d.Text,
		Image:      d.Image,
		Reactions:  make([]model.Reaction, 0, len(d.Reactions)),
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
	for _, r := range d.Reactions {
		m.Reactions = append(m.Reactions, model.Reaction{
			UserID:    r.UserID,
			Emoji:     r.Emoji,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return m
}

func optionalRef(ref *model.MessageRef) (*bson.ObjectID, error) {
	if ref == nil || ref.ID == "" {
		return nil, nil
	}
	id, err := objectID(ref.ID)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Store) CreateMessage(ctx context.Context, m model.Message) (model.Message, error) {
	sender, err := objectID(m.SenderID)
	if err != nil {
		return model.Message{}, err
	}
	receiver, err := objectID(m.ReceiverID)
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

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	doc := messageDoc{
		ID:            bson.NewObjectID(),
		SenderID:      sender,
		ReceiverID:    receiver,
		Text:          m.Text,
		Image:         m.Image,
		ReplyTo:       replyTo,
		ForwardedFrom: forwarded,
		Reactions:     []reactionDoc{},
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", mapErr(err))
	}

	msgs, err := s.populate(ctx, []messageDoc{doc})
	if err != nil {
		return model.Message{}, err
	}
	return msgs[0], nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (model.Message, error) {
	oid, err := objectID(id)
	if err != nil {
		return model.Message{}, err
	}
	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return model.Message{}, mapErr(err)
	}
	msgs, err := s.populate(ctx, []messageDoc{doc})
	if err != nil {
		return model.Message{}, err
	}
	return msgs[0], nil
}

func (s *Store) ListConversation(ctx context.Context, a, b string) ([]model.Message, error) {
	aid, err := objectID(a)
	if err != nil {
		return nil, err
	}
	bid, err := objectID(b)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"senderId": aid, "receiverId": bid},
		bson.M{"senderId": bid, "receiverId": aid},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return s.populate(ctx, docs)
}

func (s *Store) ListChatPeers(ctx context.Context, userID string) ([]chat.ChatPeer, error) {
	uid, err := objectID(userID)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"senderId": uid},
			bson.M{"receiverId": uid},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$senderId", uid}}, "$receiverId", "$senderId",
			}}},
			{Key: "last", Value: bson.M{"$last": "$$ROOT"}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last.createdAt", Value: -1}}}},
	}

	cur, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate chat peers: %w", err)
	}
	var rows []struct {
		Peer bson.ObjectID `bson:"_id"`
		Last messageDoc    `bson:"last"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	docs := make([]messageDoc, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.Last)
	}
	msgs, err := s.populate(ctx, docs)
	if err != nil {
		return nil, err
	}

	peers := make([]chat.ChatPeer, 0, len(rows))
	for i, r := range rows {
		peers = append(peers, chat.ChatPeer{PeerID: r.Peer.Hex(), LastMessage: msgs[i]})
	}
	return peers, nil
}

// DeleteMessage removes the message and clears references to it, so replies
// and forwards outlive their target.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.messages.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return chat.ErrNotFound
	}

	for _, field := range []string{"replyTo", "forwardedFrom"} {
		_, err := s.messages.UpdateMany(ctx,
			bson.M{field: oid},
			bson.M{"$unset": bson.M{field: ""}},
		)
		if err != nil {
			return fmt.Errorf("clear %s references: %w", field, err)
		}
	}
	return nil
}

func (s *Store) UpsertReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) (model.Message, error) {
	oid, err := objectID(messageID)
	if err != nil {
		return model.Message{}, err
	}

	// Drop any earlier reaction by the user and append the new one in a
	// single atomic update.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reactions": bson.M{"$concatArrays": bson.A{
				bson.M{"$filter": bson.M{
					"input": bson.M{"$ifNull": bson.A{"$reactions", bson.A{}}},
					"as":    "r",
					"cond":  bson.M{"$ne": bson.A{"$$r.userId", bson.M{"$literal": userID}}},
				}},
				bson.A{bson.M{
					"userId":    bson.M{"$literal": userID},
					"emoji":     bson.M{"$literal": emoji},
					"createdAt": at,
				}},
			}},
			"updatedAt": at,
		}}},
	}
	return s.updateMessage(ctx, oid, update)
}

func (s *Store) DeleteReaction(ctx context.Context, messageID, userID string) (model.Message, error) {
	oid, err := objectID(messageID)
	if err != nil {
		return model.Message{}, err
	}
	update := bson.M{"$pull": bson.M{"reactions": bson.M{"userId": userID}}}
	return s.updateMessage(ctx, oid, update)
}

func (s *Store) updateMessage(ctx context.Context, id bson.ObjectID, update any) (model.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc messageDoc
	err := s.messages.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if err != nil {
		return model.Message{}, mapErr(err)
	}
	msgs, err := s.populate(ctx, []messageDoc{doc})
	if err != nil {
		return model.Message{}, err
	}
	return msgs[0], nil
}

// populate converts docs and fills their reply and forward references with
// one lookup. References to deleted messages are left nil.
func (s *Store) populate(ctx context.Context, docs []messageDoc) ([]model.Message, error) {
	var refIDs []bson.ObjectID
	for _, d := range docs {
		if d.ReplyTo != nil {
			refIDs = append(refIDs, *d.ReplyTo)
		}
		if d.ForwardedFrom != nil {
			refIDs = append(refIDs, *d.ForwardedFrom)
		}
	}

	refs := make(map[bson.ObjectID]messageDoc, len(refIDs))
	if len(refIDs) > 0 {
		opts := options.Find().SetProjection(bson.M{"text": 1, "image": 1, "senderId": 1})
		cur, err := s.messages.Find(ctx, bson.M{"_id": bson.M{"$in": refIDs}}, opts)
		if err != nil {
			return nil, fmt.Errorf("load references: %w", err)
		}
		var found []messageDoc
		if err := cur.All(ctx, &found); err != nil {
			return nil, err
		}
		for _, f := range found {
			refs[f.ID] = f
		}
	}

	ref := func(id *bson.ObjectID) *model.MessageRef {
		if id == nil {
			return nil
		}
		d, ok := refs[*id]
		if !ok {
			return nil
		}
		return &model.MessageRef{
			ID:       d.ID.Hex(),
			Text:     d.Text,
			Image:    d.Image,
			SenderID: d.SenderID.Hex(),
		}
	}

	msgs := make([]model.Message, 0, len(docs))
	for _, d := range docs {
		m := d.model()
		m.ReplyTo = ref(d.ReplyTo)
		m.ForwardedFrom = ref(d.ForwardedFrom)
		msgs = append(msgs, m)
	}
	return msgs, nil
}
