// Package mongostore is the MongoDB implementation of chat.Store. Documents
// keep the users/messages layout with reactions embedded in each message.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/johndosdos/dmchat/internal/chat"
)

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	messages *mongo.Collection
}

// Connect dials uri and verifies the connection with a ping.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return New(client.Database(dbName)), nil
}

// New wraps an existing database handle.
func New(db *mongo.Database) *Store {
	return &Store{
		client:   db.Client(),
		db:       db,
		users:    db.Collection("users"),
		messages: db.Collection("messages"),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateIndexes creates the unique user keys and the conversation index.
func (s *Store) CreateIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

func objectID(s string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("id %q: %w", s, chat.ErrNotFound)
	}
	return id, nil
}

func objectIDs(ids []string) []bson.ObjectID {
	out := make([]bson.ObjectID, 0, len(ids))
	for _, s := range ids {
		if id, err := bson.ObjectIDFromHex(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return chat.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("duplicate key: %w", chat.ErrConflict)
	}
	return err
}

var _ chat.Store = (*Store)(nil)
