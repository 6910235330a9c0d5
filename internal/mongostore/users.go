package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/model"
)

type userDoc struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	FullName   string        `bson:"fullName"`
	Username   string        `bson:"username"`
	Email      string        `bson:"email"`
	ProfilePic string        `bson:"profilePic"`
	Password   string        `bson:"password"`
	CreatedAt  time.Time     `bson:"createdAt"`
	UpdatedAt  time.Time     `bson:"updatedAt"`
}

func (d userDoc) model() model.User {
	return model.User{
		ID:         d.ID.Hex(),
		FullName:   d.FullName,
		Username:   d.Username,
		Email:      d.Email,
		ProfilePic: d.ProfilePic,
		CreatedAt:  d.CreatedAt,
	}
}

func (s *Store) CreateUser(ctx context.Context, u chat.NewUser) (model.User, error) {
	now := time.Now().UTC()
	doc := userDoc{
		ID:        bson.NewObjectID(),
		FullName:  u.FullName,
		Username:  u.Username,
		Email:     u.Email,
		Password:  u.HashedPassword,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return model.User{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return model.User{}, err
	}
	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return model.User{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": objectIDs(ids)}})
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.model())
	}
	return users, nil
}

func (s *Store) GetUserWithPasswordByEmail(ctx context.Context, email string) (model.User, string, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return model.User{}, "", mapErr(err)
	}
	return doc.model(), doc.Password, nil
}

func (s *Store) ListUsersExcept(ctx context.Context, id string) ([]model.User, error) {
	filter := bson.M{}
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "fullName", Value: 1}}).
		SetProjection(bson.M{"password": 0})

	cur, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.model())
	}
	return users, nil
}
