package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/johndosdos/dmchat/internal/chat"
	"github.com/johndosdos/dmchat/internal/model"
)

const userColumns = `user_id, full_name, username, email, profile_pic, created_at`

func scanUser(row interface{ Scan(...any) error }, extra ...any) (model.User, error) {
	var (
		u  model.User
		id pgtype.UUID
	)
	dest := append([]any{&id, &u.FullName, &u.Username, &u.Email, &u.ProfilePic, &u.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.User{}, mapErr(err)
	}
	u.ID = idString(id)
	return u, nil
}

func (q *Queries) CreateUser(ctx context.Context, arg chat.NewUser) (model.User, error) {
	row := q.pool.QueryRow(ctx, `
INSERT INTO users (user_id, full_name, username, email, hashed_password, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+userColumns,
		pgtype.UUID{Bytes: uuid.New(), Valid: true},
		arg.FullName,
		arg.Username,
		arg.Email,
		arg.HashedPassword,
		time.Now().UTC(),
	)
	return scanUser(row)
}

func (q *Queries) GetUser(ctx context.Context, id string) (model.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return model.User{}, err
	}
	row := q.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, uid)
	return scanUser(row)
}

func (q *Queries) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ANY($1::uuid[])`,
		validIDs(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (q *Queries) GetUserWithPasswordByEmail(ctx context.Context, email string) (model.User, string, error) {
	var hash string
	row := q.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, hashed_password FROM users WHERE lower(email) = lower($1)`,
		email)
	u, err := scanUser(row, &hash)
	if err != nil {
		return model.User{}, "", err
	}
	return u, hash, nil
}

func (q *Queries) ListUsersExcept(ctx context.Context, id string) ([]model.User, error) {
	// A malformed id matches nobody, so every user is listed.
	uid, _ := parseID(id)
	rows, err := q.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id IS DISTINCT FROM $1 ORDER BY full_name`,
		uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
