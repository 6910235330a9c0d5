// Package database is the Postgres implementation of chat.Store.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johndosdos/dmchat/internal/chat"
)

type Queries struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

func (q *Queries) Ping(ctx context.Context) error {
	return q.pool.Ping(ctx)
}

// parseID rejects ids that cannot exist in this store, so malformed ids read
// as missing records rather than query errors.
func parseID(s string) (pgtype.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("id %q: %w", s, chat.ErrNotFound)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

func idString(p pgtype.UUID) string {
	if !p.Valid {
		return ""
	}
	return uuid.UUID(p.Bytes).String()
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// mapErr translates driver errors into chat sentinels.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, chat.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, chat.ErrNotFound)
		}
	}
	return err
}

var _ chat.Store = (*Queries)(nil)
