package activity

import (
	"context"
	"fmt"

	"reviewbot/internal/infra/dbx"
)

// Store appends to the activity log. Entries are only ever read back in
// aggregate by the stats queries.
type Store interface {
	Log(ctx context.Context, userID int64, action Action) error
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) Store {
	return &Repository{db: db}
}

func (r *Repository) Log(ctx context.Context, userID int64, action Action) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := r.db.Exec(ctx, `INSERT INTO user_activity (user_id, action) VALUES ($1, $2)`, userID, string(action))
	if err != nil {
		return fmt.Errorf("log %s for user %d: %w", action, userID, err)
	}
	return nil
}
