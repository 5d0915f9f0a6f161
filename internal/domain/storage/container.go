package storage

import (
	"context"
	"errors"

	"reviewbot/internal/domain/activity"
	"reviewbot/internal/domain/broadcasts"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/domain/stats"
	"reviewbot/internal/domain/templates"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Container struct {
	pool       dbx.Pool
	direct     bool
	Users      users.Store
	Reviews    reviews.Store
	Templates  templates.Store
	Activity   activity.Store
	Stats      stats.Store
	Broadcasts broadcasts.Store
}

func NewContainer(db dbx.Pool) *Container {
	return &Container{
		pool:       db,
		Users:      users.NewRepository(db),
		Reviews:    reviews.NewRepository(db),
		Templates:  templates.NewRepository(db),
		Activity:   activity.NewRepository(db),
		Stats:      stats.NewRepository(db),
		Broadcasts: broadcasts.NewRepository(db),
	}
}

// NewDirect wraps stores that share no database handle, such as in-memory
// fakes. WithTx then runs fn against the stores themselves without atomicity.
func NewDirect(c Container) *Container {
	c.pool = nil
	c.direct = true
	return &c
}

// Tx is a temporary, tx-scoped set of repos for atomic units of work.
type Tx struct {
	Users    users.Store
	Reviews  reviews.Store
	Activity activity.Store
}

// WithTx runs fn inside one transaction. Any error from fn rolls back.
func (c *Container) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	if c.direct {
		return fn(&Tx{Users: c.Users, Reviews: c.Reviews, Activity: c.Activity})
	}
	if c.pool == nil {
		return errors.New("storage container has no pool")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	s := &Tx{
		Users:    users.NewRepository(tx),
		Reviews:  reviews.NewRepository(tx),
		Activity: activity.NewRepository(tx),
	}

	if err := fn(s); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
