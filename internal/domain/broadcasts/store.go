package broadcasts

import (
	"context"
	"fmt"

	"reviewbot/internal/infra/dbx"
)

type Store interface {
	Record(ctx context.Context, run *Run) error
	ListRecent(ctx context.Context, limit int) ([]Run, error)
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) Store {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO broadcast_runs (operator_id, text, total, sent, failed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.db.QueryRow(ctx, query,
		run.OperatorID, run.Text, run.Total, run.Sent, run.Failed, run.StartedAt, run.FinishedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("record broadcast run: %w", err)
	}
	return nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, operator_id, text, total, sent, failed, started_at, finished_at
		FROM broadcast_runs
		ORDER BY id DESC
		LIMIT $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list broadcast runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.OperatorID, &run.Text, &run.Total, &run.Sent, &run.Failed, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan broadcast run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
