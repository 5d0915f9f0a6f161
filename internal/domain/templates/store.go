package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reviewbot/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	Upsert(ctx context.Context, name, text string) (*Template, error)
	GetByID(ctx context.Context, id int64) (*Template, error)
	GetByName(ctx context.Context, name string) (*Template, error)
	List(ctx context.Context) ([]Template, error)
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) Store {
	return &Repository{db: db}
}

// Upsert saves text under name, replacing the body of an existing template.
func (r *Repository) Upsert(ctx context.Context, name, text string) (*Template, error) {
	t := &Template{Name: strings.TrimSpace(name), Text: text}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	query := `
		INSERT INTO message_templates (name, text) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET text = EXCLUDED.text
		RETURNING id
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if err := r.db.QueryRow(ctx, query, t.Name, t.Text).Scan(&t.ID); err != nil {
		return nil, fmt.Errorf("upsert template %q: %w", t.Name, err)
	}
	return t, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Template, error) {
	return r.getOne(ctx, `SELECT id, name, text FROM message_templates WHERE id = $1`, id)
}

func (r *Repository) GetByName(ctx context.Context, name string) (*Template, error) {
	return r.getOne(ctx, `SELECT id, name, text FROM message_templates WHERE name = $1`, name)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*Template, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var t Template
	if err := r.db.QueryRow(ctx, query, arg).Scan(&t.ID, &t.Name, &t.Text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get template %v: %w", arg, err)
	}
	return &t, nil
}

func (r *Repository) List(ctx context.Context) ([]Template, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT id, name, text FROM message_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Text); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
