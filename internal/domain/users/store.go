package users

import (
	"context"
	"errors"
	"fmt"

	"reviewbot/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	ListIDs(ctx context.Context) ([]int64, error)
	List(ctx context.Context, search string, limit, offset int) ([]User, int, error)
	SetActive(ctx context.Context, id int64, active bool) error
	ReviewCounts(ctx context.Context, id int64) (*ReviewCounts, error)
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) Store {
	return &Repository{db: db}
}

const userColumns = `user_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
	created_at, last_activity_at, is_active`

// Upsert records an interaction: the profile fields are refreshed, the
// activity timestamp moves to now and the user counts as reachable again.
func (r *Repository) Upsert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (user_id, username, first_name, last_name)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (user_id) DO UPDATE SET
			username         = EXCLUDED.username,
			first_name       = EXCLUDED.first_name,
			last_name        = EXCLUDED.last_name,
			last_activity_at = now(),
			is_active        = true
		RETURNING created_at, last_activity_at, is_active
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.db.QueryRow(ctx, query, u.ID, u.Username, u.FirstName, u.LastName).
		Scan(&u.CreatedAt, &u.LastActivityAt, &u.IsActive)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var u User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt, &u.LastActivityAt, &u.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// ListIDs returns every known user, reachable or not.
func (r *Repository) ListIDs(ctx context.Context) ([]int64, error) {
	return r.ids(ctx, `SELECT user_id FROM users ORDER BY user_id`)
}

func (r *Repository) ids(ctx context.Context, query string) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List pages through users, most recently active first. A non-empty search
// is a literal case-insensitive substring of username or names, or the exact
// numeric id.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]User, int, error) {
	const filter = `
		WHERE $1 = ''
		   OR strpos(lower(username), lower($1)) > 0
		   OR strpos(lower(first_name), lower($1)) > 0
		   OR strpos(lower(last_name), lower($1)) > 0
		   OR CAST(user_id AS TEXT) = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+filter, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + filter + `
		ORDER BY last_activity_at DESC, user_id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, search, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt, &u.LastActivityAt, &u.IsActive); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// SetActive flips the reachability flag. Unknown ids are ignored.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if _, err := r.db.Exec(ctx, `UPDATE users SET is_active = $2 WHERE user_id = $1`, id, active); err != nil {
		return fmt.Errorf("set user %d active=%t: %w", id, active, err)
	}
	return nil
}

func (r *Repository) ReviewCounts(ctx context.Context, id int64) (*ReviewCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM reviews WHERE user_id = $1),
			(SELECT COUNT(*) FROM reviews WHERE user_id = $1 AND status = 'approved'),
			(SELECT COUNT(*) FROM reviews WHERE user_id = $1 AND status = 'pending')
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var c ReviewCounts
	if err := r.db.QueryRow(ctx, query, id).Scan(&c.Total, &c.Approved, &c.Pending); err != nil {
		return nil, fmt.Errorf("review counts for user %d: %w", id, err)
	}
	return &c, nil
}
