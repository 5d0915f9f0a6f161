package reviews

import (
	"context"
	"errors"
	"fmt"

	"reviewbot/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id int64) (*Review, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	SetBlurredPhoto(ctx context.Context, id int64, blurredID string) error
	SetPhoto(ctx context.Context, id int64, photoID, blurredID string) error
	SetArchivedURL(ctx context.Context, id int64, url string) error
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
	ListApproved(ctx context.Context, offset, limit int) ([]Review, error)
	CountApproved(ctx context.Context) (int, error)
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) Store {
	return &Repository{db: db}
}

const reviewColumns = `id, user_id, COALESCE(username, ''), text, COALESCE(photo_id, ''),
	COALESCE(blurred_photo_id, ''), COALESCE(photo_url, ''), rating, COALESCE(product_code, ''),
	status, created_at`

func scanReview(row pgx.Row, r *Review) error {
	var status string
	err := row.Scan(
		&r.ID, &r.UserID, &r.Username, &r.Text, &r.PhotoID,
		&r.BlurredPhotoID, &r.PhotoURL, &r.Rating, &r.ProductCode,
		&status, &r.CreatedAt,
	)
	r.Status = Status(status)
	return err
}

// Create inserts a review. An empty status means pending.
func (r *Repository) Create(ctx context.Context, rv *Review) error {
	if rv.Status == "" {
		rv.Status = StatusPending
	}
	if err := rv.Validate(); err != nil {
		return fmt.Errorf("invalid review: %w", err)
	}

	query := `
		INSERT INTO reviews (user_id, username, text, photo_id, blurred_photo_id, photo_url, rating, product_code, status)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), $9)
		RETURNING id, created_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.db.QueryRow(ctx, query,
		rv.UserID, rv.Username, rv.Text, rv.PhotoID, rv.BlurredPhotoID, rv.PhotoURL,
		rv.Rating, rv.ProductCode, string(rv.Status),
	).Scan(&rv.ID, &rv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var rv Review
	if err := scanReview(r.db.QueryRow(ctx, query, id), &rv); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get review %d: %w", id, err)
	}
	return &rv, nil
}

// SetStatus moves a pending review to status. A review that is missing or
// no longer pending yields ErrNotFound, so a second decision is a no-op.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("set review %d status: invalid status %q", id, status)
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx,
		`UPDATE reviews SET status = $2 WHERE id = $1 AND status = 'pending'`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("set review %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetBlurredPhoto(ctx context.Context, id int64, blurredID string) error {
	return r.exec(ctx, "set blurred photo",
		`UPDATE reviews SET blurred_photo_id = NULLIF($2, '') WHERE id = $1`, id, blurredID)
}

// SetPhoto replaces both photo references; the archived copy is cleared until
// it is uploaded again.
func (r *Repository) SetPhoto(ctx context.Context, id int64, photoID, blurredID string) error {
	return r.exec(ctx, "set photo",
		`UPDATE reviews SET photo_id = $2, blurred_photo_id = NULLIF($3, ''), photo_url = NULL WHERE id = $1`,
		id, photoID, blurredID)
}

func (r *Repository) SetArchivedURL(ctx context.Context, id int64, url string) error {
	return r.exec(ctx, "set archived url",
		`UPDATE reviews SET photo_url = $2 WHERE id = $1`, id, url)
}

func (r *Repository) exec(ctx context.Context, what, query string, id int64, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s for review %d: %w", what, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the review if present.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if _, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete review %d: %w", id, err)
	}
	return nil
}

func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM reviews`)
	if err != nil {
		return 0, fmt.Errorf("delete all reviews: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListApproved returns approved reviews, newest first.
func (r *Repository) ListApproved(ctx context.Context, offset, limit int) ([]Review, error) {
	query := `SELECT ` + reviewColumns + `
		FROM reviews
		WHERE status = 'approved'
		ORDER BY id DESC
		LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved reviews: %w", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var rv Review
		if err := scanReview(rows, &rv); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) CountApproved(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE status = 'approved'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count approved reviews: %w", err)
	}
	return n, nil
}
