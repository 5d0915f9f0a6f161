package stats

import (
	"context"
	"fmt"

	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/infra/dbx"
)

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) Store {
	return &Repository{db: db}
}

// GetOverview computes every headline number in one round trip. "Today"
// starts at midnight in the database time zone.
func (r *Repository) GetOverview(ctx context.Context) (*Overview, error) {
	const q = `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE created_at >= CURRENT_DATE),
			(SELECT COUNT(DISTINCT user_id) FROM user_activity WHERE created_at >= CURRENT_DATE),
			(SELECT COUNT(*) FROM users WHERE last_activity_at < now() - INTERVAL '7 days'),

			(SELECT COUNT(*) FROM reviews),
			(SELECT COUNT(*) FROM reviews WHERE status = 'approved'),
			(SELECT COUNT(*) FROM reviews WHERE created_at >= CURRENT_DATE),
			(SELECT COALESCE(AVG(rating), 0)::float8 FROM reviews)
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var o Overview
	err := r.db.QueryRow(ctx, q).Scan(
		&o.TotalUsers,
		&o.NewUsersToday,
		&o.ActiveToday,
		&o.Inactive7Days,

		&o.TotalReviews,
		&o.ApprovedReviews,
		&o.ReviewsToday,
		&o.AverageRating,
	)
	if err != nil {
		return nil, fmt.Errorf("get overview: %w", err)
	}

	return &o, nil
}

// RatingDistribution always contains all five buckets.
func (r *Repository) RatingDistribution(ctx context.Context) (map[int]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT rating, COUNT(*) FROM reviews GROUP BY rating`)
	if err != nil {
		return nil, fmt.Errorf("rating distribution: %w", err)
	}
	defer rows.Close()

	out := make(map[int]int64, reviews.MaxRating)
	for i := reviews.MinRating; i <= reviews.MaxRating; i++ {
		out[i] = 0
	}
	for rows.Next() {
		var rating int
		var n int64
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("scan rating bucket: %w", err)
		}
		out[rating] = n
	}
	return out, rows.Err()
}

func (r *Repository) ByStatus(ctx context.Context) (map[reviews.Status]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM reviews GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("reviews by status: %w", err)
	}
	defer rows.Close()

	out := map[reviews.Status]int64{
		reviews.StatusPending:  0,
		reviews.StatusApproved: 0,
		reviews.StatusRejected: 0,
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status bucket: %w", err)
		}
		out[reviews.Status(status)] = n
	}
	return out, rows.Err()
}

// Collect gathers the overview and both breakdowns.
func Collect(ctx context.Context, s Store) (*Report, error) {
	o, err := s.GetOverview(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.ByStatus(ctx)
	if err != nil {
		return nil, err
	}
	ratings, err := s.RatingDistribution(ctx)
	if err != nil {
		return nil, err
	}
	return &Report{Overview: *o, ByStatus: byStatus, Ratings: ratings}, nil
}
