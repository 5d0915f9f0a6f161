package stats

import (
	"context"
	"time"

	"reviewbot/internal/domain/reviews"
)

var QueryTimeoutDuration = time.Second * 5

type Overview struct {
	// Users
	TotalUsers    int64 `json:"total_users"`
	NewUsersToday int64 `json:"new_users_today"`
	ActiveToday   int64 `json:"active_today"`
	Inactive7Days int64 `json:"inactive_7_days"`

	// Reviews
	TotalReviews    int64   `json:"total_reviews"`
	ApprovedReviews int64   `json:"approved_reviews"`
	ReviewsToday    int64   `json:"reviews_today"`
	AverageRating   float64 `json:"average_rating"`
}

// Report is everything the statistics screen shows.
type Report struct {
	Overview
	ByStatus map[reviews.Status]int64 `json:"by_status"`
	Ratings  map[int]int64            `json:"ratings"`
}

type Store interface {
	GetOverview(ctx context.Context) (*Overview, error)
	RatingDistribution(ctx context.Context) (map[int]int64, error)
	ByStatus(ctx context.Context) (map[reviews.Status]int64, error)
}
