package reviews

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound          = errors.New("review not found")
	QueryTimeoutDuration = time.Second * 5
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id" validate:"required"`
	Username       string    `json:"username"`
	Text           string    `json:"text" validate:"required_without=PhotoID,max=4096"`
	PhotoID        string    `json:"photo_id,omitempty"`
	BlurredPhotoID string    `json:"blurred_photo_id,omitempty"`
	PhotoURL       string    `json:"photo_url,omitempty"`
	Rating         int       `json:"rating" validate:"min=1,max=5"`
	ProductCode    string    `json:"product_code,omitempty"`
	Status         Status    `json:"status" validate:"oneof=pending approved rejected"`
	CreatedAt      time.Time `json:"created_at"`
}

func (r *Review) HasPhoto() bool {
	return r.PhotoID != ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the rating range, the status and that the review carries
// either text or a photo.
func (r *Review) Validate() error {
	return validate.Struct(r)
}
