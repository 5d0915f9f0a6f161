package activity

import "time"

var QueryTimeoutDuration = time.Second * 5

type Action string

const (
	ActionJoin                   Action = "join"
	ActionReviewCreated          Action = "review_created"
	ActionReviewWithPhotoCreated Action = "review_with_photo_created"
	ActionViewedReviews          Action = "viewed_reviews"
	ActionViewedReview           Action = "viewed_review"
	ActionForwardedReviewCreated Action = "forwarded_review_created"
	ActionPhotoResent            Action = "photo_resent"
)
