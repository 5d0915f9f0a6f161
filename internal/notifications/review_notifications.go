package notifications

import (
	"context"
	"fmt"

	"reviewbot/internal/messenger"
)

type ReviewEvent string

const (
	ReviewApproved ReviewEvent = "APPROVED"
	ReviewRejected ReviewEvent = "REJECTED"
	ReviewDeleted  ReviewEvent = "DELETED"
)

// SendReviewDecision tells the author of a review what happened to it. The
// outcome is returned as a Delivery; callers log failures and move on.
func SendReviewDecision(ctx context.Context, m messenger.Messenger, userID int64, event ReviewEvent, reviewID int64) messenger.Delivery {
	var body string
	switch event {
	case ReviewApproved:
		body = fmt.Sprintf("🎉 Your review #%d has been approved and is now visible to everyone. Thank you!", reviewID)
	case ReviewRejected:
		body = fmt.Sprintf("Unfortunately, your review #%d has been rejected.", reviewID)
	case ReviewDeleted:
		body = fmt.Sprintf("Your review #%d has been removed by the administrator.", reviewID)
	default:
		body = fmt.Sprintf("Your review #%d has an update.", reviewID)
	}

	return messenger.Deliver(ctx, m, userID, body)
}

// SendDirect relays a message from the operator to a single user.
func SendDirect(ctx context.Context, m messenger.Messenger, userID int64, text string) messenger.Delivery {
	return messenger.Deliver(ctx, m, userID, messenger.Truncate("✉️ Message from the administrator:\n\n"+text, messenger.MaxText))
}
