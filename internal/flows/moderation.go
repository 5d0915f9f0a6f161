package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reviewbot/internal/callback"
	"reviewbot/internal/domain/activity"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/domain/storage"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
	"reviewbot/internal/notifications"
)

func moderationKeyboard(reviewID int64) messenger.InlineKeyboard {
	return messenger.InlineKeyboard{
		messenger.Row(
			messenger.Button{Text: "✅ Approve", Action: callback.Action{Kind: callback.Approve, ReviewID: reviewID}},
			messenger.Button{Text: "🚫 Reject", Action: callback.Action{Kind: callback.Reject, ReviewID: reviewID}},
		),
		messenger.Row(messenger.Button{Text: "🗑 Delete", Action: callback.Action{Kind: callback.Delete, ReviewID: reviewID}}),
	}
}

func (s *Service) moderationText(r *reviews.Review, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d\n", title, r.ID)
	fmt.Fprintf(&b, "👤 From: %s (id %d)\n", r.Username, r.UserID)
	fmt.Fprintf(&b, "🛍 Product: %s\n", s.catalog.Title(r.ProductCode))
	fmt.Fprintf(&b, "⭐ Rating: %s (%d/5)", stars(r.Rating), r.Rating)
	if r.Text != "" {
		b.WriteString("\n\n")
		b.WriteString(r.Text)
	}
	return b.String()
}

func (s *Service) Approve(ctx context.Context, p Press) (reply, error) {
	return s.decide(ctx, p, reviews.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, p Press) (reply, error) {
	return s.decide(ctx, p, reviews.StatusRejected)
}

// decide moves a pending review to status. A review that is gone or already
// decided is reported to the operator and left untouched.
func (s *Service) decide(ctx context.Context, p Press, status reviews.Status) (reply, error) {
	id := p.Action.ReviewID

	r, err := s.store.Reviews.GetByID(ctx, id)
	if err != nil && !errors.Is(err, reviews.ErrNotFound) {
		return reply{}, fmt.Errorf("load review %d: %w", id, err)
	}
	if err == nil && r.Status == reviews.StatusPending {
		err = s.store.Reviews.SetStatus(ctx, id, status)
		if err != nil && !errors.Is(err, reviews.ErrNotFound) {
			return reply{}, fmt.Errorf("set review %d %s: %w", id, status, err)
		}
	} else if err == nil {
		err = reviews.ErrNotFound
	}
	if err != nil {
		s.metrics.ModerationDecisions.WithLabelValues("stale").Inc()
		s.edit(ctx, p.Message, fmt.Sprintf("ℹ️ Review #%d has already been processed.", id), nil)
		return reply{text: "Already processed"}, nil
	}
	r.Status = status

	verdict, event := "✅ Approved", notifications.ReviewApproved
	if status == reviews.StatusRejected {
		verdict, event = "🚫 Rejected", notifications.ReviewRejected
	}
	text := s.moderationText(r, "Review") + "\n\n" + verdict
	if p.Message.HasMedia {
		text = captionLimit(text)
	} else {
		text = textLimit(text)
	}
	s.edit(ctx, p.Message, text, nil)

	d := notifications.SendReviewDecision(ctx, s.msg, r.UserID, event, r.ID)
	s.afterDelivery(ctx, d)

	s.metrics.ModerationDecisions.WithLabelValues(string(status)).Inc()
	s.logger.Infow("review moderated", "review_id", id, "status", status, "notified", d.OK())
	return reply{text: verdict}, nil
}

// afterDelivery logs a failed delivery and marks unreachable users inactive.
func (s *Service) afterDelivery(ctx context.Context, d messenger.Delivery) {
	if d.OK() {
		return
	}
	s.logger.Warnw("message not delivered", "user_id", d.ChatID, "error", d.Err)
	if !d.Unavailable() {
		return
	}
	if err := s.store.Users.SetActive(ctx, d.ChatID, false); err != nil && !errors.Is(err, users.ErrNotFound) {
		s.logger.Warnw("mark user inactive", "user_id", d.ChatID, "error", err)
	}
}

// Delete removes a review unconditionally, including its archived photo.
func (s *Service) Delete(ctx context.Context, p Press) (reply, error) {
	id := p.Action.ReviewID

	var photoURL string
	if r, err := s.store.Reviews.GetByID(ctx, id); err == nil {
		photoURL = r.PhotoURL
	}

	if err := s.store.Reviews.Delete(ctx, id); err != nil {
		return reply{}, fmt.Errorf("delete review %d: %w", id, err)
	}
	if photoURL != "" {
		if err := s.archive.Remove(ctx, photoURL); err != nil {
			s.logger.Warnw("remove archived photo", "review_id", id, "error", err)
		}
	}

	s.metrics.ModerationDecisions.WithLabelValues("deleted").Inc()
	s.edit(ctx, p.Message, fmt.Sprintf("🗑 Review #%d has been deleted.", id), nil)
	return reply{text: "Review deleted", alert: true}, nil
}

// ForwardAsReview publishes a message the operator forwarded as an approved
// five-star review by its original author.
func (s *Service) ForwardAsReview(ctx context.Context, op users.User, f Forward) error {
	if !s.IsOperator(op.ID) {
		return s.HandleUnknown(ctx, op)
	}
	if f.Sender == nil {
		msg := "⚠️ Cannot create a review: the author of this message hides their account, so the original sender is unknown."
		if f.HiddenName != "" {
			msg += fmt.Sprintf("\nShown name: %s", f.HiddenName)
		}
		return s.hint(ctx, op.ID, msg)
	}
	text := strings.TrimSpace(f.Text)
	if text == "" && f.PhotoFileID == "" {
		return s.hint(ctx, op.ID, "⚠️ Cannot create a review: the forwarded message has neither text nor a photo.")
	}

	author := *f.Sender
	r := &reviews.Review{
		UserID:   author.ID,
		Username: author.DisplayName(),
		Text:     text,
		PhotoID:  f.PhotoFileID,
		Rating:   reviews.MaxRating,
		Status:   reviews.StatusApproved,
	}

	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.Users.Upsert(ctx, &author); err != nil {
			return err
		}
		if err := tx.Reviews.Create(ctx, r); err != nil {
			return err
		}
		return tx.Activity.Log(ctx, author.ID, activity.ActionForwardedReviewCreated)
	})
	if err != nil {
		return s.apologise(ctx, op.ID, fmt.Errorf("store forwarded review: %w", err))
	}

	s.metrics.ReviewsSubmitted.WithLabelValues("forward", fmt.Sprint(r.HasPhoto())).Inc()
	s.logger.Infow("forwarded review published", "review_id", r.ID, "user_id", author.ID)
	return s.hint(ctx, op.ID, fmt.Sprintf("✅ Review #%d from %s has been published.", r.ID, r.Username))
}
