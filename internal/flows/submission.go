package flows

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"reviewbot/internal/callback"
	"reviewbot/internal/conversation"
	"reviewbot/internal/domain/activity"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/domain/storage"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
	"reviewbot/internal/preview"
)

const (
	textChooseProduct = "🛍 Which product is your review about?"
	textWriteReview   = "✍️ Now write your review in one message."
	textChooseRating  = "⭐ How would you rate it?"
	textPhotoOrSkip   = "📷 Attach a photo to your review or skip this step."
	textSending       = "⏳ Sending your review…"
	textThanks        = "✅ Thank you! Your review has been sent for moderation."
	textSubmitFailed  = "😔 Sorry, your review could not be sent. Please try again later."
	textCancelled     = "❌ Review cancelled."
)

var cancelRow = messenger.Row(messenger.Button{Text: "❌ Cancel", Action: callback.Action{Kind: callback.CancelReview}})

func (s *Service) productKeyboard() messenger.InlineKeyboard {
	products := s.catalog.Products()
	kb := make(messenger.InlineKeyboard, 0, len(products)+1)
	for _, p := range products {
		kb = append(kb, messenger.Row(messenger.Button{
			Text:   p.Title,
			Action: callback.Action{Kind: callback.Product, Product: p.Code},
		}))
	}
	return append(kb, cancelRow)
}

func ratingKeyboard() messenger.InlineKeyboard {
	row := make([]messenger.Button, 0, reviews.MaxRating)
	for r := reviews.MinRating; r <= reviews.MaxRating; r++ {
		row = append(row, messenger.Button{
			Text:   strconv.Itoa(r) + " ⭐",
			Action: callback.Action{Kind: callback.Rating, Rating: r},
		})
	}
	return messenger.InlineKeyboard{row, cancelRow}
}

func photoKeyboard() messenger.InlineKeyboard {
	return messenger.InlineKeyboard{
		messenger.Row(messenger.Button{Text: "⏭ Skip", Action: callback.Action{Kind: callback.SkipPhoto}}),
		cancelRow,
	}
}

// StartReview begins a submission, discarding any other flow in progress.
func (s *Service) StartReview(ctx context.Context, u users.User) error {
	st := conversation.State{Flow: conversation.FlowSubmission, Step: conversation.AwaitingProduct}
	if err := s.states.Set(ctx, u.ID, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	_, err := s.msg.SendText(ctx, u.ID, textChooseProduct, s.productKeyboard())
	return err
}

// submissionAt loads the chat's state and reports whether it is at step.
func (s *Service) submissionAt(ctx context.Context, chatID int64, step conversation.Step) (conversation.State, bool, error) {
	st, ok, err := conversation.Lookup(ctx, s.states, chatID)
	if err != nil || !ok {
		return st, false, err
	}
	return st, st.In(conversation.FlowSubmission, step), nil
}

func (s *Service) SelectProduct(ctx context.Context, p Press) (reply, error) {
	st, ok, err := s.submissionAt(ctx, p.From.ID, conversation.AwaitingProduct)
	if err != nil {
		return reply{}, err
	}
	if !ok {
		return reply{text: textStale}, nil
	}

	product, known := s.catalog.Lookup(p.Action.Product)
	if !known {
		s.edit(ctx, p.Message, textChooseProduct, s.productKeyboard())
		return reply{text: "Please choose a product from the list."}, nil
	}

	st.ProductCode = product.Code
	st.Step = conversation.AwaitingText
	if err := s.states.Set(ctx, p.From.ID, st); err != nil {
		return reply{}, fmt.Errorf("save state: %w", err)
	}

	s.edit(ctx, p.Message, fmt.Sprintf("🛍 Product: %s\n\n%s", product.Title, textWriteReview), messenger.InlineKeyboard{cancelRow})
	return reply{}, nil
}

func (s *Service) ReviewText(ctx context.Context, u users.User, st conversation.State, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.hint(ctx, u.ID, textWriteReview)
	}
	if st.ProductCode == "" {
		if err := s.hint(ctx, u.ID, "Something went wrong, let's start again."); err != nil {
			return err
		}
		return s.StartReview(ctx, u)
	}

	st.Text = text
	st.Step = conversation.AwaitingRating
	if err := s.states.Set(ctx, u.ID, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	_, err := s.msg.SendText(ctx, u.ID, textChooseRating, ratingKeyboard())
	return err
}

func (s *Service) SelectRating(ctx context.Context, p Press) (reply, error) {
	st, ok, err := s.submissionAt(ctx, p.From.ID, conversation.AwaitingRating)
	if err != nil {
		return reply{}, err
	}
	if !ok {
		return reply{text: textStale}, nil
	}

	st.Rating = p.Action.Rating
	st.Step = conversation.AwaitingPhotoOrSkip
	if err := s.states.Set(ctx, p.From.ID, st); err != nil {
		return reply{}, fmt.Errorf("save state: %w", err)
	}

	s.edit(ctx, p.Message, fmt.Sprintf("Your rating: %s\n\n%s", stars(st.Rating), textPhotoOrSkip), photoKeyboard())
	return reply{}, nil
}

func (s *Service) SkipPhoto(ctx context.Context, p Press) (reply, error) {
	st, ok, err := s.submissionAt(ctx, p.From.ID, conversation.AwaitingPhotoOrSkip)
	if err != nil {
		return reply{}, err
	}
	if !ok {
		return reply{text: textStale}, nil
	}
	s.edit(ctx, p.Message, fmt.Sprintf("Your rating: %s", stars(st.Rating)), nil)
	if err := s.submit(ctx, p.From, st, nil); err != nil {
		return reply{}, err
	}
	return reply{}, nil
}

func (s *Service) ReviewPhoto(ctx context.Context, u users.User, st conversation.State, p Photo) error {
	return s.submit(ctx, u, st, &p)
}

// CancelReview abandons a submission at any step. Nothing is stored.
func (s *Service) CancelReview(ctx context.Context, p Press) (reply, error) {
	st, ok, err := conversation.Lookup(ctx, s.states, p.From.ID)
	if err != nil {
		return reply{}, err
	}
	if ok && st.Flow == conversation.FlowSubmission {
		s.clearState(ctx, p.From.ID)
	}
	s.edit(ctx, p.Message, textCancelled, nil)
	return reply{text: "Cancelled"}, nil
}

// submit stores the review and hands it to the operator. The state is
// cleared whatever the outcome, and the status message ends as either a
// thank-you or an apology.
func (s *Service) submit(ctx context.Context, u users.User, st conversation.State, photo *Photo) error {
	s.clearState(ctx, u.ID)

	status, statusErr := s.msg.SendText(ctx, u.ID, textSending, nil)
	finish := func(text string) {
		if statusErr != nil {
			_, statusErr = s.msg.SendText(ctx, u.ID, text, nil)
			return
		}
		if _, err := s.msg.EditText(ctx, status, text, nil); err != nil {
			s.logger.Warnw("update status message", "chat_id", u.ID, "error", err)
		}
	}

	r := &reviews.Review{
		UserID:      u.ID,
		Username:    u.DisplayName(),
		Text:        st.Text,
		Rating:      st.Rating,
		ProductCode: st.ProductCode,
		Status:      reviews.StatusPending,
	}

	var original, blurred []byte
	if photo != nil {
		var err error
		r.PhotoID = photo.FileID
		original, err = s.msg.Download(ctx, photo.FileID)
		if err == nil {
			blurred, err = preview.Blur(bytes.NewReader(original), s.cfg.BlurSigma)
		}
		if err != nil {
			finish(textSubmitFailed)
			return fmt.Errorf("prepare photo: %w", err)
		}
	}

	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.Reviews.Create(ctx, r); err != nil {
			return err
		}
		action := activity.ActionReviewCreated
		if photo != nil {
			action = activity.ActionReviewWithPhotoCreated
		}
		if err := tx.Activity.Log(ctx, u.ID, action); err != nil {
			return err
		}

		if s.cfg.AdminID == 0 {
			s.logger.Warnw("no operator configured, review left for later moderation", "review_id", r.ID)
			return nil
		}
		ref, err := s.sendForModeration(ctx, r, blurred)
		if err != nil {
			return fmt.Errorf("send to operator: %w", err)
		}
		if ref.PhotoFileID != "" {
			r.BlurredPhotoID = ref.PhotoFileID
			return tx.Reviews.SetBlurredPhoto(ctx, r.ID, ref.PhotoFileID)
		}
		return nil
	})
	if err != nil {
		finish(textSubmitFailed)
		return fmt.Errorf("submit review: %w", err)
	}

	if original != nil {
		s.archivePhoto(ctx, r.ID, original)
	}

	s.metrics.ReviewsSubmitted.WithLabelValues("user", strconv.FormatBool(photo != nil)).Inc()
	s.logger.Infow("review submitted", "review_id", r.ID, "user_id", u.ID, "rating", r.Rating)

	finish(textThanks)
	return nil
}

// sendForModeration posts the review to the operator with the decision
// buttons. Photos are sent blurred.
func (s *Service) sendForModeration(ctx context.Context, r *reviews.Review, blurred []byte) (messenger.MessageRef, error) {
	text := s.moderationText(r, "🆕 New review")
	kb := moderationKeyboard(r.ID)
	if blurred != nil {
		return s.msg.SendPhoto(ctx, s.cfg.AdminID, messenger.Photo{Data: blurred}, captionLimit(text), kb)
	}
	return s.msg.SendText(ctx, s.cfg.AdminID, textLimit(text), kb)
}

// archivePhoto keeps an off-platform copy of the original photo. Failures
// are logged; the review is already stored.
func (s *Service) archivePhoto(ctx context.Context, reviewID int64, data []byte) {
	url, err := s.archive.Store(ctx, data)
	if err != nil {
		s.logger.Warnw("archive review photo", "review_id", reviewID, "error", err)
		return
	}
	if url == "" {
		return
	}
	if err := s.store.Reviews.SetArchivedURL(ctx, reviewID, url); err != nil {
		s.logger.Warnw("save archived photo url", "review_id", reviewID, "error", err)
	}
}

var resendCaption = regexp.MustCompile(`(?i)^\s*resend review\s*#?\s*(\d+)\s*$`)

// parseResend extracts the review id from a "Resend review #N" caption.
func parseResend(caption string) (int64, bool) {
	m := resendCaption.FindStringSubmatch(caption)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ResendPhoto replaces the photo of one of the sender's own reviews.
func (s *Service) ResendPhoto(ctx context.Context, u users.User, reviewID int64, p Photo) error {
	r, err := s.store.Reviews.GetByID(ctx, reviewID)
	if errors.Is(err, reviews.ErrNotFound) || (err == nil && r.UserID != u.ID) {
		return s.hint(ctx, u.ID, fmt.Sprintf("Review #%d was not found among your reviews.", reviewID))
	}
	if err != nil {
		return fmt.Errorf("load review: %w", err)
	}

	original, err := s.msg.Download(ctx, p.FileID)
	if err != nil {
		return fmt.Errorf("download photo: %w", err)
	}
	blurred, err := preview.Blur(bytes.NewReader(original), s.cfg.BlurSigma)
	if err != nil {
		return fmt.Errorf("blur photo: %w", err)
	}

	if err := s.store.Reviews.SetPhoto(ctx, r.ID, p.FileID, ""); err != nil {
		return fmt.Errorf("replace photo: %w", err)
	}
	r.PhotoID, r.BlurredPhotoID, r.PhotoURL = p.FileID, "", ""

	if s.cfg.AdminID != 0 {
		var kb messenger.Markup
		if r.Status == reviews.StatusPending {
			kb = moderationKeyboard(r.ID)
		}
		caption := captionLimit(s.moderationText(r, "🔁 Photo updated"))
		ref, err := s.msg.SendPhoto(ctx, s.cfg.AdminID, messenger.Photo{Data: blurred}, caption, kb)
		if err != nil {
			s.logger.Warnw("notify operator about new photo", "review_id", r.ID, "error", err)
		} else if ref.PhotoFileID != "" {
			if err := s.store.Reviews.SetBlurredPhoto(ctx, r.ID, ref.PhotoFileID); err != nil {
				s.logger.Warnw("save blurred photo", "review_id", r.ID, "error", err)
			}
		}
	}

	s.archivePhoto(ctx, r.ID, original)
	if err := s.store.Activity.Log(ctx, u.ID, activity.ActionPhotoResent); err != nil {
		s.logger.Warnw("log activity", "user_id", u.ID, "error", err)
	}

	return s.hint(ctx, u.ID, fmt.Sprintf("✅ The photo of review #%d has been updated.", r.ID))
}

func stars(n int) string {
	if n < reviews.MinRating || n > reviews.MaxRating {
		return "—"
	}
	return strings.Repeat("⭐", n)
}

func captionLimit(s string) string { return messenger.Truncate(s, messenger.MaxCaption) }

func textLimit(s string) string { return messenger.Truncate(s, messenger.MaxText) }
