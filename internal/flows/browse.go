package flows

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"reviewbot/internal/callback"
	"reviewbot/internal/domain/activity"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
	"reviewbot/internal/params"
	"reviewbot/internal/preview"
)

const textNoReviews = "There are no approved reviews yet. Be the first to leave one!"

// ShowReviews opens the first page of approved reviews.
func (s *Service) ShowReviews(ctx context.Context, u users.User) error {
	s.logActivity(ctx, u.ID, activity.ActionViewedReviews)
	_, err := s.renderReviews(ctx, u.ID, nil, 0)
	return err
}

func (s *Service) ReviewsPage(ctx context.Context, p Press) (reply, error) {
	at := p.Message
	_, err := s.renderReviews(ctx, p.From.ID, &at, p.Action.Offset)
	return reply{}, err
}

func (s *Service) renderReviews(ctx context.Context, chatID int64, at *messenger.MessageRef, offset int) (messenger.MessageRef, error) {
	total, err := s.store.Reviews.CountApproved(ctx)
	if err != nil {
		return messenger.MessageRef{}, fmt.Errorf("count approved reviews: %w", err)
	}
	if total == 0 {
		return s.show(ctx, chatID, at, screen{text: textNoReviews})
	}

	page := params.FromOffset(offset, s.cfg.PageSize)
	page.Clamp(total)
	page.ComputeMeta(total)

	list, err := s.store.Reviews.ListApproved(ctx, page.Offset, page.Limit)
	if err != nil {
		return messenger.MessageRef{}, fmt.Errorf("list approved reviews: %w", err)
	}

	last := page.Offset + len(list)
	var b strings.Builder
	fmt.Fprintf(&b, "📖 Reviews %d–%d of %d\n", page.Offset+1, last, total)

	kb := make(messenger.InlineKeyboard, 0, len(list)+1)
	for i, r := range list {
		n := page.Offset + i + 1
		fmt.Fprintf(&b, "\n%d. %s %s: %s", n, stars(r.Rating), s.catalog.Title(r.ProductCode), snippet(r.Text, 60))
		kb = append(kb, messenger.Row(messenger.Button{
			Text:   fmt.Sprintf("%d. %s", n, snippet(r.Username, 24)),
			Action: callback.Action{Kind: callback.ViewReview, ReviewID: r.ID, Offset: page.Offset},
		}))
	}

	var nav []messenger.Button
	if page.HasPrev {
		nav = append(nav, messenger.Button{Text: "⬅️ Previous", Action: callback.Action{Kind: callback.ReviewsPage, Offset: page.PrevOffset()}})
	}
	if page.HasNext {
		nav = append(nav, messenger.Button{Text: "Next ➡️", Action: callback.Action{Kind: callback.ReviewsPage, Offset: page.NextOffset()}})
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}

	return s.show(ctx, chatID, at, screen{text: b.String(), kb: kb})
}

// loadVisible returns a review the presser may see: approved ones for
// everybody, any status for the operator.
func (s *Service) loadVisible(ctx context.Context, p Press) (*reviews.Review, bool, error) {
	r, err := s.store.Reviews.GetByID(ctx, p.Action.ReviewID)
	if errors.Is(err, reviews.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load review %d: %w", p.Action.ReviewID, err)
	}
	if r.Status != reviews.StatusApproved && !s.IsOperator(p.From.ID) {
		return nil, false, nil
	}
	return r, true, nil
}

func (s *Service) reviewText(r *reviews.Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review #%d\n", r.ID)
	fmt.Fprintf(&b, "👤 %s\n", r.Username)
	fmt.Fprintf(&b, "🛍 %s\n", s.catalog.Title(r.ProductCode))
	fmt.Fprintf(&b, "%s\n", stars(r.Rating))
	fmt.Fprintf(&b, "📅 %s", r.CreatedAt.Format("02.01.2006"))
	if r.Text != "" {
		b.WriteString("\n\n")
		b.WriteString(r.Text)
	}
	return b.String()
}

func (s *Service) reviewKeyboard(r *reviews.Review, offset int, photoShown bool, viewerID int64) messenger.InlineKeyboard {
	var kb messenger.InlineKeyboard
	if r.HasPhoto() {
		if photoShown {
			kb = append(kb, messenger.Row(messenger.Button{Text: "🙈 Hide photo", Action: callback.Action{Kind: callback.HidePhoto, ReviewID: r.ID, Offset: offset}}))
		} else {
			kb = append(kb, messenger.Row(messenger.Button{Text: "🖼 Show photo", Action: callback.Action{Kind: callback.ShowPhoto, ReviewID: r.ID, Offset: offset}}))
		}
	}
	if s.IsOperator(viewerID) {
		kb = append(kb, messenger.Row(messenger.Button{Text: "🗑 Delete", Action: callback.Action{Kind: callback.Delete, ReviewID: r.ID}}))
	}
	return append(kb, messenger.Row(messenger.Button{Text: "⬅️ Back", Action: callback.Action{Kind: callback.ReviewsPage, Offset: offset}}))
}

func (s *Service) ViewReview(ctx context.Context, p Press) (reply, error) {
	r, ok, err := s.loadVisible(ctx, p)
	if err != nil {
		return reply{}, err
	}
	at := p.Message
	if !ok {
		if _, err := s.renderReviews(ctx, p.From.ID, &at, p.Action.Offset); err != nil {
			return reply{}, err
		}
		return reply{text: "This review is no longer available."}, nil
	}

	s.logActivity(ctx, p.From.ID, activity.ActionViewedReview)
	_, err = s.show(ctx, p.From.ID, &at, screen{
		text: textLimit(s.reviewText(r)),
		kb:   s.reviewKeyboard(r, p.Action.Offset, false, p.From.ID),
	})
	return reply{}, err
}

func (s *Service) HidePhoto(ctx context.Context, p Press) (reply, error) {
	return s.ViewReview(ctx, p)
}

// ShowPhoto switches the review message to its blurred photo. The blurred
// copy is made on demand for reviews that do not have one yet.
func (s *Service) ShowPhoto(ctx context.Context, p Press) (reply, error) {
	r, ok, err := s.loadVisible(ctx, p)
	if err != nil {
		return reply{}, err
	}
	if !ok || !r.HasPhoto() {
		return reply{text: "The photo is not available."}, nil
	}

	photo := messenger.Photo{FileID: r.BlurredPhotoID}
	if photo.FileID == "" {
		original, err := s.msg.Download(ctx, r.PhotoID)
		if err != nil {
			return reply{}, fmt.Errorf("download photo of review %d: %w", r.ID, err)
		}
		blurred, err := preview.Blur(bytes.NewReader(original), s.cfg.BlurSigma)
		if err != nil {
			return reply{}, fmt.Errorf("blur photo of review %d: %w", r.ID, err)
		}
		photo = messenger.Photo{Data: blurred}
	}

	at := p.Message
	ref, err := s.show(ctx, p.From.ID, &at, screen{
		text:  captionLimit(s.reviewText(r)),
		photo: &photo,
		kb:    s.reviewKeyboard(r, p.Action.Offset, true, p.From.ID),
	})
	if err != nil {
		return reply{}, err
	}

	if r.BlurredPhotoID == "" && ref.PhotoFileID != "" {
		if err := s.store.Reviews.SetBlurredPhoto(ctx, r.ID, ref.PhotoFileID); err != nil {
			s.logger.Warnw("save blurred photo", "review_id", r.ID, "error", err)
		}
	}
	return reply{}, nil
}

func (s *Service) logActivity(ctx context.Context, userID int64, action activity.Action) {
	if err := s.store.Activity.Log(ctx, userID, action); err != nil {
		s.logger.Warnw("log activity", "user_id", userID, "action", action, "error", err)
	}
}

// snippet shortens s to at most n characters on one line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
