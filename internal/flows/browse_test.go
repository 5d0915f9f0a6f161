package flows

import (
	"context"
	"strings"
	"testing"

	"reviewbot/internal/callback"
	"reviewbot/internal/domain/activity"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/messenger"
	"reviewbot/internal/messenger/messengertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedApproved(h *harness, n int) {
	for i := 0; i < n; i++ {
		h.reviews.put(reviews.Review{UserID: 42, Username: "@user42", Text: "review text", Rating: 4, ProductCode: "p1", Status: reviews.StatusApproved})
	}
}

func hasKind(kb messenger.InlineKeyboard, k callback.Kind) bool {
	for _, kind := range kinds(kb) {
		if kind == k {
			return true
		}
	}
	return false
}

func navOffsets(kb messenger.InlineKeyboard) (prev, next int, hasPrev, hasNext bool) {
	for _, row := range kb {
		for _, b := range row {
			if b.Action.Kind != callback.ReviewsPage {
				continue
			}
			if strings.Contains(b.Text, "Previous") {
				prev, hasPrev = b.Action.Offset, true
			} else {
				next, hasNext = b.Action.Offset, true
			}
		}
	}
	return
}

func TestReviewsPagination(t *testing.T) {
	tests := []struct {
		total, offset      int
		wantPrev, wantNext bool
	}{
		{total: 3, offset: 0, wantPrev: false, wantNext: false},
		{total: 5, offset: 0, wantPrev: false, wantNext: false},
		{total: 6, offset: 0, wantPrev: false, wantNext: true},
		{total: 12, offset: 5, wantPrev: true, wantNext: true},
		{total: 12, offset: 10, wantPrev: true, wantNext: false},
		{total: 10, offset: 5, wantPrev: true, wantNext: false},
	}
	for _, tt := range tests {
		h := newHarness(t)
		seedApproved(h, tt.total)

		require.NoError(t, h.press(t, customer(42), callback.Action{Kind: callback.ReviewsPage, Offset: tt.offset}))

		page, ok := h.msg.Last(messengertest.OpEditText)
		require.True(t, ok)
		prev, next, hasPrev, hasNext := navOffsets(page.Keyboard)
		assert.Equal(t, tt.wantPrev, hasPrev, "total=%d offset=%d previous", tt.total, tt.offset)
		assert.Equal(t, tt.wantNext, hasNext, "total=%d offset=%d next", tt.total, tt.offset)
		if hasPrev {
			assert.Equal(t, max(tt.offset-5, 0), prev)
		}
		if hasNext {
			assert.Equal(t, tt.offset+5, next)
		}
	}
}

func TestShowReviewsFirstPage(t *testing.T) {
	h := newHarness(t)
	seedApproved(h, 7)
	h.reviews.put(reviews.Review{UserID: 1, Text: "hidden", Rating: 1, Status: reviews.StatusPending})

	require.NoError(t, h.svc.HandleText(context.Background(), customer(42), LabelReadReviews))

	page, ok := h.msg.Last(messengertest.OpSendText)
	require.True(t, ok)
	assert.Contains(t, page.Text, "1–5 of 7")
	assert.NotContains(t, page.Text, "hidden")

	views := 0
	for _, row := range page.Keyboard {
		for _, b := range row {
			if b.Action.Kind == callback.ViewReview {
				views++
				assert.Equal(t, 0, b.Action.Offset)
			}
		}
	}
	assert.Equal(t, 5, views)
	assert.True(t, strings.HasPrefix(page.Keyboard[0][0].Text, "1."))
	assert.Equal(t, []activity.Action{activity.ActionViewedReviews}, h.activity.actions())
}

func TestShowReviewsEmpty(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.HandleText(context.Background(), customer(42), LabelReadReviews))

	page, _ := h.msg.Last(messengertest.OpSendText)
	assert.Equal(t, textNoReviews, page.Text)
}

func TestViewReview(t *testing.T) {
	h := newHarness(t)
	h.reviews.put(reviews.Review{ID: 4, UserID: 42, Username: "@user42", Text: "Full review text", Rating: 5, Status: reviews.StatusApproved, PhotoID: "orig", BlurredPhotoID: "blur"})

	t.Run("customer", func(t *testing.T) {
		require.NoError(t, h.press(t, customer(8), callback.Action{Kind: callback.ViewReview, ReviewID: 4, Offset: 5}))

		view, _ := h.msg.Last(messengertest.OpEditText)
		assert.Contains(t, view.Text, "Full review text")
		assert.True(t, hasKind(view.Keyboard, callback.ShowPhoto))
		assert.False(t, hasKind(view.Keyboard, callback.Delete))
		back := view.Keyboard[len(view.Keyboard)-1][0]
		assert.Equal(t, callback.ReviewsPage, back.Action.Kind)
		assert.Equal(t, 5, back.Action.Offset)
	})

	t.Run("operator sees delete", func(t *testing.T) {
		require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.ViewReview, ReviewID: 4}))
		view, _ := h.msg.Last(messengertest.OpEditText)
		assert.True(t, hasKind(view.Keyboard, callback.Delete))
	})
}

func TestViewUnapprovedReviewFallsBackToList(t *testing.T) {
	h := newHarness(t)
	seedApproved(h, 2)
	h.reviews.put(reviews.Review{ID: 50, UserID: 1, Text: "pending text", Rating: 2, Status: reviews.StatusPending})

	require.NoError(t, h.press(t, customer(8), callback.Action{Kind: callback.ViewReview, ReviewID: 50}))

	view, _ := h.msg.Last(messengertest.OpEditText)
	assert.NotContains(t, view.Text, "pending text")
	answer, _ := h.msg.Last(messengertest.OpAnswer)
	assert.Contains(t, answer.Text, "no longer available")
}

func TestShowPhotoSwitchesToMedia(t *testing.T) {
	h := newHarness(t)
	h.reviews.put(reviews.Review{ID: 4, UserID: 42, Text: "With photo", Rating: 5, Status: reviews.StatusApproved, PhotoID: "orig", BlurredPhotoID: "blur"})

	require.NoError(t, h.press(t, customer(8), callback.Action{Kind: callback.ShowPhoto, ReviewID: 4}))

	_, deleted := h.msg.Last(messengertest.OpDelete)
	assert.True(t, deleted, "text message replaced")
	sent, ok := h.msg.Last(messengertest.OpSendPhoto)
	require.True(t, ok)
	assert.Equal(t, "blur", sent.Photo.FileID)
	assert.True(t, hasKind(sent.Keyboard, callback.HidePhoto))

	_, downloaded := h.msg.Last(messengertest.OpDownload)
	assert.False(t, downloaded, "stored blurred copy reused")
}

func TestShowPhotoOnMediaMessageEditsInPlace(t *testing.T) {
	h := newHarness(t)
	h.reviews.put(reviews.Review{ID: 4, UserID: 42, Text: "With photo", Rating: 5, Status: reviews.StatusApproved, PhotoID: "orig", BlurredPhotoID: "blur"})

	err := h.svc.HandlePress(context.Background(), Press{
		ID:      "cb",
		From:    customer(8),
		Message: messenger.MessageRef{ChatID: 8, MessageID: 3, HasMedia: true},
		Action:  callback.Action{Kind: callback.ShowPhoto, ReviewID: 4},
	})
	require.NoError(t, err)

	_, ok := h.msg.Last(messengertest.OpEditMedia)
	assert.True(t, ok)
	_, deleted := h.msg.Last(messengertest.OpDelete)
	assert.False(t, deleted)
}

func TestShowPhotoBlursOnDemand(t *testing.T) {
	h := newHarness(t)
	h.reviews.put(reviews.Review{ID: 4, UserID: 42, Text: "Forwarded", Rating: 5, Status: reviews.StatusApproved, PhotoID: "orig"})
	h.msg.Files["orig"] = jpegBytes(t)

	require.NoError(t, h.press(t, customer(8), callback.Action{Kind: callback.ShowPhoto, ReviewID: 4}))

	sent, ok := h.msg.Last(messengertest.OpSendPhoto)
	require.True(t, ok)
	assert.Empty(t, sent.Photo.FileID)
	assert.NotEmpty(t, sent.Photo.Data)

	r, _ := h.reviews.GetByID(context.Background(), 4)
	assert.NotEmpty(t, r.BlurredPhotoID, "blurred copy cached for next time")
}

func TestHidePhotoSwitchesBackToText(t *testing.T) {
	h := newHarness(t)
	h.reviews.put(reviews.Review{ID: 4, UserID: 42, Text: "With photo", Rating: 5, Status: reviews.StatusApproved, PhotoID: "orig", BlurredPhotoID: "blur"})

	err := h.svc.HandlePress(context.Background(), Press{
		ID:      "cb",
		From:    customer(8),
		Message: messenger.MessageRef{ChatID: 8, MessageID: 3, HasMedia: true},
		Action:  callback.Action{Kind: callback.HidePhoto, ReviewID: 4},
	})
	require.NoError(t, err)

	del, ok := h.msg.Last(messengertest.OpDelete)
	require.True(t, ok)
	assert.Equal(t, 3, del.MessageID)
	sent, ok := h.msg.Last(messengertest.OpSendText)
	require.True(t, ok)
	assert.Contains(t, sent.Text, "With photo")
	assert.True(t, hasKind(sent.Keyboard, callback.ShowPhoto))
}
