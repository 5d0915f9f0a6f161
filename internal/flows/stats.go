package flows

import (
	"context"
	"fmt"
	"strings"

	"reviewbot/internal/callback"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/domain/stats"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
)

func statsKeyboard() messenger.InlineKeyboard {
	return messenger.InlineKeyboard{
		messenger.Row(messenger.Button{Text: "🔄 Refresh", Action: callback.Action{Kind: callback.RefreshStats}}),
	}
}

func (s *Service) ShowStats(ctx context.Context, u users.User) error {
	text, err := s.statsText(ctx)
	if err != nil {
		return err
	}
	_, err = s.msg.SendText(ctx, u.ID, text, statsKeyboard())
	return err
}

func (s *Service) RefreshStats(ctx context.Context, p Press) (reply, error) {
	text, err := s.statsText(ctx)
	if err != nil {
		return reply{}, err
	}
	s.edit(ctx, p.Message, text, statsKeyboard())
	return reply{text: "Updated"}, nil
}

func (s *Service) statsText(ctx context.Context) (string, error) {
	report, err := stats.Collect(ctx, s.store.Stats)
	if err != nil {
		return "", fmt.Errorf("collect stats: %w", err)
	}
	return formatStats(report, s.now().Format("02.01.2006 15:04")), nil
}

func formatStats(r *stats.Report, at string) string {
	var b strings.Builder
	b.WriteString("📊 Statistics\n\n")

	b.WriteString("👥 Users\n")
	fmt.Fprintf(&b, "Total: %d\n", r.TotalUsers)
	fmt.Fprintf(&b, "New today: %d\n", r.NewUsersToday)
	fmt.Fprintf(&b, "Active today: %d\n", r.ActiveToday)
	fmt.Fprintf(&b, "Inactive for 7+ days: %d\n\n", r.Inactive7Days)

	b.WriteString("📝 Reviews\n")
	fmt.Fprintf(&b, "Total: %d\n", r.TotalReviews)
	fmt.Fprintf(&b, "Today: %d\n", r.ReviewsToday)
	fmt.Fprintf(&b, "Approved: %d\n", r.ByStatus[reviews.StatusApproved])
	fmt.Fprintf(&b, "Pending: %d\n", r.ByStatus[reviews.StatusPending])
	fmt.Fprintf(&b, "Rejected: %d\n", r.ByStatus[reviews.StatusRejected])
	fmt.Fprintf(&b, "Average rating: %.2f\n\n", r.AverageRating)

	b.WriteString("⭐ Ratings\n")
	var rated int64
	for _, n := range r.Ratings {
		rated += n
	}
	for score := reviews.MaxRating; score >= reviews.MinRating; score-- {
		n := r.Ratings[score]
		fmt.Fprintf(&b, "%d: %s %d\n", score, bar(n, rated, 10), n)
	}

	fmt.Fprintf(&b, "\nUpdated %s", at)
	return b.String()
}

// bar draws n out of total as a bar of at most width blocks.
func bar(n, total int64, width int) string {
	if total <= 0 || n <= 0 {
		return ""
	}
	filled := int(n * int64(width) / total)
	if filled == 0 {
		filled = 1
	}
	return strings.Repeat("█", filled)
}
