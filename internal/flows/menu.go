package flows

import (
	"context"
	"fmt"

	"reviewbot/internal/domain/activity"
	"reviewbot/internal/domain/storage"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
)

// Reply keyboard labels. Incoming text equal to a label runs its action.
const (
	LabelLeaveReview = "📝 Leave a review"
	LabelReadReviews = "📖 Read reviews"
	LabelAdminPanel  = "⚙️ Admin panel"

	LabelStats     = "📊 Statistics"
	LabelBroadcast = "📢 Broadcast"
	LabelTemplates = "📋 Templates"
	LabelUsers     = "👥 Users"
	LabelBack      = "⬅️ Main menu"
)

type menuEntry struct {
	fn       func(ctx context.Context, u users.User) error
	operator bool
}

func (s *Service) menuTable() map[string]menuEntry {
	return map[string]menuEntry{
		LabelLeaveReview: {fn: s.StartReview},
		LabelReadReviews: {fn: s.ShowReviews},
		LabelBack:        {fn: s.MainMenu},

		LabelAdminPanel: {fn: s.AdminPanel, operator: true},
		LabelStats:      {fn: s.ShowStats, operator: true},
		LabelBroadcast:  {fn: s.StartBroadcast, operator: true},
		LabelTemplates:  {fn: s.TemplatesMenu, operator: true},
		LabelUsers:      {fn: s.ShowUsers, operator: true},
	}
}

func (s *Service) mainKeyboard(userID int64) messenger.ReplyKeyboard {
	kb := messenger.ReplyKeyboard{
		{LabelLeaveReview},
		{LabelReadReviews},
	}
	if s.IsOperator(userID) {
		kb = append(kb, []string{LabelAdminPanel})
	}
	return kb
}

func adminKeyboard() messenger.ReplyKeyboard {
	return messenger.ReplyKeyboard{
		{LabelStats, LabelBroadcast},
		{LabelTemplates, LabelUsers},
		{LabelBack},
	}
}

// Start registers the user and logs the join in one transaction, then shows
// the main menu.
func (s *Service) Start(ctx context.Context, u users.User) error {
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.Users.Upsert(ctx, &u); err != nil {
			return err
		}
		return tx.Activity.Log(ctx, u.ID, activity.ActionJoin)
	})
	if err != nil {
		return s.apologise(ctx, u.ID, fmt.Errorf("register user: %w", err))
	}

	s.clearState(ctx, u.ID)

	greeting := fmt.Sprintf("👋 Hello, %s!\n\nHere you can leave a review about our products or read what other customers say.", greetingName(u))
	_, err = s.msg.SendText(ctx, u.ID, greeting, s.mainKeyboard(u.ID))
	return err
}

func (s *Service) MainMenu(ctx context.Context, u users.User) error {
	s.clearState(ctx, u.ID)
	_, err := s.msg.SendText(ctx, u.ID, "Main menu", s.mainKeyboard(u.ID))
	return err
}

func (s *Service) AdminPanel(ctx context.Context, u users.User) error {
	s.clearState(ctx, u.ID)
	_, err := s.msg.SendText(ctx, u.ID, "⚙️ Admin panel", adminKeyboard())
	return err
}

func greetingName(u users.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.DisplayName()
}
