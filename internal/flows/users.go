package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reviewbot/internal/callback"
	"reviewbot/internal/conversation"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
	"reviewbot/internal/notifications"
	"reviewbot/internal/params"
)

func (s *Service) ShowUsers(ctx context.Context, u users.User) error {
	_, err := s.renderUsers(ctx, u.ID, nil, 0, "")
	return err
}

func (s *Service) UsersPage(ctx context.Context, p Press) (reply, error) {
	at := p.Message
	_, err := s.renderUsers(ctx, p.From.ID, &at, p.Action.Page, p.Action.Query)
	return reply{}, err
}

// UsersBack returns to the user list and abandons a pending direct message.
func (s *Service) UsersBack(ctx context.Context, p Press) (reply, error) {
	st, ok, err := conversation.Lookup(ctx, s.states, p.From.ID)
	if err == nil && ok && (st.Flow == conversation.FlowDirectMessage || st.Flow == conversation.FlowUserSearch) {
		s.clearState(ctx, p.From.ID)
	}
	return s.UsersPage(ctx, p)
}

func (s *Service) renderUsers(ctx context.Context, chatID int64, at *messenger.MessageRef, page int, query string) (messenger.MessageRef, error) {
	query = searchTerm(query)
	pg := params.FromPage(page, s.cfg.PageSize)

	list, total, err := s.store.Users.List(ctx, query, pg.Limit, pg.Offset)
	if err != nil {
		return messenger.MessageRef{}, fmt.Errorf("list users: %w", err)
	}
	pg.ComputeMeta(total)

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Users: %d", total)
	if query != "" {
		fmt.Fprintf(&b, "\n🔍 Search: %s", query)
	}
	if total > 0 {
		fmt.Fprintf(&b, "\nPage %d of %d", pg.Page+1, pg.TotalPages)
	} else {
		b.WriteString("\nNobody found.")
	}

	var kb messenger.InlineKeyboard
	for _, usr := range list {
		label := usr.DisplayName()
		if !usr.IsActive {
			label += " 💤"
		}
		kb = append(kb, messenger.Row(messenger.Button{
			Text:   label,
			Action: callback.Action{Kind: callback.UserDetails, UserID: usr.ID, Page: pg.Page, Query: query},
		}))
	}

	var nav []messenger.Button
	if pg.HasPrev {
		nav = append(nav, messenger.Button{Text: "⬅️", Action: callback.Action{Kind: callback.UsersPage, Page: pg.Page - 1, Query: query}})
	}
	if pg.HasNext {
		nav = append(nav, messenger.Button{Text: "➡️", Action: callback.Action{Kind: callback.UsersPage, Page: pg.Page + 1, Query: query}})
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}

	tools := messenger.Row(messenger.Button{Text: "🔍 Search", Action: callback.Action{Kind: callback.SearchUsers}})
	if query != "" {
		tools = append(tools, messenger.Button{Text: "✖️ Reset", Action: callback.Action{Kind: callback.UsersPage}})
	}
	kb = append(kb, tools)

	return s.show(ctx, chatID, at, screen{text: b.String(), kb: kb})
}

func (s *Service) SearchUsers(ctx context.Context, p Press) (reply, error) {
	st := conversation.State{Flow: conversation.FlowUserSearch, Step: conversation.AwaitingSearchQuery}
	if err := s.states.Set(ctx, p.From.ID, st); err != nil {
		return reply{}, fmt.Errorf("save state: %w", err)
	}
	s.edit(ctx, p.Message, "🔍 Send a username, a name or a user id to search for.",
		messenger.InlineKeyboard{messenger.Row(messenger.Button{Text: "⬅️ Back", Action: callback.Action{Kind: callback.UsersBack}})})
	return reply{}, nil
}

func (s *Service) SearchQuery(ctx context.Context, u users.User, text string) error {
	s.clearState(ctx, u.ID)
	_, err := s.renderUsers(ctx, u.ID, nil, 0, text)
	return err
}

func (s *Service) UserDetails(ctx context.Context, p Press) (reply, error) {
	usr, err := s.store.Users.GetByID(ctx, p.Action.UserID)
	if errors.Is(err, users.ErrNotFound) {
		at := p.Message
		_, err := s.renderUsers(ctx, p.From.ID, &at, p.Action.Page, p.Action.Query)
		return reply{text: "User not found."}, err
	}
	if err != nil {
		return reply{}, fmt.Errorf("load user: %w", err)
	}
	counts, err := s.store.Users.ReviewCounts(ctx, usr.ID)
	if err != nil {
		return reply{}, fmt.Errorf("count reviews: %w", err)
	}

	status := "active"
	if !usr.IsActive {
		status = "inactive (bot blocked or account deleted)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n", usr.DisplayName())
	fmt.Fprintf(&b, "ID: %d\n", usr.ID)
	if name := strings.TrimSpace(usr.FirstName + " " + usr.LastName); name != "" {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	fmt.Fprintf(&b, "Joined: %s\n", usr.CreatedAt.Format("02.01.2006"))
	fmt.Fprintf(&b, "Last activity: %s\n", usr.LastActivityAt.Format("02.01.2006 15:04"))
	fmt.Fprintf(&b, "Status: %s\n\n", status)
	fmt.Fprintf(&b, "📝 Reviews: %d (approved %d, pending %d)", counts.Total, counts.Approved, counts.Pending)

	at := p.Message
	_, err = s.show(ctx, p.From.ID, &at, screen{
		text: b.String(),
		kb: messenger.InlineKeyboard{
			messenger.Row(messenger.Button{Text: "✉️ Write a message", Action: callback.Action{Kind: callback.WriteToUser, UserID: usr.ID}}),
			messenger.Row(messenger.Button{Text: "⬅️ Back", Action: callback.Action{Kind: callback.UsersBack, Page: p.Action.Page, Query: p.Action.Query}}),
		},
	})
	return reply{}, err
}

func (s *Service) WriteToUser(ctx context.Context, p Press) (reply, error) {
	st := conversation.State{
		Flow:         conversation.FlowDirectMessage,
		Step:         conversation.AwaitingMessage,
		TargetUserID: p.Action.UserID,
	}
	if err := s.states.Set(ctx, p.From.ID, st); err != nil {
		return reply{}, fmt.Errorf("save state: %w", err)
	}
	s.edit(ctx, p.Message, fmt.Sprintf("✉️ Send the message for user %d.", p.Action.UserID),
		messenger.InlineKeyboard{messenger.Row(messenger.Button{Text: "❌ Cancel", Action: callback.Action{Kind: callback.UsersBack}})})
	return reply{}, nil
}

// DirectMessage relays the operator's text to the chosen user.
func (s *Service) DirectMessage(ctx context.Context, u users.User, st conversation.State, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.hint(ctx, u.ID, "The message cannot be empty.")
	}
	s.clearState(ctx, u.ID)

	d := notifications.SendDirect(ctx, s.msg, st.TargetUserID, text)
	s.afterDelivery(ctx, d)

	switch {
	case d.OK():
		return s.hint(ctx, u.ID, "✅ Message delivered.")
	case d.Unavailable():
		return s.hint(ctx, u.ID, "❌ The user is unreachable: the bot is blocked or the account is deleted.")
	default:
		return s.hint(ctx, u.ID, "❌ The message could not be delivered.")
	}
}

// searchTerm trims q and keeps it short enough to ride in a button payload.
// Characters that JSON escapes into several bytes are dropped.
func searchTerm(q string) string {
	q = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '&', '"', '\\':
			return -1
		}
		if r < 0x20 || r == '\u2028' || r == '\u2029' {
			return -1
		}
		return r
	}, strings.TrimSpace(q))
	return strings.TrimSpace(callback.TruncateQuery(q))
}
