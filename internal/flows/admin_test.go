package flows

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"reviewbot/internal/callback"
	"reviewbot/internal/conversation"
	"reviewbot/internal/domain/activity"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/domain/stats"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
	"reviewbot/internal/messenger/messengertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRegistersAndShowsMenu(t *testing.T) {
	h := newHarness(t)
	u := customer(42)
	require.NoError(t, h.states.Set(context.Background(), u.ID, conversation.State{Flow: conversation.FlowSubmission, Step: conversation.AwaitingText}))

	require.NoError(t, h.svc.Start(context.Background(), u))

	_, err := h.users.GetByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []activity.Action{activity.ActionJoin}, h.activity.actions())
	_, ok := h.state(t, u.ID)
	assert.False(t, ok, "start resets any flow")

	welcome, _ := h.msg.Last(messengertest.OpSendText)
	assert.Contains(t, welcome.Text, "Name")
	assert.Equal(t, messenger.ReplyKeyboard{{LabelLeaveReview}, {LabelReadReviews}}, welcome.Markup)
}

func TestStartShowsAdminButtonToOperator(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Start(context.Background(), operator()))

	welcome, _ := h.msg.Last(messengertest.OpSendText)
	kb, ok := welcome.Markup.(messenger.ReplyKeyboard)
	require.True(t, ok)
	assert.Equal(t, []string{LabelAdminPanel}, kb[len(kb)-1])

	require.NoError(t, h.svc.HandleText(context.Background(), operator(), LabelAdminPanel))
	panel, _ := h.msg.Last(messengertest.OpSendText)
	assert.Equal(t, adminKeyboard(), panel.Markup)
}

func TestStartStoreFailureApologises(t *testing.T) {
	h := newHarness(t)
	h.users.err = errBoom

	err := h.svc.Start(context.Background(), customer(42))
	require.ErrorIs(t, err, errBoom)
	sent, _ := h.msg.Last(messengertest.OpSendText)
	assert.Equal(t, textFailure, sent.Text)
}

func TestShowStats(t *testing.T) {
	h := newHarness(t)
	h.stats.overview = stats.Overview{TotalUsers: 10, NewUsersToday: 2, ActiveToday: 4, Inactive7Days: 3, TotalReviews: 6, ReviewsToday: 1, AverageRating: 4.5}
	h.stats.byStatus = map[reviews.Status]int64{reviews.StatusApproved: 4, reviews.StatusPending: 1, reviews.StatusRejected: 1}
	h.stats.ratings = map[int]int64{5: 4, 4: 2}

	require.NoError(t, h.svc.HandleText(context.Background(), operator(), LabelStats))

	msg, _ := h.msg.Last(messengertest.OpSendText)
	for _, want := range []string{"Total: 10", "New today: 2", "Active today: 4", "Inactive for 7+ days: 3", "Approved: 4", "Pending: 1", "Average rating: 4.50", "5: ██████ 4"} {
		assert.Contains(t, msg.Text, want)
	}
	assert.Equal(t, []callback.Kind{callback.RefreshStats}, kinds(msg.Keyboard))

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.RefreshStats}))
	assert.Equal(t, 2, h.stats.calls, "recomputed on refresh")
}

func TestStatsHiddenFromCustomers(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.HandleText(context.Background(), customer(5), LabelStats))
	assert.Equal(t, 0, h.stats.calls)
}

func TestCreateTemplate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.HandleText(ctx, operator(), LabelTemplates))
	menu, _ := h.msg.Last(messengertest.OpSendText)
	assert.Equal(t, []callback.Kind{callback.CreateTemplate, callback.ViewTemplates}, kinds(menu.Keyboard))

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.CreateTemplate}))
	require.NoError(t, h.svc.HandleText(ctx, operator(), strings.Repeat("x", maxTemplateName+1)))
	st, _ := h.state(t, adminID)
	assert.Equal(t, conversation.AwaitingTemplateName, st.Step, "too long name rejected")

	require.NoError(t, h.svc.HandleText(ctx, operator(), "welcome"))
	require.NoError(t, h.svc.HandleText(ctx, operator(), "Welcome aboard!"))

	tpl, err := h.templates.GetByName(ctx, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "Welcome aboard!", tpl.Text)
	_, ok := h.state(t, adminID)
	assert.False(t, ok)

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.ViewTemplates}))
	list, _ := h.msg.Last(messengertest.OpEditText)
	require.True(t, hasKind(list.Keyboard, callback.ViewTemplate))
	assert.Equal(t, "welcome", list.Keyboard[0][0].Text)

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.ViewTemplate, TemplateID: tpl.ID}))
	view, _ := h.msg.Last(messengertest.OpEditText)
	assert.Contains(t, view.Text, "Welcome aboard!")
	assert.True(t, hasKind(view.Keyboard, callback.UseTemplate))
}

func TestTemplateUpsertReplacesBody(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.templates.Upsert(ctx, "promo", "old")
	require.NoError(t, err)

	require.NoError(t, h.states.Set(ctx, adminID, conversation.State{Flow: conversation.FlowTemplate, Step: conversation.AwaitingTemplateText, TemplateName: "promo"}))
	require.NoError(t, h.svc.HandleText(ctx, operator(), "new"))

	list, _ := h.templates.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Text)
}

func TestTemplateNameWarnsBeforeReplacing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.templates.Upsert(ctx, "promo", "old")
	require.NoError(t, err)

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.CreateTemplate}))
	require.NoError(t, h.svc.HandleText(ctx, operator(), "fresh"))
	prompt, _ := h.msg.Last(messengertest.OpSendText)
	assert.Contains(t, prompt.Text, "Now send the text of the template «fresh»")

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.CreateTemplate}))
	require.NoError(t, h.svc.HandleText(ctx, operator(), "promo"))
	prompt, _ = h.msg.Last(messengertest.OpSendText)
	assert.Contains(t, prompt.Text, "«promo» already exists")

	require.NoError(t, h.svc.HandleText(ctx, operator(), "new"))
	tpl, err := h.templates.GetByName(ctx, "promo")
	require.NoError(t, err)
	assert.Equal(t, "new", tpl.Text)
}

func TestUsersListAndSearch(t *testing.T) {
	h := newHarness(t)
	for i := int64(1); i <= 7; i++ {
		seedUsers(t, h, i)
	}
	ctx := context.Background()

	require.NoError(t, h.svc.HandleText(ctx, operator(), LabelUsers))
	page, _ := h.msg.Last(messengertest.OpSendText)
	assert.Contains(t, page.Text, "Users: 7")
	assert.Contains(t, page.Text, "Page 1 of 2")
	assert.True(t, hasKind(page.Keyboard, callback.UsersPage), "next page offered")

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.UsersPage, Page: 1}))
	page, _ = h.msg.Last(messengertest.OpEditText)
	assert.Contains(t, page.Text, "Page 2 of 2")

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.SearchUsers}))
	st, _ := h.state(t, adminID)
	assert.True(t, st.In(conversation.FlowUserSearch, conversation.AwaitingSearchQuery))

	require.NoError(t, h.svc.HandleText(ctx, operator(), "u3"))
	page, _ = h.msg.Last(messengertest.OpSendText)
	assert.Contains(t, page.Text, "Users: 1")
	assert.Contains(t, page.Text, "Search: u3")
	details := page.Keyboard[0][0]
	assert.Equal(t, callback.UserDetails, details.Action.Kind)
	assert.Equal(t, "u3", details.Action.Query)
	_, ok := h.state(t, adminID)
	assert.False(t, ok)
}

func TestUserButtonsFitCallbackLimit(t *testing.T) {
	h := newHarness(t)
	seedUsers(t, h, 9_999_999_999)

	require.NoError(t, h.svc.SearchQuery(context.Background(), operator(), `<&>"`+strings.Repeat("я", 40)))
	page, _ := h.msg.Last(messengertest.OpSendText)
	for _, row := range page.Keyboard {
		for _, b := range row {
			_, err := callback.Encode(b.Action)
			assert.NoError(t, err, b.Text)
		}
	}
	longest := callback.Action{Kind: callback.UserDetails, UserID: 9_999_999_999, Page: 99, Query: searchTerm(strings.Repeat("я", 40))}
	_, err := callback.Encode(longest)
	assert.NoError(t, err)
}

func TestUserDetailsAndDirectMessage(t *testing.T) {
	h := newHarness(t)
	seedUsers(t, h, 42)
	h.users.counts[42] = users.ReviewCounts{Total: 3, Approved: 2, Pending: 1}
	ctx := context.Background()

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.UserDetails, UserID: 42, Page: 1, Query: "u4"}))
	details, _ := h.msg.Last(messengertest.OpEditText)
	assert.Contains(t, details.Text, "ID: 42")
	assert.Contains(t, details.Text, "Reviews: 3 (approved 2, pending 1)")
	back := details.Keyboard[1][0]
	assert.Equal(t, callback.UsersBack, back.Action.Kind)
	assert.Equal(t, 1, back.Action.Page)

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.WriteToUser, UserID: 42}))
	require.NoError(t, h.svc.HandleText(ctx, operator(), "Hello there"))

	got := h.msg.To(42)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "Message from the administrator")
	assert.Contains(t, got[0].Text, "Hello there")
	confirm, _ := h.msg.Last(messengertest.OpSendText)
	assert.Contains(t, confirm.Text, "delivered")
}

func TestDirectMessageToUnavailableUser(t *testing.T) {
	h := newHarness(t)
	seedUsers(t, h, 42)
	h.msg.FailSend[42] = fmt.Errorf("deactivated: %w", messenger.ErrRecipientUnavailable)
	ctx := context.Background()

	require.NoError(t, h.states.Set(ctx, adminID, conversation.State{Flow: conversation.FlowDirectMessage, Step: conversation.AwaitingMessage, TargetUserID: 42}))
	require.NoError(t, h.svc.HandleText(ctx, operator(), "ping"))

	confirm, _ := h.msg.Last(messengertest.OpSendText)
	assert.Contains(t, confirm.Text, "unreachable")
	assert.False(t, h.users.active(42))
}

func TestUsersBackAbandonsDirectMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.states.Set(ctx, adminID, conversation.State{Flow: conversation.FlowDirectMessage, Step: conversation.AwaitingMessage, TargetUserID: 42}))

	require.NoError(t, h.press(t, operator(), callback.Action{Kind: callback.UsersBack}))
	_, ok := h.state(t, adminID)
	assert.False(t, ok)
}

func TestUnknownTextShowsMenu(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.HandleText(context.Background(), customer(5), "hello?"))
	msg, _ := h.msg.Last(messengertest.OpSendText)
	assert.Equal(t, messenger.ReplyKeyboard{{LabelLeaveReview}, {LabelReadReviews}}, msg.Markup)
}

func TestMenuLabelInterruptsFlow(t *testing.T) {
	h := newHarness(t)
	u := customer(5)
	ctx := context.Background()
	require.NoError(t, h.svc.HandleText(ctx, u, LabelLeaveReview))
	require.NoError(t, h.svc.HandleText(ctx, u, LabelBack))

	_, ok := h.state(t, u.ID)
	assert.False(t, ok)
}
