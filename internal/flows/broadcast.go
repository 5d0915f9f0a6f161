package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reviewbot/internal/callback"
	"reviewbot/internal/conversation"
	"reviewbot/internal/domain/broadcasts"
	"reviewbot/internal/domain/templates"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
)

const textComposeBroadcast = "📢 Send the text of the broadcast."

var cancelBroadcastRow = messenger.Row(messenger.Button{Text: "❌ Cancel", Action: callback.Action{Kind: callback.CancelBroadcast}})

func confirmKeyboard() messenger.InlineKeyboard {
	return messenger.InlineKeyboard{
		messenger.Row(
			messenger.Button{Text: "✅ Send", Action: callback.Action{Kind: callback.ConfirmBroadcast}},
			messenger.Button{Text: "✏️ Change", Action: callback.Action{Kind: callback.RetryBroadcast}},
		),
		cancelBroadcastRow,
	}
}

func previewText(text string) string {
	return textLimit("📋 Broadcast preview:\n\n" + text + "\n\nSend this message to all users?")
}

// composeScreen lists saved templates under the prompt, if there are any.
func (s *Service) composeScreen(ctx context.Context) (screen, error) {
	list, err := s.store.Templates.List(ctx)
	if err != nil {
		return screen{}, fmt.Errorf("list templates: %w", err)
	}
	text := textComposeBroadcast
	kb := make(messenger.InlineKeyboard, 0, len(list)+1)
	if len(list) > 0 {
		text += "\n\nOr pick a saved template:"
	}
	for _, t := range list {
		kb = append(kb, messenger.Row(messenger.Button{
			Text:   "📄 " + t.Name,
			Action: callback.Action{Kind: callback.UseTemplate, TemplateID: t.ID},
		}))
	}
	return screen{text: text, kb: append(kb, cancelBroadcastRow)}, nil
}

func (s *Service) StartBroadcast(ctx context.Context, u users.User) error {
	sc, err := s.composeScreen(ctx)
	if err != nil {
		return err
	}
	st := conversation.State{Flow: conversation.FlowBroadcast, Step: conversation.Composing}
	if err := s.states.Set(ctx, u.ID, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	_, err = s.show(ctx, u.ID, nil, sc)
	return err
}

func (s *Service) BroadcastText(ctx context.Context, u users.User, st conversation.State, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.hint(ctx, u.ID, textComposeBroadcast)
	}
	st.BroadcastText = text
	st.Step = conversation.Confirming
	if err := s.states.Set(ctx, u.ID, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	_, err := s.msg.SendText(ctx, u.ID, previewText(text), confirmKeyboard())
	return err
}

// UseTemplate takes a saved template as the broadcast text and goes
// straight to confirmation.
func (s *Service) UseTemplate(ctx context.Context, p Press) (reply, error) {
	t, err := s.store.Templates.GetByID(ctx, p.Action.TemplateID)
	if errors.Is(err, templates.ErrNotFound) {
		return reply{text: "This template no longer exists."}, nil
	}
	if err != nil {
		return reply{}, fmt.Errorf("load template: %w", err)
	}

	st := conversation.State{
		Flow:          conversation.FlowBroadcast,
		Step:          conversation.Confirming,
		BroadcastText: t.Text,
	}
	if err := s.states.Set(ctx, p.From.ID, st); err != nil {
		return reply{}, fmt.Errorf("save state: %w", err)
	}
	s.edit(ctx, p.Message, previewText(t.Text), confirmKeyboard())
	return reply{}, nil
}

func (s *Service) RetryBroadcast(ctx context.Context, p Press) (reply, error) {
	st, ok, err := conversation.Lookup(ctx, s.states, p.From.ID)
	if err != nil {
		return reply{}, err
	}
	if !ok || st.Flow != conversation.FlowBroadcast {
		return reply{text: textStale}, nil
	}

	sc, err := s.composeScreen(ctx)
	if err != nil {
		return reply{}, err
	}
	st.Step = conversation.Composing
	st.BroadcastText = ""
	if err := s.states.Set(ctx, p.From.ID, st); err != nil {
		return reply{}, fmt.Errorf("save state: %w", err)
	}
	s.edit(ctx, p.Message, sc.text, sc.kb)
	return reply{}, nil
}

func (s *Service) CancelBroadcast(ctx context.Context, p Press) (reply, error) {
	st, ok, err := conversation.Lookup(ctx, s.states, p.From.ID)
	if err != nil {
		return reply{}, err
	}
	if ok && st.Flow == conversation.FlowBroadcast {
		s.clearState(ctx, p.From.ID)
	}
	s.edit(ctx, p.Message, "❌ Broadcast cancelled.", nil)
	return reply{text: "Cancelled"}, nil
}

// ConfirmBroadcast sends the confirmed text to every known user and reports
// the tally. The state is cleared before sending so a second press cannot
// start another run.
func (s *Service) ConfirmBroadcast(ctx context.Context, p Press) (reply, error) {
	st, ok, err := conversation.Lookup(ctx, s.states, p.From.ID)
	if err != nil {
		return reply{}, err
	}
	if !ok || !st.In(conversation.FlowBroadcast, conversation.Confirming) || st.BroadcastText == "" {
		return reply{text: textStale}, nil
	}
	s.clearState(ctx, p.From.ID)

	// The press is answered now; a broadcast outlives the callback timeout.
	if err := s.msg.Answer(ctx, p.ID, "Sending…", false); err != nil {
		s.logger.Debugw("answer callback", "error", err)
	}
	s.edit(ctx, p.Message, "📤 Sending the broadcast…", nil)

	run, tally, err := s.Broadcast(ctx, p.From.ID, st.BroadcastText)
	if err != nil {
		summary := fmt.Sprintf("⚠️ Broadcast interrupted.\nSent: %d\nFailed: %d", tally.Sent, tally.Failed)
		if _, sendErr := s.msg.SendText(context.WithoutCancel(ctx), p.From.ID, summary, nil); sendErr != nil {
			s.logger.Warnw("report interrupted broadcast", "error", sendErr)
		}
		return reply{answered: true}, err
	}

	summary := fmt.Sprintf("✅ Broadcast finished.\nRecipients: %d\nSent: %d\nFailed: %d", run.Total, run.Sent, run.Failed)
	if tally.Unavailable > 0 {
		summary += fmt.Sprintf("\nUnreachable (marked inactive): %d", tally.Unavailable)
	}
	if _, err := s.msg.SendText(ctx, p.From.ID, summary, nil); err != nil {
		s.logger.Warnw("report broadcast", "error", err)
	}
	return reply{answered: true}, nil
}

// Broadcast sends text to all known users one after another with the
// configured delay between sends. Failed recipients are counted and do not
// stop the run; unreachable ones are marked inactive. A cancelled ctx stops
// the run and returns its error. Only finished runs are recorded.
func (s *Service) Broadcast(ctx context.Context, operatorID int64, text string) (*broadcasts.Run, messenger.Tally, error) {
	var tally messenger.Tally

	ids, err := s.store.Users.ListIDs(ctx)
	if err != nil {
		return nil, tally, fmt.Errorf("list users: %w", err)
	}

	run := &broadcasts.Run{OperatorID: operatorID, Text: text, Total: len(ids), StartedAt: s.now()}
	s.logger.Infow("broadcast started", "recipients", len(ids))

	for i, id := range ids {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.BroadcastDelay); err != nil {
				s.logger.Warnw("broadcast interrupted", "sent", tally.Sent, "failed", tally.Failed, "remaining", len(ids)-i)
				return nil, tally, err
			}
		}

		d := messenger.Deliver(ctx, s.msg, id, text)
		tally.Add(d)
		s.afterDelivery(ctx, d)

		result := "sent"
		switch {
		case d.Unavailable():
			result = "unavailable"
		case !d.OK():
			result = "failed"
		}
		s.metrics.BroadcastDeliveries.WithLabelValues(result).Inc()
	}

	run.Sent, run.Failed = tally.Sent, tally.Failed
	run.FinishedAt = s.now()
	if err := s.store.Broadcasts.Record(ctx, run); err != nil {
		s.logger.Warnw("record broadcast run", "error", err)
	}
	s.logger.Infow("broadcast finished", "sent", tally.Sent, "failed", tally.Failed, "unavailable", tally.Unavailable)
	return run, tally, nil
}
