package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"reviewbot/internal/callback"
	"reviewbot/internal/conversation"
	"reviewbot/internal/domain/templates"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger"
)

const maxTemplateName = 64

func templatesMenuScreen() screen {
	return screen{
		text: "📋 Message templates",
		kb: messenger.InlineKeyboard{
			messenger.Row(messenger.Button{Text: "➕ Create template", Action: callback.Action{Kind: callback.CreateTemplate}}),
			messenger.Row(messenger.Button{Text: "📄 View templates", Action: callback.Action{Kind: callback.ViewTemplates}}),
		},
	}
}

var backToTemplatesRow = messenger.Row(messenger.Button{Text: "⬅️ Back", Action: callback.Action{Kind: callback.TemplatesMenu}})

func (s *Service) TemplatesMenu(ctx context.Context, u users.User) error {
	_, err := s.show(ctx, u.ID, nil, templatesMenuScreen())
	return err
}

func (s *Service) TemplatesMenuPress(ctx context.Context, p Press) (reply, error) {
	s.clearTemplateFlow(ctx, p.From.ID)
	at := p.Message
	_, err := s.show(ctx, p.From.ID, &at, templatesMenuScreen())
	return reply{}, err
}

func (s *Service) clearTemplateFlow(ctx context.Context, chatID int64) {
	st, ok, err := conversation.Lookup(ctx, s.states, chatID)
	if err == nil && ok && st.Flow == conversation.FlowTemplate {
		s.clearState(ctx, chatID)
	}
}

func (s *Service) CreateTemplate(ctx context.Context, p Press) (reply, error) {
	st := conversation.State{Flow: conversation.FlowTemplate, Step: conversation.AwaitingTemplateName}
	if err := s.states.Set(ctx, p.From.ID, st); err != nil {
		return reply{}, fmt.Errorf("save state: %w", err)
	}
	s.edit(ctx, p.Message, "✏️ Send the name of the new template.\nAn existing template with the same name will be replaced.",
		messenger.InlineKeyboard{backToTemplatesRow})
	return reply{}, nil
}

// TemplateInput takes the name, then the body of a template being created.
func (s *Service) TemplateInput(ctx context.Context, u users.User, st conversation.State, text string) error {
	text = strings.TrimSpace(text)

	switch st.Step {
	case conversation.AwaitingTemplateName:
		if text == "" || utf8.RuneCountInString(text) > maxTemplateName {
			return s.hint(ctx, u.ID, fmt.Sprintf("The name must be 1 to %d characters long. Try again.", maxTemplateName))
		}
		st.TemplateName = text
		st.Step = conversation.AwaitingTemplateText
		if err := s.states.Set(ctx, u.ID, st); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		prompt := fmt.Sprintf("Now send the text of the template «%s».", text)
		switch _, err := s.store.Templates.GetByName(ctx, text); {
		case err == nil:
			prompt = fmt.Sprintf("A template named «%s» already exists. Send the new text to replace it.", text)
		case !errors.Is(err, templates.ErrNotFound):
			return fmt.Errorf("look up template: %w", err)
		}
		return s.hint(ctx, u.ID, prompt)

	case conversation.AwaitingTemplateText:
		if text == "" {
			return s.hint(ctx, u.ID, "The template text cannot be empty. Try again.")
		}
		t, err := s.store.Templates.Upsert(ctx, st.TemplateName, text)
		if err != nil {
			return fmt.Errorf("save template: %w", err)
		}
		s.clearState(ctx, u.ID)
		s.logger.Infow("template saved", "template_id", t.ID, "name", t.Name)
		_, err = s.show(ctx, u.ID, nil, screen{
			text: fmt.Sprintf("✅ Template «%s» saved.", t.Name),
			kb:   templatesMenuScreen().kb,
		})
		return err
	}

	s.clearState(ctx, u.ID)
	return s.HandleUnknown(ctx, u)
}

func (s *Service) ViewTemplates(ctx context.Context, p Press) (reply, error) {
	list, err := s.store.Templates.List(ctx)
	if err != nil {
		return reply{}, fmt.Errorf("list templates: %w", err)
	}

	sc := screen{text: "📄 Saved templates:"}
	if len(list) == 0 {
		sc.text = "There are no templates yet."
	}
	for _, t := range list {
		sc.kb = append(sc.kb, messenger.Row(messenger.Button{
			Text:   t.Name,
			Action: callback.Action{Kind: callback.ViewTemplate, TemplateID: t.ID},
		}))
	}
	sc.kb = append(sc.kb, backToTemplatesRow)

	at := p.Message
	_, err = s.show(ctx, p.From.ID, &at, sc)
	return reply{}, err
}

func (s *Service) ViewTemplate(ctx context.Context, p Press) (reply, error) {
	t, err := s.store.Templates.GetByID(ctx, p.Action.TemplateID)
	if errors.Is(err, templates.ErrNotFound) {
		return s.ViewTemplates(ctx, p)
	}
	if err != nil {
		return reply{}, fmt.Errorf("load template: %w", err)
	}

	at := p.Message
	_, err = s.show(ctx, p.From.ID, &at, screen{
		text: textLimit(fmt.Sprintf("📄 %s\n\n%s", t.Name, t.Text)),
		kb: messenger.InlineKeyboard{
			messenger.Row(messenger.Button{Text: "📢 Use for broadcast", Action: callback.Action{Kind: callback.UseTemplate, TemplateID: t.ID}}),
			messenger.Row(messenger.Button{Text: "⬅️ Back", Action: callback.Action{Kind: callback.ViewTemplates}}),
		},
	})
	return reply{}, err
}
