// Package flows holds the bot's conversations: review submission,
// moderation, browsing, broadcasts, statistics, templates and user
// administration. It talks to users only through a messenger.Messenger and
// keeps per-chat progress in a conversation.Store.
package flows

import (
	"context"
	"fmt"
	"time"

	"reviewbot/internal/callback"
	"reviewbot/internal/catalog"
	"reviewbot/internal/conversation"
	"reviewbot/internal/domain/storage"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/media"
	"reviewbot/internal/messenger"
	"reviewbot/internal/metrics"
	"reviewbot/internal/preview"

	"go.uber.org/zap"
)

const DefaultPageSize = 5

type Config struct {
	// AdminID is the operator's chat id; zero disables moderation dispatch.
	AdminID        int64
	PageSize       int
	BroadcastDelay time.Duration
	BlurSigma      float64
}

type Deps struct {
	Store     *storage.Container
	Messenger messenger.Messenger
	Catalog   *catalog.Catalog
	States    conversation.Store
	Archive   media.Archive
	Logger    *zap.SugaredLogger
	Metrics   *metrics.Metrics
}

type Service struct {
	store   *storage.Container
	msg     messenger.Messenger
	catalog *catalog.Catalog
	states  conversation.Store
	archive media.Archive
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	cfg     Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	menu    map[string]menuEntry
	presses map[callback.Kind]pressHandler
}

func New(d Deps, cfg Config) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.BlurSigma <= 0 {
		cfg.BlurSigma = preview.DefaultSigma
	}
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	if d.Archive == nil {
		d.Archive = media.NopArchive{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	s := &Service{
		store:   d.Store,
		msg:     d.Messenger,
		catalog: d.Catalog,
		states:  d.States,
		archive: d.Archive,
		logger:  d.Logger,
		metrics: d.Metrics,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	s.menu = s.menuTable()
	s.presses = s.pressTable()
	return s
}

// IsOperator reports whether id is the configured operator.
func (s *Service) IsOperator(id int64) bool {
	return s.cfg.AdminID != 0 && id == s.cfg.AdminID
}

// Press is a decoded inline-button press.
type Press struct {
	ID      string
	From    users.User
	Message messenger.MessageRef
	Action  callback.Action
}

// Photo is an inbound photo message.
type Photo struct {
	FileID  string
	Caption string
}

// Forward is a message the operator forwarded into the chat. Sender is nil
// when the original author hides their account.
type Forward struct {
	Sender      *users.User
	HiddenName  string
	Text        string
	PhotoFileID string
}

// reply is how a press handler wants the button press acknowledged.
type reply struct {
	text  string
	alert bool
	// answered is set by handlers that acknowledged the press themselves.
	answered bool
}

type pressHandler func(ctx context.Context, p Press) (reply, error)

const (
	textFailure  = "😔 Sorry, something went wrong. Please try again later."
	textStale    = "This action is no longer available."
	textNoAccess = "⛔ This action is available to the administrator only."
)

// HandlePress dispatches a button press and always answers it.
func (s *Service) HandlePress(ctx context.Context, p Press) error {
	h, ok := s.presses[p.Action.Kind]
	if !ok {
		_ = s.msg.Answer(ctx, p.ID, textStale, false)
		return fmt.Errorf("no handler for %s", p.Action.Kind)
	}

	if p.Action.Kind.OperatorOnly() && !s.IsOperator(p.From.ID) {
		s.logger.Warnw("operator action refused", "user_id", p.From.ID, "action", p.Action.Kind.String())
		return s.msg.Answer(ctx, p.ID, textNoAccess, true)
	}

	r, err := h(ctx, p)
	if err != nil {
		if !r.answered {
			_ = s.msg.Answer(ctx, p.ID, textFailure, true)
		}
		return fmt.Errorf("%s: %w", p.Action.Kind, err)
	}
	if r.answered {
		return nil
	}
	if err := s.msg.Answer(ctx, p.ID, r.text, r.alert); err != nil {
		s.logger.Debugw("answer callback", "error", err)
	}
	return nil
}

// HandleInvalidPress answers a press whose payload could not be decoded,
// typically a button left over from an older release.
func (s *Service) HandleInvalidPress(ctx context.Context, pressID string) error {
	return s.msg.Answer(ctx, pressID, textStale, false)
}

func (s *Service) pressTable() map[callback.Kind]pressHandler {
	return map[callback.Kind]pressHandler{
		callback.Product:      s.SelectProduct,
		callback.Rating:       s.SelectRating,
		callback.SkipPhoto:    s.SkipPhoto,
		callback.CancelReview: s.CancelReview,

		callback.Approve: s.Approve,
		callback.Reject:  s.Reject,
		callback.Delete:  s.Delete,

		callback.ReviewsPage: s.ReviewsPage,
		callback.ViewReview:  s.ViewReview,
		callback.ShowPhoto:   s.ShowPhoto,
		callback.HidePhoto:   s.HidePhoto,

		callback.UseTemplate:      s.UseTemplate,
		callback.ConfirmBroadcast: s.ConfirmBroadcast,
		callback.RetryBroadcast:   s.RetryBroadcast,
		callback.CancelBroadcast:  s.CancelBroadcast,

		callback.CreateTemplate: s.CreateTemplate,
		callback.ViewTemplates:  s.ViewTemplates,
		callback.ViewTemplate:   s.ViewTemplate,
		callback.TemplatesMenu:  s.TemplatesMenuPress,

		callback.UsersPage:   s.UsersPage,
		callback.UserDetails: s.UserDetails,
		callback.SearchUsers: s.SearchUsers,
		callback.WriteToUser: s.WriteToUser,
		callback.UsersBack:   s.UsersBack,

		callback.RefreshStats: s.RefreshStats,
	}
}

// HandleText routes a plain text message: menu labels first, then the
// step the chat is in.
func (s *Service) HandleText(ctx context.Context, u users.User, text string) error {
	if entry, ok := s.menu[text]; ok {
		if entry.operator && !s.IsOperator(u.ID) {
			return s.HandleUnknown(ctx, u)
		}
		return s.apologise(ctx, u.ID, entry.fn(ctx, u))
	}

	st, ok, err := conversation.Lookup(ctx, s.states, u.ID)
	if err != nil {
		return s.apologise(ctx, u.ID, fmt.Errorf("load state: %w", err))
	}
	if !ok {
		return s.HandleUnknown(ctx, u)
	}

	switch {
	case st.In(conversation.FlowSubmission, conversation.AwaitingText):
		err = s.ReviewText(ctx, u, st, text)
	case st.Flow == conversation.FlowSubmission:
		err = s.hint(ctx, u.ID, "Please use the buttons above to continue, or cancel the review.")
	case st.In(conversation.FlowBroadcast, conversation.Composing):
		err = s.BroadcastText(ctx, u, st, text)
	case st.Flow == conversation.FlowBroadcast:
		err = s.hint(ctx, u.ID, "Please confirm or change the broadcast with the buttons above.")
	case st.Flow == conversation.FlowTemplate:
		err = s.TemplateInput(ctx, u, st, text)
	case st.In(conversation.FlowUserSearch, conversation.AwaitingSearchQuery):
		err = s.SearchQuery(ctx, u, text)
	case st.In(conversation.FlowDirectMessage, conversation.AwaitingMessage):
		err = s.DirectMessage(ctx, u, st, text)
	default:
		err = s.HandleUnknown(ctx, u)
	}
	return s.apologise(ctx, u.ID, err)
}

// HandlePhoto routes a photo: the photo step of a submission, or a
// replacement photo for an earlier review.
func (s *Service) HandlePhoto(ctx context.Context, u users.User, p Photo) error {
	st, ok, err := conversation.Lookup(ctx, s.states, u.ID)
	if err != nil {
		return s.apologise(ctx, u.ID, fmt.Errorf("load state: %w", err))
	}
	if ok && st.In(conversation.FlowSubmission, conversation.AwaitingPhotoOrSkip) {
		return s.ReviewPhoto(ctx, u, st, p)
	}
	if id, ok := parseResend(p.Caption); ok {
		return s.apologise(ctx, u.ID, s.ResendPhoto(ctx, u, id, p))
	}
	if ok && st.Flow == conversation.FlowSubmission {
		return s.hint(ctx, u.ID, "A photo is not expected yet. Please follow the steps above.")
	}
	return s.HandleUnknown(ctx, u)
}

// HandleUnknown answers input that matches nothing with the main menu.
func (s *Service) HandleUnknown(ctx context.Context, u users.User) error {
	_, err := s.msg.SendText(ctx, u.ID, "Please choose an option from the menu.", s.mainKeyboard(u.ID))
	return err
}

func (s *Service) hint(ctx context.Context, chatID int64, text string) error {
	_, err := s.msg.SendText(ctx, chatID, text, nil)
	return err
}

// apologise tells the user a handler failed and passes err through.
func (s *Service) apologise(ctx context.Context, chatID int64, err error) error {
	if err == nil {
		return nil
	}
	if _, sendErr := s.msg.SendText(ctx, chatID, textFailure, nil); sendErr != nil {
		s.logger.Warnw("send failure notice", "chat_id", chatID, "error", sendErr)
	}
	return err
}

// screen is one rendering of an interactive message.
type screen struct {
	text  string
	photo *messenger.Photo
	kb    messenger.InlineKeyboard
}

// show renders sc in place of at, or as a new message when at is nil. Text
// and media messages cannot be edited into each other, so a change of kind
// deletes the old message and sends a new one.
func (s *Service) show(ctx context.Context, chatID int64, at *messenger.MessageRef, sc screen) (messenger.MessageRef, error) {
	var markup messenger.Markup
	if sc.kb != nil {
		markup = sc.kb
	}

	switch {
	case at == nil || at.MessageID == 0:
	case sc.photo == nil && !at.HasMedia:
		return s.msg.EditText(ctx, *at, sc.text, sc.kb)
	case sc.photo != nil && at.HasMedia:
		return s.msg.EditMedia(ctx, *at, *sc.photo, sc.text, sc.kb)
	default:
		if err := s.msg.Delete(ctx, *at); err != nil {
			s.logger.Debugw("delete before re-render", "chat_id", at.ChatID, "error", err)
		}
	}

	if sc.photo != nil {
		return s.msg.SendPhoto(ctx, chatID, *sc.photo, sc.text, markup)
	}
	return s.msg.SendText(ctx, chatID, sc.text, markup)
}

// edit replaces the text or caption of at, logging failures. Edits of
// messages the user may have deleted are best effort.
func (s *Service) edit(ctx context.Context, at messenger.MessageRef, text string, kb messenger.InlineKeyboard) {
	var err error
	if at.HasMedia {
		err = s.msg.EditCaption(ctx, at, text, kb)
	} else {
		_, err = s.msg.EditText(ctx, at, text, kb)
	}
	if err != nil {
		s.logger.Warnw("edit message", "chat_id", at.ChatID, "message_id", at.MessageID, "error", err)
	}
}

func (s *Service) clearState(ctx context.Context, chatID int64) {
	if err := s.states.Clear(ctx, chatID); err != nil {
		s.logger.Warnw("clear conversation state", "chat_id", chatID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
