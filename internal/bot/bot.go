package bot

import (
	"context"
	"sync"

	"reviewbot/internal/callback"
	"reviewbot/internal/conversation"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/flows"
	"reviewbot/internal/messenger"
	"reviewbot/internal/metrics"
	"reviewbot/internal/ratelimiter"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

type Deps struct {
	Service *flows.Service
	Users   users.Store
	Limiter ratelimiter.Limiter
	Locker  *conversation.Locker
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
}

// Bot turns telebot updates into flow calls.
type Bot struct {
	tb      *tele.Bot
	svc     *flows.Service
	users   users.Store
	limiter ratelimiter.Limiter
	locker  *conversation.Locker
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	base context.Context
}

// New registers middleware and handlers on tb.
func New(tb *tele.Bot, d Deps) *Bot {
	if d.Limiter == nil {
		d.Limiter = ratelimiter.Unlimited{}
	}
	if d.Locker == nil {
		d.Locker = conversation.NewLocker()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	b := &Bot{
		tb:      tb,
		svc:     d.Service,
		users:   d.Users,
		limiter: d.Limiter,
		locker:  d.Locker,
		logger:  d.Logger,
		metrics: d.Metrics,
		base:    context.Background(),
	}

	tb.Use(b.recoverer, b.rateLimit, b.touch, b.serialize)

	tb.Handle("/start", b.named("start", b.onStart))
	tb.Handle(tele.OnText, b.named("text", b.onText))
	tb.Handle(tele.OnPhoto, b.named("photo", b.onPhoto))
	tb.Handle(tele.OnCallback, b.named("callback", b.onCallback))
	for _, kind := range []string{tele.OnSticker, tele.OnVideo, tele.OnDocument, tele.OnVoice, tele.OnAnimation} {
		tb.Handle(kind, b.named("other", b.onOther))
	}
	return b
}

// Run processes updates until ctx is cancelled. Handlers receive a context
// derived from ctx so shutdown interrupts long operations like broadcasts.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.base = ctx
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.tb.Start()
		close(done)
	}()

	b.logger.Infow("bot is receiving updates", "username", b.tb.Me.Username)
	<-ctx.Done()
	b.tb.Stop()
	<-done
	b.logger.Info("bot has stopped")
	return nil
}

func (b *Bot) ctx() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.base
}

// named counts handler failures; the error still reaches OnError for logging.
func (b *Bot) named(name string, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		err := h(c)
		if err != nil {
			b.metrics.HandlerErrors.WithLabelValues(name).Inc()
		}
		return err
	}
}

func (b *Bot) onStart(c tele.Context) error {
	return b.svc.Start(b.ctx(), userOf(c.Sender()))
}

func (b *Bot) onText(c tele.Context) error {
	u := userOf(c.Sender())
	m := c.Message()
	if isForward(m) && b.svc.IsOperator(u.ID) {
		return b.svc.ForwardAsReview(b.ctx(), u, forwardOf(m))
	}
	return b.svc.HandleText(b.ctx(), u, m.Text)
}

func (b *Bot) onPhoto(c tele.Context) error {
	u := userOf(c.Sender())
	m := c.Message()
	if isForward(m) && b.svc.IsOperator(u.ID) {
		return b.svc.ForwardAsReview(b.ctx(), u, forwardOf(m))
	}
	return b.svc.HandlePhoto(b.ctx(), u, flows.Photo{FileID: m.Photo.FileID, Caption: m.Caption})
}

func (b *Bot) onOther(c tele.Context) error {
	return b.svc.HandleUnknown(b.ctx(), userOf(c.Sender()))
}

func (b *Bot) onCallback(c tele.Context) error {
	cb := c.Callback()
	a, err := callback.Decode(cb.Data)
	if err != nil {
		b.logger.Warnw("undecodable callback", "user_id", cb.Sender.ID, "error", err)
		return b.svc.HandleInvalidPress(b.ctx(), cb.ID)
	}
	return b.svc.HandlePress(b.ctx(), flows.Press{
		ID:      cb.ID,
		From:    userOf(cb.Sender),
		Message: messenger.RefOf(cb.Message),
		Action:  a,
	})
}

// OnError is the telebot error hook.
func OnError(logger *zap.SugaredLogger) func(error, tele.Context) {
	return func(err error, c tele.Context) {
		if c != nil && c.Sender() != nil {
			logger.Errorw("update failed", "user_id", c.Sender().ID, "error", err)
			return
		}
		logger.Errorw("telebot", "error", err)
	}
}

func userOf(u *tele.User) users.User {
	if u == nil {
		return users.User{}
	}
	return users.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsActive:  true,
	}
}

func isForward(m *tele.Message) bool {
	return m != nil && (m.IsForwarded() || m.Origin != nil || m.OriginalSenderName != "")
}

// forwardOf extracts the original author of a forwarded message. Accounts
// with forwarding privacy enabled only expose a display name.
func forwardOf(m *tele.Message) flows.Forward {
	f := flows.Forward{Text: m.Text}
	if m.Photo != nil {
		f.PhotoFileID = m.Photo.FileID
		f.Text = m.Caption
	}

	var sender *tele.User
	switch {
	case m.OriginalSender != nil:
		sender = m.OriginalSender
	case m.Origin != nil && m.Origin.Sender != nil:
		sender = m.Origin.Sender
	}
	if sender != nil {
		u := userOf(sender)
		f.Sender = &u
		return f
	}

	switch {
	case m.OriginalSenderName != "":
		f.HiddenName = m.OriginalSenderName
	case m.Origin != nil && m.Origin.SenderUsername != "":
		f.HiddenName = m.Origin.SenderUsername
	case m.OriginalChat != nil:
		f.HiddenName = m.OriginalChat.Title
	}
	return f
}
