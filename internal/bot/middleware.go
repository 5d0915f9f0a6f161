package bot

import (
	"fmt"
	"runtime/debug"
	"strconv"

	tele "gopkg.in/telebot.v3"
)

const textSlowDown = "⏳ Too many requests, please slow down."

func (b *Bot) recoverer(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Errorw("handler panic", "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(c)
	}
}

// rateLimit drops updates from senders over their window. Presses are still
// answered so the client stops showing a spinner.
func (b *Bot) rateLimit(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return next(c)
		}
		if ok, retryAfter := b.limiter.Allow(strconv.FormatInt(sender.ID, 10)); !ok {
			b.metrics.UpdatesDropped.Inc()
			b.logger.Debugw("update dropped by rate limiter", "user_id", sender.ID, "retry_after", retryAfter)
			if c.Callback() != nil {
				_ = c.Respond(&tele.CallbackResponse{Text: textSlowDown})
			}
			return nil
		}
		return next(c)
	}
}

// touch records the sender on every interaction.
func (b *Bot) touch(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if sender := c.Sender(); sender != nil && b.users != nil {
			u := userOf(sender)
			if err := b.users.Upsert(b.ctx(), &u); err != nil {
				b.logger.Warnw("failed to record user activity", "user_id", u.ID, "error", err)
			}
		}
		return next(c)
	}
}

// serialize runs one update per sender at a time.
func (b *Bot) serialize(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return next(c)
		}
		unlock := b.locker.Lock(sender.ID)
		defer unlock()
		return next(c)
	}
}
