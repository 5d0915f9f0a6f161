package bot

import (
	"encoding/json"
	"fmt"
	"time"

	"reviewbot/internal/config"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

var allowedUpdates = []string{"message", "callback_query"}

// NewPoller picks the update source for cfg: a webhook when a public URL is
// configured, long polling otherwise. A webhook poller must also be mounted
// on an HTTP server since it does not listen by itself.
func NewPoller(cfg config.BotConfig, logger *zap.SugaredLogger) tele.Poller {
	if cfg.WebhookURL != "" {
		return &tele.Webhook{
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.WebhookURL},
			SecretToken:    cfg.WebhookSecret,
			AllowedUpdates: allowedUpdates,
		}
	}
	return &RetryPoller{
		Timeout:    cfg.PollTimeout,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	}
}

// RetryPoller is a long poller that waits RetryDelay after a failed
// getUpdates call instead of retrying immediately.
type RetryPoller struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	Logger     *zap.SugaredLogger

	lastUpdateID int
}

type updatesResponse struct {
	Result []tele.Update `json:"result"`
}

func (p *RetryPoller) Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	// A leftover webhook makes getUpdates fail; removal failing is not fatal.
	if err := b.RemoveWebhook(); err != nil {
		p.Logger.Warnw("failed to remove webhook", "error", err)
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		updates, err := p.fetch(b)
		if err != nil {
			p.Logger.Warnw("polling failed, retrying", "error", err, "retry_in", p.RetryDelay)
			select {
			case <-stop:
				return
			case <-time.After(p.RetryDelay):
			}
			continue
		}

		for _, u := range updates {
			p.lastUpdateID = u.ID
			select {
			case dest <- u:
			case <-stop:
				return
			}
		}
	}
}

func (p *RetryPoller) fetch(b *tele.Bot) ([]tele.Update, error) {
	params := map[string]any{
		"offset":          p.lastUpdateID + 1,
		"timeout":         int(p.Timeout / time.Second),
		"allowed_updates": allowedUpdates,
	}
	data, err := b.Raw("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var resp updatesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return resp.Result, nil
}
