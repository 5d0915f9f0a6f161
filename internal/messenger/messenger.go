// Package messenger is the outbound side of the chat platform: sending,
// editing and deleting messages, answering button presses and fetching
// files.
package messenger

import (
	"context"
	"errors"
	"unicode/utf8"

	"reviewbot/internal/callback"
)

// ErrRecipientUnavailable marks deliveries that failed because the user
// blocked the bot, deleted the account or the chat no longer exists.
var ErrRecipientUnavailable = errors.New("recipient unavailable")

// MessageRef identifies a sent message and what kind of content it holds.
type MessageRef struct {
	ChatID      int64
	MessageID   int
	HasMedia    bool
	PhotoFileID string
}

// Photo is either an already uploaded file (FileID) or raw bytes to upload.
type Photo struct {
	FileID string
	Data   []byte
}

type Button struct {
	Text   string
	Action callback.Action
}

// Markup is one of InlineKeyboard, ReplyKeyboard or RemoveKeyboard.
type Markup interface {
	isMarkup()
}

// InlineKeyboard is attached to a message; each row is a slice of buttons.
type InlineKeyboard [][]Button

// ReplyKeyboard replaces the user's keyboard with fixed text labels.
type ReplyKeyboard [][]string

// RemoveKeyboard hides a previously shown reply keyboard.
type RemoveKeyboard struct{}

func (InlineKeyboard) isMarkup() {}
func (ReplyKeyboard) isMarkup()  {}
func (RemoveKeyboard) isMarkup() {}

// Platform limits, in characters.
const (
	MaxText    = 4096
	MaxCaption = 1024
)

// Truncate shortens s to at most n characters, marking the cut with "…".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// Row is shorthand for one keyboard row.
func Row(buttons ...Button) []Button { return buttons }

type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, markup Markup) (MessageRef, error)
	SendPhoto(ctx context.Context, chatID int64, photo Photo, caption string, markup Markup) (MessageRef, error)
	// EditText replaces the text of a text message. Editing to identical
	// content is not an error.
	EditText(ctx context.Context, ref MessageRef, text string, kb InlineKeyboard) (MessageRef, error)
	EditCaption(ctx context.Context, ref MessageRef, caption string, kb InlineKeyboard) error
	// EditMedia replaces the photo and caption of a media message.
	EditMedia(ctx context.Context, ref MessageRef, photo Photo, caption string, kb InlineKeyboard) (MessageRef, error)
	Delete(ctx context.Context, ref MessageRef) error
	// Answer acknowledges a button press, optionally showing text.
	Answer(ctx context.Context, callbackID, text string, alert bool) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Delivery is the outcome of sending to one recipient.
type Delivery struct {
	ChatID int64
	Err    error
}

func (d Delivery) OK() bool { return d.Err == nil }

// Unavailable reports whether the recipient can no longer be reached.
func (d Delivery) Unavailable() bool { return errors.Is(d.Err, ErrRecipientUnavailable) }

// Deliver sends text and records the outcome instead of returning an error.
func Deliver(ctx context.Context, m Messenger, chatID int64, text string) Delivery {
	_, err := m.SendText(ctx, chatID, text, nil)
	return Delivery{ChatID: chatID, Err: err}
}

// Tally aggregates deliveries. Unavailable is a subset of Failed.
type Tally struct {
	Sent        int
	Failed      int
	Unavailable int
}

func (t *Tally) Add(d Delivery) {
	if d.OK() {
		t.Sent++
		return
	}
	t.Failed++
	if d.Unavailable() {
		t.Unavailable++
	}
}

func (t Tally) Total() int { return t.Sent + t.Failed }
