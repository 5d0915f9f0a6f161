package messenger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"reviewbot/internal/callback"

	tele "gopkg.in/telebot.v3"
)

// maxDownload caps photo downloads; the Bot API itself serves at most 20 MB.
const maxDownload = 20 << 20

// Telebot implements Messenger on top of a telebot.v3 bot.
type Telebot struct {
	bot *tele.Bot
}

func NewTelebot(b *tele.Bot) *Telebot {
	return &Telebot{bot: b}
}

func (t *Telebot) SendText(ctx context.Context, chatID int64, text string, markup Markup) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}
	opts, err := sendOptions(markup)
	if err != nil {
		return MessageRef{}, err
	}
	msg, err := t.bot.Send(tele.ChatID(chatID), text, opts...)
	if err != nil {
		return MessageRef{}, mapError(err)
	}
	return refOf(msg), nil
}

func (t *Telebot) SendPhoto(ctx context.Context, chatID int64, photo Photo, caption string, markup Markup) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}
	opts, err := sendOptions(markup)
	if err != nil {
		return MessageRef{}, err
	}
	msg, err := t.bot.Send(tele.ChatID(chatID), telePhoto(photo, caption), opts...)
	if err != nil {
		return MessageRef{}, mapError(err)
	}
	return refOf(msg), nil
}

func (t *Telebot) EditText(ctx context.Context, ref MessageRef, text string, kb InlineKeyboard) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return ref, err
	}
	opts, err := editOptions(kb)
	if err != nil {
		return ref, err
	}
	msg, err := t.bot.Edit(stored(ref), text, opts...)
	if err != nil {
		if notModified(err) {
			return ref, nil
		}
		return ref, mapError(err)
	}
	return refOf(msg), nil
}

func (t *Telebot) EditCaption(ctx context.Context, ref MessageRef, caption string, kb InlineKeyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts, err := editOptions(kb)
	if err != nil {
		return err
	}
	if _, err := t.bot.EditCaption(stored(ref), caption, opts...); err != nil && !notModified(err) {
		return mapError(err)
	}
	return nil
}

func (t *Telebot) EditMedia(ctx context.Context, ref MessageRef, photo Photo, caption string, kb InlineKeyboard) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return ref, err
	}
	opts, err := editOptions(kb)
	if err != nil {
		return ref, err
	}
	msg, err := t.bot.EditMedia(stored(ref), telePhoto(photo, caption), opts...)
	if err != nil {
		if notModified(err) {
			return ref, nil
		}
		return ref, mapError(err)
	}
	return refOf(msg), nil
}

func (t *Telebot) Delete(ctx context.Context, ref MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := t.bot.Delete(stored(ref))
	if err != nil && !errors.Is(err, tele.ErrNotFoundToDelete) {
		return mapError(err)
	}
	return nil
}

func (t *Telebot) Answer(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text, ShowAlert: alert})
}

func (t *Telebot) Download(ctx context.Context, fileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := t.bot.FileByID(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	rc, err := t.bot.File(&f)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileID, err)
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, maxDownload)
	}
	return data, nil
}

func stored(ref MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

// RefOf converts a received or sent telebot message into a MessageRef.
func RefOf(msg *tele.Message) MessageRef { return refOf(msg) }

func refOf(msg *tele.Message) MessageRef {
	if msg == nil {
		return MessageRef{}
	}
	ref := MessageRef{MessageID: msg.ID}
	if msg.Chat != nil {
		ref.ChatID = msg.Chat.ID
	}
	if msg.Photo != nil {
		ref.HasMedia = true
		ref.PhotoFileID = msg.Photo.FileID
	}
	return ref
}

func telePhoto(p Photo, caption string) *tele.Photo {
	photo := &tele.Photo{Caption: caption}
	if p.FileID != "" {
		photo.File = tele.File{FileID: p.FileID}
	} else {
		photo.File = tele.FromReader(bytes.NewReader(p.Data))
	}
	return photo
}

func sendOptions(markup Markup) ([]interface{}, error) {
	switch m := markup.(type) {
	case nil:
		return nil, nil
	case InlineKeyboard:
		return editOptions(m)
	case ReplyKeyboard:
		rm := &tele.ReplyMarkup{ResizeKeyboard: true}
		for _, row := range m {
			buttons := make([]tele.ReplyButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tele.ReplyButton{Text: label})
			}
			rm.ReplyKeyboard = append(rm.ReplyKeyboard, buttons)
		}
		return []interface{}{rm}, nil
	case RemoveKeyboard:
		return []interface{}{&tele.ReplyMarkup{RemoveKeyboard: true}}, nil
	default:
		return nil, fmt.Errorf("unsupported markup %T", markup)
	}
}

func editOptions(kb InlineKeyboard) ([]interface{}, error) {
	if len(kb) == 0 {
		return nil, nil
	}
	rm, err := inlineMarkup(kb)
	if err != nil {
		return nil, err
	}
	return []interface{}{rm}, nil
}

func inlineMarkup(kb InlineKeyboard) (*tele.ReplyMarkup, error) {
	rm := &tele.ReplyMarkup{}
	for _, row := range kb {
		buttons := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			data, err := callback.Encode(b.Action)
			if err != nil {
				return nil, fmt.Errorf("button %q: %w", b.Text, err)
			}
			buttons = append(buttons, tele.InlineButton{Text: b.Text, Data: data})
		}
		rm.InlineKeyboard = append(rm.InlineKeyboard, buttons)
	}
	return rm, nil
}

func notModified(err error) bool {
	return errors.Is(err, tele.ErrMessageNotModified) ||
		errors.Is(err, tele.ErrSameMessageContent) ||
		strings.Contains(err.Error(), "message is not modified")
}

func mapError(err error) error {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrKickedFromGroup):
		return fmt.Errorf("%w: %v", ErrRecipientUnavailable, err)
	}
	return err
}
