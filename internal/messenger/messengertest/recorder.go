// Package messengertest provides an in-memory Messenger that records every
// call, for tests of code that talks to users.
package messengertest

import (
	"context"
	"fmt"
	"sync"

	"reviewbot/internal/messenger"
)

const (
	OpSendText    = "send_text"
	OpSendPhoto   = "send_photo"
	OpEditText    = "edit_text"
	OpEditCaption = "edit_caption"
	OpEditMedia   = "edit_media"
	OpDelete      = "delete"
	OpAnswer      = "answer"
	OpDownload    = "download"
)

type Call struct {
	Op         string
	ChatID     int64
	MessageID  int
	Text       string
	Photo      messenger.Photo
	Markup     messenger.Markup
	Keyboard   messenger.InlineKeyboard
	CallbackID string
	Alert      bool
}

type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	nextID int

	// FailSend maps chat ids to the error SendText/SendPhoto return for them.
	FailSend map[int64]error
	// Files is served by Download.
	Files map[string][]byte
	// DownloadErr, when set, fails every Download.
	DownloadErr error
}

func New() *Recorder {
	return &Recorder{FailSend: map[int64]error{}, Files: map[string][]byte{}}
}

var _ messenger.Messenger = (*Recorder)(nil)

func (r *Recorder) record(c Call) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	if c.Op == OpSendText || c.Op == OpSendPhoto {
		r.nextID++
		return r.nextID
	}
	return c.MessageID
}

func (r *Recorder) failure(chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FailSend[chatID]
}

func (r *Recorder) SendText(_ context.Context, chatID int64, text string, markup messenger.Markup) (messenger.MessageRef, error) {
	if err := r.failure(chatID); err != nil {
		return messenger.MessageRef{}, err
	}
	c := Call{Op: OpSendText, ChatID: chatID, Text: text, Markup: markup}
	if kb, ok := markup.(messenger.InlineKeyboard); ok {
		c.Keyboard = kb
	}
	id := r.record(c)
	return messenger.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (r *Recorder) SendPhoto(_ context.Context, chatID int64, photo messenger.Photo, caption string, markup messenger.Markup) (messenger.MessageRef, error) {
	if err := r.failure(chatID); err != nil {
		return messenger.MessageRef{}, err
	}
	c := Call{Op: OpSendPhoto, ChatID: chatID, Text: caption, Photo: photo, Markup: markup}
	if kb, ok := markup.(messenger.InlineKeyboard); ok {
		c.Keyboard = kb
	}
	id := r.record(c)
	return messenger.MessageRef{ChatID: chatID, MessageID: id, HasMedia: true, PhotoFileID: photoID(photo, id)}, nil
}

func photoID(p messenger.Photo, msgID int) string {
	if p.FileID != "" {
		return p.FileID
	}
	return fmt.Sprintf("uploaded-%d", msgID)
}

func (r *Recorder) EditText(_ context.Context, ref messenger.MessageRef, text string, kb messenger.InlineKeyboard) (messenger.MessageRef, error) {
	r.record(Call{Op: OpEditText, ChatID: ref.ChatID, MessageID: ref.MessageID, Text: text, Keyboard: kb})
	return messenger.MessageRef{ChatID: ref.ChatID, MessageID: ref.MessageID}, nil
}

func (r *Recorder) EditCaption(_ context.Context, ref messenger.MessageRef, caption string, kb messenger.InlineKeyboard) error {
	r.record(Call{Op: OpEditCaption, ChatID: ref.ChatID, MessageID: ref.MessageID, Text: caption, Keyboard: kb})
	return nil
}

func (r *Recorder) EditMedia(_ context.Context, ref messenger.MessageRef, photo messenger.Photo, caption string, kb messenger.InlineKeyboard) (messenger.MessageRef, error) {
	r.record(Call{Op: OpEditMedia, ChatID: ref.ChatID, MessageID: ref.MessageID, Text: caption, Photo: photo, Keyboard: kb})
	return messenger.MessageRef{ChatID: ref.ChatID, MessageID: ref.MessageID, HasMedia: true, PhotoFileID: photoID(photo, ref.MessageID)}, nil
}

func (r *Recorder) Delete(_ context.Context, ref messenger.MessageRef) error {
	r.record(Call{Op: OpDelete, ChatID: ref.ChatID, MessageID: ref.MessageID})
	return nil
}

func (r *Recorder) Answer(_ context.Context, callbackID, text string, alert bool) error {
	r.record(Call{Op: OpAnswer, CallbackID: callbackID, Text: text, Alert: alert})
	return nil
}

func (r *Recorder) Download(_ context.Context, fileID string) ([]byte, error) {
	r.record(Call{Op: OpDownload, Text: fileID})
	if r.DownloadErr != nil {
		return nil, r.DownloadErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.Files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return data, nil
}

// Calls returns a copy of everything recorded so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// ByOp returns the recorded calls of one kind, in order.
func (r *Recorder) ByOp(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// To returns the sends (text or photo) addressed to chatID.
func (r *Recorder) To(chatID int64) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if (c.Op == OpSendText || c.Op == OpSendPhoto) && c.ChatID == chatID {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the most recent call of op and whether there was one.
func (r *Recorder) Last(op string) (Call, bool) {
	calls := r.ByOp(op)
	if len(calls) == 0 {
		return Call{}, false
	}
	return calls[len(calls)-1], true
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
