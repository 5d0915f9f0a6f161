// Package conversation keeps the per-chat position inside multi-step flows.
package conversation

import (
	"context"
	"errors"
	"time"
)

var ErrNoState = errors.New("no conversation state")

type Flow string

const (
	FlowSubmission    Flow = "submission"
	FlowBroadcast     Flow = "broadcast"
	FlowTemplate      Flow = "template"
	FlowUserSearch    Flow = "user_search"
	FlowDirectMessage Flow = "direct_message"
)

type Step string

const (
	// submission
	AwaitingProduct     Step = "awaiting_product"
	AwaitingText        Step = "awaiting_text"
	AwaitingRating      Step = "awaiting_rating"
	AwaitingPhotoOrSkip Step = "awaiting_photo_or_skip"

	// broadcast
	Composing  Step = "composing"
	Confirming Step = "confirming"

	// template
	AwaitingTemplateName Step = "awaiting_template_name"
	AwaitingTemplateText Step = "awaiting_template_text"

	AwaitingSearchQuery Step = "awaiting_search_query"
	AwaitingMessage     Step = "awaiting_message"
)

// State is the in-progress data of one chat. Only the fields of the current
// Flow are meaningful.
type State struct {
	Flow Flow `json:"flow"`
	Step Step `json:"step"`

	ProductCode string `json:"product_code,omitempty"`
	Text        string `json:"text,omitempty"`
	Rating      int    `json:"rating,omitempty"`

	BroadcastText string `json:"broadcast_text,omitempty"`
	TemplateName  string `json:"template_name,omitempty"`
	TargetUserID  int64  `json:"target_user_id,omitempty"`
	UsersQuery    string `json:"users_query,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// In reports whether s is at step of flow.
func (s State) In(flow Flow, step Step) bool {
	return s.Flow == flow && s.Step == step
}

// Store holds one State per chat. Get returns ErrNoState when nothing is
// stored or the stored state has expired.
type Store interface {
	Get(ctx context.Context, chatID int64) (State, error)
	Set(ctx context.Context, chatID int64, s State) error
	Clear(ctx context.Context, chatID int64) error
}

// Lookup is Get with ErrNoState folded into ok=false.
func Lookup(ctx context.Context, st Store, chatID int64) (State, bool, error) {
	s, err := st.Get(ctx, chatID)
	if errors.Is(err, ErrNoState) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	return s, true, nil
}
