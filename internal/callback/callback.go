// Package callback encodes inline-button actions as small typed payloads.
//
// Every button carries an Action serialised as compact JSON. The platform
// caps callback data at 64 bytes, which Encode enforces.
package callback

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxPayload is the platform limit on callback data.
const MaxPayload = 64

// MaxQueryLen bounds the search text carried by user-list pages.
const MaxQueryLen = 20

var (
	ErrPayloadTooLong = errors.New("callback payload exceeds 64 bytes")
	ErrUnknownKind    = errors.New("unknown callback kind")
	ErrMalformed      = errors.New("malformed callback payload")
)

type Kind uint8

const (
	_ Kind = iota
	Product
	Rating
	SkipPhoto
	CancelReview
	Approve
	Reject
	Delete
	ReviewsPage
	ViewReview
	ShowPhoto
	HidePhoto
	UseTemplate
	ConfirmBroadcast
	RetryBroadcast
	CancelBroadcast
	CreateTemplate
	ViewTemplates
	ViewTemplate
	TemplatesMenu
	UsersPage
	UserDetails
	SearchUsers
	WriteToUser
	UsersBack
	RefreshStats
	kindEnd
)

var kindNames = [...]string{
	Product:          "product",
	Rating:           "rating",
	SkipPhoto:        "skip_photo",
	CancelReview:     "cancel_review",
	Approve:          "approve",
	Reject:           "reject",
	Delete:           "delete",
	ReviewsPage:      "reviews_page",
	ViewReview:       "view_review",
	ShowPhoto:        "show_photo",
	HidePhoto:        "hide_photo",
	UseTemplate:      "use_template",
	ConfirmBroadcast: "confirm_broadcast",
	RetryBroadcast:   "retry_broadcast",
	CancelBroadcast:  "cancel_broadcast",
	CreateTemplate:   "create_template",
	ViewTemplates:    "view_templates",
	ViewTemplate:     "view_template",
	TemplatesMenu:    "templates_menu",
	UsersPage:        "users_page",
	UserDetails:      "user_details",
	SearchUsers:      "search_users",
	WriteToUser:      "write_to_user",
	UsersBack:        "users_back",
	RefreshStats:     "refresh_stats",
}

func (k Kind) Valid() bool { return k > 0 && k < kindEnd }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// OperatorOnly reports whether the action may only be triggered by the
// operator.
func (k Kind) OperatorOnly() bool {
	switch k {
	case Approve, Reject, Delete,
		UseTemplate, ConfirmBroadcast, RetryBroadcast, CancelBroadcast,
		CreateTemplate, ViewTemplates, ViewTemplate, TemplatesMenu,
		UsersPage, UserDetails, SearchUsers, WriteToUser, UsersBack,
		RefreshStats:
		return true
	}
	return false
}

// Action is the decoded form of a button press. Only the fields relevant to
// Kind are set.
type Action struct {
	Kind       Kind   `json:"k"`
	ReviewID   int64  `json:"r,omitempty"`
	Offset     int    `json:"o,omitempty"`
	Rating     int    `json:"s,omitempty"`
	Product    string `json:"p,omitempty"`
	TemplateID int64  `json:"t,omitempty"`
	UserID     int64  `json:"u,omitempty"`
	Page       int    `json:"g,omitempty"`
	Query      string `json:"q,omitempty"`
}

// Validate checks that the fields Kind depends on are present and sane.
func (a Action) Validate() error {
	if !a.Kind.Valid() {
		return ErrUnknownKind
	}
	switch a.Kind {
	case Approve, Reject, Delete, ViewReview, ShowPhoto, HidePhoto:
		if a.ReviewID <= 0 {
			return fmt.Errorf("%w: %s needs a review id", ErrMalformed, a.Kind)
		}
	case Rating:
		if a.Rating < 1 || a.Rating > 5 {
			return fmt.Errorf("%w: rating %d out of range", ErrMalformed, a.Rating)
		}
	case Product:
		if a.Product == "" {
			return fmt.Errorf("%w: product code missing", ErrMalformed)
		}
	case UseTemplate, ViewTemplate:
		if a.TemplateID <= 0 {
			return fmt.Errorf("%w: %s needs a template id", ErrMalformed, a.Kind)
		}
	case UserDetails, WriteToUser:
		if a.UserID == 0 {
			return fmt.Errorf("%w: %s needs a user id", ErrMalformed, a.Kind)
		}
	}
	if a.Offset < 0 || a.Page < 0 {
		return fmt.Errorf("%w: negative offset", ErrMalformed)
	}
	return nil
}

// Encode serialises a into callback data.
func Encode(a Action) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	if len(raw) > MaxPayload {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrPayloadTooLong, a.Kind, len(raw))
	}
	return string(raw), nil
}

// Decode parses callback data produced by Encode.
func Decode(data string) (Action, error) {
	var a Action
	if len(data) > MaxPayload {
		return a, ErrPayloadTooLong
	}
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// TruncateQuery shortens q so a users page can always be encoded.
func TruncateQuery(q string) string {
	if len(q) <= MaxQueryLen {
		return q
	}
	q = q[:MaxQueryLen]
	for !utf8.ValidString(q) {
		q = q[:len(q)-1]
	}
	return q
}
