package templates

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound          = errors.New("template not found")
	QueryTimeoutDuration = time.Second * 5
)

// Template is a named message body the operator can reuse for broadcasts.
type Template struct {
	ID   int64  `json:"id"`
	Name string `json:"name" validate:"required,max=64"`
	Text string `json:"text" validate:"required,max=4096"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (t *Template) Validate() error {
	return validate.Struct(t)
}
