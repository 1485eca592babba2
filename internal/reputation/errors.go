package reputation

import (
	"errors"
	"fmt"
)

// ErrNoUser indicates that the user has never gained any rep.
var ErrNoUser = errors.New("user has no rep record")

// ErrInsufficientPoints indicates that a balance does not cover a deduction.
var ErrInsufficientPoints = errors.New("not enough rep")

// ErrNegativeAmount indicates a negative rep amount was passed to Spend or Credit.
var ErrNegativeAmount = errors.New("rep amount must not be negative")

// UserError is a validation failure whose message is shown to the user as is.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func userErrorf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}
