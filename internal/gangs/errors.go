package gangs

import (
	"errors"
	"fmt"
)

// ErrUnknownScope is returned for an item scope other than ScopeUser or ScopeGang.
var ErrUnknownScope = errors.New("unknown item scope")

// UserError is a rejected request. Message is shown to the user as is.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func userErrorf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

var (
	errNotInGang      = &UserError{Message: "You are not in a gang!"}
	errAlreadyInGang  = &UserError{Message: "You are already in a gang!"}
	errNeverGained    = &UserError{Message: "You have never gained any points, try gaining some first!"}
	errGangNotExist   = &UserError{Message: "That gang doesn't exist!"}
	errNotTerritory   = &UserError{Message: "That territory doesn't exist!"}
	errNotLeader      = &UserError{Message: "You are not the leader of your gang!"}
	errNotLeadership  = &UserError{Message: "You are not the leadership of your gang!"}
	errNoBanner       = &UserError{Message: "No banner has been requested for that user."}
	errCostOutOfRange = userErrorf("Join and recurring costs must be between 0 and %d.", MaxCost)
)
