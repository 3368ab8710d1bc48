package types

import (
	"errors"
	"fmt"
)

var (
	// ErrTradeNotFound is returned when a trade lookup by ID finds nothing.
	ErrTradeNotFound = errors.New("trade not found")

	// ErrTradeNotCancellable is returned when cancelling a trade that has
	// already reached a terminal state. The API surfaces it exactly like
	// not-found: no trade is returned and nothing changes.
	ErrTradeNotCancellable = errors.New("trade is not cancellable")
)

// ValidationError reports a malformed order field. Orders failing
// validation are rejected before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
