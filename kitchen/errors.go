package kitchen

import (
	"errors"
	"fmt"

	"clubpos/models"
)

var (
	ErrItemNotTracked    = errors.New("kitchen: item is not on the board")
	ErrItemOrderMismatch = errors.New("kitchen: item belongs to another order")
	ErrAlreadyServed     = errors.New("kitchen: item is already served")
)

// WriteError is returned when an authoritative write failed. Local state
// has been restored by the time it is returned.
type WriteError struct {
	OrderID string
	ItemID  string
	Status  models.ItemStatus
	// Notice is the message shown to the operator.
	Notice string
	Err    error
	// Compensation holds errors from undoing a write that had succeeded.
	Compensation []error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("kitchen: set item %s of order %s to %s: %v", e.ItemID, e.OrderID, e.Status, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
