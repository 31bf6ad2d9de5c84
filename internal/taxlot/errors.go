package taxlot

import (
	"errors"
	"fmt"
)

// User-facing request errors: the caller can correct and resubmit.
var ErrInvalidRequest = errors.New("sell quantity must be positive")

// Invariant-violation errors: never expected in correct operation. A caller
// hitting one of these has a bug (stale snapshot or a selector defect), not
// a bad user request.
var (
	ErrUnknownLot           = errors.New("allocation references a lot absent from the snapshot")
	ErrInsufficientQuantity = errors.New("lots exhausted before the requested quantity was allocated")
)

// ExceedsAvailableError reports a sell for more than the remaining holdings.
// Available is carried so the caller can show it to the user.
type ExceedsAvailableError struct {
	Available int64
}

func (e *ExceedsAvailableError) Error() string {
	return fmt.Sprintf("sell quantity exceeds available holdings (%d remaining)", e.Available)
}
