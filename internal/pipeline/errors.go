package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransitionConflict means another transition is in flight for the
	// same message. The caller should retry; nothing was changed.
	ErrTransitionConflict = errors.New("concurrent transition in flight for message")

	// ErrUnknownMessage means no email record exists for the message ID.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrNotPriceChange is wrapped into the approve outcome when detection
	// decides a manually approved email is not a price change.
	ErrNotPriceChange = errors.New("email is not a price change notification")
)

// BlockerError is a hard business-rule violation: the operation is aborted
// and cannot be forced. Warnings encountered alongside blockers are carried
// for display.
type BlockerError struct {
	Blockers []string
	Warnings []string
}

func (e *BlockerError) Error() string {
	return fmt.Sprintf("operation blocked: %s", strings.Join(e.Blockers, "; "))
}

// WarningError is a soft failure: the operation was not performed, but a
// caller may retry with the force flag to override.
type WarningError struct {
	Warnings []string
}

func (e *WarningError) Error() string {
	return fmt.Sprintf("operation has warnings (retry with force to override): %s",
		strings.Join(e.Warnings, "; "))
}
