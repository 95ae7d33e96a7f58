package workflow

// State is a verification lifecycle state for a single email
type State string

const (
	// StateReceived is the implicit initial state at ingestion, before the
	// gate has produced a result.
	StateReceived State = "RECEIVED"

	// StateVerified means the sender matched the vendor directory (or
	// verification is disabled) and billable processing may proceed.
	StateVerified State = "VERIFIED"

	// StatePendingReview means the sender was not recognized; the email is
	// parked until a human decides whether to spend on it.
	StatePendingReview State = "PENDING_REVIEW"

	// StateManuallyApproved means a human cleared a parked email for
	// billable processing.
	StateManuallyApproved State = "MANUALLY_APPROVED"

	// StateRejected is terminal: the email will never be processed.
	StateRejected State = "REJECTED"
)

var validStates = map[State]bool{
	StateReceived:         true,
	StateVerified:         true,
	StatePendingReview:    true,
	StateManuallyApproved: true,
	StateRejected:         true,
}

var terminalStates = map[State]bool{
	StateRejected: true,
}

// IsTerminal returns true if no further transitions are allowed from s
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if s is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

func (s State) String() string {
	return string(s)
}
