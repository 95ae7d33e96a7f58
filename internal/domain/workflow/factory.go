package workflow

// BuildEmailWorkflow creates a state machine configured for the email
// verification lifecycle. The gate decides between VERIFY and FLAG; a human
// decides between APPROVE and REJECT for parked emails. Detection deciding
// "not a price change" on a manually approved email fires REJECT.
// REJECTED is terminal: a rejected email cannot be re-approved.
func BuildEmailWorkflow(initial State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateReceived).
		Permit(TriggerVerify, StateVerified).
		Permit(TriggerFlag, StatePendingReview)

	builder.Configure(StatePendingReview).
		Permit(TriggerApprove, StateManuallyApproved).
		Permit(TriggerReject, StateRejected)

	builder.Configure(StateManuallyApproved).
		Permit(TriggerReject, StateRejected)

	// VERIFIED and REJECTED have no outgoing transitions: auto-verified
	// emails never change verification status, and rejection is final.

	return builder.Build(initial)
}

// StatusToState maps a persisted verification status string onto a machine
// state. The UNVERIFIED status is transient (an email flagged unverified is
// immediately parked), so it maps to PENDING_REVIEW.
func StatusToState(status string) (State, bool) {
	switch status {
	case "verified":
		return StateVerified, true
	case "unverified", "pending_review":
		return StatePendingReview, true
	case "manually_approved":
		return StateManuallyApproved, true
	case "rejected":
		return StateRejected, true
	case "", "received":
		return StateReceived, true
	default:
		return "", false
	}
}
