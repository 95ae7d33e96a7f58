package workflow

// Trigger is an event that can cause a state transition
type Trigger string

const (
	// TriggerVerify fires when the gate recognizes the sender.
	TriggerVerify Trigger = "VERIFY"

	// TriggerFlag fires when the gate does not recognize the sender and the
	// email must be parked for review.
	TriggerFlag Trigger = "FLAG"

	// TriggerApprove fires when a reviewer clears a parked email.
	TriggerApprove Trigger = "APPROVE"

	// TriggerReject fires when a reviewer rejects a parked email, or when
	// detection decides a manually approved email is not a price change.
	TriggerReject Trigger = "REJECT"
)

func (t Trigger) String() string {
	return string(t)
}
