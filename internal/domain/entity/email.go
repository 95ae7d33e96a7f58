package entity

import "time"

// EmailRecord is the immutable, append-only record of an ingested email.
// It is never mutated after ingestion so analyses can always be re-run
// against the original message.
type EmailRecord struct {
	MessageID      string    `json:"message_id"`
	Sender         string    `json:"sender"`
	Subject        string    `json:"subject"`
	ReceivedAt     time.Time `json:"received_at"`
	ConversationID string    `json:"conversation_id"`
	BodyRef        string    `json:"body_ref"`
	CreatedAt      time.Time `json:"created_at"`
}

// VerificationStatus is the lifecycle status of an email's sender verification
type VerificationStatus string

const (
	StatusVerified         VerificationStatus = "verified"
	StatusUnverified       VerificationStatus = "unverified"
	StatusPendingReview    VerificationStatus = "pending_review"
	StatusManuallyApproved VerificationStatus = "manually_approved"
	StatusRejected         VerificationStatus = "rejected"
)

// VerificationMethod records how a sender passed (or bypassed) the gate
type VerificationMethod string

const (
	MethodExactEmail  VerificationMethod = "exact_email"
	MethodDomainMatch VerificationMethod = "domain_match"
	MethodDisabled    VerificationMethod = "verification_disabled"
	MethodManual      VerificationMethod = "manual"
)

// EmailState is the mutable processing state of one EmailRecord, keyed by
// message_id. It is the sole authority for what has already been spent on a
// message; it must never be reconstructed from the EmailRecord alone.
type EmailState struct {
	MessageID          string             `json:"message_id"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	VerificationMethod VerificationMethod `json:"verification_method,omitempty"`
	VendorID           string             `json:"vendor_id,omitempty"`
	VendorName         string             `json:"vendor_name,omitempty"`
	ManuallyApprovedBy string             `json:"manually_approved_by,omitempty"`
	ManuallyApprovedAt *time.Time         `json:"manually_approved_at,omitempty"`
	FlaggedReason      string             `json:"flagged_reason,omitempty"`

	AwaitingDetection   bool    `json:"awaiting_detection"`
	DetectionPerformed  bool    `json:"detection_performed"`
	IsPriceChange       *bool   `json:"is_price_change,omitempty"`
	DetectionConfidence float64 `json:"detection_confidence,omitempty"`
	DetectionReasoning  string  `json:"detection_reasoning,omitempty"`

	// ExtractedData holds the JSON-encoded ExtractedPriceChange for the
	// current analysis generation, empty until extraction has run.
	ExtractedData string `json:"-"`

	Processed    bool      `json:"processed"`
	EpicorSynced bool      `json:"epicor_synced"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InboundEmail bundles an email record with the transient content needed
// for analysis. Body text and attachment files are not persisted here;
// BodyRef on the record points at the raw message store.
type InboundEmail struct {
	Record          EmailRecord
	Body            string
	AttachmentPaths []string
}
