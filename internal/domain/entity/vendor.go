package entity

// VendorMatch is a successful directory lookup for a sender address. A
// vendor may register an exact email, a domain, or both in the ERP vendor
// master; MatchedBy records which one hit.
type VendorMatch struct {
	VendorID   string             `json:"vendor_id"`
	VendorName string             `json:"vendor_name"`
	MatchedBy  VerificationMethod `json:"matched_by"`
}
