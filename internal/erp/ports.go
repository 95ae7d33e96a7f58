package erp

import (
	"context"
	"errors"
)

var (
	// ErrSourceUnavailable means the ERP could not be reached or answered
	// with a server error. Callers recover by retrying or by falling back
	// to stale data; it is never fatal to the pipeline.
	ErrSourceUnavailable = errors.New("erp source unavailable")

	// ErrNotFound means the requested reference record does not exist.
	ErrNotFound = errors.New("erp record not found")
)

// Part is a part master record
type Part struct {
	PartNum     string `json:"part_num"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// Vendor is a vendor master record
type Vendor struct {
	VendorID       string `json:"vendor_id"`
	Name           string `json:"name"`
	VerifiedEmail  string `json:"verified_email,omitempty"`
	VerifiedDomain string `json:"verified_domain,omitempty"`
}

// SupplierPartLink asserts that a vendor is an authorized source for a part
type SupplierPartLink struct {
	VendorID     string  `json:"vendor_id"`
	PartNum      string  `json:"part_num"`
	CurrentPrice float64 `json:"current_price"`
	LeadTimeDays int     `json:"lead_time_days"`
}

// AssemblyUsage is one parent assembly that consumes a part, with the
// cumulative quantity of the part per finished assembly. SellingPrice and
// WeeklyDemand are nil when the ERP has no data for them.
type AssemblyUsage struct {
	AssemblyPartNum  string   `json:"assembly_part_num"`
	CumulativeQtyPer float64  `json:"cumulative_qty_per"`
	SellingPrice     *float64 `json:"selling_price,omitempty"`
	WeeklyDemand     *float64 `json:"weekly_demand,omitempty"`
}

// PriceChangePush is one accepted price revision pushed back to the ERP
type PriceChangePush struct {
	PartNum         string  `json:"part_num"`
	VendorID        string  `json:"vendor_id"`
	OldPrice        float64 `json:"old_price"`
	NewPrice        float64 `json:"new_price"`
	EffectiveDate   string  `json:"effective_date,omitempty"`
	SourceMessageID string  `json:"source_message_id"`
}

// PartMaster looks up part master records
type PartMaster interface {
	GetPart(ctx context.Context, partNum string) (*Part, error)
}

// VendorMaster looks up and lists vendor master records
type VendorMaster interface {
	FindVendorByName(ctx context.Context, name string) (*Vendor, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
}

// SupplierPartLinks looks up supplier-part authorization records
type SupplierPartLinks interface {
	GetLink(ctx context.Context, vendorID, partNum string) (*SupplierPartLink, error)
}

// BomGraph answers where-used queries against the BOM structure
type BomGraph interface {
	WhereUsed(ctx context.Context, partNum string) ([]AssemblyUsage, error)
}

// PriceSync pushes accepted price changes back into the ERP price lists
type PriceSync interface {
	PushPriceChange(ctx context.Context, push PriceChangePush) error
}
