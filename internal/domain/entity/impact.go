package entity

import "time"

// ImpactStatus classifies the processing outcome for one product
type ImpactStatus string

const (
	ImpactSuccess ImpactStatus = "success"
	ImpactWarning ImpactStatus = "warning"
	ImpactError   ImpactStatus = "error"
)

// RiskTier classifies the severity of a single assembly's cost exposure.
// TierUnknown is assigned when selling price data is missing; it is never
// defaulted to TierLow.
type RiskTier string

const (
	TierCritical RiskTier = "critical"
	TierHigh     RiskTier = "high"
	TierMedium   RiskTier = "medium"
	TierLow      RiskTier = "low"
	TierUnknown  RiskTier = "unknown"
)

// AssemblyImpact is the computed cost effect on one parent assembly that
// consumes the changed part
type AssemblyImpact struct {
	AssemblyPartNum     string   `json:"assembly_part_num"`
	QtyPerAssembly      float64  `json:"qty_per_assembly"`
	CostIncreasePerUnit float64  `json:"cost_increase_per_unit"`
	WeeklyDemand        *float64 `json:"weekly_demand,omitempty"`
	AnnualCostImpact    *float64 `json:"annual_cost_impact,omitempty"`
	SellingPrice        *float64 `json:"selling_price,omitempty"`
	RiskTier            RiskTier `json:"risk_tier"`
}

// BomImpactResult is the validation and impact analysis for one affected
// product within one email's analysis generation.
type BomImpactResult struct {
	MessageID    string `json:"message_id"`
	Generation   string `json:"generation"`
	ProductIndex int    `json:"product_index"`
	PartNum      string `json:"part_num,omitempty"`
	ProductName  string `json:"product_name"`
	SupplierName string `json:"supplier_name"`

	ComponentValidated          bool   `json:"component_validated"`
	SupplierValidated           bool   `json:"supplier_validated"`
	SupplierPartValidated       bool   `json:"supplier_part_validated"`
	SupplierPartValidationError string `json:"supplier_part_validation_error,omitempty"`

	Status   ImpactStatus `json:"status"`
	OldPrice float64      `json:"old_price"`
	NewPrice float64      `json:"new_price"`

	ImpactDetails           []AssemblyImpact `json:"impact_details"`
	AssembliesMissingDemand int              `json:"assemblies_missing_demand"`
	TotalAnnualCostImpact   float64          `json:"total_annual_cost_impact"`

	Approved       bool   `json:"approved"`
	Rejected       bool   `json:"rejected"`
	CanAutoApprove bool   `json:"can_auto_approve"`
	Error          string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Verified reports whether this product meets the strict verification bar:
// both the part and the supplier-part link validated. A valid supplier
// relationship alone is not sufficient, because it does not prove the
// supplier is an authorized source for this specific part.
func (r *BomImpactResult) Verified() bool {
	return r.ComponentValidated && r.SupplierPartValidated
}

// Decided reports whether a terminal approve/reject decision has been made
func (r *BomImpactResult) Decided() bool {
	return r.Approved || r.Rejected
}

// ThreadImpactRollup aggregates BOM impact across every email sharing a
// conversation_id. Parts are counted once per thread; cost impact is summed
// per mention, since each mention is an independent price revision event.
type ThreadImpactRollup struct {
	ConversationID        string   `json:"conversation_id"`
	EmailCount            int      `json:"email_count"`
	PartsAffected         int      `json:"parts_affected"`
	PartNumbers           []string `json:"part_numbers"`
	TotalAnnualCostImpact float64  `json:"total_annual_cost_impact"`
	VerifiedProducts      int      `json:"verified_products"`
	UnverifiedProducts    int      `json:"unverified_products"`
	ApprovedProducts      int      `json:"approved_products"`
	RejectedProducts      int      `json:"rejected_products"`
	PendingProducts       int      `json:"pending_products"`
}
