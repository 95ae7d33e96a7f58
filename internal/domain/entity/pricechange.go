package entity

import "time"

// DetectionOutcome is the result of the billable price-change classification
type DetectionOutcome struct {
	IsPriceChange bool    `json:"is_price_change"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
}

// ProductPriceChange is one supplier-announced price revision extracted
// from an email
type ProductPriceChange struct {
	ProductName   string  `json:"product_name"`
	PartNum       string  `json:"part_num,omitempty"`
	SupplierName  string  `json:"supplier_name"`
	OldPrice      float64 `json:"old_price"`
	NewPrice      float64 `json:"new_price"`
	Currency      string  `json:"currency,omitempty"`
	EffectiveDate string  `json:"effective_date,omitempty"`
}

// ExtractedPriceChange is the structured output of the extraction stage
// for a single email
type ExtractedPriceChange struct {
	MessageID   string               `json:"message_id"`
	Products    []ProductPriceChange `json:"products"`
	Confidence  float64              `json:"confidence"`
	ExtractedAt time.Time            `json:"extracted_at"`
}
