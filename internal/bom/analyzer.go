// Package bom reconciles extracted price changes against the ERP: it
// validates each product independently, walks the BOM where-used graph to
// cost the change, and owns the per-product approve/reject decisions.
package bom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/internal/erp"
	"github.com/meridian-mfg/pricewatch/internal/monitoring"
)

// StateReader gives the analyzer access to the extraction output
type StateReader interface {
	Get(ctx context.Context, messageID string) (*entity.EmailState, error)
}

// ImpactStore persists impact generations and decisions
type ImpactStore interface {
	ReplaceGeneration(ctx context.Context, messageID string, results []*entity.BomImpactResult) error
	GetByMessage(ctx context.Context, messageID string) ([]*entity.BomImpactResult, error)
	UpdateDecision(ctx context.Context, messageID string, productIndex int, approved, rejected bool) error
}

// Thresholds are the risk-tier ratio cutoffs (cost increase per unit divided
// by assembly selling price).
type Thresholds struct {
	CriticalRatio float64
	HighRatio     float64
	MediumRatio   float64
}

// ApproveAllSummary reports a bulk-approval pass
type ApproveAllSummary struct {
	Approved int      `json:"approved"`
	Skipped  int      `json:"skipped"`
	Reasons  []string `json:"skipped_reasons,omitempty"`
}

// Analyzer computes BOM impact generations
type Analyzer struct {
	parts      erp.PartMaster
	vendors    erp.VendorMaster
	links      erp.SupplierPartLinks
	graph      erp.BomGraph
	states     StateReader
	impacts    ImpactStore
	thresholds Thresholds
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewAnalyzer creates a BOM impact analyzer
func NewAnalyzer(
	parts erp.PartMaster,
	vendors erp.VendorMaster,
	links erp.SupplierPartLinks,
	graph erp.BomGraph,
	states StateReader,
	impacts ImpactStore,
	thresholds Thresholds,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		parts:      parts,
		vendors:    vendors,
		links:      links,
		graph:      graph,
		states:     states,
		impacts:    impacts,
		thresholds: thresholds,
		metrics:    metrics,
		logger:     logger,
	}
}

// Analyze builds a fresh impact generation for the message's extracted
// products and replaces any prior generation, which clears all earlier
// approve/reject decisions. Each product is validated independently; an ERP
// failure on one product never poisons the others.
func (a *Analyzer) Analyze(ctx context.Context, messageID string) ([]*entity.BomImpactResult, error) {
	state, err := a.states.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("no state for message %s", messageID)
	}
	if state.ExtractedData == "" {
		return nil, fmt.Errorf("message %s has no extracted price data", messageID)
	}

	var extracted entity.ExtractedPriceChange
	if err := json.Unmarshal([]byte(state.ExtractedData), &extracted); err != nil {
		return nil, fmt.Errorf("failed to decode extracted data: %w", err)
	}

	generation := uuid.NewString()
	results := make([]*entity.BomImpactResult, 0, len(extracted.Products))
	for i, product := range extracted.Products {
		res := a.analyzeProduct(ctx, product)
		res.MessageID = messageID
		res.Generation = generation
		res.ProductIndex = i
		res.CreatedAt = time.Now()
		results = append(results, res)
	}

	if err := a.impacts.ReplaceGeneration(ctx, messageID, results); err != nil {
		return nil, err
	}
	a.metrics.ImpactAnalyses.Inc()

	a.logger.Info("BOM impact generation built",
		zap.String("message_id", messageID),
		zap.String("generation", generation),
		zap.Int("products", len(results)))
	return results, nil
}

// Reanalyze is Analyze under its reviewer-facing name: a full rebuild that
// discards prior decisions by construction.
func (a *Analyzer) Reanalyze(ctx context.Context, messageID string) ([]*entity.BomImpactResult, error) {
	return a.Analyze(ctx, messageID)
}

// Results returns the current generation for a message
func (a *Analyzer) Results(ctx context.Context, messageID string) ([]*entity.BomImpactResult, error) {
	return a.impacts.GetByMessage(ctx, messageID)
}

func (a *Analyzer) analyzeProduct(ctx context.Context, product entity.ProductPriceChange) *entity.BomImpactResult {
	res := &entity.BomImpactResult{
		PartNum:      product.PartNum,
		ProductName:  product.ProductName,
		SupplierName: product.SupplierName,
		OldPrice:     product.OldPrice,
		NewPrice:     product.NewPrice,
	}

	var sourceErrs []string

	// Component validation: the part must exist in the part master.
	if product.PartNum != "" {
		part, err := a.parts.GetPart(ctx, product.PartNum)
		switch {
		case err == nil:
			res.ComponentValidated = part.Active
			if !part.Active {
				sourceErrs = append(sourceErrs, fmt.Sprintf("part %s is inactive", product.PartNum))
			}
		case errors.Is(err, erp.ErrNotFound):
			// Validation simply fails; not an error condition.
		default:
			sourceErrs = append(sourceErrs, fmt.Sprintf("part lookup failed: %v", err))
		}
	}

	// Supplier validation: independent of component validation.
	var vendor *erp.Vendor
	if product.SupplierName != "" {
		v, err := a.vendors.FindVendorByName(ctx, product.SupplierName)
		switch {
		case err == nil:
			vendor = v
			res.SupplierValidated = true
		case errors.Is(err, erp.ErrNotFound):
		default:
			sourceErrs = append(sourceErrs, fmt.Sprintf("vendor lookup failed: %v", err))
		}
	}

	// Supplier-part link: only checkable when both sides resolved.
	if res.ComponentValidated && vendor != nil {
		_, err := a.links.GetLink(ctx, vendor.VendorID, product.PartNum)
		switch {
		case err == nil:
			res.SupplierPartValidated = true
		case errors.Is(err, erp.ErrNotFound):
			res.SupplierPartValidationError = fmt.Sprintf(
				"vendor %s is not an authorized source for part %s", vendor.Name, product.PartNum)
		default:
			sourceErrs = append(sourceErrs, fmt.Sprintf("supplier-part lookup failed: %v", err))
		}
	}

	// Cost rollup over the where-used graph, only for a validated part.
	if res.ComponentValidated {
		usages, err := a.graph.WhereUsed(ctx, product.PartNum)
		if err != nil {
			sourceErrs = append(sourceErrs, fmt.Sprintf("where-used lookup failed: %v", err))
		} else {
			a.rollUp(res, product, usages)
		}
	}

	res.Error = strings.Join(sourceErrs, "; ")
	res.CanAutoApprove = res.Verified() && res.Error == ""
	switch {
	case res.Error != "":
		res.Status = entity.ImpactError
	case !res.Verified() || res.AssembliesMissingDemand > 0:
		res.Status = entity.ImpactWarning
	default:
		res.Status = entity.ImpactSuccess
	}
	return res
}

func (a *Analyzer) rollUp(res *entity.BomImpactResult, product entity.ProductPriceChange, usages []erp.AssemblyUsage) {
	delta := product.NewPrice - product.OldPrice
	for _, usage := range usages {
		impact := entity.AssemblyImpact{
			AssemblyPartNum:     usage.AssemblyPartNum,
			QtyPerAssembly:      usage.CumulativeQtyPer,
			CostIncreasePerUnit: delta * usage.CumulativeQtyPer,
			WeeklyDemand:        usage.WeeklyDemand,
			SellingPrice:        usage.SellingPrice,
		}

		if usage.WeeklyDemand != nil {
			annual := impact.CostIncreasePerUnit * *usage.WeeklyDemand * 52
			impact.AnnualCostImpact = &annual
			res.TotalAnnualCostImpact += annual
		} else {
			res.AssembliesMissingDemand++
		}

		impact.RiskTier = a.classify(impact.CostIncreasePerUnit, usage.SellingPrice)
		res.ImpactDetails = append(res.ImpactDetails, impact)
	}
}

// classify assigns a risk tier from the cost increase relative to the
// assembly's selling price. No selling price means no tier, never low.
func (a *Analyzer) classify(costIncreasePerUnit float64, sellingPrice *float64) entity.RiskTier {
	if sellingPrice == nil || *sellingPrice <= 0 {
		return entity.TierUnknown
	}
	ratio := costIncreasePerUnit / *sellingPrice
	switch {
	case ratio >= a.thresholds.CriticalRatio:
		return entity.TierCritical
	case ratio >= a.thresholds.HighRatio:
		return entity.TierHigh
	case ratio >= a.thresholds.MediumRatio:
		return entity.TierMedium
	default:
		return entity.TierLow
	}
}

// Approve records a terminal approval for one product of the current
// generation. Approving twice is a no-op; approving a rejected or errored
// product is refused.
func (a *Analyzer) Approve(ctx context.Context, messageID string, productIndex int) error {
	res, err := a.find(ctx, messageID, productIndex)
	if err != nil {
		return err
	}
	if res.Approved {
		return nil
	}
	if res.Rejected {
		return fmt.Errorf("product %d is already rejected", productIndex)
	}
	if res.Error != "" {
		return fmt.Errorf("product %d has a validation error and cannot be approved: %s",
			productIndex, res.Error)
	}
	return a.impacts.UpdateDecision(ctx, messageID, productIndex, true, false)
}

// Reject records a terminal rejection for one product
func (a *Analyzer) Reject(ctx context.Context, messageID string, productIndex int) error {
	res, err := a.find(ctx, messageID, productIndex)
	if err != nil {
		return err
	}
	if res.Rejected {
		return nil
	}
	if res.Approved {
		return fmt.Errorf("product %d is already approved", productIndex)
	}
	return a.impacts.UpdateDecision(ctx, messageID, productIndex, false, true)
}

// ApproveAll approves every undecided, error-free product in the current
// generation. Products that cannot be approved are skipped with a reason;
// partial success is the expected outcome, not a failure.
func (a *Analyzer) ApproveAll(ctx context.Context, messageID string) (*ApproveAllSummary, error) {
	results, err := a.impacts.GetByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no impact results for message %s", messageID)
	}

	summary := &ApproveAllSummary{}
	for _, res := range results {
		switch {
		case res.Approved:
			summary.Skipped++
			summary.Reasons = append(summary.Reasons,
				fmt.Sprintf("product %d already approved", res.ProductIndex))
			continue
		case res.Rejected:
			summary.Skipped++
			summary.Reasons = append(summary.Reasons,
				fmt.Sprintf("product %d already rejected", res.ProductIndex))
			continue
		case res.Error != "":
			summary.Skipped++
			summary.Reasons = append(summary.Reasons,
				fmt.Sprintf("product %d has a validation error", res.ProductIndex))
			continue
		}
		if err := a.impacts.UpdateDecision(ctx, messageID, res.ProductIndex, true, false); err != nil {
			summary.Skipped++
			summary.Reasons = append(summary.Reasons,
				fmt.Sprintf("product %d: %v", res.ProductIndex, err))
			continue
		}
		summary.Approved++
	}
	return summary, nil
}

func (a *Analyzer) find(ctx context.Context, messageID string, productIndex int) (*entity.BomImpactResult, error) {
	results, err := a.impacts.GetByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.ProductIndex == productIndex {
			return res, nil
		}
	}
	return nil, fmt.Errorf("no impact result for message %s product %d", messageID, productIndex)
}
