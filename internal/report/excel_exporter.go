// Package report renders BOM impact generations as Excel workbooks for
// reviewers who work outside the web UI.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
)

const sheetName = "BOM Impact"

var headers = []string{
	"Product", "Part Number", "Supplier", "Old Price", "New Price",
	"Component Validated", "Supplier Validated", "Supplier-Part Validated",
	"Status", "Assemblies Affected", "Assemblies Missing Demand",
	"Total Annual Cost Impact", "Highest Risk Tier", "Approved", "Rejected", "Error",
}

// ExcelExporter writes impact generations to xlsx
type ExcelExporter struct{}

// NewExcelExporter creates an Excel exporter
func NewExcelExporter() *ExcelExporter {
	return &ExcelExporter{}
}

// Export writes one message's impact generation as a workbook
func (e *ExcelExporter) Export(messageID string, results []*entity.BomImpactResult, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}

	for i, res := range results {
		row := i + 2
		values := []interface{}{
			res.ProductName, res.PartNum, res.SupplierName,
			res.OldPrice, res.NewPrice,
			res.ComponentValidated, res.SupplierValidated, res.SupplierPartValidated,
			string(res.Status), len(res.ImpactDetails), res.AssembliesMissingDemand,
			res.TotalAnnualCostImpact, string(highestTier(res)),
			res.Approved, res.Rejected, res.Error,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// FileName returns the download name for a message's report
func (e *ExcelExporter) FileName(messageID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "<", "", ">", "", " ", "_").Replace(messageID)
	return fmt.Sprintf("bom_impact_%s.xlsx", safe)
}

var tierRank = map[entity.RiskTier]int{
	entity.TierCritical: 4,
	entity.TierHigh:     3,
	entity.TierMedium:   2,
	entity.TierLow:      1,
	entity.TierUnknown:  0,
}

func highestTier(res *entity.BomImpactResult) entity.RiskTier {
	highest := entity.TierUnknown
	for _, impact := range res.ImpactDetails {
		if tierRank[impact.RiskTier] > tierRank[highest] {
			highest = impact.RiskTier
		}
	}
	return highest
}
