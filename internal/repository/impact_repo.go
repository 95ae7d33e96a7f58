package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/pkg/database"
)

// ImpactRepository persists BomImpactResults. Each analyze/reanalyze run
// produces a new generation; ReplaceGeneration swaps the whole set in one
// transaction so stale approve/reject decisions never survive a re-analysis.
type ImpactRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewImpactRepository creates a new impact repository
func NewImpactRepository(db *database.DB, logger *zap.Logger) *ImpactRepository {
	return &ImpactRepository{db: db, logger: logger}
}

// ReplaceGeneration deletes every prior result for the message and inserts
// the new generation atomically. Full replace, not a merge.
func (r *ImpactRepository) ReplaceGeneration(ctx context.Context, messageID string, results []*entity.BomImpactResult) error {
	return r.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM bom_impact_results WHERE message_id = ?", messageID); err != nil {
			return fmt.Errorf("failed to clear prior generation: %w", err)
		}

		query := `
			INSERT INTO bom_impact_results (
				message_id, generation, product_index, part_num, product_name, supplier_name,
				component_validated, supplier_validated, supplier_part_validated,
				supplier_part_validation_error, status, old_price, new_price,
				impact_details, assemblies_missing_demand, total_annual_cost_impact,
				approved, rejected, can_auto_approve, error, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, res := range results {
			details, err := json.Marshal(res.ImpactDetails)
			if err != nil {
				return fmt.Errorf("failed to encode impact details: %w", err)
			}
			if res.CreatedAt.IsZero() {
				res.CreatedAt = time.Now()
			}
			if _, err := tx.ExecContext(ctx, query,
				res.MessageID, res.Generation, res.ProductIndex, res.PartNum,
				res.ProductName, res.SupplierName,
				res.ComponentValidated, res.SupplierValidated, res.SupplierPartValidated,
				res.SupplierPartValidationError, string(res.Status), res.OldPrice, res.NewPrice,
				string(details), res.AssembliesMissingDemand, res.TotalAnnualCostImpact,
				res.Approved, res.Rejected, res.CanAutoApprove, res.Error, res.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert impact result: %w", err)
			}
		}
		return nil
	})
}

const impactColumns = `
	message_id, generation, product_index, part_num, product_name, supplier_name,
	component_validated, supplier_validated, supplier_part_validated,
	supplier_part_validation_error, status, old_price, new_price,
	impact_details, assemblies_missing_demand, total_annual_cost_impact,
	approved, rejected, can_auto_approve, error, created_at
`

// GetByMessage returns the current generation's results ordered by product
// index (the generation is whatever ReplaceGeneration last wrote).
func (r *ImpactRepository) GetByMessage(ctx context.Context, messageID string) ([]*entity.BomImpactResult, error) {
	query := `SELECT ` + impactColumns + ` FROM bom_impact_results
		WHERE message_id = ? ORDER BY product_index ASC`

	rows, err := r.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query impact results: %w", err)
	}
	defer rows.Close()

	var results []*entity.BomImpactResult
	for rows.Next() {
		res, err := scanImpact(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// UpdateDecision sets the terminal approve/reject flags on one product of
// the current generation.
func (r *ImpactRepository) UpdateDecision(ctx context.Context, messageID string, productIndex int, approved, rejected bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bom_impact_results SET approved = ?, rejected = ?
		 WHERE message_id = ? AND product_index = ?`,
		approved, rejected, messageID, productIndex)
	if err != nil {
		r.logger.Error("Failed to update impact decision",
			zap.String("message_id", messageID),
			zap.Int("product_index", productIndex),
			zap.Error(err))
		return fmt.Errorf("failed to update decision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no impact result for message %s product %d", messageID, productIndex)
	}
	return nil
}

func scanImpact(rows *sql.Rows) (*entity.BomImpactResult, error) {
	var res entity.BomImpactResult
	var status, details string

	err := rows.Scan(
		&res.MessageID, &res.Generation, &res.ProductIndex, &res.PartNum,
		&res.ProductName, &res.SupplierName,
		&res.ComponentValidated, &res.SupplierValidated, &res.SupplierPartValidated,
		&res.SupplierPartValidationError, &status, &res.OldPrice, &res.NewPrice,
		&details, &res.AssembliesMissingDemand, &res.TotalAnnualCostImpact,
		&res.Approved, &res.Rejected, &res.CanAutoApprove, &res.Error, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	res.Status = entity.ImpactStatus(status)
	if details != "" {
		if err := json.Unmarshal([]byte(details), &res.ImpactDetails); err != nil {
			return nil, fmt.Errorf("failed to decode impact details: %w", err)
		}
	}
	return &res, nil
}
