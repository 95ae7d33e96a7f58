package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
)

// StateRepository persists the mutable EmailState, one row per message_id
type StateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStateRepository creates a new email state repository
func NewStateRepository(db *sql.DB, logger *zap.Logger) *StateRepository {
	return &StateRepository{db: db, logger: logger}
}

const stateColumns = `
	message_id, verification_status, verification_method, vendor_id, vendor_name,
	manually_approved_by, manually_approved_at, flagged_reason,
	awaiting_detection, detection_performed, is_price_change,
	detection_confidence, detection_reasoning, extracted_data,
	processed, epicor_synced, updated_at
`

// Upsert writes the full state row for a message
func (r *StateRepository) Upsert(ctx context.Context, state *entity.EmailState) error {
	state.UpdatedAt = time.Now()

	query := `
		INSERT INTO email_states (` + stateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			verification_status = excluded.verification_status,
			verification_method = excluded.verification_method,
			vendor_id = excluded.vendor_id,
			vendor_name = excluded.vendor_name,
			manually_approved_by = excluded.manually_approved_by,
			manually_approved_at = excluded.manually_approved_at,
			flagged_reason = excluded.flagged_reason,
			awaiting_detection = excluded.awaiting_detection,
			detection_performed = excluded.detection_performed,
			is_price_change = excluded.is_price_change,
			detection_confidence = excluded.detection_confidence,
			detection_reasoning = excluded.detection_reasoning,
			extracted_data = excluded.extracted_data,
			processed = excluded.processed,
			epicor_synced = excluded.epicor_synced,
			updated_at = excluded.updated_at
	`

	var isPriceChange sql.NullBool
	if state.IsPriceChange != nil {
		isPriceChange = sql.NullBool{Bool: *state.IsPriceChange, Valid: true}
	}
	var approvedAt sql.NullTime
	if state.ManuallyApprovedAt != nil {
		approvedAt = sql.NullTime{Time: *state.ManuallyApprovedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		state.MessageID, string(state.VerificationStatus), string(state.VerificationMethod),
		state.VendorID, state.VendorName,
		state.ManuallyApprovedBy, approvedAt, state.FlaggedReason,
		state.AwaitingDetection, state.DetectionPerformed, isPriceChange,
		state.DetectionConfidence, state.DetectionReasoning, state.ExtractedData,
		state.Processed, state.EpicorSynced, state.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert email state",
			zap.String("message_id", state.MessageID), zap.Error(err))
		return fmt.Errorf("failed to upsert email state: %w", err)
	}
	return nil
}

// Get retrieves the state for a message; returns nil when absent
func (r *StateRepository) Get(ctx context.Context, messageID string) (*entity.EmailState, error) {
	query := `SELECT ` + stateColumns + ` FROM email_states WHERE message_id = ?`
	row := r.db.QueryRowContext(ctx, query, messageID)
	state, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email state: %w", err)
	}
	return state, nil
}

// ListPending returns every state parked in pending_review, oldest update
// first so reviewers see the longest-waiting emails at the top.
func (r *StateRepository) ListPending(ctx context.Context) ([]*entity.EmailState, error) {
	query := `SELECT ` + stateColumns + ` FROM email_states
		WHERE verification_status = ?
		ORDER BY updated_at ASC, message_id ASC`

	rows, err := r.db.QueryContext(ctx, query, string(entity.StatusPendingReview))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending states: %w", err)
	}
	defer rows.Close()

	var states []*entity.EmailState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*entity.EmailState, error) {
	var state entity.EmailState
	var status, method string
	var isPriceChange sql.NullBool
	var approvedAt sql.NullTime

	err := row.Scan(
		&state.MessageID, &status, &method, &state.VendorID, &state.VendorName,
		&state.ManuallyApprovedBy, &approvedAt, &state.FlaggedReason,
		&state.AwaitingDetection, &state.DetectionPerformed, &isPriceChange,
		&state.DetectionConfidence, &state.DetectionReasoning, &state.ExtractedData,
		&state.Processed, &state.EpicorSynced, &state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.VerificationStatus = entity.VerificationStatus(status)
	state.VerificationMethod = entity.VerificationMethod(method)
	if isPriceChange.Valid {
		v := isPriceChange.Bool
		state.IsPriceChange = &v
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		state.ManuallyApprovedAt = &t
	}
	return &state, nil
}
