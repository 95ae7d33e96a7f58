package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
)

// EmailRepository persists immutable EmailRecords. Records are append-only:
// there are no update or delete operations by design.
type EmailRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmailRepository creates a new email record repository
func NewEmailRepository(db *sql.DB, logger *zap.Logger) *EmailRepository {
	return &EmailRepository{db: db, logger: logger}
}

// Insert stores a newly ingested email record
func (r *EmailRepository) Insert(ctx context.Context, rec *entity.EmailRecord) error {
	query := `
		INSERT INTO email_records (
			message_id, sender, subject, received_at, conversation_id, body_ref, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.MessageID, rec.Sender, rec.Subject, rec.ReceivedAt,
		rec.ConversationID, rec.BodyRef, rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert email record",
			zap.String("message_id", rec.MessageID), zap.Error(err))
		return fmt.Errorf("failed to insert email record: %w", err)
	}
	return nil
}

// Get retrieves an email record by message ID; returns nil when absent
func (r *EmailRepository) Get(ctx context.Context, messageID string) (*entity.EmailRecord, error) {
	query := `
		SELECT message_id, sender, subject, received_at, conversation_id, body_ref, created_at
		FROM email_records WHERE message_id = ?
	`
	var rec entity.EmailRecord
	err := r.db.QueryRowContext(ctx, query, messageID).Scan(
		&rec.MessageID, &rec.Sender, &rec.Subject, &rec.ReceivedAt,
		&rec.ConversationID, &rec.BodyRef, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email record: %w", err)
	}
	return &rec, nil
}

// ListByConversation returns all records in a thread, oldest first. The
// ordering is by (received_at, message_id) so pagination is stable even
// when two emails share a timestamp.
func (r *EmailRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.EmailRecord, error) {
	query := `
		SELECT message_id, sender, subject, received_at, conversation_id, body_ref, created_at
		FROM email_records
		WHERE conversation_id = ?
		ORDER BY received_at ASC, message_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation records: %w", err)
	}
	defer rows.Close()

	var records []*entity.EmailRecord
	for rows.Next() {
		var rec entity.EmailRecord
		if err := rows.Scan(
			&rec.MessageID, &rec.Sender, &rec.Subject, &rec.ReceivedAt,
			&rec.ConversationID, &rec.BodyRef, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
