package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations("../../migrations"))
	return db
}

func insertRecord(t *testing.T, repo *EmailRepository, messageID, conversationID string, receivedAt time.Time) {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(), &entity.EmailRecord{
		MessageID:      messageID,
		Sender:         "quotes@acme.com",
		Subject:        "Price revision",
		ReceivedAt:     receivedAt,
		ConversationID: conversationID,
		BodyRef:        messageID + ".txt",
	}))
}

func TestEmailRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmailRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	insertRecord(t, repo, "msg-1", "thread-1", time.Now())

	rec, err := repo.Get(ctx, "msg-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "quotes@acme.com", rec.Sender)
	assert.Equal(t, "msg-1.txt", rec.BodyRef)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEmailRepository_ListByConversationOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmailRepository(db.DB, zap.NewNop())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	insertRecord(t, repo, "msg-b", "thread-1", base.Add(time.Hour))
	insertRecord(t, repo, "msg-a", "thread-1", base)
	insertRecord(t, repo, "msg-other", "thread-2", base)
	// Same timestamp as msg-b: message_id breaks the tie.
	insertRecord(t, repo, "msg-c", "thread-1", base.Add(time.Hour))

	records, err := repo.ListByConversation(context.Background(), "thread-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "msg-a", records[0].MessageID)
	assert.Equal(t, "msg-b", records[1].MessageID)
	assert.Equal(t, "msg-c", records[2].MessageID)
}

func TestStateRepository_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	emails := NewEmailRepository(db.DB, zap.NewNop())
	repo := NewStateRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	insertRecord(t, emails, "msg-1", "thread-1", time.Now())

	isPriceChange := true
	now := time.Now()
	state := &entity.EmailState{
		MessageID:           "msg-1",
		VerificationStatus:  entity.StatusManuallyApproved,
		VerificationMethod:  entity.MethodManual,
		VendorID:            "V100",
		ManuallyApprovedBy:  "li.wei",
		ManuallyApprovedAt:  &now,
		DetectionPerformed:  true,
		IsPriceChange:       &isPriceChange,
		DetectionConfidence: 0.95,
		DetectionReasoning:  "announces increase",
		ExtractedData:       `{"products":[]}`,
		Processed:           true,
	}
	require.NoError(t, repo.Upsert(ctx, state))

	got, err := repo.Get(ctx, "msg-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.StatusManuallyApproved, got.VerificationStatus)
	require.NotNil(t, got.IsPriceChange)
	assert.True(t, *got.IsPriceChange)
	require.NotNil(t, got.ManuallyApprovedAt)
	assert.Equal(t, `{"products":[]}`, got.ExtractedData)

	// Upsert again with changed fields updates the same row.
	state.Processed = false
	state.EpicorSynced = true
	require.NoError(t, repo.Upsert(ctx, state))

	got, err = repo.Get(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, got.Processed)
	assert.True(t, got.EpicorSynced)
}

func TestStateRepository_ListPending(t *testing.T) {
	db := newTestDB(t)
	emails := NewEmailRepository(db.DB, zap.NewNop())
	repo := NewStateRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"msg-1", "msg-2", "msg-3"} {
		insertRecord(t, emails, id, "thread-1", time.Now())
	}
	require.NoError(t, repo.Upsert(ctx, &entity.EmailState{
		MessageID: "msg-1", VerificationStatus: entity.StatusPendingReview,
	}))
	require.NoError(t, repo.Upsert(ctx, &entity.EmailState{
		MessageID: "msg-2", VerificationStatus: entity.StatusVerified,
	}))
	require.NoError(t, repo.Upsert(ctx, &entity.EmailState{
		MessageID: "msg-3", VerificationStatus: entity.StatusPendingReview,
	}))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Oldest update first.
	assert.Equal(t, "msg-1", pending[0].MessageID)
	assert.Equal(t, "msg-3", pending[1].MessageID)
}

func impactRow(messageID, generation string, index int) *entity.BomImpactResult {
	return &entity.BomImpactResult{
		MessageID:             messageID,
		Generation:            generation,
		ProductIndex:          index,
		PartNum:               "HB-M6-20",
		ProductName:           "M6 hex bolt",
		SupplierName:          "Acme Fasteners",
		ComponentValidated:    true,
		SupplierValidated:     true,
		SupplierPartValidated: true,
		Status:                entity.ImpactSuccess,
		OldPrice:              0.10,
		NewPrice:              0.12,
		ImpactDetails: []entity.AssemblyImpact{
			{AssemblyPartNum: "ASM-100", QtyPerAssembly: 10, CostIncreasePerUnit: 0.2, RiskTier: entity.TierLow},
		},
		TotalAnnualCostImpact: 1040,
		CanAutoApprove:        true,
	}
}

func TestImpactRepository_ReplaceGenerationClearsDecisions(t *testing.T) {
	db := newTestDB(t)
	emails := NewEmailRepository(db.DB, zap.NewNop())
	repo := NewImpactRepository(db, zap.NewNop())
	ctx := context.Background()

	insertRecord(t, emails, "msg-1", "thread-1", time.Now())

	require.NoError(t, repo.ReplaceGeneration(ctx, "msg-1", []*entity.BomImpactResult{
		impactRow("msg-1", "gen-1", 0),
		impactRow("msg-1", "gen-1", 1),
	}))
	require.NoError(t, repo.UpdateDecision(ctx, "msg-1", 0, true, false))

	results, err := repo.GetByMessage(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Approved)
	require.Len(t, results[0].ImpactDetails, 1)
	assert.Equal(t, "ASM-100", results[0].ImpactDetails[0].AssemblyPartNum)

	// A new generation fully replaces the old rows, decisions included.
	require.NoError(t, repo.ReplaceGeneration(ctx, "msg-1", []*entity.BomImpactResult{
		impactRow("msg-1", "gen-2", 0),
	}))

	results, err = repo.GetByMessage(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "gen-2", results[0].Generation)
	assert.False(t, results[0].Approved)
}

func TestImpactRepository_UpdateDecisionMissingRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewImpactRepository(db, zap.NewNop())

	err := repo.UpdateDecision(context.Background(), "msg-1", 99, true, false)
	assert.Error(t, err)
}
