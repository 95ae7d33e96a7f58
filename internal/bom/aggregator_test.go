package bom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
)

type mockConversation struct {
	records map[string][]*entity.EmailRecord
}

func (m *mockConversation) ListByConversation(ctx context.Context, conversationID string) ([]*entity.EmailRecord, error) {
	return m.records[conversationID], nil
}

func impactResult(messageID, partNum string, annual float64, verified, approved, rejected bool) *entity.BomImpactResult {
	return &entity.BomImpactResult{
		MessageID:             messageID,
		PartNum:               partNum,
		ComponentValidated:    verified,
		SupplierPartValidated: verified,
		TotalAnnualCostImpact: annual,
		Approved:              approved,
		Rejected:              rejected,
	}
}

func TestAggregator_Aggregate(t *testing.T) {
	emails := &mockConversation{records: map[string][]*entity.EmailRecord{
		"thread-1": {
			{MessageID: "msg-1", ConversationID: "thread-1"},
			{MessageID: "msg-2", ConversationID: "thread-1"},
		},
	}}
	impacts := &mockImpacts{generations: map[string][]*entity.BomImpactResult{
		"msg-1": {
			impactResult("msg-1", "HB-M6-20", 1000, true, true, false),
			impactResult("msg-1", "HB-M8-30", 500, false, false, false),
		},
		"msg-2": {
			// Same part revised again later in the thread: counted once for
			// cardinality, but its cost contribution still accumulates.
			impactResult("msg-2", "hb-m6-20", 250, true, false, true),
		},
	}}

	rollup, err := NewAggregator(emails, impacts).Aggregate(context.Background(), "thread-1")
	require.NoError(t, err)

	assert.Equal(t, 2, rollup.EmailCount)
	assert.Equal(t, 2, rollup.PartsAffected, "case-insensitive dedupe across messages")
	assert.ElementsMatch(t, []string{"HB-M6-20", "HB-M8-30"}, rollup.PartNumbers)
	assert.InDelta(t, 1750.0, rollup.TotalAnnualCostImpact, 1e-9)
	assert.Equal(t, 2, rollup.VerifiedProducts)
	assert.Equal(t, 1, rollup.UnverifiedProducts)
	assert.Equal(t, 1, rollup.ApprovedProducts)
	assert.Equal(t, 1, rollup.RejectedProducts)
	assert.Equal(t, 1, rollup.PendingProducts)
}

func TestAggregator_EmailsWithoutResults(t *testing.T) {
	emails := &mockConversation{records: map[string][]*entity.EmailRecord{
		"thread-2": {
			{MessageID: "msg-3", ConversationID: "thread-2"},
		},
	}}
	impacts := &mockImpacts{generations: map[string][]*entity.BomImpactResult{}}

	rollup, err := NewAggregator(emails, impacts).Aggregate(context.Background(), "thread-2")
	require.NoError(t, err)

	assert.Equal(t, 1, rollup.EmailCount)
	assert.Zero(t, rollup.PartsAffected)
	assert.Zero(t, rollup.TotalAnnualCostImpact)
}

func TestAggregator_UnknownConversation(t *testing.T) {
	emails := &mockConversation{records: map[string][]*entity.EmailRecord{}}
	impacts := &mockImpacts{generations: map[string][]*entity.BomImpactResult{}}

	_, err := NewAggregator(emails, impacts).Aggregate(context.Background(), "missing")
	assert.Error(t, err)
}
