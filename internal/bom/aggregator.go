package bom

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
)

// ConversationReader lists the email records of one thread
type ConversationReader interface {
	ListByConversation(ctx context.Context, conversationID string) ([]*entity.EmailRecord, error)
}

// ImpactReader reads current impact generations
type ImpactReader interface {
	GetByMessage(ctx context.Context, messageID string) ([]*entity.BomImpactResult, error)
}

// Aggregator rolls BOM impact up across every email in a conversation
type Aggregator struct {
	emails  ConversationReader
	impacts ImpactReader
}

// NewAggregator creates a thread impact aggregator
func NewAggregator(emails ConversationReader, impacts ImpactReader) *Aggregator {
	return &Aggregator{emails: emails, impacts: impacts}
}

// Aggregate builds the thread rollup for a conversation. Part numbers are
// deduplicated case-insensitively for the affected-parts count, but cost
// impact is summed per mention: two emails revising the same part are two
// independent revision events, not one.
func (g *Aggregator) Aggregate(ctx context.Context, conversationID string) (*entity.ThreadImpactRollup, error) {
	records, err := g.emails.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no emails in conversation %s", conversationID)
	}

	rollup := &entity.ThreadImpactRollup{
		ConversationID: conversationID,
		EmailCount:     len(records),
	}
	seen := make(map[string]string) // lowercase part num -> first-seen spelling

	for _, rec := range records {
		results, err := g.impacts.GetByMessage(ctx, rec.MessageID)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			if res.PartNum != "" {
				key := strings.ToLower(res.PartNum)
				if _, ok := seen[key]; !ok {
					seen[key] = res.PartNum
				}
			}
			rollup.TotalAnnualCostImpact += res.TotalAnnualCostImpact

			if res.Verified() {
				rollup.VerifiedProducts++
			} else {
				rollup.UnverifiedProducts++
			}
			switch {
			case res.Approved:
				rollup.ApprovedProducts++
			case res.Rejected:
				rollup.RejectedProducts++
			default:
				rollup.PendingProducts++
			}
		}
	}

	rollup.PartsAffected = len(seen)
	for _, partNum := range seen {
		rollup.PartNumbers = append(rollup.PartNumbers, partNum)
	}
	sort.Strings(rollup.PartNumbers)
	return rollup, nil
}
