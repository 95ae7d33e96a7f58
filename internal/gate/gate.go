// Package gate implements the free, synchronous admission check that
// decides whether an inbound email may spend billable AI calls. The gate
// runs before every billable stage; the detection stage's entry point
// requires a Verdict, which only this package can construct, so detection
// is structurally unreachable without first consulting the gate.
package gate

import (
	"fmt"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/internal/vendorcache"
)

// Verdict is the result of evaluating one sender. The zero value is
// unverified; verified verdicts can only be produced by Gate.Evaluate or
// ManualClearance.
type Verdict struct {
	verified bool
	method   entity.VerificationMethod
	vendor   entity.VendorMatch
}

// Verified reports whether billable processing is permitted
func (v Verdict) Verified() bool { return v.verified }

// Method returns how the sender was verified
func (v Verdict) Method() entity.VerificationMethod { return v.method }

// Vendor returns the matched vendor identity, zero-valued when none matched
func (v Verdict) Vendor() entity.VendorMatch { return v.vendor }

// Gate evaluates senders against the vendor directory cache. It performs
// no I/O and mutates nothing; callers apply the result.
type Gate struct {
	cache   *vendorcache.Cache
	enabled bool
}

// New creates a verification gate. When enabled is false every sender is
// treated as verified (fail-open for operational continuity).
func New(cache *vendorcache.Cache, enabled bool) *Gate {
	return &Gate{cache: cache, enabled: enabled}
}

// Evaluate decides whether the sender is a known vendor identity
func (g *Gate) Evaluate(senderEmail string) Verdict {
	if !g.enabled {
		return Verdict{verified: true, method: entity.MethodDisabled}
	}

	match, ok := g.cache.Lookup(senderEmail)
	if !ok {
		return Verdict{}
	}
	return Verdict{verified: true, method: match.MatchedBy, vendor: match}
}

// ManualClearance constructs the verdict representing a human approving a
// parked email for billable processing. The reviewer identity is recorded
// on the EmailState, not here.
func ManualClearance() Verdict {
	return Verdict{verified: true, method: entity.MethodManual}
}

// FlagReason explains why an unverified sender was parked
func FlagReason(senderEmail string) string {
	return fmt.Sprintf("sender %s does not match any verified vendor email or domain", senderEmail)
}
