package vendorcache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/internal/erp"
)

// RosterSource provides the full vendor roster from the ERP
type RosterSource interface {
	ListVendors(ctx context.Context) ([]erp.Vendor, error)
}

// Status is a read-only operational snapshot of the cache
type Status struct {
	VendorCount           int       `json:"vendor_count"`
	EmailCount            int       `json:"email_count"`
	DomainCount           int       `json:"domain_count"`
	TTLHours              float64   `json:"ttl_hours"`
	IsStale               bool      `json:"is_stale"`
	LastUpdated           time.Time `json:"last_updated"`
	NextRefresh           time.Time `json:"next_refresh"`
	DomainMatchingEnabled bool      `json:"domain_matching_enabled"`
}

// snapshot is an immutable build of the directory. Refresh builds a new
// snapshot and swaps the pointer, so in-flight lookups always observe a
// complete, consistent directory and never a partial rebuild.
type snapshot struct {
	builtAt     time.Time
	byEmail     map[string]entity.VendorMatch
	byDomain    map[string]entity.VendorMatch
	vendorCount int
}

// Cache is the TTL-bounded vendor directory used for O(1) sender lookups.
// Reads never block on a refresh in progress.
type Cache struct {
	ptr            atomic.Pointer[snapshot]
	source         RosterSource
	ttl            time.Duration
	domainMatching bool
	group          singleflight.Group
	logger         *zap.Logger
}

// New creates an empty cache; call Refresh before first use
func New(source RosterSource, ttl time.Duration, domainMatching bool, logger *zap.Logger) *Cache {
	c := &Cache{
		source:         source,
		ttl:            ttl,
		domainMatching: domainMatching,
		logger:         logger,
	}
	c.ptr.Store(&snapshot{
		byEmail:  map[string]entity.VendorMatch{},
		byDomain: map[string]entity.VendorMatch{},
	})
	return c
}

// Refresh fetches the vendor roster and atomically swaps in a new snapshot.
// Concurrent refreshes are coalesced. On source failure the previous
// snapshot is retained: stale-but-available beats empty.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		vendors, err := c.source.ListVendors(ctx)
		if err != nil {
			c.logger.Error("Vendor roster fetch failed, keeping previous cache", zap.Error(err))
			return nil, fmt.Errorf("vendor roster fetch: %w", err)
		}

		snap := &snapshot{
			builtAt:     time.Now(),
			byEmail:     make(map[string]entity.VendorMatch, len(vendors)),
			byDomain:    make(map[string]entity.VendorMatch, len(vendors)),
			vendorCount: len(vendors),
		}
		for _, v := range vendors {
			match := entity.VendorMatch{VendorID: v.VendorID, VendorName: v.Name}
			if email := strings.ToLower(strings.TrimSpace(v.VerifiedEmail)); email != "" {
				m := match
				m.MatchedBy = entity.MethodExactEmail
				snap.byEmail[email] = m
			}
			if domain := strings.ToLower(strings.TrimSpace(v.VerifiedDomain)); domain != "" {
				m := match
				m.MatchedBy = entity.MethodDomainMatch
				snap.byDomain[domain] = m
			}
		}

		c.ptr.Store(snap)
		c.logger.Info("Vendor directory cache rebuilt",
			zap.Int("vendors", snap.vendorCount),
			zap.Int("emails", len(snap.byEmail)),
			zap.Int("domains", len(snap.byDomain)))
		return nil, nil
	})
	return err
}

// Lookup resolves a sender address against the directory. Matching is
// case-insensitive; an exact email match always wins over a domain match.
func (c *Cache) Lookup(senderEmail string) (entity.VendorMatch, bool) {
	snap := c.ptr.Load()
	addr := strings.ToLower(strings.TrimSpace(senderEmail))

	if match, ok := snap.byEmail[addr]; ok {
		return match, true
	}

	if c.domainMatching {
		if at := strings.LastIndex(addr, "@"); at >= 0 && at < len(addr)-1 {
			if match, ok := snap.byDomain[addr[at+1:]]; ok {
				return match, true
			}
		}
	}
	return entity.VendorMatch{}, false
}

// IsStale reports whether the snapshot has outlived its TTL
func (c *Cache) IsStale() bool {
	snap := c.ptr.Load()
	if snap.builtAt.IsZero() {
		return true
	}
	return time.Since(snap.builtAt) > c.ttl
}

// Status returns an operational snapshot of the cache
func (c *Cache) Status() Status {
	snap := c.ptr.Load()
	return Status{
		VendorCount:           snap.vendorCount,
		EmailCount:            len(snap.byEmail),
		DomainCount:           len(snap.byDomain),
		TTLHours:              c.ttl.Hours(),
		IsStale:               c.IsStale(),
		LastUpdated:           snap.builtAt,
		NextRefresh:           snap.builtAt.Add(c.ttl),
		DomainMatchingEnabled: c.domainMatching,
	}
}
