package vendorcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/internal/erp"
)

type mockRoster struct {
	mu        sync.Mutex
	listFunc  func(ctx context.Context) ([]erp.Vendor, error)
	listCalls int
}

func (m *mockRoster) ListVendors(ctx context.Context) ([]erp.Vendor, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func testVendors() []erp.Vendor {
	return []erp.Vendor{
		{VendorID: "V001", Name: "Acme Fasteners", VerifiedEmail: "Quotes@Acme.com", VerifiedDomain: "acme.com"},
		{VendorID: "V002", Name: "Borealis Alloys", VerifiedDomain: "Borealis.io"},
		{VendorID: "V003", Name: "Cirrus Plastics", VerifiedEmail: "sales@cirrus.example"},
	}
}

func newTestCache(t *testing.T, source RosterSource, domainMatching bool) *Cache {
	t.Helper()
	return New(source, 24*time.Hour, domainMatching, zap.NewNop())
}

func TestCache_LookupPrecedence(t *testing.T) {
	source := &mockRoster{listFunc: func(ctx context.Context) ([]erp.Vendor, error) {
		return []erp.Vendor{
			{VendorID: "V001", Name: "Acme Fasteners", VerifiedEmail: "quotes@acme.com", VerifiedDomain: "acme.com"},
			{VendorID: "V009", Name: "Acme Holdings", VerifiedDomain: "acme.com"},
		}, nil
	}}
	cache := newTestCache(t, source, true)
	require.NoError(t, cache.Refresh(context.Background()))

	// Exact email beats domain match even when both would hit.
	match, ok := cache.Lookup("quotes@acme.com")
	require.True(t, ok)
	assert.Equal(t, "V001", match.VendorID)
	assert.Equal(t, entity.MethodExactEmail, match.MatchedBy)

	// A different mailbox on the same domain falls through to the domain.
	match, ok = cache.Lookup("billing@acme.com")
	require.True(t, ok)
	assert.Equal(t, entity.MethodDomainMatch, match.MatchedBy)
}

func TestCache_LookupCaseInsensitive(t *testing.T) {
	source := &mockRoster{listFunc: func(ctx context.Context) ([]erp.Vendor, error) {
		return testVendors(), nil
	}}
	cache := newTestCache(t, source, true)
	require.NoError(t, cache.Refresh(context.Background()))

	match, ok := cache.Lookup("QUOTES@ACME.COM")
	require.True(t, ok)
	assert.Equal(t, "V001", match.VendorID)

	match, ok = cache.Lookup("anyone@BOREALIS.IO")
	require.True(t, ok)
	assert.Equal(t, "V002", match.VendorID)
}

func TestCache_DomainMatchingDisabled(t *testing.T) {
	source := &mockRoster{listFunc: func(ctx context.Context) ([]erp.Vendor, error) {
		return testVendors(), nil
	}}
	cache := newTestCache(t, source, false)
	require.NoError(t, cache.Refresh(context.Background()))

	_, ok := cache.Lookup("anyone@acme.com")
	assert.False(t, ok, "domain match must not fire when disabled")

	_, ok = cache.Lookup("quotes@acme.com")
	assert.True(t, ok, "exact email match still works")
}

func TestCache_LookupUnknownSender(t *testing.T) {
	source := &mockRoster{listFunc: func(ctx context.Context) ([]erp.Vendor, error) {
		return testVendors(), nil
	}}
	cache := newTestCache(t, source, true)
	require.NoError(t, cache.Refresh(context.Background()))

	_, ok := cache.Lookup("stranger@unknown.example")
	assert.False(t, ok)

	_, ok = cache.Lookup("not-an-email")
	assert.False(t, ok)
}

func TestCache_FailedRefreshKeepsSnapshot(t *testing.T) {
	failing := false
	source := &mockRoster{listFunc: func(ctx context.Context) ([]erp.Vendor, error) {
		if failing {
			return nil, erp.ErrSourceUnavailable
		}
		return testVendors(), nil
	}}
	cache := newTestCache(t, source, true)
	require.NoError(t, cache.Refresh(context.Background()))

	failing = true
	err := cache.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, erp.ErrSourceUnavailable))

	// The previous snapshot still serves lookups.
	match, ok := cache.Lookup("quotes@acme.com")
	require.True(t, ok)
	assert.Equal(t, "V001", match.VendorID)
}

func TestCache_EmptyBeforeFirstRefresh(t *testing.T) {
	cache := newTestCache(t, &mockRoster{}, true)

	_, ok := cache.Lookup("quotes@acme.com")
	assert.False(t, ok)
	assert.True(t, cache.IsStale())
}

func TestCache_IsStale(t *testing.T) {
	source := &mockRoster{listFunc: func(ctx context.Context) ([]erp.Vendor, error) {
		return testVendors(), nil
	}}
	cache := New(source, time.Millisecond, true, zap.NewNop())
	require.NoError(t, cache.Refresh(context.Background()))

	assert.Eventually(t, cache.IsStale, time.Second, 5*time.Millisecond)
}

func TestCache_Status(t *testing.T) {
	source := &mockRoster{listFunc: func(ctx context.Context) ([]erp.Vendor, error) {
		return testVendors(), nil
	}}
	cache := newTestCache(t, source, true)
	require.NoError(t, cache.Refresh(context.Background()))

	status := cache.Status()
	assert.Equal(t, 3, status.VendorCount)
	assert.Equal(t, 2, status.EmailCount)
	assert.Equal(t, 2, status.DomainCount)
	assert.True(t, status.DomainMatchingEnabled)
	assert.False(t, status.IsStale)
	assert.Equal(t, status.LastUpdated.Add(24*time.Hour), status.NextRefresh)
}

func TestCache_ConcurrentLookupDuringRefresh(t *testing.T) {
	source := &mockRoster{listFunc: func(ctx context.Context) ([]erp.Vendor, error) {
		return testVendors(), nil
	}}
	cache := newTestCache(t, source, true)
	require.NoError(t, cache.Refresh(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				// A lookup must always see a complete snapshot: either the
				// vendor resolves fully or not at all.
				match, ok := cache.Lookup("quotes@acme.com")
				if ok && match.VendorID != "V001" {
					t.Errorf("partial snapshot observed: %+v", match)
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cache.Refresh(context.Background())
		}()
	}
	wg.Wait()
}
