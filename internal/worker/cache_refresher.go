package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/monitoring"
	"github.com/meridian-mfg/pricewatch/internal/vendorcache"
)

// CacheRefresher keeps the vendor directory cache inside its TTL. It checks
// on an interval and refreshes only when the snapshot has gone stale; a
// failed refresh leaves the previous snapshot serving.
type CacheRefresher struct {
	cache    *vendorcache.Cache
	interval time.Duration
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewCacheRefresher creates a cache refresher with the given check interval
func NewCacheRefresher(cache *vendorcache.Cache, interval time.Duration, metrics *monitoring.Metrics, logger *zap.Logger) *CacheRefresher {
	return &CacheRefresher{
		cache:    cache,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start begins the refresh loop
func (r *CacheRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("cache refresher is already running")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.isRunning = true

	go r.loop()
	return nil
}

// Stop stops the refresh loop
func (r *CacheRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRunning {
		return
	}
	r.isRunning = false
	if r.cancel != nil {
		r.cancel()
	}
}

// Name returns the worker name for identification
func (r *CacheRefresher) Name() string {
	return "CacheRefresher"
}

func (r *CacheRefresher) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Warm the cache immediately on start.
	r.refreshIfStale()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refreshIfStale()
		}
	}
}

func (r *CacheRefresher) refreshIfStale() {
	if !r.cache.IsStale() {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
	defer cancel()

	if err := r.cache.Refresh(ctx); err != nil {
		r.metrics.CacheRefreshes.WithLabelValues("failed").Inc()
		r.logger.Warn("Scheduled cache refresh failed, serving previous snapshot",
			zap.Error(err))
		return
	}
	r.metrics.CacheRefreshes.WithLabelValues("ok").Inc()
}
