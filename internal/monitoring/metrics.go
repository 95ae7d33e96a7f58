// Package monitoring exposes Prometheus metrics for the cost-control
// pipeline. The interesting numbers are billable calls actually spent
// versus emails the gate parked before any spend.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pipeline collectors
type Metrics struct {
	GateOutcomes     *prometheus.CounterVec
	DetectionCalls   prometheus.Counter
	ExtractionCalls  prometheus.Counter
	StageFailures    *prometheus.CounterVec
	CacheRefreshes   *prometheus.CounterVec
	ImpactAnalyses   prometheus.Counter
	ErpSyncs         *prometheus.CounterVec
	PendingReviews   prometheus.Gauge
	StageDuration    *prometheus.HistogramVec
}

// New registers all collectors on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		GateOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "gate_outcomes_total",
			Help:      "Verification gate outcomes by result (verified, parked).",
		}, []string{"outcome"}),
		DetectionCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "detection_calls_total",
			Help:      "Billable detection-stage calls actually issued.",
		}),
		ExtractionCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "extraction_calls_total",
			Help:      "Billable extraction-stage calls actually issued.",
		}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "stage_failures_total",
			Help:      "Stage failures by stage (detection, extraction, analysis, sync).",
		}, []string{"stage"}),
		CacheRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "vendor_cache_refreshes_total",
			Help:      "Vendor directory cache refreshes by result (ok, failed).",
		}, []string{"result"}),
		ImpactAnalyses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "bom_impact_analyses_total",
			Help:      "BOM impact analysis generations produced.",
		}),
		ErpSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "erp_syncs_total",
			Help:      "ERP price sync attempts by result (ok, blocked, failed).",
		}, []string{"result"}),
		PendingReviews: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricewatch",
			Name:      "pending_review_emails",
			Help:      "Emails currently parked awaiting human review.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pricewatch",
			Name:      "stage_duration_seconds",
			Help:      "Duration of billable and ERP stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}
