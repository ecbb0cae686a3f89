package goPresence

import internalmetrics "github.com/MrEthical07/goPresence/internal/metrics"

// MetricID identifies an engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricSessionOpened         = internalmetrics.MetricSessionOpened
	MetricSessionReplaced       = internalmetrics.MetricSessionReplaced
	MetricSessionClosed         = internalmetrics.MetricSessionClosed
	MetricSessionExpired        = internalmetrics.MetricSessionExpired
	MetricScheduleDenied        = internalmetrics.MetricScheduleDenied
	MetricEvidenceAccepted      = internalmetrics.MetricEvidenceAccepted
	MetricEvidenceRejected      = internalmetrics.MetricEvidenceRejected
	MetricEvidenceRateLimited   = internalmetrics.MetricEvidenceRateLimited
	MetricLivenessTriggered     = internalmetrics.MetricLivenessTriggered
	MetricLivenessProofAccepted = internalmetrics.MetricLivenessProofAccepted
	MetricLivenessProofRejected = internalmetrics.MetricLivenessProofRejected
	MetricDiscoverHit           = internalmetrics.MetricDiscoverHit
	MetricDiscoverMiss          = internalmetrics.MetricDiscoverMiss
	MetricFinalizeSuccess       = internalmetrics.MetricFinalizeSuccess
	MetricFinalizeFailure       = internalmetrics.MetricFinalizeFailure
	MetricVerdictPresent        = internalmetrics.MetricVerdictPresent
	MetricVerdictPartial        = internalmetrics.MetricVerdictPartial
	MetricVerdictAbsent         = internalmetrics.MetricVerdictAbsent
	MetricClusterFlagged        = internalmetrics.MetricClusterFlagged
	MetricEvaluationFault       = internalmetrics.MetricEvaluationFault
	// MetricFinalizeLatency is a histogram, reported only in Histograms.
	MetricFinalizeLatency = internalmetrics.MetricFinalizeLatency
)

// Metrics holds atomic counters and the optional finalize latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
