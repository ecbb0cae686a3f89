package internaldefs

import (
	goPresence "github.com/MrEthical07/goPresence"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goPresence.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goPresence.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goPresence.MetricSessionOpened, Name: "presence_session_opened_total", Help: "Opened sessions."},
	{ID: goPresence.MetricSessionReplaced, Name: "presence_session_replaced_total", Help: "Sessions replaced by a new session on the same anchor."},
	{ID: goPresence.MetricSessionClosed, Name: "presence_session_closed_total", Help: "Sessions closed without finalization."},
	{ID: goPresence.MetricSessionExpired, Name: "presence_session_expired_total", Help: "Sessions reaped after their maximum lifetime."},
	{ID: goPresence.MetricScheduleDenied, Name: "presence_schedule_denied_total", Help: "Session opens denied by the schedule gate."},
	{ID: goPresence.MetricEvidenceAccepted, Name: "presence_evidence_accepted_total", Help: "Accepted evidence submissions."},
	{ID: goPresence.MetricEvidenceRejected, Name: "presence_evidence_rejected_total", Help: "Rejected evidence submissions."},
	{ID: goPresence.MetricEvidenceRateLimited, Name: "presence_evidence_rate_limited_total", Help: "Evidence and proof submissions denied by the rate limiter."},
	{ID: goPresence.MetricLivenessTriggered, Name: "presence_liveness_triggered_total", Help: "Liveness windows opened or reset."},
	{ID: goPresence.MetricLivenessProofAccepted, Name: "presence_liveness_proof_accepted_total", Help: "First-time liveness confirmations."},
	{ID: goPresence.MetricLivenessProofRejected, Name: "presence_liveness_proof_rejected_total", Help: "Rejected liveness proofs."},
	{ID: goPresence.MetricDiscoverHit, Name: "presence_discover_hit_total", Help: "Discovery lookups that matched a session."},
	{ID: goPresence.MetricDiscoverMiss, Name: "presence_discover_miss_total", Help: "Discovery lookups with no matching session."},
	{ID: goPresence.MetricFinalizeSuccess, Name: "presence_finalize_success_total", Help: "Successful finalizations."},
	{ID: goPresence.MetricFinalizeFailure, Name: "presence_finalize_failure_total", Help: "Failed finalizations."},
	{ID: goPresence.MetricVerdictPresent, Name: "presence_verdict_present_total", Help: "PRESENT verdicts issued."},
	{ID: goPresence.MetricVerdictPartial, Name: "presence_verdict_partial_total", Help: "PARTIAL verdicts issued."},
	{ID: goPresence.MetricVerdictAbsent, Name: "presence_verdict_absent_total", Help: "ABSENT verdicts issued."},
	{ID: goPresence.MetricClusterFlagged, Name: "presence_cluster_flagged_total", Help: "Participants implicated in a proxy cluster."},
	{ID: goPresence.MetricEvaluationFault, Name: "presence_evaluation_fault_total", Help: "Participant evaluations that faulted and were recorded ABSENT."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goPresence.MetricFinalizeLatency, Name: "presence_finalize_latency_seconds", Help: "FinalizeSession latency."},
}

// AuditDroppedName is the counter of audit events the dispatcher lost,
// labelled with [AuditEventTypeLabel].
const AuditDroppedName = "presence_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Audit events lost by the dispatcher, by event type."

// AuditEventTypeLabel names the audit event type dimension.
const AuditEventTypeLabel = "event_type"

// ActiveSessionsName is the gauge of sessions currently held by the engine.
const ActiveSessionsName = "presence_active_sessions"

// ActiveSessionsHelp describes [ActiveSessionsName].
const ActiveSessionsHelp = "Sessions currently held by the engine, including expired ones not yet reaped."

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one extra overflow bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, overflow last, for exporters that
// encode the bound in the instrument name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
