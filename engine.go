package goPresence

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goPresence/challenge"
	internalaudit "github.com/MrEthical07/goPresence/internal/audit"
	"github.com/MrEthical07/goPresence/internal/decision"
	"github.com/MrEthical07/goPresence/internal/liveness"
	"github.com/MrEthical07/goPresence/internal/rate"
	"github.com/MrEthical07/goPresence/internal/registry"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the presence-consensus engine. It owns every live session and is
// safe for concurrent use. Build one with [New].
type Engine struct {
	config     Config
	registry   *registry.Registry
	policy     decision.Policy
	limiter    *rate.Limiter
	challenges *challenge.Manager
	sink       VerdictSink
	enrollment EnrollmentProvider
	schedule   ScheduleGate
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Close flushes the audit dispatcher. Live sessions are discarded with the Engine.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events lost to backpressure, a
// cancelled context or a panicking sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks [Engine.AuditDropped] down by event type.
// Finalization and override events wait for buffer space instead of being
// dropped, so they only appear here when a caller's context ran out first.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns a copy of all counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e == nil || e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.Add(id, uint64(n))
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// lookup returns the live session of anchorID.
func (e *Engine) lookup(anchorID string) (*registry.Session, error) {
	if anchorID == "" {
		return nil, ErrInvalidAnchorID
	}
	s, err := e.registry.Lookup(anchorID)
	if err != nil {
		return nil, mapRegistryError(err)
	}
	return s, nil
}

// mapRegistryError translates registry and window errors into the public
// taxonomy. Unknown errors pass through.
func mapRegistryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrSessionNotFound),
		errors.Is(err, registry.ErrSessionClosed):
		return ErrNoActiveSession
	case errors.Is(err, registry.ErrNoCandidate):
		return ErrSessionNotFound
	case errors.Is(err, registry.ErrSessionFinalizing):
		return ErrSessionFinalizing
	case errors.Is(err, registry.ErrSessionFull):
		return ErrSessionFull
	case errors.Is(err, registry.ErrWindowClosed):
		return ErrWindowClosed
	case errors.Is(err, registry.ErrParticipantUnknown):
		return ErrParticipantUnknown
	case errors.Is(err, liveness.ErrInvalidDuration):
		return ErrInvalidWindow
	default:
		return err
	}
}

func sessionInfo(info registry.Info, now time.Time) SessionInfo {
	return SessionInfo{
		AnchorID:          info.AnchorID,
		SessionID:         info.SessionID,
		Settings:          info.Settings,
		CreatedAt:         info.CreatedAt,
		ExpiresAt:         info.ExpiresAt,
		Age:               now.Sub(info.CreatedAt),
		Participants:      info.Participants,
		LivenessConfirmed: info.LivenessConfirmed,
		WindowOpen:        info.WindowState == liveness.ChallengeOpen,
		WindowExpiresAt:   info.WindowExpiresAt,
		WindowSequence:    info.WindowSequence,
		Finalizing:        info.Finalizing,
	}
}
