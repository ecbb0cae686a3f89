package goPresence

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/MrEthical07/goPresence/internal/rate"
)

// SubmitEvidence appends a fingerprint and/or motion samples for the
// participant to the anchor's session, creating the participant's record on
// first submission. Evidence is append-only; nothing submitted is ever
// rewritten. The ack reports whether a liveness window is currently open so
// the client can prompt for a proof.
func (e *Engine) SubmitEvidence(ctx context.Context, req EvidenceRequest) (EvidenceAck, error) {
	if e == nil || e.registry == nil {
		return EvidenceAck{}, ErrEngineNotReady
	}
	if err := validateEvidence(req); err != nil {
		e.metricInc(MetricEvidenceRejected)
		return EvidenceAck{}, err
	}

	s, err := e.lookup(req.AnchorID)
	if err != nil {
		e.metricInc(MetricEvidenceRejected)
		return EvidenceAck{}, err
	}
	target := auditTarget{anchorID: req.AnchorID, sessionID: s.ID(), participantID: req.ParticipantID}

	if e.limiter != nil {
		if err := e.throttle(ctx, target, "evidence", e.limiter.AllowEvidence); err != nil {
			return EvidenceAck{}, err
		}
	}

	open, err := s.AppendEvidence(e.now(), req.ParticipantID, req.Fingerprint, req.Motion)
	if err != nil {
		err = mapRegistryError(err)
		e.metricInc(MetricEvidenceRejected)
		e.emitAudit(ctx, auditEventEvidenceRejected, false, target, err, nil)
		return EvidenceAck{}, err
	}

	e.metricInc(MetricEvidenceAccepted)
	return EvidenceAck{LivenessWindowOpen: open}, nil
}

func validateEvidence(req EvidenceRequest) error {
	if req.AnchorID == "" {
		return ErrInvalidAnchorID
	}
	if req.ParticipantID == "" {
		return ErrInvalidParticipantID
	}
	if len(req.Fingerprint) == 0 && len(req.Motion) == 0 {
		return ErrInvalidEvidence
	}
	if err := req.Fingerprint.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}
	for _, m := range req.Motion {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("%w: non-finite motion sample", ErrInvalidEvidence)
		}
	}
	return nil
}

// throttle applies one rate limiter budget. Backend failures admit the
// submission unless RateLimit.FailClosed is set.
func (e *Engine) throttle(
	ctx context.Context,
	target auditTarget,
	scope string,
	allow func(ctx context.Context, anchorID, sessionID, participantID string) error,
) error {
	err := allow(ctx, target.anchorID, target.sessionID, target.participantID)
	if err == nil {
		return nil
	}

	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricEvidenceRateLimited)
		e.emitAudit(ctx, auditEventRateLimited, false, target, ErrEvidenceRateLimited, func() map[string]string {
			return map[string]string{"scope": scope}
		})
		return ErrEvidenceRateLimited
	}

	if e.config.RateLimit.FailClosed {
		e.logger.ErrorContext(ctx, "rate limiter unavailable, rejecting submission",
			"anchor_id", target.anchorID,
			"scope", scope,
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}
	e.logger.WarnContext(ctx, "rate limiter unavailable, admitting submission",
		"anchor_id", target.anchorID,
		"scope", scope,
		"error", err,
	)
	return nil
}
