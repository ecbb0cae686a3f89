package goPresence

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// TriggerLiveness opens a liveness window on the anchor's session, or resets
// the deadline of the window already open. Expiry is evaluated lazily against
// the engine clock; no timer runs. When challenge tokens are enabled the ack
// carries a token bound to this window.
func (e *Engine) TriggerLiveness(ctx context.Context, req TriggerLivenessRequest) (LivenessAck, error) {
	if e == nil || e.registry == nil {
		return LivenessAck{}, ErrEngineNotReady
	}

	window := req.Window
	if window <= 0 {
		window = e.config.Liveness.DefaultWindow
	}
	if window > e.config.Liveness.MaxWindow {
		return LivenessAck{}, fmt.Errorf("%w: %s exceeds %s", ErrInvalidWindow, window, e.config.Liveness.MaxWindow)
	}

	s, err := e.lookup(req.AnchorID)
	if err != nil {
		return LivenessAck{}, err
	}
	target := auditTarget{anchorID: req.AnchorID, sessionID: s.ID()}

	seq, expiresAt, err := s.TriggerLiveness(e.now(), window)
	if err != nil {
		err = mapRegistryError(err)
		e.emitAudit(ctx, auditEventLivenessTriggered, false, target, err, nil)
		return LivenessAck{}, err
	}

	ack := LivenessAck{
		AnchorID:  req.AnchorID,
		SessionID: s.ID(),
		Sequence:  seq,
		ExpiresAt: expiresAt,
	}
	if e.challenges != nil {
		token, err := e.challenges.Issue(req.AnchorID, s.ID(), seq, expiresAt)
		if err != nil {
			e.logger.ErrorContext(ctx, "challenge issue failed", "anchor_id", req.AnchorID, "error", err)
			return LivenessAck{}, fmt.Errorf("issue challenge: %w", err)
		}
		ack.Challenge = token
	}

	e.metricInc(MetricLivenessTriggered)
	e.emitAudit(ctx, auditEventLivenessTriggered, true, target, nil, func() map[string]string {
		return map[string]string{
			"sequence": strconv.FormatUint(seq, 10),
			"window":   window.String(),
		}
	})
	return ack, nil
}

// SubmitLivenessProof marks the participant live. It is accepted only while
// the window is open and only for participants that have submitted evidence.
// Confirmation is one-way; a repeated proof is acknowledged with
// AlreadyConfirmed and changes nothing.
func (e *Engine) SubmitLivenessProof(ctx context.Context, req LivenessProofRequest) (ProofAck, error) {
	if e == nil || e.registry == nil {
		return ProofAck{}, ErrEngineNotReady
	}
	if req.ParticipantID == "" {
		return ProofAck{}, ErrInvalidParticipantID
	}

	s, err := e.lookup(req.AnchorID)
	if err != nil {
		return ProofAck{}, err
	}
	target := auditTarget{anchorID: req.AnchorID, sessionID: s.ID(), participantID: req.ParticipantID}

	if e.limiter != nil {
		if err := e.throttle(ctx, target, "proof", e.limiter.AllowProof); err != nil {
			return ProofAck{}, err
		}
	}

	now := e.now()
	seq, err := e.proofSequence(s.ID(), req, now, s.WindowSequence)
	if err == nil {
		var already bool
		already, err = s.ConfirmLiveness(now, req.ParticipantID, seq)
		if err == nil {
			if !already {
				e.metricInc(MetricLivenessProofAccepted)
			}
			e.emitAudit(ctx, auditEventLivenessProof, true, target, nil, func() map[string]string {
				return map[string]string{"already_confirmed": strconv.FormatBool(already)}
			})
			return ProofAck{AlreadyConfirmed: already}, nil
		}
		err = mapRegistryError(err)
	}

	e.metricInc(MetricLivenessProofRejected)
	e.emitAudit(ctx, auditEventLivenessProof, false, target, err, nil)
	return ProofAck{}, err
}

// proofSequence returns the window sequence a proof must match, or 0 when
// proofs are not bound to a window.
func (e *Engine) proofSequence(
	sessionID string,
	req LivenessProofRequest,
	now time.Time,
	window func(time.Time) (uint64, bool),
) (uint64, error) {
	if e.challenges == nil {
		return 0, nil
	}
	if req.Challenge == "" {
		if e.config.Liveness.RequireChallengeToken {
			return 0, fmt.Errorf("%w: token required", ErrChallengeInvalid)
		}
		return 0, nil
	}

	seq, open := window(now)
	if !open {
		return 0, ErrWindowClosed
	}
	if _, err := e.challenges.Verify(req.Challenge, req.AnchorID, sessionID, seq); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrChallengeInvalid, err)
	}
	return seq, nil
}
