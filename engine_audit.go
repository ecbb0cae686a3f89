package goPresence

import (
	"context"
	"errors"
)

const (
	auditEventSessionOpened     = "session_opened"
	auditEventSessionReplaced   = "session_replaced"
	auditEventSessionClosed     = "session_closed"
	auditEventSessionExpired    = "session_expired"
	auditEventScheduleDenied    = "schedule_denied"
	auditEventLivenessTriggered = "liveness_triggered"
	auditEventEvidenceRejected  = "evidence_rejected"
	auditEventRateLimited       = "rate_limit_triggered"
	auditEventLivenessProof     = "liveness_proof"
	auditEventSessionFinalized  = "session_finalized"
	auditEventFinalizeFailure   = "finalize_failure"
	auditEventVerdictOverridden = "verdict_overridden"
)

// retainedAuditEvents record verdict outcomes and are never dropped for a
// full buffer.
var retainedAuditEvents = []string{
	auditEventSessionFinalized,
	auditEventFinalizeFailure,
	auditEventVerdictOverridden,
}

// AuditErrorCode is the stable error code written to [AuditEvent].Error.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrNoActiveSession    AuditErrorCode = "no_active_session"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrWindowClosed       AuditErrorCode = "window_closed"
	auditErrSessionFinalizing  AuditErrorCode = "session_finalizing"
	auditErrSessionFull        AuditErrorCode = "session_full"
	auditErrParticipantUnknown AuditErrorCode = "participant_unknown"
	auditErrChallengeInvalid   AuditErrorCode = "challenge_invalid"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrScheduleDenied     AuditErrorCode = "schedule_denied"
	auditErrPersistFailed      AuditErrorCode = "persist_failed"
	auditErrEnrollment         AuditErrorCode = "enrollment_unavailable"
	auditErrVerdictNotFound    AuditErrorCode = "verdict_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInvalidState       AuditErrorCode = "invalid_state"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// auditTarget names what an audit event is about.
type auditTarget struct {
	anchorID      string
	sessionID     string
	participantID string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	target auditTarget,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if id := requestIDFromContext(ctx); id != "" {
		if metadata == nil {
			metadata = make(map[string]string, 2)
		}
		metadata["request_id"] = id
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["client_ip"] = ip
	}

	event := AuditEvent{
		Timestamp:     e.now().UTC(),
		EventType:     eventType,
		AnchorID:      target.anchorID,
		SessionID:     target.sessionID,
		ParticipantID: target.participantID,
		Success:       success,
		Metadata:      metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNoActiveSession):
		return auditErrNoActiveSession
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrVerdictNotFound):
		return auditErrVerdictNotFound
	case errors.Is(err, ErrWindowClosed):
		return auditErrWindowClosed
	case errors.Is(err, ErrSessionFinalizing):
		return auditErrSessionFinalizing
	case errors.Is(err, ErrSessionFull):
		return auditErrSessionFull
	case errors.Is(err, ErrParticipantUnknown):
		return auditErrParticipantUnknown
	case errors.Is(err, ErrChallengeInvalid):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrEvidenceRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrScheduleDenied):
		return auditErrScheduleDenied
	case errors.Is(err, ErrPersistFailed):
		return auditErrPersistFailed
	case errors.Is(err, ErrEnrollmentUnavailable):
		return auditErrEnrollment
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrState):
		return auditErrInvalidState
	default:
		return auditErrInternal
	}
}
