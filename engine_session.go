package goPresence

import (
	"context"
	"fmt"
	"strconv"
)

// OpenSession opens a session for the anchor, atomically replacing any
// session the anchor already has. The replaced session's evidence is
// discarded and later calls against it fail with ErrNoActiveSession.
//
// A nil Settings uses Config.Defaults. When a ScheduleGate is configured it
// must allow the session; a gate error is treated as a denial.
func (e *Engine) OpenSession(ctx context.Context, req OpenSessionRequest) (SessionHandle, error) {
	if e == nil || e.registry == nil {
		return SessionHandle{}, ErrEngineNotReady
	}
	if req.AnchorID == "" {
		return SessionHandle{}, ErrInvalidAnchorID
	}
	if len(req.Seed) == 0 {
		return SessionHandle{}, fmt.Errorf("%w: seed is empty", ErrInvalidFingerprint)
	}
	if err := req.Seed.Validate(); err != nil {
		return SessionHandle{}, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}

	settings := e.config.Defaults.Settings()
	if req.Settings != nil {
		settings = *req.Settings
		if err := validateSettings(settings); err != nil {
			return SessionHandle{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	}
	// Discovery and classification must read the same threshold.
	if settings.SimilarityThreshold <= 0 {
		settings.SimilarityThreshold = e.config.Discovery.FallbackThreshold
	}

	target := auditTarget{anchorID: req.AnchorID}
	if err := e.checkSchedule(ctx, req.AnchorID); err != nil {
		e.metricInc(MetricScheduleDenied)
		e.emitAudit(ctx, auditEventScheduleDenied, false, target, err, nil)
		return SessionHandle{}, err
	}

	s, replaced := e.registry.Open(req.AnchorID, req.Seed.Clone(), settings)
	e.metricInc(MetricSessionOpened)
	target.sessionID = s.ID()

	if replaced != nil {
		e.metricInc(MetricSessionReplaced)
		e.logger.DebugContext(ctx, "session replaced",
			"anchor_id", req.AnchorID,
			"session_id", s.ID(),
			"replaced_session_id", replaced.ID(),
		)
		e.emitAudit(ctx, auditEventSessionReplaced, true, target, nil, func() map[string]string {
			return map[string]string{"replaced_session_id": replaced.ID()}
		})
	}
	e.emitAudit(ctx, auditEventSessionOpened, true, target, nil, func() map[string]string {
		return map[string]string{
			"similarity_threshold": strconv.FormatFloat(settings.SimilarityThreshold, 'f', -1, 64),
			"shield_enabled":       strconv.FormatBool(settings.PhysicsShieldEnabled),
			"seed_size":            strconv.Itoa(len(req.Seed)),
		}
	})

	return SessionHandle{
		AnchorID:  s.AnchorID(),
		SessionID: s.ID(),
		Settings:  s.Settings(),
		CreatedAt: s.CreatedAt(),
		ExpiresAt: s.ExpiresAt(),
		Replaced:  replaced != nil,
	}, nil
}

func (e *Engine) checkSchedule(ctx context.Context, anchorID string) error {
	if e.schedule == nil {
		return nil
	}
	allowed, err := e.schedule.AllowSession(ctx, anchorID, e.now())
	if err != nil {
		e.logger.WarnContext(ctx, "schedule gate failed", "anchor_id", anchorID, "error", err)
		return fmt.Errorf("%w: %v", ErrScheduleDenied, err)
	}
	if !allowed {
		return ErrScheduleDenied
	}
	return nil
}

// CloseSession discards the anchor's session without producing verdicts.
// Closing an anchor that has no session is not an error.
func (e *Engine) CloseSession(ctx context.Context, anchorID string) error {
	if e == nil || e.registry == nil {
		return ErrEngineNotReady
	}
	if anchorID == "" {
		return ErrInvalidAnchorID
	}

	s, ok := e.registry.Close(anchorID)
	if !ok {
		return nil
	}
	e.metricInc(MetricSessionClosed)
	e.emitAudit(ctx, auditEventSessionClosed, true, auditTarget{anchorID: anchorID, sessionID: s.ID()}, nil, nil)
	return nil
}

// DiscoverSession finds the session whose seed best matches the candidate
// fingerprint. Only sessions whose own threshold is met are considered;
// sessions with a non-positive threshold use Discovery.FallbackThreshold. On
// an exact score tie the lexically smallest anchor id wins.
func (e *Engine) DiscoverSession(ctx context.Context, req DiscoverRequest) (DiscoverResult, error) {
	if e == nil || e.registry == nil {
		return DiscoverResult{}, ErrEngineNotReady
	}
	if len(req.Fingerprint) == 0 {
		return DiscoverResult{}, fmt.Errorf("%w: fingerprint is empty", ErrInvalidFingerprint)
	}
	if err := req.Fingerprint.Validate(); err != nil {
		return DiscoverResult{}, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}

	match, err := e.registry.Discover(req.Fingerprint, e.config.Discovery.FallbackThreshold)
	if err != nil {
		e.metricInc(MetricDiscoverMiss)
		return DiscoverResult{}, mapRegistryError(err)
	}
	e.metricInc(MetricDiscoverHit)

	return DiscoverResult{
		AnchorID:  match.Session.AnchorID(),
		SessionID: match.Session.ID(),
		Score:     match.Score,
	}, nil
}

// DescribeSession reports the current state of the anchor's session.
func (e *Engine) DescribeSession(ctx context.Context, anchorID string) (SessionInfo, error) {
	if e == nil || e.registry == nil {
		return SessionInfo{}, ErrEngineNotReady
	}
	s, err := e.lookup(anchorID)
	if err != nil {
		return SessionInfo{}, err
	}
	now := e.now()
	return sessionInfo(s.Info(now), now), nil
}

// ActiveSessions returns the number of sessions held, including expired
// sessions not yet swept.
func (e *Engine) ActiveSessions() int {
	if e == nil || e.registry == nil {
		return 0
	}
	return e.registry.Len()
}

// SweepExpired discards every session past Session.MaxLifetime and returns
// their anchor ids in ascending order. Expired sessions are also dropped
// lazily when addressed, so calling this is only needed to reclaim memory.
func (e *Engine) SweepExpired(ctx context.Context) []string {
	if e == nil || e.registry == nil {
		return nil
	}

	reaped := e.registry.Sweep()
	if len(reaped) == 0 {
		return nil
	}

	anchors := make([]string, 0, len(reaped))
	for _, s := range reaped {
		anchors = append(anchors, s.AnchorID())
		e.emitAudit(ctx, auditEventSessionExpired, true, auditTarget{anchorID: s.AnchorID(), sessionID: s.ID()}, nil, nil)
	}
	e.metricAdd(MetricSessionExpired, len(reaped))
	e.logger.InfoContext(ctx, "expired sessions swept", "count", len(reaped))
	return anchors
}
