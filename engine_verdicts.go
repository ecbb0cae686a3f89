package goPresence

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goPresence/verdict"
)

func (e *Engine) verdictStore() (VerdictStore, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	store, ok := e.sink.(VerdictStore)
	if !ok {
		return nil, ErrVerdictStoreUnavailable
	}
	return store, nil
}

// Verdicts loads a stored batch. It requires a sink that implements [VerdictStore].
func (e *Engine) Verdicts(ctx context.Context, batchID string) (*verdict.Batch, error) {
	store, err := e.verdictStore()
	if err != nil {
		return nil, err
	}
	b, err := store.Get(ctx, batchID)
	if err != nil {
		return nil, mapVerdictError(err)
	}
	return b, nil
}

// ListVerdicts returns the ids of the anchor's stored batches, newest first.
// A non-positive limit returns all of them.
func (e *Engine) ListVerdicts(ctx context.Context, anchorID string, limit int) ([]string, error) {
	if anchorID == "" {
		return nil, ErrInvalidAnchorID
	}
	store, err := e.verdictStore()
	if err != nil {
		return nil, err
	}
	ids, err := store.ListByAnchor(ctx, anchorID, limit)
	if err != nil {
		return nil, mapVerdictError(err)
	}
	return ids, nil
}

// OverrideVerdict records a reviewer decision next to a stored verdict. The
// engine's own status, score and flags are left as they were decided.
func (e *Engine) OverrideVerdict(ctx context.Context, req OverrideRequest) error {
	store, err := e.verdictStore()
	if err != nil {
		return err
	}
	if req.BatchID == "" {
		return fmt.Errorf("%w: batch id required", ErrInput)
	}
	if req.ParticipantID == "" {
		return ErrInvalidParticipantID
	}

	err = store.Override(ctx, req.BatchID, req.ParticipantID, verdict.Override{
		Status:    req.Status,
		Reviewer:  req.Reviewer,
		Note:      req.Note,
		UpdatedAt: e.now(),
	})
	err = mapVerdictError(err)

	e.emitAudit(ctx, auditEventVerdictOverridden, err == nil, auditTarget{participantID: req.ParticipantID}, err, func() map[string]string {
		return map[string]string{
			"batch_id": req.BatchID,
			"status":   string(req.Status),
			"reviewer": req.Reviewer,
		}
	})
	return err
}

func mapVerdictError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, verdict.ErrBatchNotFound),
		errors.Is(err, verdict.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", ErrVerdictNotFound, err)
	case errors.Is(err, verdict.ErrInvalidOverride):
		return ErrInvalidOverride
	case errors.Is(err, verdict.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrVerdictStoreUnavailable, err)
	default:
		return err
	}
}
