package goPresence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MrEthical07/goPresence/internal/decision"
	"github.com/MrEthical07/goPresence/internal/registry"
	"github.com/MrEthical07/goPresence/verdict"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FinalizeSession fuses the session's evidence into one verdict per enrolled
// participant, hands the batch to the verdict sink and tears the session down.
//
// From the moment finalization begins the session rejects evidence, proofs and
// window triggers with ErrSessionFinalizing. If the sink fails the session is
// reopened for writes and the call returns ErrPersistFailed so it can be
// retried. Participants whose evaluation faults are recorded ABSENT with the
// evaluation-fault flag and listed in FinalizeResult.Faults; they never abort
// the batch.
func (e *Engine) FinalizeSession(ctx context.Context, req FinalizeRequest) (res FinalizeResult, err error) {
	if e == nil || e.registry == nil {
		return FinalizeResult{}, ErrEngineNotReady
	}

	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "goPresence.FinalizeSession",
		trace.WithAttributes(attribute.String("presence.anchor_id", req.AnchorID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s, err := e.lookup(req.AnchorID)
	if err != nil {
		return FinalizeResult{}, err
	}
	target := auditTarget{anchorID: req.AnchorID, sessionID: s.ID()}
	span.SetAttributes(attribute.String("presence.session_id", s.ID()))

	enrolled, err := e.resolveEnrollment(ctx, req)
	if err != nil {
		e.finalizeFailed(ctx, target, err)
		return FinalizeResult{}, err
	}

	snap, err := s.BeginFinalize()
	if err != nil {
		err = mapRegistryError(err)
		e.finalizeFailed(ctx, target, err)
		return FinalizeResult{}, err
	}
	if enrolled == nil {
		enrolled = evidenceParticipants(snap)
	}

	result := decision.Evaluate(snap, enrolled, e.policy)

	finalizedAt := e.now().UTC()
	batchID, err := verdict.NewBatchID(finalizedAt)
	if err != nil {
		s.AbortFinalize()
		err = fmt.Errorf("batch id: %w", err)
		e.finalizeFailed(ctx, target, err)
		return FinalizeResult{}, err
	}
	batch := verdict.Batch{
		ID:          batchID,
		AnchorID:    snap.AnchorID,
		SessionID:   snap.SessionID,
		FinalizedAt: finalizedAt,
		Settings:    snap.Settings,
		Records:     result.Records,
	}

	if e.sink != nil {
		if perr := e.persist(ctx, &batch); perr != nil {
			s.AbortFinalize()
			err = fmt.Errorf("%w: %v", ErrPersistFailed, perr)
			e.logger.ErrorContext(ctx, "verdict persistence failed",
				"anchor_id", req.AnchorID,
				"session_id", s.ID(),
				"batch_id", batch.ID,
				"error", perr,
			)
			e.finalizeFailed(ctx, target, err)
			return FinalizeResult{}, err
		}
	}

	e.registry.Release(s)

	counts := batch.Counts()
	e.metricInc(MetricFinalizeSuccess)
	e.metricAdd(MetricVerdictPresent, counts[verdict.StatusPresent])
	e.metricAdd(MetricVerdictPartial, counts[verdict.StatusPartial])
	e.metricAdd(MetricVerdictAbsent, counts[verdict.StatusAbsent])
	e.metricAdd(MetricClusterFlagged, len(result.Clusters))
	e.metricAdd(MetricEvaluationFault, len(result.Faults))
	e.metricObserve(MetricFinalizeLatency, time.Since(started))

	for _, id := range result.Faults {
		e.logger.ErrorContext(ctx, "participant evaluation fault",
			"anchor_id", req.AnchorID,
			"session_id", s.ID(),
			"participant_id", id,
		)
	}

	span.SetAttributes(
		attribute.String("presence.batch_id", batch.ID),
		attribute.Int("presence.participants", len(batch.Records)),
		attribute.Int("presence.present", counts[verdict.StatusPresent]),
		attribute.Int("presence.partial", counts[verdict.StatusPartial]),
		attribute.Int("presence.absent", counts[verdict.StatusAbsent]),
	)
	e.emitAudit(ctx, auditEventSessionFinalized, true, target, nil, func() map[string]string {
		return map[string]string{
			"batch_id":  batch.ID,
			"present":   strconv.Itoa(counts[verdict.StatusPresent]),
			"partial":   strconv.Itoa(counts[verdict.StatusPartial]),
			"absent":    strconv.Itoa(counts[verdict.StatusAbsent]),
			"clustered": strconv.Itoa(len(result.Clusters)),
			"faults":    strconv.Itoa(len(result.Faults)),
			"persisted": strconv.FormatBool(e.sink != nil),
		}
	})

	return FinalizeResult{
		Batch:     batch,
		Persisted: e.sink != nil,
		Faults:    result.Faults,
	}, nil
}

func (e *Engine) finalizeFailed(ctx context.Context, target auditTarget, err error) {
	e.metricInc(MetricFinalizeFailure)
	e.emitAudit(ctx, auditEventFinalizeFailure, false, target, err, nil)
}

// resolveEnrollment returns the roster to evaluate. A nil result means "every
// participant with evidence".
func (e *Engine) resolveEnrollment(ctx context.Context, req FinalizeRequest) ([]string, error) {
	if len(req.Participants) > 0 {
		for _, id := range req.Participants {
			if id == "" {
				return nil, ErrInvalidParticipantID
			}
		}
		return req.Participants, nil
	}
	if e.enrollment == nil {
		return nil, nil
	}

	ids, err := e.enrollment.EnrolledParticipants(ctx, req.AnchorID)
	if err != nil {
		e.logger.WarnContext(ctx, "enrollment provider failed", "anchor_id", req.AnchorID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (e *Engine) persist(ctx context.Context, batch *verdict.Batch) error {
	if e.config.Verdict.PersistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Verdict.PersistTimeout)
		defer cancel()
	}
	return e.sink.SaveVerdicts(ctx, batch)
}

func evidenceParticipants(snap registry.Snapshot) []string {
	ids := make([]string, 0, len(snap.Evidence))
	for id := range snap.Evidence {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
