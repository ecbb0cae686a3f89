// Package decision fuses similarity, displacement, liveness and cluster evidence
// into one verdict per enrolled participant.
package decision

import (
	"fmt"
	"strings"

	"github.com/MrEthical07/goPresence/internal/cluster"
	"github.com/MrEthical07/goPresence/internal/registry"
	"github.com/MrEthical07/goPresence/signal"
	"github.com/MrEthical07/goPresence/verdict"
)

// DefaultOverlapMinRatio is the key-set overlap below which a participant is
// flagged as being in a different radio environment.
const DefaultOverlapMinRatio = 0.3

// Policy holds the tunable constants of the fusion step.
type Policy struct {
	OverlapMinRatio float64
	Cluster         cluster.Config
}

// Result is the outcome of one finalization pass.
type Result struct {
	Records []verdict.Record
	// Clusters maps each implicated participant to its peers.
	Clusters map[string][]string
	// Faults lists participants whose evaluation panicked and was contained.
	Faults []string
}

// Criteria are the inputs of the classification precedence.
type Criteria struct {
	Score         float64
	Threshold     float64
	Live          bool
	ShieldEnabled bool
	ShieldValid   bool
	Clustered     bool
}

// Classify applies the fixed precedence:
//
//  1. score >= T, live, shield off or valid, not clustered -> PRESENT
//  2. score >= T, live, shield on and invalid              -> ABSENT
//  3. score >= T, live, clustered                          -> PARTIAL
//  4. score > T/2                                          -> PARTIAL
//  5. otherwise                                            -> ABSENT
func Classify(c Criteria) verdict.Status {
	strong := c.Score >= c.Threshold && c.Live
	shieldOK := !c.ShieldEnabled || c.ShieldValid
	switch {
	case strong && shieldOK && !c.Clustered:
		return verdict.StatusPresent
	case strong && c.ShieldEnabled && !c.ShieldValid:
		return verdict.StatusAbsent
	case strong && c.Clustered:
		return verdict.StatusPartial
	case c.Score > c.Threshold/2:
		return verdict.StatusPartial
	default:
		return verdict.StatusAbsent
	}
}

// Test seams.
var (
	similarity     = signal.Similarity
	evaluateShield = signal.Evaluate
)

// Evaluate produces one record per enrolled participant, in enrollment order
// with duplicates removed. The cluster audit runs once over all evidence in the
// snapshot, enrolled or not. A panic while evaluating one participant yields an
// ABSENT record flagged evaluation-fault and does not affect the others.
func Evaluate(snap registry.Snapshot, enrolled []string, p Policy) Result {
	if p.OverlapMinRatio <= 0 {
		p.OverlapMinRatio = DefaultOverlapMinRatio
	}

	auditInput := make(map[string]cluster.Evidence, len(snap.Evidence))
	for id, rec := range snap.Evidence {
		auditInput[id] = cluster.Evidence{Latest: rec.Latest(), Motion: rec.Motion}
	}
	clusters := cluster.Audit(auditInput, p.Cluster)

	res := Result{
		Records:  make([]verdict.Record, 0, len(enrolled)),
		Clusters: clusters,
	}
	seen := make(map[string]struct{}, len(enrolled))
	for _, id := range enrolled {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		rec, ok := snap.Evidence[id]
		var evidence *registry.EvidenceRecord
		if ok {
			evidence = &rec
		}
		out, faulted := evaluateParticipant(id, evidence, snap, clusters[id], p)
		if faulted {
			res.Faults = append(res.Faults, id)
		}
		res.Records = append(res.Records, out)
	}
	return res
}

func evaluateParticipant(
	id string,
	rec *registry.EvidenceRecord,
	snap registry.Snapshot,
	peers []string,
	p Policy,
) (out verdict.Record, faulted bool) {
	defer func() {
		if r := recover(); r != nil {
			out = verdict.Record{
				ParticipantID:     id,
				Displacement:      signal.MaxDisplacement,
				LivenessConfirmed: rec != nil && rec.LivenessConfirmed,
				Flags:             []string{verdict.FlagEvaluationFault},
				Status:            verdict.StatusAbsent,
				Reason:            fmt.Sprintf("evaluation fault: %v", r),
			}
			faulted = true
		}
	}()

	if rec == nil {
		return verdict.Record{
			ParticipantID: id,
			Flags:         []string{verdict.FlagNoEvidence},
			Status:        verdict.StatusAbsent,
			Reason:        "no evidence submitted",
		}, false
	}

	latest := rec.Latest()
	score := similarity(latest, snap.Seed)
	shield := evaluateShield(latest, snap.Seed, snap.Settings)
	overlap := signal.Overlap(latest, snap.Seed)

	var flags []string
	if overlap < p.OverlapMinRatio {
		flags = append(flags, verdict.FlagEnvironmentMismatch)
	}
	if len(peers) > 0 {
		flags = append(flags, verdict.FlagProxyCluster)
		for _, peer := range peers {
			flags = append(flags, verdict.FlagClusterPeerPrefix+peer)
		}
	}
	if snap.Settings.PhysicsShieldEnabled && !shield.Valid {
		flags = append(flags, verdict.FlagShieldRejected, shieldFlag(shield.Reason))
	}
	if !rec.LivenessConfirmed {
		flags = append(flags, verdict.FlagLivenessMissing)
	}
	if len(rec.Motion) == 0 {
		flags = append(flags, verdict.FlagNoMotionEvidence)
	}

	criteria := Criteria{
		Score:         score,
		Threshold:     snap.Settings.SimilarityThreshold,
		Live:          rec.LivenessConfirmed,
		ShieldEnabled: snap.Settings.PhysicsShieldEnabled,
		ShieldValid:   shield.Valid,
		Clustered:     len(peers) > 0,
	}
	status := Classify(criteria)
	if status == verdict.StatusPartial {
		flags = append(flags, verdict.FlagReviewRequired)
	}

	return verdict.Record{
		ParticipantID:     id,
		SimilarityScore:   score,
		Displacement:      shield.Displacement,
		CommonDimensions:  shield.CommonDimensions,
		OverlapRatio:      overlap,
		LivenessConfirmed: rec.LivenessConfirmed,
		Flags:             verdict.NormalizeFlags(flags),
		Status:            status,
		Reason:            reason(status, criteria, shield, peers),
	}, false
}

func shieldFlag(reason string) string {
	switch reason {
	case signal.ReasonDisplacementExceeded:
		return verdict.FlagDisplacementExceeded
	case signal.ReasonWallObstruction:
		return verdict.FlagWallObstruction
	case signal.ReasonInsufficientOverlap:
		return verdict.FlagInsufficientOverlap
	default:
		return verdict.FlagShieldFault
	}
}

func reason(status verdict.Status, c Criteria, shield signal.ShieldResult, peers []string) string {
	strong := c.Score >= c.Threshold && c.Live
	switch status {
	case verdict.StatusPresent:
		return "all checks passed"
	case verdict.StatusAbsent:
		if strong && c.ShieldEnabled && !c.ShieldValid {
			return "shield: " + shield.Reason
		}
		return fmt.Sprintf("similarity %.2f at or below half threshold %.2f", c.Score, c.Threshold)
	default:
		if strong && len(peers) > 0 {
			return "cluster with " + strings.Join(peers, ",")
		}
		if !c.Live {
			return "liveness not confirmed"
		}
		return fmt.Sprintf("similarity %.2f below threshold %.2f", c.Score, c.Threshold)
	}
}
