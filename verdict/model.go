package verdict

import (
	"crypto/rand"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/goPresence/signal"
	"github.com/oklog/ulid/v2"
)

// Status is the final classification of a participant.
type Status string

const (
	// StatusPresent means every check passed.
	StatusPresent Status = "PRESENT"
	// StatusPartial means the evidence needs human review.
	StatusPartial Status = "PARTIAL"
	// StatusAbsent means the participant was not shown to be co-located.
	StatusAbsent Status = "ABSENT"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusPartial, StatusAbsent:
		return true
	}
	return false
}

func (s Status) code() byte {
	switch s {
	case StatusPresent:
		return 1
	case StatusPartial:
		return 2
	case StatusAbsent:
		return 3
	}
	return 0
}

func statusFromCode(c byte) (Status, error) {
	switch c {
	case 1:
		return StatusPresent, nil
	case 2:
		return StatusPartial, nil
	case 3:
		return StatusAbsent, nil
	}
	return "", errors.New("invalid status code")
}

// Flags attached to records. Cluster peers are reported as FlagClusterPeerPrefix+peerID.
const (
	FlagNoEvidence           = "no-evidence"
	FlagEnvironmentMismatch  = "environment-mismatch"
	FlagProxyCluster         = "proxy-cluster"
	FlagClusterPeerPrefix    = "cluster-peer:"
	FlagShieldRejected       = "shield-rejected"
	FlagDisplacementExceeded = "displacement-exceeded"
	FlagWallObstruction      = "wall-obstruction"
	FlagInsufficientOverlap  = "insufficient-overlap"
	FlagShieldFault          = "shield-fault"
	FlagLivenessMissing      = "liveness-missing"
	FlagNoMotionEvidence     = "no-motion-evidence"
	FlagReviewRequired       = "review-required"
	FlagEvaluationFault      = "evaluation-fault"
)

// Record is the verdict for one enrolled participant. Flags is a sorted set.
type Record struct {
	ParticipantID     string    `json:"participant_id"`
	SimilarityScore   float64   `json:"similarity_score"`
	Displacement      float64   `json:"displacement"`
	CommonDimensions  int       `json:"common_dimensions"`
	OverlapRatio      float64   `json:"overlap_ratio"`
	LivenessConfirmed bool      `json:"liveness_confirmed"`
	Flags             []string  `json:"flags,omitempty"`
	Status            Status    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	Override          *Override `json:"override,omitempty"`
}

// HasFlag reports whether flag is set on r.
func (r Record) HasFlag(flag string) bool {
	i := sort.SearchStrings(r.Flags, flag)
	return i < len(r.Flags) && r.Flags[i] == flag
}

// EffectiveStatus returns the override status when a reviewer set one.
func (r Record) EffectiveStatus() Status {
	if r.Override != nil && r.Override.Status.Valid() {
		return r.Override.Status
	}
	return r.Status
}

// Override is a reviewer's decision recorded next to the engine's verdict.
type Override struct {
	Status    Status    `json:"status"`
	Reviewer  string    `json:"reviewer"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Batch is the complete output of one finalization.
type Batch struct {
	ID          string          `json:"id"`
	AnchorID    string          `json:"anchor_id"`
	SessionID   string          `json:"session_id"`
	FinalizedAt time.Time       `json:"finalized_at"`
	Settings    signal.Settings `json:"settings"`
	Records     []Record        `json:"records"`
}

// Record returns the record for participantID.
func (b *Batch) Record(participantID string) (*Record, bool) {
	for i := range b.Records {
		if b.Records[i].ParticipantID == participantID {
			return &b.Records[i], true
		}
	}
	return nil, false
}

// Counts tallies the engine statuses in the batch.
func (b *Batch) Counts() map[Status]int {
	out := make(map[Status]int, 3)
	for _, r := range b.Records {
		out[r.Status]++
	}
	return out
}

// NewBatchID returns a ULID string for a batch finalized at now. ULIDs sort by
// time, which keeps per-anchor history ordered.
func NewBatchID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NormalizeFlags sorts and de-duplicates flags in place and returns the result.
func NormalizeFlags(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	sort.Strings(flags)
	out := flags[:1]
	for _, f := range flags[1:] {
		if f != out[len(out)-1] {
			out = append(out, f)
		}
	}
	return out
}
