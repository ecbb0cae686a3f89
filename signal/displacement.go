package signal

import "math"

const (
	// AttenuationThreshold is the per-source gap (in dB) above which a shared
	// source counts as an obstruction hit.
	AttenuationThreshold = 22.0
	// ObstructionHits is the number of hits at which the pair is considered
	// separated by a wall.
	ObstructionHits = 2
	// MinCommonDimensions is the smallest shared-source count that yields a
	// usable displacement estimate.
	MinCommonDimensions = 2
	// MaxDisplacement is the sentinel displacement reported when no estimate can
	// be made. It is finite so it survives JSON and binary encoding.
	MaxDisplacement = 9999.0
)

// Shield reasons.
const (
	ReasonBypassed             = "bypassed"
	ReasonOK                   = "ok"
	ReasonInsufficientOverlap  = "insufficient overlap"
	ReasonDisplacementExceeded = "displacement exceeded"
	ReasonWallObstruction      = "wall obstruction"
	ReasonComputationFault     = "computation fault"
)

// ShieldResult is the outcome of [Evaluate].
type ShieldResult struct {
	Valid            bool    `json:"valid"`
	Displacement     float64 `json:"displacement"`
	Obstructed       bool    `json:"obstructed"`
	CommonDimensions int     `json:"common_dimensions"`
	ObstructionHits  int     `json:"obstruction_hits"`
	Reason           string  `json:"reason"`
}

// Evaluate estimates the signal-space separation between a and b.
//
// Only sources present in both fingerprints contribute. Displacement is the
// root-mean-square gap over those shared sources; a gap larger than
// [AttenuationThreshold] is an obstruction hit. The pair is valid when the
// displacement stays within s.MaxDisplacementRadius and fewer than
// [ObstructionHits] hits were seen. Evaluate never panics: malformed input
// yields Valid=false with [MaxDisplacement] and [ReasonComputationFault].
func Evaluate(a, b Fingerprint, s Settings) (res ShieldResult) {
	if !s.PhysicsShieldEnabled {
		return ShieldResult{Valid: true, Displacement: 0, Reason: ReasonBypassed}
	}
	defer func() {
		if recover() != nil {
			res = faultResult()
		}
	}()

	if math.IsNaN(s.MaxDisplacementRadius) {
		return faultResult()
	}

	var sumSq float64
	common := 0
	hits := 0
	for _, k := range a.Keys() {
		rb, ok := b[k]
		if !ok {
			continue
		}
		ra := a[k]
		if math.IsNaN(ra) || math.IsInf(ra, 0) || math.IsNaN(rb) || math.IsInf(rb, 0) {
			return faultResult()
		}
		gap := ra - rb
		sumSq += gap * gap
		common++
		if math.Abs(gap) > AttenuationThreshold {
			hits++
		}
	}

	if common < MinCommonDimensions {
		return ShieldResult{
			Valid:            false,
			Displacement:     MaxDisplacement,
			CommonDimensions: common,
			ObstructionHits:  hits,
			Reason:           ReasonInsufficientOverlap,
		}
	}

	displacement := math.Sqrt(sumSq / float64(common))
	if math.IsNaN(displacement) || math.IsInf(displacement, 0) {
		return faultResult()
	}

	res = ShieldResult{
		Displacement:     displacement,
		Obstructed:       hits >= ObstructionHits,
		CommonDimensions: common,
		ObstructionHits:  hits,
	}
	switch {
	case res.Obstructed:
		res.Reason = ReasonWallObstruction
	case displacement > s.MaxDisplacementRadius:
		res.Reason = ReasonDisplacementExceeded
	default:
		res.Valid = true
		res.Reason = ReasonOK
	}
	return res
}

func faultResult() ShieldResult {
	return ShieldResult{
		Valid:        false,
		Displacement: MaxDisplacement,
		Reason:       ReasonComputationFault,
	}
}
