package signal

import (
	"errors"
	"math"
	"sort"
)

// Fingerprint maps an access-point identifier to a received signal strength
// (nominally -100..0 dBm). Vectors are compared only over their key union or
// intersection; a missing key means the source was not heard.
type Fingerprint map[string]float64

// ErrEmptyKey is returned by Validate when a reading has no source identifier.
var ErrEmptyKey = errors.New("fingerprint contains empty access point id")

// ErrNonFinite is returned by Validate when a reading is NaN or infinite.
var ErrNonFinite = errors.New("fingerprint contains non-finite reading")

// Settings are the per-session calibration values. They are fixed for the
// lifetime of a session.
type Settings struct {
	SimilarityThreshold   float64 `json:"similarity_threshold"`
	MaxDisplacementRadius float64 `json:"max_displacement_radius"`
	PhysicsShieldEnabled  bool    `json:"physics_shield_enabled"`
}

// Validate reports whether f can be fed to the math functions without being
// treated as a computation fault.
func (f Fingerprint) Validate() error {
	for k, v := range f {
		if k == "" {
			return ErrEmptyKey
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// Keys returns the access-point identifiers in ascending order.
func (f Fingerprint) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy. A nil fingerprint clones to nil.
func (f Fingerprint) Clone() Fingerprint {
	if f == nil {
		return nil
	}
	out := make(Fingerprint, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Overlap returns the Jaccard ratio of the two key sets: shared keys over the
// key union. Two empty fingerprints overlap by 0.
func Overlap(a, b Fingerprint) float64 {
	union := len(a)
	shared := 0
	for k := range b {
		if _, ok := a[k]; ok {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
