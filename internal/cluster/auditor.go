// Package cluster finds participants whose evidence is statistically
// indistinguishable: near-identical fingerprints from devices that never move,
// the signature of one person operating several devices.
package cluster

import (
	"math"
	"sort"

	"github.com/MrEthical07/goPresence/signal"
)

const (
	// DefaultNearIdentical is the similarity score a pair must exceed.
	DefaultNearIdentical = 98.0
	// DefaultStaticMotion is the mean motion magnitude both devices must stay below.
	DefaultStaticMotion = 0.01
)

// Config tunes the auditor. Zero fields fall back to the defaults.
type Config struct {
	NearIdentical float64
	StaticMotion  float64
}

// Evidence is the per-participant input to [Audit].
type Evidence struct {
	Latest signal.Fingerprint
	Motion []float64
}

// MeanMotion returns the mean absolute motion sample. ok is false when there
// are no samples, which means "no motion evidence" rather than "no motion".
func MeanMotion(samples []float64) (mean float64, ok bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		sum += math.Abs(v)
	}
	return sum / float64(len(samples)), true
}

// Audit compares every unordered pair of participants and returns, for each
// implicated participant, the sorted ids of the peers it was paired with.
//
// A pair is implicated only when their latest fingerprints score above
// NearIdentical and both participants have motion evidence whose mean is below
// StaticMotion. Participants without a fingerprint or without motion samples are
// never implicated. The cost is quadratic in len(evidence).
func Audit(evidence map[string]Evidence, cfg Config) map[string][]string {
	if cfg.NearIdentical <= 0 {
		cfg.NearIdentical = DefaultNearIdentical
	}
	if cfg.StaticMotion <= 0 {
		cfg.StaticMotion = DefaultStaticMotion
	}

	ids := make([]string, 0, len(evidence))
	static := make(map[string]bool, len(evidence))
	for id, ev := range evidence {
		if len(ev.Latest) == 0 {
			continue
		}
		mean, ok := MeanMotion(ev.Motion)
		if !ok || mean >= cfg.StaticMotion {
			continue
		}
		static[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string][]string)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			if signal.Similarity(evidence[a].Latest, evidence[b].Latest) <= cfg.NearIdentical {
				continue
			}
			out[a] = append(out[a], b)
			out[b] = append(out[b], a)
		}
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out
}
