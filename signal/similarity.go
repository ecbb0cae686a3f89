package signal

import "math"

// ReadingOffset shifts raw readings so the weakest plausible reading (-100)
// becomes a zero weight and every weight stays non-negative.
const ReadingOffset = 100.0

// Similarity returns the cosine similarity of a and b scaled to [0,100].
//
// Readings are shifted by [ReadingOffset] and clamped at zero before the
// comparison; keys missing from one side weigh zero. The result is exactly 0 when
// either vector is empty, either norm is zero, the vectors share no keys, or any
// reading is non-finite. Keys are walked in sorted order so Similarity(a, b) and
// Similarity(b, a) are bit-identical and Similarity(a, a) is exactly 100.
func Similarity(a, b Fingerprint) (score float64) {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	defer func() {
		if recover() != nil {
			score = 0
		}
	}()

	aKeys := a.Keys()
	bKeys := b.Keys()

	var dot, normA, normB float64
	for _, k := range aKeys {
		wa, ok := weight(a[k])
		if !ok {
			return 0
		}
		normA += wa * wa
	}
	for _, k := range bKeys {
		wb, ok := weight(b[k])
		if !ok {
			return 0
		}
		normB += wb * wb
	}

	// Intersection in sorted key order: the summation sequence is the same for
	// both argument orders.
	for _, k := range aKeys {
		rb, ok := b[k]
		if !ok {
			continue
		}
		wa, _ := weight(a[k])
		wb, _ := weight(rb)
		dot += wa * wb
	}

	if normA == 0 || normB == 0 || dot == 0 {
		return 0
	}

	score = dot / math.Sqrt(normA*normB) * 100
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

func weight(reading float64) (float64, bool) {
	if math.IsNaN(reading) || math.IsInf(reading, 0) {
		return 0, false
	}
	w := reading + ReadingOffset
	if w < 0 {
		return 0, true
	}
	return w, true
}
