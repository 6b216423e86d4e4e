package service

import (
	"math"
	"sort"
	"time"

	"github.com/Harshitk-cp/credence/internal/domain"
)

const (
	// DefaultDecayK is the rate constant of the exponential decay curve
	// confidence * exp(-k * decay * ageDays).
	DefaultDecayK = 0.1
)

// DecayFactor returns the multiplier applied to stored confidence after the
// given age. It is 1 at age zero and strictly decreasing while decay and k
// are both positive.
func DecayFactor(k float64, decay float32, age time.Duration) float64 {
	if age <= 0 || decay == 0 || k == 0 {
		return 1
	}
	days := age.Hours() / 24
	return math.Exp(-k * float64(decay) * days)
}

// rankByEffectiveConfidence orders candidates by decayed confidence, best
// first. Decay affects ranking only; no candidate is dropped.
func rankByEffectiveConfidence(candidates []domain.PropositionWithScore, at time.Time, k float64) []domain.PropositionWithScore {
	ranked := append([]domain.PropositionWithScore(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].EffectiveConfidence(at, k) > ranked[j].EffectiveConfidence(at, k)
	})
	return ranked
}
