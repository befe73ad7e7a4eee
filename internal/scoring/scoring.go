// Package scoring computes the importance score and memory tier for a
// ContextItem (spec §4.2). It is a pure function package: no I/O, no
// dependency on Store, deterministic given its inputs.
package scoring

import (
	"math"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// typeWeights is the fixed per-item-type contribution to score.
var typeWeights = map[types.ContextItemType]float64{
	types.ItemTask:       1.0,
	types.ItemCode:       0.8,
	types.ItemError:      0.7,
	types.ItemTestResult: 0.6,
	types.ItemPRDSection: 0.5,
}

// Thresholds are the tier boundaries, configuration-exposed per spec §4.2.
type Thresholds struct {
	Hot  float64 // default 0.8
	Warm float64 // default 0.4
}

// DefaultThresholds returns the spec's default HOT/WARM boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Hot: 0.8, Warm: 0.4}
}

// Score computes importance via score = 0.4*type_weight + 0.4*age_decay +
// 0.2*access_boost, clamped to [0,1].
func Score(itemType types.ContextItemType, createdAt, now time.Time, accessCount int) float64 {
	weight := typeWeights[itemType]
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	ageDecay := math.Exp(-0.5 * ageDays)
	accessBoost := math.Min(1.0, math.Log(1+float64(accessCount))/10)

	score := 0.4*weight + 0.4*ageDecay + 0.2*accessBoost
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Tier maps a score to HOT/WARM/COLD using th.
func Tier(score float64, th Thresholds) types.Tier {
	switch {
	case score >= th.Hot:
		return types.TierHot
	case score >= th.Warm:
		return types.TierWarm
	default:
		return types.TierCold
	}
}

// ScoreAndTier computes both in one call, the form ContextManager.Save
// and RecomputeTiers actually use.
func ScoreAndTier(itemType types.ContextItemType, createdAt, now time.Time, accessCount int, th Thresholds) (float64, types.Tier) {
	score := Score(itemType, createdAt, now, accessCount)
	return score, Tier(score, th)
}
