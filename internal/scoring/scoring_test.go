package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

func TestScoreFreshTaskItem(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	score := Score(types.ItemTask, now, now, 0)
	// 0.4*1.0 + 0.4*1.0 + 0.2*0 = 0.80
	if math.Abs(score-0.80) > 1e-9 {
		t.Fatalf("got score %v, want ~0.80", score)
	}
	if Tier(score, DefaultThresholds()) != types.TierHot {
		t.Fatalf("expected HOT tier at score %v", score)
	}
}

func TestScoreWeekOldTaskItem(t *testing.T) {
	now := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -7)
	score := Score(types.ItemTask, created, now, 0)
	// age_decay = e^(-3.5) ~= 0.0302 => score ~= 0.4 + 0.4*0.0302 ~= 0.4121
	if score < 0.40 || score > 0.42 {
		t.Fatalf("got score %v, want ~0.412", score)
	}
	if Tier(score, DefaultThresholds()) != types.TierWarm {
		t.Fatalf("expected WARM tier at score %v", score)
	}
}

func TestScoreClampedToUnitInterval(t *testing.T) {
	now := time.Now()
	score := Score(types.ItemTask, now, now, 1_000_000)
	if score < 0 || score > 1 {
		t.Fatalf("score %v out of [0,1]", score)
	}
}

func TestTierBoundaries(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		score float64
		want  types.Tier
	}{
		{0.9, types.TierHot},
		{0.8, types.TierHot},
		{0.79, types.TierWarm},
		{0.4, types.TierWarm},
		{0.39, types.TierCold},
		{0, types.TierCold},
	}
	for _, c := range cases {
		if got := Tier(c.score, th); got != c.want {
			t.Errorf("Tier(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}
