package core

import (
	"math"
	"testing"
	"time"
)

func TestNewValidatorDefaults(t *testing.T) {
	now := time.Now()
	v := NewValidator("alice", 100, now)
	if !v.IsActive {
		t.Fatal("new validator should be active")
	}
	if v.ReliabilityScore != 100 || v.ReputationScore != 100 || v.AveragePeerRating != 100 {
		t.Fatalf("expected starting scores of 100, got reliability=%v reputation=%v avgpeer=%v",
			v.ReliabilityScore, v.ReputationScore, v.AveragePeerRating)
	}
	if v.CurrentPenaltyMultiplier != 1.0 || v.DynamicWeightAdjustment != 1.0 {
		t.Fatalf("expected multiplier/weight of 1.0, got %v / %v", v.CurrentPenaltyMultiplier, v.DynamicWeightAdjustment)
	}
}

func TestScoreIsCachedForFiveSeconds(t *testing.T) {
	now := time.Now()
	v := NewValidator("alice", 100, now)
	first := v.Score(now)

	v.mu.Lock()
	v.Stake = 100000 // mutate the underlying input directly, bypassing cache invalidation
	v.mu.Unlock()

	cached := v.Score(now.Add(1 * time.Second))
	if cached != first {
		t.Fatalf("expected cached score %v within cache window, got %v", first, cached)
	}

	recomputed := v.Score(now.Add(PoCSCacheSeconds + time.Second))
	if recomputed == first {
		t.Fatal("expected score to recompute once the cache window has elapsed")
	}
}

func TestScoreTemporalDecayReducesStakeComponent(t *testing.T) {
	now := time.Now()
	v := NewValidator("alice", 1000, now)
	fresh := v.Score(now)

	v2 := NewValidator("alice", 1000, now.Add(-60*24*time.Hour))
	v2.LastActivity = now.Add(-60 * 24 * time.Hour)
	stale := v2.Score(now)

	if stale >= fresh {
		t.Fatalf("expected decayed score (%v) to be lower than fresh score (%v)", stale, fresh)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	now := time.Now()
	v := NewValidator("alice", 0, now)
	v.ReliabilityScore = 0
	v.ReputationScore = 0
	v.ContributionScore = -1000
	if s := v.Score(now); s < 0 {
		t.Fatalf("score should be floored at 0, got %v", s)
	}
}

func TestUpdateContributionScoreEWMA(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	v.UpdateContributionScore(10, "event")
	want := 0.9*0 + 0.1*10
	if math.Abs(v.ContributionScore-want) > 1e-9 {
		t.Fatalf("ContributionScore = %v, want %v", v.ContributionScore, want)
	}
	if len(v.ContributionHistory) != 1 {
		t.Fatalf("expected 1 contribution history entry, got %d", len(v.ContributionHistory))
	}
}

func TestUpdateReliabilityScoreClamped(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	v.ReliabilityScore = 100
	v.UpdateReliabilityScore(true, 0)
	if v.ReliabilityScore != 100 {
		t.Fatalf("expected reliability clamped at 100, got %v", v.ReliabilityScore)
	}
	v.ReliabilityScore = 2
	v.UpdateReliabilityScore(false, 0)
	if v.ReliabilityScore != 0 {
		t.Fatalf("expected reliability clamped at 0, got %v", v.ReliabilityScore)
	}
}

func TestRatePeerRejectsOutOfRange(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	if err := v.RatePeer("bob", 0, "bad"); err == nil {
		t.Fatal("expected error rating below 1")
	}
	if err := v.RatePeer("bob", 101, "bad"); err == nil {
		t.Fatal("expected error rating above 100")
	}
}

func TestRatePeerOverwritesAndAverages(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	if err := v.RatePeer("bob", 80, "first"); err != nil {
		t.Fatalf("RatePeer: %v", err)
	}
	if err := v.RatePeer("carol", 60, "first"); err != nil {
		t.Fatalf("RatePeer: %v", err)
	}
	if v.AveragePeerRating != 70 {
		t.Fatalf("expected average 70, got %v", v.AveragePeerRating)
	}

	if err := v.RatePeer("bob", 100, "revised"); err != nil {
		t.Fatalf("RatePeer: %v", err)
	}
	if v.AveragePeerRating != 80 {
		t.Fatalf("expected average 80 after bob's rating was overwritten, got %v", v.AveragePeerRating)
	}
}

func TestApplyPenaltyNeverIncreasesScores(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	beforeRep := v.ReputationScore
	beforeRel := v.ReliabilityScore

	v.ApplyPenalty("double_sign", 10, "equivocation")

	if v.ReputationScore > beforeRep {
		t.Fatalf("reputation increased after penalty: %v -> %v", beforeRep, v.ReputationScore)
	}
	if v.ReliabilityScore > beforeRel {
		t.Fatalf("reliability increased after penalty: %v -> %v", beforeRel, v.ReliabilityScore)
	}
	if v.RehabilitationProgress != 0 {
		t.Fatalf("expected rehabilitation progress reset to 0, got %v", v.RehabilitationProgress)
	}
}

func TestApplyPenaltyMultiplierEscalatesAndCaps(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	for i := 0; i < 20; i++ {
		v.ApplyPenalty("missed_block", 1, "offline")
	}
	if v.CurrentPenaltyMultiplier != MaxPenaltyMultiplier {
		t.Fatalf("expected multiplier capped at %v, got %v", MaxPenaltyMultiplier, v.CurrentPenaltyMultiplier)
	}
}

func TestUpdateRehabilitationProgressShrinksMultiplierAt100(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	v.ApplyPenalty("missed_block", 2, "offline")
	multiplierAfterPenalty := v.CurrentPenaltyMultiplier

	v.UpdateRehabilitationProgress(100)
	if v.RehabilitationProgress != 0 {
		t.Fatalf("expected progress reset to 0 at 100, got %v", v.RehabilitationProgress)
	}
	wantMultiplier := math.Max(1.0, multiplierAfterPenalty*0.8)
	if math.Abs(v.CurrentPenaltyMultiplier-wantMultiplier) > 1e-9 {
		t.Fatalf("multiplier = %v, want %v", v.CurrentPenaltyMultiplier, wantMultiplier)
	}
}

func TestEarnContributionCreditsAndConvertToStake(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	v.EarnContributionCredits("code_contribution", 50, "patch")
	if v.ContributionCredits != 50 {
		t.Fatalf("expected 50 credits, got %v", v.ContributionCredits)
	}
	if len(v.ContributionActivities) != 1 {
		t.Fatalf("expected 1 contribution activity, got %d", len(v.ContributionActivities))
	}

	used := v.ConvertCreditsToStake(30)
	if used != 30 {
		t.Fatalf("expected 30 credits converted, got %v", used)
	}
	if v.ContributionCredits != 20 {
		t.Fatalf("expected 20 credits remaining, got %v", v.ContributionCredits)
	}
	if v.Stake != 10+3 {
		t.Fatalf("expected stake 13, got %v", v.Stake)
	}
}

func TestConvertCreditsToStakeClampsToAvailable(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	v.EarnContributionCredits("bug_report", 5, "found one")
	used := v.ConvertCreditsToStake(100)
	if used != 5 {
		t.Fatalf("expected conversion clamped to available 5 credits, got %v", used)
	}
}

func TestAdjustDynamicWeight(t *testing.T) {
	v := NewValidator("alice", 10, time.Now())
	v.AdjustDynamicWeight("high_load", 1.2)
	if v.DynamicWeightAdjustment != 1.2 {
		t.Fatalf("expected weight 1.2, got %v", v.DynamicWeightAdjustment)
	}
	v.AdjustDynamicWeight("high_load", 2.0)
	if v.DynamicWeightAdjustment != 1.5 {
		t.Fatalf("expected weight capped at 1.5, got %v", v.DynamicWeightAdjustment)
	}
	v.AdjustDynamicWeight("normal", 1.0)
	if v.DynamicWeightAdjustment != 1.0 {
		t.Fatalf("expected weight reset to 1.0 under normal conditions, got %v", v.DynamicWeightAdjustment)
	}
}
