package core

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Validator-wide process constants.
const (
	MinimumStake           = 10
	MaxPenaltyMultiplier   = 5.0
	PenaltyWindowDays      = 30
	PoCSCacheSeconds       = 5 * time.Second
)

// PenaltyRecord is one entry in a validator's penalty history.
type PenaltyRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Severity  float64   `json:"severity"`
	Reason    string    `json:"reason"`
}

// ContributionEvent is one entry in a validator's contribution score history
// (distinct from ContributionActivities, which logs credit-earning events).
type ContributionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Delta     float64   `json:"delta"`
}

// ContributionActivity is one entry in the credits-earning log populated by
// EarnContributionCredits.
type ContributionActivity struct {
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"`
	Credits     float64   `json:"credits"`
	Description string    `json:"description"`
}

// PeerRating is one rating a validator received from a peer.
type PeerRating struct {
	Rating    int       `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Validator is the full per-identity metric bundle the PoCS score is derived
// from. Every mutating method invalidates the score cache by zeroing
// lastScoreCalculation, matching the spec's "(inputs_version, cached_value)"
// design note without needing a separate version counter — a zeroed
// timestamp is indistinguishable from "never cached" and always misses.
type Validator struct {
	mu sync.RWMutex

	Address      string  `json:"address"`
	Stake        float64 `json:"stake"`
	IsActive     bool    `json:"is_active"`

	RegisteredAt       time.Time `json:"registered_at"`
	LastActivity       time.Time `json:"last_activity"`
	LastSeen           time.Time `json:"last_seen"`
	TotalUptimeSeconds float64   `json:"total_uptime_seconds"`

	BlocksAttempted        uint64    `json:"blocks_attempted"`
	BlocksSuccessful       uint64    `json:"blocks_successful"`
	TxsProcessed           uint64    `json:"txs_processed"`
	UniqueTransactionTypes int       `json:"unique_transaction_types"`
	BlocksValidated        uint64    `json:"blocks_validated"`
	LastBlockTime          time.Time `json:"last_block_time"`
	TotalRewards           int64     `json:"total_rewards"`

	ReliabilityScore float64 `json:"reliability_score"`
	ResponseTimeAvg  float64 `json:"response_time_avg"`
	UptimePercentage float64 `json:"uptime_percentage"`

	PeerRatings        map[string]PeerRating `json:"peer_ratings"`
	AveragePeerRating  float64               `json:"average_peer_rating"`
	ReputationScore    float64               `json:"reputation_score"`
	LastPeerReview     time.Time             `json:"last_peer_review"`

	ContributionScore      float64                 `json:"contribution_score"`
	ContributionCredits    float64                 `json:"contribution_credits"`
	ContributionActivities []ContributionActivity  `json:"contribution_activities"`
	ContributionHistory    []ContributionEvent     `json:"contribution_history"`

	PenaltyHistory            []PenaltyRecord `json:"penalty_history"`
	CurrentPenaltyMultiplier  float64         `json:"current_penalty_multiplier"`
	RehabilitationProgress    float64         `json:"rehabilitation_progress"`

	CollaborationScore        float64 `json:"collaboration_score"`
	NetworkHealthContribution float64 `json:"network_health_contribution"`
	DynamicWeightAdjustment   float64 `json:"dynamic_weight_adjustment"`
	DiversityBonus            float64 `json:"diversity_bonus"`

	// Carried from original_source for display/diagnostics; neither field
	// feeds the PoCS formula (see SPEC_FULL.md §5).
	GeographicLocation string  `json:"geographic_location"`

	cachedScore           float64
	lastScoreCalculation  time.Time
}

// NewValidator returns a freshly registered validator with default metrics,
// matching the spec's §4.3 starting values.
func NewValidator(addr string, stake float64, now time.Time) *Validator {
	return &Validator{
		Address:                  addr,
		Stake:                    stake,
		IsActive:                 true,
		RegisteredAt:             now,
		LastActivity:             now,
		LastSeen:                 now,
		ReliabilityScore:         100,
		PeerRatings:              make(map[string]PeerRating),
		AveragePeerRating:        100,
		ReputationScore:          100,
		CurrentPenaltyMultiplier: 1.0,
		DynamicWeightAdjustment:  1.0,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// invalidateCacheLocked zeroes the cache timestamp so the next Score() call
// recomputes. Caller holds mu.
func (v *Validator) invalidateCacheLocked() {
	v.lastScoreCalculation = time.Time{}
}

// Score returns the validator's PoCS score, using a cached value if it was
// computed within the last PoCSCacheSeconds and no mutation has invalidated
// it since.
func (v *Validator) Score(now time.Time) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.lastScoreCalculation.IsZero() && now.Sub(v.lastScoreCalculation) < PoCSCacheSeconds {
		return v.cachedScore
	}

	daysInactive := now.Sub(v.LastActivity).Seconds() / 86400
	effectiveStake := v.Stake * math.Max(0.1, 1-0.001*daysInactive)

	ageSeconds := math.Max(1, now.Sub(v.RegisteredAt).Seconds())
	uptimeFactor := math.Min(1, v.TotalUptimeSeconds/ageSeconds)

	attempted := math.Max(1, float64(v.BlocksAttempted))
	blockSuccess := float64(v.BlocksSuccessful) / attempted

	txsFactor := math.Min(1, float64(v.TxsProcessed)/100)

	stakeComp := effectiveStake * 0.35 * v.DynamicWeightAdjustment
	contributionComp := (v.ContributionScore*0.2 +
		uptimeFactor*10 + blockSuccess*10 + txsFactor*10 +
		v.CollaborationScore*5 +
		v.NetworkHealthContribution*3) * 0.25
	reliabilityComp := v.ReliabilityScore * 0.2
	reputationComp := v.ReputationScore * 0.1
	diversityComp := v.DiversityBonus * 0.1

	score := math.Max(0, stakeComp+contributionComp+reliabilityComp+reputationComp+diversityComp)

	v.cachedScore = score
	v.lastScoreCalculation = now
	return score
}

// Touch updates last_activity to now, as select_validator does for every
// candidate it considers.
func (v *Validator) Touch(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.LastActivity = now
	v.invalidateCacheLocked()
}

// UpdateContributionScore applies the EWMA update new = 0.9*old + 0.1*inc and
// logs the change to ContributionHistory.
func (v *Validator) UpdateContributionScore(inc float64, event string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ContributionScore = 0.9*v.ContributionScore + 0.1*inc
	v.ContributionHistory = append(v.ContributionHistory, ContributionEvent{
		Timestamp: time.Now(), Event: event, Delta: inc,
	})
	v.invalidateCacheLocked()
}

// UpdateReliabilityScore adjusts reliability by +1 (success) or -5 (failure),
// clamped to [0,100], and rolls rtt into the response-time EWMA (alpha=0.1).
func (v *Validator) UpdateReliabilityScore(success bool, rtt float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if success {
		v.ReliabilityScore = clamp(v.ReliabilityScore+1, 0, 100)
	} else {
		v.ReliabilityScore = clamp(v.ReliabilityScore-5, 0, 100)
	}
	v.ResponseTimeAvg = 0.1*rtt + 0.9*v.ResponseTimeAvg
	v.invalidateCacheLocked()
}

// RatePeer records rater's rating of this validator, overwriting any prior
// rating from the same rater, and recomputes the average.
func (v *Validator) RatePeer(rater string, rating int, reason string) error {
	if rating < 1 || rating > 100 {
		return ErrInvalidRating
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.PeerRatings[rater] = PeerRating{Rating: rating, Timestamp: time.Now(), Reason: reason}

	sum := 0
	for _, r := range v.PeerRatings {
		sum += r.Rating
	}
	v.AveragePeerRating = float64(sum) / float64(len(v.PeerRatings))
	v.LastPeerReview = time.Now()
	v.invalidateCacheLocked()
	return nil
}

// UpdateReputationScore recomputes reputation from its three inputs.
func (v *Validator) UpdateReputationScore() {
	v.mu.Lock()
	defer v.mu.Unlock()
	avgPeerRating := v.AveragePeerRating
	if len(v.PeerRatings) == 0 {
		avgPeerRating = 100
	}
	v.ReputationScore = 0.4*avgPeerRating + 0.3*v.ReliabilityScore + 0.3*math.Min(100, v.ContributionScore)
	v.invalidateCacheLocked()
}

// penaltiesInWindowLocked counts penalty events within the last
// PenaltyWindowDays of now. Caller holds mu.
func (v *Validator) penaltiesInWindowLocked(now time.Time) int {
	cutoff := now.AddDate(0, 0, -PenaltyWindowDays)
	n := 0
	for _, p := range v.PenaltyHistory {
		if p.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// ApplyPenalty appends to history, recomputes the penalty multiplier from
// the count of penalties in the last 30 days, then debits reputation and
// reliability by the severity-scaled effective penalty. Never increases
// either score (invariant 7).
func (v *Validator) ApplyPenalty(kind string, severity float64, reason string) {
	now := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()

	v.PenaltyHistory = append(v.PenaltyHistory, PenaltyRecord{
		Timestamp: now, Kind: kind, Severity: severity, Reason: reason,
	})

	count := v.penaltiesInWindowLocked(now)
	v.CurrentPenaltyMultiplier = math.Min(MaxPenaltyMultiplier, 1+0.5*float64(count))
	effective := severity * v.CurrentPenaltyMultiplier

	v.ReputationScore = math.Max(0, v.ReputationScore-0.5*effective)
	v.ReliabilityScore = math.Max(0, v.ReliabilityScore-0.3*effective)
	v.RehabilitationProgress = 0
	v.invalidateCacheLocked()

	logrus.WithFields(logrus.Fields{
		"validator": v.Address,
		"kind":      kind,
		"severity":  severity,
		"multiplier": v.CurrentPenaltyMultiplier,
	}).Warn("penalty applied")
}

// UpdateRehabilitationProgress adds inc, clamped to 100; hitting 100 shrinks
// the penalty multiplier by a factor of 0.8 (floored at 1.0) and resets
// progress to 0.
func (v *Validator) UpdateRehabilitationProgress(inc float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.RehabilitationProgress = clamp(v.RehabilitationProgress+inc, 0, 100)
	if v.RehabilitationProgress >= 100 {
		v.CurrentPenaltyMultiplier = math.Max(1.0, v.CurrentPenaltyMultiplier*0.8)
		v.RehabilitationProgress = 0
	}
	v.invalidateCacheLocked()
}

// EarnContributionCredits adds credits, logs the activity, nudges
// rehabilitation progress, and folds half the credits into the contribution
// score EWMA.
func (v *Validator) EarnContributionCredits(kind string, credits float64, desc string) {
	v.mu.Lock()
	v.ContributionCredits += credits
	v.ContributionActivities = append(v.ContributionActivities, ContributionActivity{
		Timestamp: time.Now(), Kind: kind, Credits: credits, Description: desc,
	})
	rehab := clamp(v.RehabilitationProgress+0.1*credits, 0, 100)
	multiplierCollapse := rehab >= 100
	v.RehabilitationProgress = rehab
	if multiplierCollapse {
		v.CurrentPenaltyMultiplier = math.Max(1.0, v.CurrentPenaltyMultiplier*0.8)
		v.RehabilitationProgress = 0
	}
	v.mu.Unlock()

	v.UpdateContributionScore(0.5*credits, kind)
}

// ConvertCreditsToStake converts up to `credits` (clamped to what is
// available) into stake at a 0.1 ratio, returning the amount actually
// converted.
func (v *Validator) ConvertCreditsToStake(credits float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	used := math.Min(credits, v.ContributionCredits)
	v.ContributionCredits -= used
	v.Stake += 0.1 * used
	v.invalidateCacheLocked()
	return used
}

// AdjustDynamicWeight modulates the stake-component multiplier based on a
// reported network condition.
func (v *Validator) AdjustDynamicWeight(condition string, factor float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch condition {
	case "high_load":
		v.DynamicWeightAdjustment = math.Min(1.5, v.DynamicWeightAdjustment*factor)
	case "low_load":
		v.DynamicWeightAdjustment = math.Max(0.5, v.DynamicWeightAdjustment*factor)
	default: // "normal"
		v.DynamicWeightAdjustment = 1.0
	}
	v.invalidateCacheLocked()
}

// RecordCollaboration feeds the PoCS contribution_comp term's
// collaboration_score input; supplemented from original_source's
// update_collaboration_score (see SPEC_FULL.md §5).
func (v *Validator) RecordCollaboration(delta float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CollaborationScore = clamp(v.CollaborationScore+delta, 0, 100)
	v.invalidateCacheLocked()
}

// RecordNetworkHealth feeds the PoCS contribution_comp term's
// network_health_contribution input; supplemented from original_source's
// update_network_health_contribution (see SPEC_FULL.md §5).
func (v *Validator) RecordNetworkHealth(delta float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.NetworkHealthContribution = clamp(v.NetworkHealthContribution+delta, 0, 100)
	v.invalidateCacheLocked()
}

// RecordBlockAttempt updates block-work counters after a production attempt.
func (v *Validator) RecordBlockAttempt(success bool, txCount int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.BlocksAttempted++
	if success {
		v.BlocksSuccessful++
	}
	v.TxsProcessed += uint64(txCount)
	v.invalidateCacheLocked()
}

// Snapshot returns a shallow copy of the validator's exported fields, safe to
// serialize or hand to callers without exposing the mutex.
func (v *Validator) Snapshot() Validator {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := *v
	cp.PeerRatings = make(map[string]PeerRating, len(v.PeerRatings))
	for k, r := range v.PeerRatings {
		cp.PeerRatings[k] = r
	}
	return cp
}

// Validator network-health gauges, exported for operational visibility.
// Promoted from the teacher's indirect prometheus requirement — see
// SPEC_FULL.md §4.
var (
	validatorScoreGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lahka_validator_pocs_score",
		Help: "Most recently computed PoCS score per validator.",
	}, []string{"address"})

	validatorStakeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lahka_validator_stake",
		Help: "Current declared stake per validator.",
	}, []string{"address"})
)

func init() {
	prometheus.MustRegister(validatorScoreGauge, validatorStakeGauge)
}

// ObserveMetrics publishes the validator's current score and stake to the
// Prometheus registry.
func (v *Validator) ObserveMetrics(now time.Time) {
	score := v.Score(now)
	v.mu.RLock()
	stake := v.Stake
	addr := v.Address
	v.mu.RUnlock()
	validatorScoreGauge.WithLabelValues(addr).Set(score)
	validatorStakeGauge.WithLabelValues(addr).Set(stake)
}

// ContributionCatalogue is a static catalogue of contribution activity kinds
// and their credit rates, supplemented from original_source's
// GetContributionMiningActivities (see SPEC_FULL.md §5). Consumed by
// cmd/lahkanode's `validator contribute` subcommand.
var ContributionCatalogue = map[string]float64{
	"code_contribution":    10,
	"documentation":        4,
	"bug_report":           3,
	"community_support":    2,
	"infrastructure_relay": 6,
	"security_audit":       15,
}
