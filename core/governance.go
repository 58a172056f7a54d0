package core

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PeerReviewPair is one assigned (reviewer, reviewee) pairing.
type PeerReviewPair struct {
	Reviewer string
	Reviewee string
}

// PeerRatingSubmission is one externally submitted rating for an assigned
// pair.
type PeerRatingSubmission struct {
	Reviewer string
	Reviewee string
	Rating   int
	Reason   string
}

// GovernanceEngine implements the chain engine's periodic peer-review
// rounds, penalty overrides, and network-condition fan-out. Per DESIGN.md's
// Open Question decision, SubmitPeerRating is a real external API any
// validator process can call for an assigned pair; TriggerPeerReviews falls
// back to a synthetic rating for any pair left unfilled when the round
// closes, so the system still works standalone.
type GovernanceEngine struct {
	engine *ChainEngine

	mu      sync.Mutex
	pending map[PeerReviewPair]PeerRatingSubmission
}

// NewGovernanceEngine wires a governance engine to its owning chain engine.
func NewGovernanceEngine(e *ChainEngine) *GovernanceEngine {
	return &GovernanceEngine{engine: e, pending: make(map[PeerReviewPair]PeerRatingSubmission)}
}

// AssignPeerReviews shuffles the active validator set and pairs consecutive
// indices; an odd validator out is left unpaired.
func (g *GovernanceEngine) AssignPeerReviews() []PeerReviewPair {
	e := g.engine
	e.mu.Lock()
	addrs := make([]string, 0, len(e.validators))
	for addr, v := range e.validators {
		if v.IsActive {
			addrs = append(addrs, addr)
		}
	}
	rng := e.rng
	e.mu.Unlock()

	sort.Strings(addrs)
	rng.Shuffle(len(addrs), func(i, j int) { addrs[i], addrs[j] = addrs[j], addrs[i] })

	pairs := make([]PeerReviewPair, 0, len(addrs)/2)
	for i := 0; i+1 < len(addrs); i += 2 {
		pairs = append(pairs, PeerReviewPair{Reviewer: addrs[i], Reviewee: addrs[i+1]})
	}
	return pairs
}

// SubmitPeerRating records an externally submitted rating for an assigned
// pair. It is the real production interface: any validator process may call
// it once it has assessed its assigned reviewee.
func (g *GovernanceEngine) SubmitPeerRating(reviewer, reviewee string, rating int, reason string) error {
	if rating < 1 || rating > 100 {
		return ErrInvalidRating
	}
	g.mu.Lock()
	g.pending[PeerReviewPair{Reviewer: reviewer, Reviewee: reviewee}] = PeerRatingSubmission{
		Reviewer: reviewer, Reviewee: reviewee, Rating: rating, Reason: reason,
	}
	g.mu.Unlock()
	return nil
}

// ProcessPeerRatings applies each submission: the reviewer rates the
// reviewee, then the reviewee's reputation score is recomputed.
func (g *GovernanceEngine) ProcessPeerRatings(submissions []PeerRatingSubmission) {
	e := g.engine
	for _, sub := range submissions {
		e.mu.Lock()
		reviewer := e.validators[sub.Reviewer]
		reviewee := e.validators[sub.Reviewee]
		e.mu.Unlock()
		if reviewer == nil || reviewee == nil {
			continue
		}
		if err := reviewee.RatePeer(sub.Reviewer, sub.Rating, sub.Reason); err != nil {
			logrus.WithFields(logrus.Fields{"reviewer": sub.Reviewer, "reviewee": sub.Reviewee, "err": err}).Warn("peer rating rejected")
			continue
		}
		reviewee.UpdateReputationScore()
	}
}

// TriggerPeerReviews assigns pairs, consumes any externally submitted
// ratings collected via SubmitPeerRating since the last round, and
// synthesizes a rating for any pair left unfilled as
// reviewee.reliability_score + U(-10, 10), clamped to [1,100].
func (g *GovernanceEngine) TriggerPeerReviews() {
	pairs := g.AssignPeerReviews()
	if len(pairs) == 0 {
		return
	}

	g.mu.Lock()
	submissions := make([]PeerRatingSubmission, 0, len(pairs))
	for _, pair := range pairs {
		if sub, ok := g.pending[pair]; ok {
			submissions = append(submissions, sub)
			delete(g.pending, pair)
			continue
		}

		g.engine.mu.Lock()
		reviewee := g.engine.validators[pair.Reviewee]
		g.engine.mu.Unlock()
		if reviewee == nil {
			continue
		}
		reviewee.mu.RLock()
		base := reviewee.ReliabilityScore
		reviewee.mu.RUnlock()

		noise := (g.engine.rng.Float64()*20 - 10)
		rating := int(clamp(base+noise, 1, 100))
		submissions = append(submissions, PeerRatingSubmission{
			Reviewer: pair.Reviewer, Reviewee: pair.Reviewee, Rating: rating, Reason: "synthetic",
		})
	}
	g.mu.Unlock()

	g.ProcessPeerRatings(submissions)
	logrus.WithField("pairs", len(pairs)).Info("peer review round completed")
}

// CommunityOverridePenalty records a synthetic penalty-history entry tagged
// community_override and forces the validator's multiplier to new_multiplier.
func (g *GovernanceEngine) CommunityOverridePenalty(addr string, newMultiplier float64, reason string) error {
	g.engine.mu.Lock()
	v := g.engine.validators[addr]
	g.engine.mu.Unlock()
	if v == nil {
		return ErrValidatorNotFound
	}

	v.mu.Lock()
	v.PenaltyHistory = append(v.PenaltyHistory, PenaltyRecord{
		Timestamp: time.Now(), Kind: "community_override", Severity: 0, Reason: reason,
	})
	v.CurrentPenaltyMultiplier = newMultiplier
	v.invalidateCacheLocked()
	v.mu.Unlock()
	return nil
}

// networkConditionFactors is the fan-out table used by UpdateNetworkConditions.
var networkConditionFactors = map[string]float64{
	"high_load": 1.2,
	"low_load":  0.8,
	"normal":    1.0,
}

// UpdateNetworkConditions fans out AdjustDynamicWeight over every validator
// using the condition's configured factor.
func (g *GovernanceEngine) UpdateNetworkConditions(condition string) {
	factor, ok := networkConditionFactors[condition]
	if !ok {
		factor = 1.0
	}
	g.engine.mu.Lock()
	validators := make([]*Validator, 0, len(g.engine.validators))
	for _, v := range g.engine.validators {
		validators = append(validators, v)
	}
	g.engine.mu.Unlock()

	for _, v := range validators {
		v.AdjustDynamicWeight(condition, factor)
	}
}
