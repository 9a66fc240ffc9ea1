// FILE: pkg/acb/scoring/scorer.go
// PURPOSE: Composite relevance scoring, sensitivity filtering and ranking

package scoring

import (
	"math"
	"sort"
	"time"

	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/budget"
)

// ============================================================
// TYPES
// ============================================================

// Scored is the scorer output for one build.
type Scored struct {
	// Ranked holds permitted candidates per category, best first.
	Ranked map[acb.Category][]acb.ScoredItem
	// Filtered holds candidates removed by the sensitivity policy, still scored.
	Filtered map[acb.Category][]acb.ScoredItem
	Weights  acb.Weights
	// Fallback is true when the request weights were invalid.
	Fallback bool
	Filters  []string
}

// Scorer ranks candidate pools.
type Scorer struct {
	defaults acb.Weights
	policy   Policy
}

// NewScorer creates a scorer. Invalid default weights are replaced by acb.DefaultWeights.
func NewScorer(defaults acb.Weights, policy Policy) *Scorer {
	if !defaults.Valid() {
		defaults = acb.DefaultWeights
	}
	if policy.allowed == nil {
		policy = DefaultPolicy()
	}
	return &Scorer{defaults: defaults, policy: policy}
}

// ============================================================
// SCORING
// ============================================================

// ResolveWeights returns the weights in effect for req and whether a
// supplied override was rejected.
func (s *Scorer) ResolveWeights(req acb.Request) (acb.Weights, bool) {
	if req.Weights == nil {
		return s.defaults, false
	}
	if !req.Weights.Valid() {
		return s.defaults, true
	}
	return *req.Weights, false
}

// PolicyFor returns the sensitivity policy in effect for req.
func (s *Scorer) PolicyFor(req acb.Request) Policy {
	return s.policy.ForRequest(req)
}

// Score filters, scores and ranks every pool.
func (s *Scorer) Score(req acb.Request, profile budget.Profile, pools map[acb.Category][]acb.CandidateItem) Scored {
	weights, fallback := s.ResolveWeights(req)
	policy := s.policy.ForRequest(req)

	out := Scored{
		Ranked:   make(map[acb.Category][]acb.ScoredItem, len(pools)),
		Filtered: make(map[acb.Category][]acb.ScoredItem),
		Weights:  weights,
		Fallback: fallback,
		Filters:  policy.Labels(req.IncludeQuarantined),
	}

	for _, c := range acb.Categories {
		pool, ok := pools[c]
		if !ok {
			continue
		}
		halfLife := profile.HalfLife(c)

		kept := make([]acb.ScoredItem, 0, len(pool))
		var filtered []acb.ScoredItem
		for _, item := range pool {
			scored := ScoreItem(item, weights, halfLife)
			if policy.Permits(item.Label(), req.IncludeQuarantined) {
				kept = append(kept, scored)
			} else {
				filtered = append(filtered, scored)
			}
		}

		Rank(kept)
		out.Ranked[c] = kept
		if len(filtered) > 0 {
			Rank(filtered)
			out.Filtered[c] = filtered
		}
	}
	return out
}

// ScoreItem computes alpha*similarity + beta*importance + gamma*recency.
func ScoreItem(item acb.CandidateItem, w acb.Weights, halfLife time.Duration) acb.ScoredItem {
	recency := Recency(item.Age, halfLife)
	score := w.Alpha*clamp01(item.Similarity) + w.Beta*clamp01(item.Importance) + w.Gamma*recency
	return acb.ScoredItem{Item: item, Score: score, Recency: recency}
}

// Recency is 0.5^(age/halfLife). Negative ages count as fresh.
func Recency(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		return 0
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// ============================================================
// RANKING
// ============================================================

// Rank sorts items best first and assigns 1-based ranks. Ties fall to
// importance descending, then age ascending, then id ascending.
func Rank(items []acb.ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return Less(items[i], items[j])
	})
	for i := range items {
		items[i].Rank = i + 1
	}
}

// Less reports whether a ranks ahead of b.
func Less(a, b acb.ScoredItem) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Item.Importance != b.Item.Importance {
		return a.Item.Importance > b.Item.Importance
	}
	if a.Item.Age != b.Item.Age {
		return a.Item.Age < b.Item.Age
	}
	return a.Item.ID < b.Item.ID
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
