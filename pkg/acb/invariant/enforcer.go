package invariant

import (
	"sort"

	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/scoring"
)

// Reservation is the enforcer output.
type Reservation struct {
	// Reserved holds items per target section, tier desc then rank.
	Reserved map[acb.Category][]acb.ScoredItem
	// Remaining holds the ranked pools with reserved items removed.
	Remaining map[acb.Category][]acb.ScoredItem
	// Budgets are the category budgets after reclamation.
	Budgets       acb.CategoryBudget
	Reallocations []acb.Reallocation
	// ReallocationCount counts donors tapped.
	ReallocationCount int
	// Matches counts reserved items per detector.
	Matches map[string]int
}

// Tokens returns the reserved size of c.
func (r Reservation) Tokens(c acb.Category) int {
	total := 0
	for _, s := range r.Reserved[c] {
		total += acb.TokensOf(s.Item)
	}
	return total
}

// Enforcer reserves sticky invariants and reclaims donor budget to fit them.
type Enforcer struct {
	detectors []Detector
	logger    logger.ILogger
}

// NewEnforcer creates an enforcer. A nil detector list uses DefaultDetectors.
func NewEnforcer(detectors []Detector, logger logger.ILogger) *Enforcer {
	if detectors == nil {
		detectors = DefaultDetectors()
	}
	return &Enforcer{detectors: detectors, logger: logger}
}

type claim struct {
	item     acb.ScoredItem
	detector string
	target   acb.Category
}

// Enforce reserves every detected invariant. It fails with BUDGET_EXHAUSTED
// when a target's reservations exceed its allotment plus every donor.
func (e *Enforcer) Enforce(ranked map[acb.Category][]acb.ScoredItem, budgets acb.CategoryBudget) (Reservation, error) {
	claims := e.detect(ranked)

	res := Reservation{
		Reserved:  make(map[acb.Category][]acb.ScoredItem),
		Remaining: make(map[acb.Category][]acb.ScoredItem, len(ranked)),
		Budgets:   budgets.Clone(),
		Matches:   make(map[string]int),
	}

	for c, pool := range ranked {
		kept := make([]acb.ScoredItem, 0, len(pool))
		for _, s := range pool {
			if _, reserved := claims[s.Item.ID]; !reserved {
				kept = append(kept, s)
			}
		}
		res.Remaining[c] = kept
	}

	for _, cl := range claims {
		res.Reserved[cl.target] = append(res.Reserved[cl.target], cl.item)
		res.Matches[cl.detector]++
	}
	for _, items := range res.Reserved {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Tier != items[j].Tier {
				return items[i].Tier > items[j].Tier
			}
			return scoring.Less(items[i], items[j])
		})
	}

	for _, target := range acb.Categories {
		need := res.Tokens(target)
		if need <= res.Budgets[target] {
			continue
		}
		deficit := need - res.Budgets[target]
		for _, donor := range acb.DonorOrder {
			if deficit == 0 {
				break
			}
			available := res.Budgets[donor]
			if available <= 0 {
				continue
			}
			take := available
			if deficit < take {
				take = deficit
			}
			res.Budgets[donor] -= take
			res.Budgets[target] += take
			deficit -= take
			res.ReallocationCount++
			res.Reallocations = append(res.Reallocations, acb.Reallocation{From: donor, To: target, Tokens: take})
		}
		if deficit > 0 {
			e.logger.Warn("INVARIANT", "Sticky invariants do not fit", map[string]interface{}{
				"category": target,
				"needed":   need,
				"deficit":  deficit,
			})
			return Reservation{}, acb.NewBudgetExhaustedError(target, deficit)
		}
	}

	if res.ReallocationCount > 0 {
		e.logger.Info("INVARIANT", "Budget reclaimed for invariants", map[string]interface{}{
			"reallocations": res.ReallocationCount,
		})
	}
	return res, nil
}

// detect runs every detector and keeps each item at its highest tier.
func (e *Enforcer) detect(ranked map[acb.Category][]acb.ScoredItem) map[string]claim {
	claims := make(map[string]claim)
	for _, d := range e.detectors {
		for _, s := range d.Detect(ranked) {
			if prev, ok := claims[s.Item.ID]; ok && prev.item.Tier >= d.Tier() {
				continue
			}
			s.Tier = d.Tier()
			claims[s.Item.ID] = claim{item: s, detector: d.Name(), target: d.Target()}
		}
	}
	return claims
}
