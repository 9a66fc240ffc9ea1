package packer

import (
	"context"

	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/budget"
)

// VisibilityFactor scales a category's item capacity into its omission cutoff.
const VisibilityFactor = 3

// Input is everything the packer needs for one build.
type Input struct {
	Profile   budget.Profile
	Budgets   acb.CategoryBudget
	Reserved  map[acb.Category][]acb.ScoredItem
	Remaining map[acb.Category][]acb.ScoredItem
	Filtered  map[acb.Category][]acb.ScoredItem
}

// Output is the packed bundle body.
type Output struct {
	Sections   []acb.Section
	Omissions  []acb.Omission
	TokensUsed int
	// Curtailed is true when the context expired before every section was packed.
	Curtailed bool
}

// Packer fills sections greedily within their budgets.
type Packer struct {
	logger logger.ILogger
}

func NewPacker(logger logger.ILogger) *Packer {
	return &Packer{logger: logger}
}

// Pack walks the categories in section order. Reserved items go first; the
// remaining candidates are taken in rank order when they fit (skip-over). The
// context is checked between sections: once it is done, the remaining
// non-critical sections are emitted with their reserved items only and marked
// curtailed. Critical sections are always packed.
func (p *Packer) Pack(ctx context.Context, in Input) Output {
	out := Output{Omissions: make([]acb.Omission, 0)}
	for _, c := range acb.Categories {
		sec := acb.Section{Category: c, Budget: in.Budgets[c], Items: make([]acb.ScoredItem, 0)}
		for _, s := range in.Reserved[c] {
			sec.Items = append(sec.Items, s)
			sec.TokensUsed += acb.TokensOf(s.Item)
		}

		if ctx.Err() != nil && !c.Critical() {
			sec.Curtailed = true
			out.Curtailed = true
			out.Sections = append(out.Sections, sec)
			out.TokensUsed += sec.TokensUsed
			continue
		}

		cp := in.Profile.Category(c)
		cutoff := VisibilityFactor * cp.Capacity
		budgetOver := newOmission(c, acb.ReasonBudgetExceeded)
		lowScore := newOmission(c, acb.ReasonLowScore)

		for i, s := range in.Remaining[c] {
			visible := i < cutoff
			if belowRule(s, cp.Rule) {
				if visible {
					addOmission(lowScore, s.Item.ID)
				}
				continue
			}
			tokens := acb.TokensOf(s.Item)
			if sec.TokensUsed+tokens > sec.Budget {
				if visible {
					addOmission(budgetOver, s.Item.ID)
				}
				continue
			}
			sec.Items = append(sec.Items, s)
			sec.TokensUsed += tokens
		}

		filtered := newOmission(c, acb.ReasonSensitivityFiltered)
		for i, s := range in.Filtered[c] {
			if i < cutoff {
				addOmission(filtered, s.Item.ID)
			}
		}

		for _, o := range []*acb.Omission{budgetOver, lowScore, filtered} {
			if o.Count > 0 {
				out.Omissions = append(out.Omissions, *o)
			}
		}
		out.Sections = append(out.Sections, sec)
		out.TokensUsed += sec.TokensUsed
	}

	if out.Curtailed {
		p.logger.Warn("PACKER", "Packing curtailed by deadline", map[string]interface{}{
			"tokens_used": out.TokensUsed,
		})
	}
	return out
}

func belowRule(s acb.ScoredItem, rule budget.Rule) bool {
	if rule.MinScore > 0 && s.Score < rule.MinScore {
		return true
	}
	return rule.MaxAge > 0 && s.Item.Age > rule.MaxAge
}

func newOmission(c acb.Category, reason string) *acb.Omission {
	return &acb.Omission{Category: c, Reason: reason, IDs: make([]string, 0)}
}

// Inputs arrive in rank order, so the first id is the best-scoring one.
func addOmission(o *acb.Omission, id string) {
	if o.Count == 0 {
		o.BestID = id
	}
	o.Count++
	if len(o.IDs) < acb.MaxOmissionIDs {
		o.IDs = append(o.IDs, id)
	}
}
