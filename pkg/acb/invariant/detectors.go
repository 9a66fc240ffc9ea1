package invariant

import (
	"sort"
	"strings"

	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/lexical"
)

// Tiers of the built-in detectors. Higher tiers reserve first.
const (
	TierSafety         = 1000
	TierUserCorrection = 900
	TierHardConstraint = 800
	TierBlockingError  = 700
)

// Tags recognised by the detectors.
const (
	TagSafety     = "safety"
	TagConstraint = "constraint"
	TagBlocking   = "blocking"
)

// Detector matches candidates that must be included regardless of score.
type Detector interface {
	Name() string
	Tier() int
	// Target is the section reserved items are packed into.
	Target() acb.Category
	Detect(pools map[acb.Category][]acb.ScoredItem) []acb.ScoredItem
}

// DefaultDetectors returns the built-in detectors, highest tier first.
func DefaultDetectors() []Detector {
	return []Detector{
		SafetyDetector{},
		UserCorrectionDetector{},
		HardConstraintDetector{},
		BlockingErrorDetector{},
	}
}

// SafetyDetector matches items of kind or tag "safety".
type SafetyDetector struct{}

func (SafetyDetector) Name() string         { return "safety" }
func (SafetyDetector) Tier() int            { return TierSafety }
func (SafetyDetector) Target() acb.Category { return acb.CategoryRules }

func (SafetyDetector) Detect(pools map[acb.Category][]acb.ScoredItem) []acb.ScoredItem {
	return matchAll(pools, func(it acb.CandidateItem) bool {
		return it.Kind == acb.KindSafety || it.HasTag(TagSafety)
	})
}

// UserCorrectionDetector keeps the single most recent human correction.
type UserCorrectionDetector struct{}

func (UserCorrectionDetector) Name() string         { return "user_correction" }
func (UserCorrectionDetector) Tier() int            { return TierUserCorrection }
func (UserCorrectionDetector) Target() acb.Category { return acb.CategoryTaskState }

func (UserCorrectionDetector) Detect(pools map[acb.Category][]acb.ScoredItem) []acb.ScoredItem {
	matches := matchAll(pools, IsCorrection)
	if len(matches) == 0 {
		return nil
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Item.Age < best.Item.Age || (m.Item.Age == best.Item.Age && m.Item.ID < best.Item.ID) {
			best = m
		}
	}
	return []acb.ScoredItem{best}
}

var correctionOpeners = []string{"no,", "no.", "actually", "that's wrong", "that’s wrong", "that is wrong", "i said"}

// IsCorrection reports whether the item is a human correction.
func IsCorrection(it acb.CandidateItem) bool {
	if it.Kind == acb.KindCorrection {
		return it.Actor == "" || it.Actor == acb.ActorHuman
	}
	if it.Actor != acb.ActorHuman {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(it.Content))
	for _, opener := range correctionOpeners {
		if strings.HasPrefix(text, opener) {
			return true
		}
	}
	return false
}

// HardConstraintDetector matches rules carrying obligation phrasing.
type HardConstraintDetector struct{}

func (HardConstraintDetector) Name() string         { return "hard_constraint" }
func (HardConstraintDetector) Tier() int            { return TierHardConstraint }
func (HardConstraintDetector) Target() acb.Category { return acb.CategoryRules }

func (HardConstraintDetector) Detect(pools map[acb.Category][]acb.ScoredItem) []acb.ScoredItem {
	var out []acb.ScoredItem
	for _, s := range pools[acb.CategoryRules] {
		if s.Item.HasTag(TagConstraint) || HasObligation(s.Item.Content) {
			out = append(out, s)
		}
	}
	return out
}

var (
	obligationWords   = map[string]bool{"must": true, "never": true, "always": true, "shall": true, "dont": true}
	obligationBigrams = map[string]bool{"do not": true, "required to": true}
	apostrophes       = strings.NewReplacer("'", "", "’", "")
)

// HasObligation reports whether text carries explicit obligation phrasing.
func HasObligation(text string) bool {
	words := lexical.Tokenize(apostrophes.Replace(text))
	for i, w := range words {
		if obligationWords[w] {
			return true
		}
		if i+1 < len(words) && obligationBigrams[w+" "+words[i+1]] {
			return true
		}
	}
	return false
}

// BlockingErrorDetector matches unresolved blocking errors.
type BlockingErrorDetector struct{}

func (BlockingErrorDetector) Name() string         { return "blocking_error" }
func (BlockingErrorDetector) Tier() int            { return TierBlockingError }
func (BlockingErrorDetector) Target() acb.Category { return acb.CategoryTaskState }

func (BlockingErrorDetector) Detect(pools map[acb.Category][]acb.ScoredItem) []acb.ScoredItem {
	return matchAll(pools, func(it acb.CandidateItem) bool {
		if it.Resolved {
			return false
		}
		return (it.Kind == acb.KindError && it.Blocking) || it.HasTag(TagBlocking)
	})
}

// matchAll scans every category in section order.
func matchAll(pools map[acb.Category][]acb.ScoredItem, match func(acb.CandidateItem) bool) []acb.ScoredItem {
	var out []acb.ScoredItem
	for _, c := range acb.Categories {
		for _, s := range pools[c] {
			if match(s.Item) {
				out = append(out, s)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Item.ID < out[j].Item.ID })
	return out
}
