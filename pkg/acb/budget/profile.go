package budget

import (
	"fmt"
	"time"

	"agent-memory-be/pkg/acb"
)

// Rule is the declarative inclusion policy of one category within a mode.
type Rule struct {
	// Exclude skips retrieval entirely; the budget stays allotted.
	Exclude bool `yaml:"exclude"`
	// RequireFlag retrieves the category only when the named request flag is set.
	RequireFlag string `yaml:"require_flag"`
	// MinScore marks ranked candidates below it as LOW_SCORE.
	MinScore float64 `yaml:"min_score"`
	// MaxAge marks older candidates as LOW_SCORE. Zero means unbounded.
	MaxAge time.Duration `yaml:"max_age"`
}

// CategoryProfile is the per-category configuration of a mode.
type CategoryProfile struct {
	Weight   int           `yaml:"weight"`
	HalfLife time.Duration `yaml:"half_life"`
	Capacity int           `yaml:"capacity"`
	Rule     Rule          `yaml:"rule"`
}

// Profile is the immutable configuration of one mode.
type Profile struct {
	mode       acb.Mode
	categories map[acb.Category]CategoryProfile
	weightSum  int
}

// Mode returns the mode the profile belongs to.
func (p Profile) Mode() acb.Mode { return p.mode }

// Category returns the configuration of c.
func (p Profile) Category(c acb.Category) CategoryProfile { return p.categories[c] }

// WeightSum is the nominal total of the profile.
func (p Profile) WeightSum() int { return p.weightSum }

// HalfLife returns the recency half-life of c.
func (p Profile) HalfLife(c acb.Category) time.Duration { return p.categories[c].HalfLife }

// Rule returns the inclusion rule of c.
func (p Profile) Rule(c acb.Category) Rule { return p.categories[c].Rule }

// Retrieve reports whether c should be fetched for req under this profile.
func (p Profile) Retrieve(c acb.Category, req acb.Request) bool {
	rule := p.Rule(c)
	if rule.Exclude {
		return false
	}
	if rule.RequireFlag != "" && !req.Flag(rule.RequireFlag) {
		return false
	}
	return true
}

// NewProfile validates and freezes a mode configuration.
func NewProfile(mode acb.Mode, categories map[acb.Category]CategoryProfile) (Profile, error) {
	if !mode.Valid() {
		return Profile{}, fmt.Errorf("unknown mode %q", mode)
	}
	frozen := make(map[acb.Category]CategoryProfile, len(acb.Categories))
	sum := 0
	for c, cp := range categories {
		if !c.Valid() {
			return Profile{}, fmt.Errorf("mode %s: unknown category %q", mode, c)
		}
		if cp.Weight < 0 {
			return Profile{}, fmt.Errorf("mode %s: category %s has negative weight", mode, c)
		}
		if cp.HalfLife <= 0 {
			return Profile{}, fmt.Errorf("mode %s: category %s needs a positive half-life", mode, c)
		}
		if cp.Capacity <= 0 {
			return Profile{}, fmt.Errorf("mode %s: category %s needs a positive capacity", mode, c)
		}
		if cp.Rule.MinScore < 0 || cp.Rule.MinScore > 1 {
			return Profile{}, fmt.Errorf("mode %s: category %s min_score outside [0,1]", mode, c)
		}
		if cp.Rule.RequireFlag != "" && cp.Rule.RequireFlag != acb.FlagIncludeCapsules && cp.Rule.RequireFlag != acb.FlagIncludeQuarantined {
			return Profile{}, fmt.Errorf("mode %s: category %s requires unknown flag %q", mode, c, cp.Rule.RequireFlag)
		}
		frozen[c] = cp
		sum += cp.Weight
	}
	for _, c := range acb.Categories {
		if _, ok := frozen[c]; !ok {
			return Profile{}, fmt.Errorf("mode %s: category %s is not configured", mode, c)
		}
	}
	if sum <= 0 {
		return Profile{}, fmt.Errorf("mode %s: category weights sum to zero", mode)
	}
	return Profile{mode: mode, categories: frozen, weightSum: sum}, nil
}

// Profiles is the validated profile set keyed by the closed Mode enumeration.
type Profiles struct {
	byMode map[acb.Mode]Profile
}

// NewProfiles requires exactly one profile per mode.
func NewProfiles(profiles ...Profile) (*Profiles, error) {
	byMode := make(map[acb.Mode]Profile, len(acb.AllModes))
	for _, p := range profiles {
		if _, dup := byMode[p.mode]; dup {
			return nil, fmt.Errorf("duplicate profile for mode %s", p.mode)
		}
		byMode[p.mode] = p
	}
	for _, m := range acb.AllModes {
		if _, ok := byMode[m]; !ok {
			return nil, fmt.Errorf("no profile for mode %s", m)
		}
	}
	return &Profiles{byMode: byMode}, nil
}

// For returns the profile of m. Unknown modes fall back to GENERAL, which is
// guaranteed present by NewProfiles.
func (p *Profiles) For(m acb.Mode) Profile {
	if prof, ok := p.byMode[m]; ok {
		return prof
	}
	return p.byMode[acb.ModeGeneral]
}

const (
	hour = time.Hour
	day  = 24 * time.Hour
)

// nominal builds a category table from weights in acb.Categories order.
func nominal(weights [6]int, halfLives [6]time.Duration, capacities [6]int) map[acb.Category]CategoryProfile {
	out := make(map[acb.Category]CategoryProfile, 6)
	for i, c := range acb.Categories {
		out[c] = CategoryProfile{Weight: weights[i], HalfLife: halfLives[i], Capacity: capacities[i]}
	}
	return out
}

// DefaultProfiles returns the built-in profile set. Every mode's nominal
// weights sum to 53,000.
func DefaultProfiles() *Profiles {
	capacities := [6]int{20, 10, 30, 25, 15, 8}

	task := nominal(
		[6]int{6000, 9000, 8000, 18000, 6000, 6000},
		[6]time.Duration{30 * day, 4 * hour, 2 * hour, 7 * day, 14 * day, 30 * day},
		capacities,
	)
	debugging := nominal(
		[6]int{6000, 8000, 12000, 20000, 4000, 3000},
		[6]time.Duration{30 * day, 2 * hour, 1 * hour, 3 * day, 7 * day, 30 * day},
		capacities,
	)
	exploration := nominal(
		[6]int{5000, 4000, 8000, 22000, 6000, 8000},
		[6]time.Duration{30 * day, 12 * hour, 6 * hour, 30 * day, 30 * day, 60 * day},
		capacities,
	)
	learning := nominal(
		[6]int{5000, 3000, 10000, 20000, 5000, 10000},
		[6]time.Duration{30 * day, 12 * hour, 6 * hour, 60 * day, 30 * day, 90 * day},
		capacities,
	)
	general := nominal(
		[6]int{6000, 6000, 10000, 17000, 7000, 7000},
		[6]time.Duration{30 * day, 6 * hour, 3 * hour, 14 * day, 14 * day, 30 * day},
		capacities,
	)

	for _, table := range []map[acb.Category]CategoryProfile{task, debugging, exploration, learning, general} {
		caps := table[acb.CategoryCapsules]
		caps.Rule.RequireFlag = acb.FlagIncludeCapsules
		table[acb.CategoryCapsules] = caps
	}
	// Debugging favours fresh evidence; stale decisions are noise.
	dec := debugging[acb.CategoryRelevantDecisions]
	dec.Rule.MaxAge = 90 * day
	debugging[acb.CategoryRelevantDecisions] = dec
	ev := debugging[acb.CategoryRetrievedEvidence]
	ev.Rule.MinScore = 0.15
	debugging[acb.CategoryRetrievedEvidence] = ev

	profiles, err := NewProfiles(
		mustProfile(acb.ModeTask, task),
		mustProfile(acb.ModeDebugging, debugging),
		mustProfile(acb.ModeExploration, exploration),
		mustProfile(acb.ModeLearning, learning),
		mustProfile(acb.ModeGeneral, general),
	)
	if err != nil {
		panic(err)
	}
	return profiles
}

func mustProfile(m acb.Mode, categories map[acb.Category]CategoryProfile) Profile {
	p, err := NewProfile(m, categories)
	if err != nil {
		panic(err)
	}
	return p
}
