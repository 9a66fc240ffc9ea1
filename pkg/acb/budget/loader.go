package budget

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"agent-memory-be/pkg/acb"
)

// profileFile is the on-disk override format. Absent fields keep defaults.
//
//	modes:
//	  DEBUGGING:
//	    recent_window: {weight: 14000, half_life: 30m}
//	    capsules: {rule: {exclude: true}}
type profileFile struct {
	Modes map[string]map[string]categoryOverride `yaml:"modes"`
}

type categoryOverride struct {
	Weight   *int           `yaml:"weight"`
	HalfLife *time.Duration `yaml:"half_life"`
	Capacity *int           `yaml:"capacity"`
	Rule     *ruleOverride  `yaml:"rule"`
}

type ruleOverride struct {
	Exclude     *bool          `yaml:"exclude"`
	RequireFlag *string        `yaml:"require_flag"`
	MinScore    *float64       `yaml:"min_score"`
	MaxAge      *time.Duration `yaml:"max_age"`
}

// LoadProfiles reads overrides from path and merges them over the defaults.
// An empty path returns the defaults. The merged set is validated as a whole.
func LoadProfiles(path string) (*Profiles, error) {
	if path == "" {
		return DefaultProfiles(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(raw)
}

// ParseProfiles merges YAML overrides over the default profile set.
func ParseProfiles(raw []byte) (*Profiles, error) {
	var file profileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	base := DefaultProfiles()
	merged := make([]Profile, 0, len(acb.AllModes))
	for name := range file.Modes {
		if !acb.Mode(name).Valid() {
			return nil, fmt.Errorf("unknown mode %q in profiles", name)
		}
	}

	for _, m := range acb.AllModes {
		current := base.For(m)
		table := make(map[acb.Category]CategoryProfile, len(acb.Categories))
		for _, c := range acb.Categories {
			table[c] = current.Category(c)
		}

		for name, override := range file.Modes[string(m)] {
			c := acb.Category(name)
			if !c.Valid() {
				return nil, fmt.Errorf("mode %s: unknown category %q in profiles", m, name)
			}
			table[c] = override.apply(table[c])
		}

		p, err := NewProfile(m, table)
		if err != nil {
			return nil, err
		}
		merged = append(merged, p)
	}
	return NewProfiles(merged...)
}

func (o categoryOverride) apply(cp CategoryProfile) CategoryProfile {
	if o.Weight != nil {
		cp.Weight = *o.Weight
	}
	if o.HalfLife != nil {
		cp.HalfLife = *o.HalfLife
	}
	if o.Capacity != nil {
		cp.Capacity = *o.Capacity
	}
	if o.Rule != nil {
		if o.Rule.Exclude != nil {
			cp.Rule.Exclude = *o.Rule.Exclude
		}
		if o.Rule.RequireFlag != nil {
			cp.Rule.RequireFlag = *o.Rule.RequireFlag
		}
		if o.Rule.MinScore != nil {
			cp.Rule.MinScore = *o.Rule.MinScore
		}
		if o.Rule.MaxAge != nil {
			cp.Rule.MaxAge = *o.Rule.MaxAge
		}
	}
	return cp
}
