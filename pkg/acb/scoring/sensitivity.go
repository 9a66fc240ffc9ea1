package scoring

import (
	"sort"
	"strings"

	"agent-memory-be/pkg/acb"
)

// Policy decides which sensitivity labels may enter a bundle.
type Policy struct {
	allowed    map[string]struct{}
	quarantine map[string]struct{}
}

// Default label sets.
var (
	DefaultAllowed            = []string{acb.SensitivityNone, "low", "medium"}
	DefaultQuarantineEligible = []string{"restricted", "quarantined"}
)

// NewPolicy builds a policy. Empty lists fall back to the defaults.
// Quarantine-eligible labels are never part of the allowed set.
func NewPolicy(allowed, quarantineEligible []string) Policy {
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}
	if len(quarantineEligible) == 0 {
		quarantineEligible = DefaultQuarantineEligible
	}
	quarantine := toSet(quarantineEligible)
	set := toSet(allowed)
	for l := range quarantine {
		delete(set, l)
	}
	return Policy{allowed: set, quarantine: quarantine}
}

// DefaultPolicy allows none/low/medium and releases restricted/quarantined on request.
func DefaultPolicy() Policy {
	return NewPolicy(nil, nil)
}

// ForRequest narrows the allowed set to the labels the request also lists.
// A request can never admit a label the policy does not allow.
func (p Policy) ForRequest(req acb.Request) Policy {
	if len(req.AllowedSensitivity) == 0 {
		return p
	}
	narrowed := make(map[string]struct{}, len(req.AllowedSensitivity))
	for l := range toSet(req.AllowedSensitivity) {
		if _, ok := p.allowed[l]; ok {
			narrowed[l] = struct{}{}
		}
	}
	return Policy{allowed: narrowed, quarantine: p.quarantine}
}

// Permits reports whether label may be packed.
func (p Policy) Permits(label string, includeQuarantined bool) bool {
	label = normalize(label)
	if _, ok := p.allowed[label]; ok {
		return true
	}
	if includeQuarantined {
		_, ok := p.quarantine[label]
		return ok
	}
	return false
}

// Labels returns the effective label set, sorted, for provenance.
func (p Policy) Labels(includeQuarantined bool) []string {
	out := make([]string, 0, len(p.allowed)+len(p.quarantine))
	for l := range p.allowed {
		out = append(out, l)
	}
	if includeQuarantined {
		for l := range p.quarantine {
			if _, dup := p.allowed[l]; !dup {
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out
}

func normalize(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return acb.SensitivityNone
	}
	return label
}

func toSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[normalize(l)] = struct{}{}
	}
	return set
}
