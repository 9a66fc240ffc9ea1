package budget

import (
	"fmt"
	"math/bits"
	"sort"

	"agent-memory-be/pkg/acb"
)

// MaxTotal is the largest budget a single bundle may be given.
const MaxTotal = 10_000_000

// Allocate scales p's nominal weights to total with largest-remainder
// rounding. The result sums to total exactly.
func Allocate(p Profile, total int) (acb.CategoryBudget, error) {
	if total <= 0 {
		return nil, fmt.Errorf("total budget must be positive, got %d", total)
	}
	if total > MaxTotal {
		return nil, fmt.Errorf("total budget must be at most %d, got %d", MaxTotal, total)
	}
	sum := p.WeightSum()
	if sum <= 0 {
		return nil, fmt.Errorf("profile %s has no weight", p.Mode())
	}

	type share struct {
		category  acb.Category
		remainder uint64
		priority  int
	}

	out := make(acb.CategoryBudget, len(acb.Categories))
	shares := make([]share, 0, len(acb.Categories))
	assigned := 0
	for i, c := range acb.RemainderPriority {
		// weight <= sum, so the quotient never exceeds total.
		hi, lo := bits.Mul64(uint64(p.Category(c).Weight), uint64(total))
		quo, rem := bits.Div64(hi, lo, uint64(sum))
		floor := int(quo)
		out[c] = floor
		assigned += floor
		shares = append(shares, share{category: c, remainder: rem, priority: i})
	}

	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].remainder != shares[j].remainder {
			return shares[i].remainder > shares[j].remainder
		}
		return shares[i].priority < shares[j].priority
	})

	left := total - assigned
	if left < 0 || left >= len(shares) {
		return nil, fmt.Errorf("profile %s allocated %d of %d tokens", p.Mode(), assigned, total)
	}
	for i := 0; i < left; i++ {
		out[shares[i%len(shares)].category]++
	}
	return out, nil
}

// Allocator resolves mode profiles to budgets.
type Allocator struct {
	profiles *Profiles
}

// NewAllocator creates an allocator over a validated profile set.
func NewAllocator(profiles *Profiles) *Allocator {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Allocator{profiles: profiles}
}

// Profile returns the profile used for m.
func (a *Allocator) Profile(m acb.Mode) Profile {
	return a.profiles.For(m)
}

// Allocate returns the budget of m scaled to total.
func (a *Allocator) Allocate(m acb.Mode, total int) (acb.CategoryBudget, error) {
	return Allocate(a.profiles.For(m), total)
}
