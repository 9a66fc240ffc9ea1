package budget

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agent-memory-be/pkg/acb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfilesSumToNominal(t *testing.T) {
	profiles := DefaultProfiles()
	for _, m := range acb.AllModes {
		assert.Equal(t, 53000, profiles.For(m).WeightSum(), "mode %s", m)
	}
}

func TestAllocate_HalvedTaskBudget(t *testing.T) {
	a := NewAllocator(nil)

	got, err := a.Allocate(acb.ModeTask, 26500)
	require.NoError(t, err)

	want := acb.CategoryBudget{
		acb.CategoryRules:             3000,
		acb.CategoryTaskState:         4500,
		acb.CategoryRecentWindow:      4000,
		acb.CategoryRetrievedEvidence: 9000,
		acb.CategoryRelevantDecisions: 3000,
		acb.CategoryCapsules:          3000,
	}
	assert.Equal(t, want, got)
}

func TestAllocate_LargestRemainder(t *testing.T) {
	got, err := NewAllocator(nil).Allocate(acb.ModeTask, 65000)
	require.NoError(t, err)

	// task_state has the largest remainder; rules beats decisions and
	// capsules on the tie.
	want := acb.CategoryBudget{
		acb.CategoryRules:             7359,
		acb.CategoryTaskState:         11038,
		acb.CategoryRecentWindow:      9811,
		acb.CategoryRetrievedEvidence: 22075,
		acb.CategoryRelevantDecisions: 7359,
		acb.CategoryCapsules:          7358,
	}
	assert.Equal(t, want, got)
}

func TestAllocate_SumsExactly(t *testing.T) {
	a := NewAllocator(nil)
	totals := []int{1, 5, 6, 7, 999, 1000, 26500, 53000, 64999, 65000, 128001, MaxTotal - 1, MaxTotal}

	for _, m := range acb.AllModes {
		p := a.Profile(m)
		for _, total := range totals {
			got, err := a.Allocate(m, total)
			require.NoError(t, err)
			assert.Equal(t, total, got.Total(), "mode %s total %d", m, total)

			for _, c := range acb.Categories {
				floor := p.Category(c).Weight * total / p.WeightSum()
				assert.GreaterOrEqual(t, got[c], floor)
				assert.LessOrEqual(t, got[c], floor+1)
			}
		}
	}
}

func TestAllocate_RejectsNonPositiveTotal(t *testing.T) {
	_, err := NewAllocator(nil).Allocate(acb.ModeTask, 0)
	assert.Error(t, err)
}

func TestAllocate_RejectsAboveMaxTotal(t *testing.T) {
	a := NewAllocator(nil)
	for _, total := range []int{MaxTotal + 1, 1 << 50, int(^uint(0) >> 1)} {
		got, err := a.Allocate(acb.ModeTask, total)
		assert.Nil(t, got)
		assert.Error(t, err, "total %d", total)
	}
}

func TestAllocate_MaxTotalTask(t *testing.T) {
	got, err := NewAllocator(nil).Allocate(acb.ModeTask, MaxTotal)
	require.NoError(t, err)
	assert.Equal(t, MaxTotal, got.Total())
	floor := 6000 * MaxTotal / 53000
	assert.GreaterOrEqual(t, got[acb.CategoryRules], floor)
	assert.LessOrEqual(t, got[acb.CategoryRules], floor+1)
}

func TestAllocate_UnknownModeUsesGeneral(t *testing.T) {
	a := NewAllocator(nil)
	got, err := a.Allocate(acb.Mode("CHAOS"), 53000)
	require.NoError(t, err)
	assert.Equal(t, 17000, got[acb.CategoryRetrievedEvidence])
}

func TestNewProfile_Validation(t *testing.T) {
	valid := func() map[acb.Category]CategoryProfile {
		out := make(map[acb.Category]CategoryProfile)
		for _, c := range acb.Categories {
			out[c] = CategoryProfile{Weight: 1000, HalfLife: time.Hour, Capacity: 5}
		}
		return out
	}

	tests := []struct {
		name   string
		mutate func(map[acb.Category]CategoryProfile)
	}{
		{"missing category", func(m map[acb.Category]CategoryProfile) { delete(m, acb.CategoryCapsules) }},
		{"unknown category", func(m map[acb.Category]CategoryProfile) { m["gossip"] = CategoryProfile{Weight: 1, HalfLife: time.Hour, Capacity: 1} }},
		{"negative weight", func(m map[acb.Category]CategoryProfile) {
			cp := m[acb.CategoryRules]
			cp.Weight = -1
			m[acb.CategoryRules] = cp
		}},
		{"zero half-life", func(m map[acb.Category]CategoryProfile) {
			cp := m[acb.CategoryRules]
			cp.HalfLife = 0
			m[acb.CategoryRules] = cp
		}},
		{"zero sum", func(m map[acb.Category]CategoryProfile) {
			for c, cp := range m {
				cp.Weight = 0
				m[c] = cp
			}
		}},
		{"unknown flag", func(m map[acb.Category]CategoryProfile) {
			cp := m[acb.CategoryCapsules]
			cp.Rule.RequireFlag = "include_everything"
			m[acb.CategoryCapsules] = cp
		}},
	}

	_, err := NewProfile(acb.ModeTask, valid())
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := valid()
			tt.mutate(table)
			_, err := NewProfile(acb.ModeTask, table)
			assert.Error(t, err)
		})
	}
}

func TestProfile_Retrieve(t *testing.T) {
	p := DefaultProfiles().For(acb.ModeTask)

	assert.False(t, p.Retrieve(acb.CategoryCapsules, acb.Request{}))
	assert.True(t, p.Retrieve(acb.CategoryCapsules, acb.Request{IncludeCapsules: true}))
	assert.True(t, p.Retrieve(acb.CategoryRules, acb.Request{}))
}

func TestParseProfiles_MergesOverDefaults(t *testing.T) {
	raw := []byte(`
modes:
  DEBUGGING:
    recent_window:
      weight: 14000
      half_life: 30m
    capsules:
      rule:
        exclude: true
`)
	profiles, err := ParseProfiles(raw)
	require.NoError(t, err)

	dbg := profiles.For(acb.ModeDebugging)
	assert.Equal(t, 14000, dbg.Category(acb.CategoryRecentWindow).Weight)
	assert.Equal(t, 30*time.Minute, dbg.HalfLife(acb.CategoryRecentWindow))
	assert.Equal(t, 55000, dbg.WeightSum())
	assert.True(t, dbg.Rule(acb.CategoryCapsules).Exclude)
	assert.Equal(t, acb.FlagIncludeCapsules, dbg.Rule(acb.CategoryCapsules).RequireFlag)

	assert.Equal(t, 53000, profiles.For(acb.ModeTask).WeightSum())
}

func TestParseProfiles_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown mode":     "modes:\n  CHAOS:\n    rules: {weight: 1}\n",
		"unknown category": "modes:\n  TASK:\n    gossip: {weight: 1}\n",
		"bad half-life":    "modes:\n  TASK:\n    rules: {half_life: 0s}\n",
		"not yaml":         "modes: [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProfiles([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadProfiles(t *testing.T) {
	profiles, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Equal(t, 53000, profiles.For(acb.ModeGeneral).WeightSum())

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modes:\n  TASK:\n    rules: {capacity: 3}\n"), 0o600))
	profiles, err = LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, 3, profiles.For(acb.ModeTask).Category(acb.CategoryRules).Capacity)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
