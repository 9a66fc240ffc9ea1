package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/budget"
	"agent-memory-be/pkg/acb/packer"
	"agent-memory-be/pkg/acb/provenance"
	"agent-memory-be/pkg/acb/supplier"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memHistory struct {
	mu    sync.Mutex
	modes map[string][]acb.Mode
}

func newMemHistory() *memHistory {
	return &memHistory{modes: make(map[string][]acb.Mode)}
}

func (h *memHistory) LastModes(_ context.Context, key string, n int) ([]acb.Mode, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.modes[key]
	if len(m) > n {
		m = m[len(m)-n:]
	}
	return append([]acb.Mode(nil), m...), nil
}

func (h *memHistory) AppendMode(_ context.Context, key string, m acb.Mode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modes[key] = append(h.modes[key], m)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []provenance.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, evt provenance.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func fixture() map[acb.Category][]acb.CandidateItem {
	return map[acb.Category][]acb.CandidateItem{
		acb.CategoryRules: {
			{ID: "rule-cite", Content: "Answers must cite the source file", Importance: 0.9, Kind: acb.KindRule},
			{ID: "rule-tone", Content: "Prefer short paragraphs", Importance: 0.4, Kind: acb.KindRule},
		},
		acb.CategoryTaskState: {
			{ID: "task-1", Content: "Implementing retry worker for the billing queue", Importance: 0.8, Age: time.Hour},
		},
		acb.CategoryRecentWindow: {
			{ID: "msg-1", Content: "Can you add exponential backoff?", Actor: acb.ActorHuman, Age: 2 * time.Minute, Similarity: 0.6},
			{ID: "msg-2", Content: "Sure, starting with the worker loop.", Actor: acb.ActorAgent, Age: time.Minute, Similarity: 0.4},
		},
		acb.CategoryRetrievedEvidence: {
			{ID: "ev-1", Content: "worker.go: func (w *Worker) Run(ctx context.Context) error", Similarity: 0.9, Importance: 0.5},
			{ID: "ev-2", Content: "retry.go: const maxAttempts = 5", Similarity: 0.7, Importance: 0.5},
			{ID: "ev-secret", Content: "prod credentials rotation runbook", Similarity: 0.95, Importance: 0.9, Sensitivity: "restricted"},
		},
		acb.CategoryRelevantDecisions: {
			{ID: "dec-1", Content: "Use jittered backoff capped at 30s", Importance: 0.7, Age: 72 * time.Hour},
		},
		acb.CategoryCapsules: {
			{ID: "cap-1", Content: "Billing queue overview", Importance: 0.5},
		},
	}
}

func newBuilder(sup supplier.Supplier, opts ...func(*Config)) *Builder {
	cfg := Config{
		Supplier: sup,
		History:  newMemHistory(),
		Logger:   logger.NewNopLogger(),
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func baseRequest() acb.Request {
	return acb.Request{
		TenantID:    "tenant-a",
		SessionID:   "session-1",
		AgentID:     "agent-x",
		Intent:      "implement",
		Query:       "add retry backoff to the worker",
		TotalBudget: 6000,
	}
}

func TestBuild_HappyPath(t *testing.T) {
	sink := &recordingSink{}
	b := newBuilder(supplier.NewStatic(fixture()), func(c *Config) { c.Sink = sink })

	res, err := b.Build(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.False(t, res.Degraded)
	assert.Equal(t, acb.ModeTask, res.Provenance.Mode)
	assert.Equal(t, 6000, res.TotalBudget)
	assert.Equal(t, 6000, res.Provenance.Budgets.Total())
	assert.Equal(t, []acb.State{
		acb.StateReceived, acb.StateModeResolved, acb.StateBudgetsAllocated,
		acb.StateCandidatesRetrieved, acb.StateScored, acb.StateInvariantsReserved,
		acb.StatePacked, acb.StateProvenanceFinalized, acb.StateReturned,
	}, res.Provenance.States)
	assert.Equal(t, []string{"add", "retry", "backoff", "worker"}, res.Provenance.QueryTerms)

	require.Len(t, res.Sections, len(acb.Categories))
	total := 0
	for i, sec := range res.Sections {
		assert.Equal(t, acb.Categories[i], sec.Category)
		assert.LessOrEqual(t, sec.TokensUsed, sec.Budget)
		total += sec.TokensUsed
	}
	assert.Equal(t, total, res.TokensUsed)
	assert.LessOrEqual(t, res.TokensUsed, res.TotalBudget)

	rules, _ := res.Section(acb.CategoryRules)
	require.NotEmpty(t, rules.Items)
	assert.Equal(t, "rule-cite", rules.Items[0].Item.ID)
	assert.Equal(t, 1, res.Provenance.Invariants["hard_constraint"])

	// Capsules need the request flag.
	assert.Empty(t, res.CapsuleIDs)
	assert.Equal(t, 0, res.Provenance.PoolSizes[acb.CategoryCapsules])

	// The restricted item is filtered and audited.
	var filtered *acb.Omission
	for i, o := range res.Omissions {
		if o.Reason == acb.ReasonSensitivityFiltered {
			filtered = &res.Omissions[i]
		}
	}
	require.NotNil(t, filtered)
	assert.Equal(t, "ev-secret", filtered.BestID)

	require.Len(t, sink.events, 1)
	assert.Equal(t, res.ID, sink.events[0].BundleID)
	assert.Equal(t, "tenant-a", sink.events[0].TenantID)
}

func TestBuild_IncludeFlags(t *testing.T) {
	b := newBuilder(supplier.NewStatic(fixture()))
	req := baseRequest()
	req.IncludeCapsules = true
	req.IncludeQuarantined = true

	res, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"cap-1"}, res.CapsuleIDs)
	assert.Equal(t, 1, res.CapsuleCount)

	ev, _ := res.Section(acb.CategoryRetrievedEvidence)
	require.NotEmpty(t, ev.Items)
	assert.Equal(t, "ev-secret", ev.Items[0].Item.ID)
}

func TestBuild_Validation(t *testing.T) {
	b := newBuilder(supplier.NewStatic(fixture()))

	tests := []struct {
		name   string
		mutate func(*acb.Request)
	}{
		{"missing tenant", func(r *acb.Request) { r.TenantID = "" }},
		{"missing session", func(r *acb.Request) { r.SessionID = "" }},
		{"negative budget", func(r *acb.Request) { r.TotalBudget = -1 }},
		{"budget below category count", func(r *acb.Request) { r.TotalBudget = 5 }},
		{"budget above maximum", func(r *acb.Request) { r.TotalBudget = budget.MaxTotal + 1 }},
		{"negative deadline", func(r *acb.Request) { r.Deadline = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			res, err := b.Build(context.Background(), req)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, acb.ErrValidation)
			assert.Equal(t, acb.CodeValidation, acb.CodeOf(err))
		})
	}
}

func TestBuild_DefaultBudget(t *testing.T) {
	b := newBuilder(supplier.NewStatic(fixture()))
	req := baseRequest()
	req.TotalBudget = 0

	res, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, acb.DefaultTotalBudget, res.TotalBudget)
}

func TestBuild_CriticalRetrievalFails(t *testing.T) {
	sup := supplier.NewStatic(fixture()).FailWith(acb.CategoryRules, errors.New("rules store unavailable"))
	sink := &recordingSink{}
	b := newBuilder(sup, func(c *Config) { c.Sink = sink })

	res, err := b.Build(context.Background(), baseRequest())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, acb.ErrRetrievalFailed)
	assert.Empty(t, sink.events)
}

func TestBuild_NonCriticalRetrievalDegrades(t *testing.T) {
	sup := supplier.NewStatic(fixture()).FailWith(acb.CategoryRetrievedEvidence, errors.New("vector index offline"))
	b := newBuilder(sup)

	res, err := b.Build(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Contains(t, res.Provenance.RetrievalErrors, acb.CategoryRetrievedEvidence)
	ev, _ := res.Section(acb.CategoryRetrievedEvidence)
	assert.Empty(t, ev.Items)
	rules, _ := res.Section(acb.CategoryRules)
	assert.NotEmpty(t, rules.Items)
}

func TestBuild_DeadlineAfterCriticalResolved(t *testing.T) {
	sup := supplier.NewStatic(fixture()).Delay(acb.CategoryRelevantDecisions, time.Second)
	b := newBuilder(sup, func(c *Config) {
		c.Retrieval = supplier.Options{Timeout: 5 * time.Second}
	})
	req := baseRequest()
	req.Deadline = 50 * time.Millisecond

	res, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	rules, _ := res.Section(acb.CategoryRules)
	assert.False(t, rules.Curtailed)
	assert.NotEmpty(t, rules.Items)
	capsules, _ := res.Section(acb.CategoryCapsules)
	assert.True(t, capsules.Curtailed)
}

func TestDeadlineOutcome(t *testing.T) {
	expired, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name          string
		ctx           context.Context
		curtailed     bool
		wantCurtailed bool
		wantNote      string
	}{
		{"in time", context.Background(), false, false, ""},
		{"expired during packing", expired, true, true, "build deadline of 2s reached; remaining sections curtailed"},
		{"expired after packing", expired, false, false, "build deadline of 2s reached after packing completed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curtailed, note := deadlineOutcome(tt.ctx, packer.Output{Curtailed: tt.curtailed}, 2*time.Second)
			assert.Equal(t, tt.wantCurtailed, curtailed)
			assert.Equal(t, tt.wantNote, note)
		})
	}
}

func TestBuild_DeadlineBeforeCriticalResolved(t *testing.T) {
	sup := supplier.NewStatic(fixture()).Delay(acb.CategoryTaskState, time.Second)
	b := newBuilder(sup, func(c *Config) {
		c.Retrieval = supplier.Options{Timeout: 5 * time.Second}
	})
	req := baseRequest()
	req.Deadline = 30 * time.Millisecond

	res, err := b.Build(context.Background(), req)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, acb.ErrDeadlineExceeded)
}

func TestBuild_SafetyReclaimsCapsules(t *testing.T) {
	pools := fixture()
	pools[acb.CategoryRules] = append(pools[acb.CategoryRules], acb.CandidateItem{
		ID:      "safety-1",
		Content: strings.Repeat("never run destructive migrations ", 10),
		Kind:    acb.KindSafety,
		Tokens:  91,
	})
	b := newBuilder(supplier.NewStatic(pools))
	req := baseRequest()
	// TASK at 530 tokens: rules and capsules get 60 each. The reserved
	// safety item (91) plus the cite rule (9) need 100.
	req.TotalBudget = 530

	res, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, res.ReallocationCount)
	require.Len(t, res.Provenance.Reallocations, 1)
	assert.Equal(t, acb.Reallocation{From: acb.CategoryCapsules, To: acb.CategoryRules, Tokens: 40}, res.Provenance.Reallocations[0])
	assert.Equal(t, 20, res.Provenance.Budgets[acb.CategoryCapsules])

	rules, _ := res.Section(acb.CategoryRules)
	require.NotEmpty(t, rules.Items)
	assert.Equal(t, "safety-1", rules.Items[0].Item.ID)
	assert.Equal(t, 100, rules.Budget)
}

func TestBuild_BudgetExhausted(t *testing.T) {
	pools := fixture()
	pools[acb.CategoryRules] = []acb.CandidateItem{{ID: "safety-huge", Kind: acb.KindSafety, Tokens: 10000}}
	b := newBuilder(supplier.NewStatic(pools))

	res, err := b.Build(context.Background(), baseRequest())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, acb.ErrBudgetExhausted)
}

func TestBuild_ModeSmoothing(t *testing.T) {
	history := newMemHistory()
	history.modes["tenant-a:session-1"] = []acb.Mode{acb.ModeTask, acb.ModeDebugging, acb.ModeExploration}
	b := newBuilder(supplier.NewStatic(fixture()), func(c *Config) { c.History = history })

	res, err := b.Build(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, acb.ModeGeneral, res.Provenance.Mode)
	assert.Equal(t, acb.ModeTask, res.Provenance.ClassifiedMode)
	assert.True(t, res.Provenance.Smoothed)
}

func TestBuild_InvalidWeightsFallBack(t *testing.T) {
	b := newBuilder(supplier.NewStatic(fixture()))
	req := baseRequest()
	req.Weights = &acb.Weights{Alpha: 0.9, Beta: 0.9, Gamma: 0.9}

	res, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Provenance.WeightsFallback)
	assert.Equal(t, acb.DefaultWeights, res.Provenance.Weights)
}

func TestBuild_DuplicateIDsDropped(t *testing.T) {
	pools := fixture()
	pools[acb.CategoryRecentWindow] = append(pools[acb.CategoryRecentWindow], acb.CandidateItem{ID: "task-1", Content: "dup"})
	b := newBuilder(supplier.NewStatic(pools))

	res, err := b.Build(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Provenance.PoolSizes[acb.CategoryRecentWindow])

	found := false
	for _, n := range res.Provenance.Notes {
		found = found || strings.Contains(n, "duplicate candidate task-1")
	}
	assert.True(t, found)
}

func TestBuild_SinkFailureDoesNotFail(t *testing.T) {
	sink := &recordingSink{err: errors.New("bus closed")}
	b := newBuilder(supplier.NewStatic(fixture()), func(c *Config) { c.Sink = sink })

	_, err := b.Build(context.Background(), baseRequest())
	assert.NoError(t, err)
	assert.Len(t, sink.events, 1)
}

func TestBuild_Deterministic(t *testing.T) {
	ignore := cmpopts.IgnoreFields(acb.Result{}, "ID", "Duration")

	var first *acb.Result
	for i := 0; i < 10; i++ {
		// Fresh history each run so smoothing cannot differ.
		b := newBuilder(supplier.NewStatic(fixture()))
		res, err := b.Build(context.Background(), baseRequest())
		require.NoError(t, err)
		if first == nil {
			first = res
			continue
		}
		if diff := cmp.Diff(first, res, ignore); diff != "" {
			t.Fatalf("build %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestBuild_Concurrent(t *testing.T) {
	b := newBuilder(supplier.NewStatic(fixture()))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := baseRequest()
			req.SessionID = fmt.Sprintf("session-%d", i)
			if _, err := b.Build(context.Background(), req); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
