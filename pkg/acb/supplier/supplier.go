// Package supplier defines the candidate supplier contract and the bounded
// concurrent fan-out that feeds a build.
package supplier

import (
	"context"
	"sort"
	"sync"
	"time"

	"agent-memory-be/pkg/acb"
)

// FetchRequest scopes one category fetch.
type FetchRequest struct {
	TenantID    string
	SessionID   string
	Category    acb.Category
	Query       string
	QueryTerms  []string
	QueryVector []float32
	Subject     string
	Project     string
	// Sensitivity lists the labels the core will accept; suppliers may use it
	// to narrow their query. The core filters regardless.
	Sensitivity []string
	Limit       int
}

// Supplier returns candidates for one category. Implementations apply
// tenant isolation.
type Supplier interface {
	Fetch(ctx context.Context, req FetchRequest) ([]acb.CandidateItem, error)
}

// SupplierFunc adapts a function to Supplier.
type SupplierFunc func(ctx context.Context, req FetchRequest) ([]acb.CandidateItem, error)

func (f SupplierFunc) Fetch(ctx context.Context, req FetchRequest) ([]acb.CandidateItem, error) {
	return f(ctx, req)
}

// Static serves fixed in-memory pools. Failures and delays can be injected
// per category.
type Static struct {
	mu       sync.RWMutex
	pools    map[acb.Category][]acb.CandidateItem
	failures map[acb.Category]error
	delays   map[acb.Category]time.Duration
}

func NewStatic(pools map[acb.Category][]acb.CandidateItem) *Static {
	s := &Static{
		pools:    make(map[acb.Category][]acb.CandidateItem, len(pools)),
		failures: make(map[acb.Category]error),
		delays:   make(map[acb.Category]time.Duration),
	}
	for c, items := range pools {
		s.pools[c] = append([]acb.CandidateItem(nil), items...)
	}
	return s
}

// Add appends candidates to their own categories.
func (s *Static) Add(items ...acb.CandidateItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.pools[it.Category] = append(s.pools[it.Category], it)
	}
}

// FailWith makes every fetch of c return err.
func (s *Static) FailWith(c acb.Category, err error) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[c] = err
	return s
}

// Delay holds every fetch of c for d or until its context ends.
func (s *Static) Delay(c acb.Category, d time.Duration) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[c] = d
	return s
}

func (s *Static) Fetch(ctx context.Context, req FetchRequest) ([]acb.CandidateItem, error) {
	s.mu.RLock()
	delay := s.delays[req.Category]
	failure := s.failures[req.Category]
	pool := s.pools[req.Category]
	s.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if failure != nil {
		return nil, failure
	}

	out := make([]acb.CandidateItem, 0, len(pool))
	for _, it := range pool {
		it.Category = req.Category
		out = append(out, it)
	}
	if req.Limit > 0 && len(out) > req.Limit {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
		out = out[:req.Limit]
	}
	return out, nil
}
