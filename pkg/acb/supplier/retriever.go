package supplier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/budget"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Retrieval defaults.
const (
	DefaultConcurrency = 4
	DefaultTimeout     = 800 * time.Millisecond
	DefaultPoolLimit   = 100
)

// Options tune the fan-out.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	PoolLimit   int
}

// Retrieval is the fan-out result of one build.
type Retrieval struct {
	Pools map[acb.Category][]acb.CandidateItem
	// Failures holds non-critical categories degraded to an empty pool.
	Failures map[acb.Category]error
	// Skipped lists categories not fetched because of an inclusion rule.
	Skipped []acb.Category
}

// Retriever fetches every allowed category concurrently.
type Retriever struct {
	supplier Supplier
	opts     Options
	logger   logger.ILogger
}

func NewRetriever(supplier Supplier, opts Options, logger logger.ILogger) *Retriever {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PoolLimit <= 0 {
		opts.PoolLimit = DefaultPoolLimit
	}
	return &Retriever{supplier: supplier, opts: opts, logger: logger}
}

// Retrieve fans out one fetch per allowed category. A failed or timed-out
// non-critical category degrades to an empty pool. A critical failure cancels
// the remaining fetches and returns RETRIEVAL_FAILED, or DEADLINE_EXCEEDED
// when the build context expired first.
func (r *Retriever) Retrieve(ctx context.Context, req acb.Request, terms []string, sensitivity []string, profile budget.Profile) (Retrieval, error) {
	out := Retrieval{
		Pools:    make(map[acb.Category][]acb.CandidateItem, len(acb.Categories)),
		Failures: make(map[acb.Category]error),
	}

	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(r.opts.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for _, c := range acb.Categories {
		if !profile.Retrieve(c, req) {
			out.Skipped = append(out.Skipped, c)
			out.Pools[c] = []acb.CandidateItem{}
			continue
		}
		category := c
		g.Go(func() error {
			items, err := r.fetch(gctx, sem, req, category, terms, sensitivity)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				out.Pools[category] = items
				return nil
			}

			out.Pools[category] = []acb.CandidateItem{}
			if !category.Critical() {
				out.Failures[category] = err
				r.logger.Warn("SUPPLIER", "Category retrieval degraded", map[string]interface{}{
					"category": category,
					"error":    err.Error(),
				})
				return nil
			}
			if ctx.Err() != nil {
				return acb.NewDeadlineError(acb.StateCandidatesRetrieved, ctx.Err())
			}
			return acb.NewRetrievalError(category, err)
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Error("SUPPLIER", "Critical retrieval failed", map[string]interface{}{
			"error":   err.Error(),
			"tenant":  req.TenantID,
			"session": req.SessionID,
		})
		return Retrieval{}, err
	}
	return out, nil
}

func (r *Retriever) fetch(ctx context.Context, sem *semaphore.Weighted, req acb.Request, c acb.Category, terms, sensitivity []string) ([]acb.CandidateItem, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)

	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	items, err := r.supplier.Fetch(fetchCtx, FetchRequest{
		TenantID:    req.TenantID,
		SessionID:   req.SessionID,
		Category:    c,
		Query:       req.Query,
		QueryTerms:  terms,
		QueryVector: req.QueryVector,
		Subject:     req.Subject,
		Project:     req.Project,
		Sensitivity: sensitivity,
		Limit:       r.opts.PoolLimit,
	})
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("fetch %s timed out after %s: %w", c, r.opts.Timeout, err)
		}
		return nil, err
	}
	for i := range items {
		items[i].Category = c
	}
	return items, nil
}
