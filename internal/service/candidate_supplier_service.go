// FILE: internal/service/candidate_supplier_service.go
// PURPOSE: Serves bundle candidates from the acb_chunks table

package service

import (
	"context"
	"fmt"
	"time"

	"agent-memory-be/internal/mapper"
	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/internal/repository/specification"
	"agent-memory-be/internal/repository/unitofwork"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/supplier"
	"agent-memory-be/pkg/lexical"
)

type candidateSupplierService struct {
	uowFactory unitofwork.RepositoryFactory
	mapper     *mapper.ChunkMapper
	logger     logger.ILogger
	now        func() time.Time
}

func NewCandidateSupplierService(uowFactory unitofwork.RepositoryFactory, log logger.ILogger) supplier.Supplier {
	return &candidateSupplierService{
		uowFactory: uowFactory,
		mapper:     mapper.NewChunkMapper(),
		logger:     log,
		now:        time.Now,
	}
}

// sessionScoped categories only make sense within the current session.
func sessionScoped(c acb.Category) bool {
	return c == acb.CategoryRecentWindow || c == acb.CategoryTaskState
}

// vectorSearched categories are ranked by embedding similarity when the
// request carries a query vector.
func vectorSearched(c acb.Category) bool {
	switch c {
	case acb.CategoryRetrievedEvidence, acb.CategoryRelevantDecisions, acb.CategoryCapsules:
		return true
	}
	return false
}

func (s *candidateSupplierService) specsFor(req supplier.FetchRequest) []specification.Specification {
	specs := []specification.Specification{
		specification.ByTenant{TenantID: req.TenantID},
		specification.ByCategory{Category: string(req.Category)},
		specification.ScopedTo{Subject: req.Subject, Project: req.Project},
	}
	if sessionScoped(req.Category) {
		specs = append(specs, specification.BySession{SessionID: req.SessionID})
	}
	return append(specs, specification.Limit{N: req.Limit})
}

func (s *candidateSupplierService) Fetch(ctx context.Context, req supplier.FetchRequest) ([]acb.CandidateItem, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("fetch %s: tenant is required", req.Category)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.ChunkRepository()
	specs := s.specsFor(req)
	now := s.now()

	if len(req.QueryVector) > 0 && vectorSearched(req.Category) {
		scored, err := repo.SearchSimilar(ctx, req.QueryVector, specs...)
		if err != nil {
			return nil, fmt.Errorf("vector search %s: %w", req.Category, err)
		}
		out := make([]acb.CandidateItem, 0, len(scored))
		for _, sc := range scored {
			out = append(out, s.mapper.ToCandidate(sc.Chunk, sc.Similarity, now))
		}
		return out, nil
	}

	chunks, err := repo.FindAll(ctx, specs...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Category, err)
	}
	out := make([]acb.CandidateItem, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, s.mapper.ToCandidate(c, lexical.Overlap(req.QueryTerms, c.Content), now))
	}

	s.logger.Debug("SUPPLIER", "Fetched candidates", map[string]interface{}{
		"tenant_id": req.TenantID,
		"category":  req.Category,
		"count":     len(out),
	})
	return out, nil
}
