// FILE: internal/service/acb_service.go
// PURPOSE: Application service over the bundle builder, event ingest and audit lookups

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"agent-memory-be/internal/dto"
	"agent-memory-be/internal/entity"
	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/internal/repository/specification"
	"agent-memory-be/internal/repository/unitofwork"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/builder"
	"agent-memory-be/pkg/embedding"
	"agent-memory-be/pkg/utils"

	"github.com/google/uuid"
)

var (
	ErrStorageUnavailable = errors.New("memory storage is not configured")
	ErrAuditNotFound      = errors.New("bundle audit not found")
)

const (
	// Events longer than this are stored as several chunks.
	chunkMaxTokens      = 512
	chunkOverlapTokens  = 32
	maxAuditPageSize    = 100
	defaultEmbedTimeout = 300 * time.Millisecond
)

type IAcbService interface {
	Build(ctx context.Context, tenantID string, req *dto.BuildBundleRequest) (*dto.BuildBundleResponse, error)
	RecordEvent(ctx context.Context, tenantID string, req *dto.RecordEventRequest) (*dto.RecordEventResponse, error)
	GetAudit(ctx context.Context, tenantID string, id uuid.UUID) (*dto.BundleAuditResponse, error)
	ListSessionAudits(ctx context.Context, tenantID, sessionID string, limit, offset int) ([]*dto.BundleAuditResponse, error)
	Profiles() []*dto.ProfileResponse
}

type acbService struct {
	builder      *builder.Builder
	uowFactory   unitofwork.RepositoryFactory
	embedder     embedding.Provider
	embedTimeout time.Duration
	logger       logger.ILogger
	now          func() time.Time
}

// NewAcbService wires the builder. uowFactory and embedder may be nil: without
// storage, ingest and audits are unavailable; without an embedder, similarity
// is lexical.
func NewAcbService(
	b *builder.Builder,
	uowFactory unitofwork.RepositoryFactory,
	embedder embedding.Provider,
	embedTimeout time.Duration,
	log logger.ILogger,
) IAcbService {
	return &acbService{
		builder:      b,
		uowFactory:   uowFactory,
		embedder:     embedder,
		embedTimeout: embedTimeout,
		logger:       log,
		now:          time.Now,
	}
}

// ====== BUILD ======

func (s *acbService) Build(ctx context.Context, tenantID string, req *dto.BuildBundleRequest) (*dto.BuildBundleResponse, error) {
	r := acb.Request{
		TenantID:           tenantID,
		SessionID:          req.SessionId,
		AgentID:            req.AgentId,
		Channel:            req.Channel,
		Intent:             req.Intent,
		Query:              req.QueryText,
		TotalBudget:        req.BudgetTokens,
		Subject:            req.Subject,
		Project:            req.Project,
		IncludeCapsules:    req.IncludeCapsules,
		IncludeQuarantined: req.IncludeQuarantined,
		AllowedSensitivity: req.AllowedSensitivity,
		QueryVector:        req.QueryVector,
		Deadline:           time.Duration(req.DeadlineMs) * time.Millisecond,
	}
	if req.ScoringWeights != nil {
		r.Weights = &acb.Weights{
			Alpha: req.ScoringWeights.Alpha,
			Beta:  req.ScoringWeights.Beta,
			Gamma: req.ScoringWeights.Gamma,
		}
	}
	if len(r.QueryVector) == 0 {
		r.QueryVector = s.embedQuery(ctx, r.Query)
	}

	res, err := s.builder.Build(ctx, r)
	if err != nil {
		return nil, err
	}
	return toBuildBundleResponse(res), nil
}

// embedQuery returns nil when embedding is disabled or fails; the build then
// falls back to lexical similarity.
func (s *acbService) embedQuery(ctx context.Context, query string) []float32 {
	if s.embedder == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	timeout := s.embedTimeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query, embedding.TaskQuery)
	if err != nil {
		s.logger.Warn("ACB", "Query embedding failed, using lexical similarity", map[string]interface{}{
			"provider": s.embedder.Name(),
			"error":    err.Error(),
		})
		return nil
	}
	return vec
}

func toBuildBundleResponse(res *acb.Result) *dto.BuildBundleResponse {
	sections := make([]dto.BundleSectionResponse, 0, len(res.Sections))
	for _, sec := range res.Sections {
		items := make([]dto.BundleItemResponse, 0, len(sec.Items))
		for _, it := range sec.Items {
			items = append(items, dto.BundleItemResponse{
				Id:          it.Item.ID,
				Content:     it.Item.Content,
				Tokens:      acb.TokensOf(it.Item),
				Score:       it.Score,
				Rank:        it.Rank,
				Sensitivity: it.Item.Label(),
				Kind:        it.Item.Kind,
				Invariant:   it.Tier,
			})
		}
		sections = append(sections, dto.BundleSectionResponse{
			Name:         string(sec.Category),
			BudgetTokens: sec.Budget,
			TokenUsedEst: sec.TokensUsed,
			Curtailed:    sec.Curtailed,
			Items:        items,
		})
	}

	capsules := res.CapsuleIDs
	if capsules == nil {
		capsules = make([]string, 0)
	}

	return &dto.BuildBundleResponse{
		AcbId:             res.ID,
		BudgetTokens:      res.TotalBudget,
		TokenUsedEst:      res.TokensUsed,
		Sections:          sections,
		Omissions:         res.Omissions,
		CapsulesIncluded:  capsules,
		CapsuleCount:      res.CapsuleCount,
		ReallocationCount: res.ReallocationCount,
		Degraded:          res.Degraded,
		DurationMs:        res.Duration.Milliseconds(),
		Provenance:        res.Provenance,
	}
}

// ====== EVENTS ======

// CategoryForKind maps a recorded event kind to the bundle category it feeds.
func CategoryForKind(kind string) acb.Category {
	switch kind {
	case acb.KindRule, acb.KindSafety:
		return acb.CategoryRules
	case acb.KindCorrection, acb.KindError, acb.KindTaskState:
		return acb.CategoryTaskState
	case acb.KindMessage:
		return acb.CategoryRecentWindow
	case acb.KindDecision:
		return acb.CategoryRelevantDecisions
	case acb.KindCapsule:
		return acb.CategoryCapsules
	default:
		return acb.CategoryRetrievedEvidence
	}
}

// defaultImportance ranks kinds when the event does not say.
var defaultImportance = map[string]float64{
	acb.KindSafety:     1.0,
	acb.KindRule:       0.9,
	acb.KindCorrection: 0.8,
	acb.KindError:      0.7,
	acb.KindDecision:   0.6,
	acb.KindTaskState:  0.6,
	acb.KindCapsule:    0.5,
	acb.KindEvidence:   0.5,
	acb.KindMessage:    0.4,
}

func (s *acbService) RecordEvent(ctx context.Context, tenantID string, req *dto.RecordEventRequest) (*dto.RecordEventResponse, error) {
	if s.uowFactory == nil {
		return nil, ErrStorageUnavailable
	}

	eventID := uuid.New()
	category := CategoryForKind(req.Kind)

	importance := defaultImportance[req.Kind]
	if req.Importance != nil {
		importance = *req.Importance
	}
	sensitivity := strings.ToLower(strings.TrimSpace(req.Sensitivity))
	if sensitivity == "" {
		sensitivity = acb.SensitivityNone
	}
	ts := s.now()
	if req.Ts != nil {
		ts = *req.Ts
	}

	metadata := map[string]any{
		"event_id": eventID.String(),
		"actor_id": req.Actor.Id,
	}
	if req.Channel != "" {
		metadata["channel"] = req.Channel
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	pieces := utils.SplitText(req.Content.Text, chunkMaxTokens*acb.CharsPerToken, chunkOverlapTokens*acb.CharsPerToken)
	embedded := s.embedder != nil
	chunks := make([]*entity.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		c := &entity.Chunk{
			Id:          uuid.New(),
			TenantId:    tenantID,
			SessionId:   req.SessionId,
			Category:    string(category),
			Kind:        req.Kind,
			Actor:       req.Actor.Type,
			Content:     piece,
			Tokens:      acb.EstimateTokens(piece),
			Importance:  importance,
			Sensitivity: sensitivity,
			Subject:     req.Subject,
			Project:     req.Project,
			Tags:        req.Tags,
			Metadata:    withChunkIndex(metadata, i, len(pieces)),
			Blocking:    req.Blocking,
			Ts:          ts,
		}
		if embedded {
			vec, err := s.embedder.Embed(ctx, piece, embedding.TaskDocument)
			if err != nil {
				// Stored chunks stay reachable through lexical similarity.
				s.logger.Warn("ACB", "Chunk embedding failed", map[string]interface{}{
					"event_id": eventID,
					"error":    err.Error(),
				})
				embedded = false
			} else {
				c.Embedding = vec
			}
		}
		chunks = append(chunks, c)
	}
	if !embedded {
		for _, c := range chunks {
			c.Embedding = nil
		}
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.ChunkRepository().CreateBulk(ctx, chunks); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.Id)
	}

	s.logger.Info("ACB", "Event recorded", map[string]interface{}{
		"tenant_id":  tenantID,
		"session_id": req.SessionId,
		"kind":       req.Kind,
		"category":   category,
		"chunks":     len(ids),
	})

	return &dto.RecordEventResponse{
		EventId:  eventID,
		ChunkIds: ids,
		Category: string(category),
		Embedded: embedded,
	}, nil
}

func withChunkIndex(base map[string]any, index, total int) map[string]any {
	out := make(map[string]any, len(base)+2)
	for k, v := range base {
		out[k] = v
	}
	if total > 1 {
		out["chunk_index"] = index
		out["chunk_total"] = total
	}
	return out
}

// ====== AUDITS ======

func (s *acbService) GetAudit(ctx context.Context, tenantID string, id uuid.UUID) (*dto.BundleAuditResponse, error) {
	if s.uowFactory == nil {
		return nil, ErrStorageUnavailable
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	audit, err := uow.BundleAuditRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.AuditByTenant{TenantID: tenantID},
	)
	if err != nil {
		return nil, err
	}
	if audit == nil {
		return nil, ErrAuditNotFound
	}
	return toBundleAuditResponse(audit), nil
}

func (s *acbService) ListSessionAudits(ctx context.Context, tenantID, sessionID string, limit, offset int) ([]*dto.BundleAuditResponse, error) {
	if s.uowFactory == nil {
		return nil, ErrStorageUnavailable
	}
	if limit <= 0 || limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	audits, err := uow.BundleAuditRepository().FindAll(ctx,
		specification.AuditByTenant{TenantID: tenantID},
		specification.AuditBySession{SessionID: sessionID},
		specification.OrderBy{Field: "built_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: offset},
	)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.BundleAuditResponse, 0, len(audits))
	for _, a := range audits {
		out = append(out, toBundleAuditResponse(a))
	}
	return out, nil
}

func toBundleAuditResponse(a *entity.BundleAudit) *dto.BundleAuditResponse {
	return &dto.BundleAuditResponse{
		AcbId:             a.Id,
		SessionId:         a.SessionId,
		AgentId:           a.AgentId,
		Channel:           a.Channel,
		Mode:              a.Mode,
		BudgetTokens:      a.TotalBudget,
		TokenUsedEst:      a.TokensUsed,
		Degraded:          a.Degraded,
		ReallocationCount: a.ReallocationCount,
		CapsuleCount:      a.CapsuleCount,
		OmissionCount:     a.OmissionCount,
		DurationMs:        a.DurationMs,
		BuiltAt:           a.BuiltAt,
		Provenance:        a.Provenance,
	}
}

// ====== PROFILES ======

func (s *acbService) Profiles() []*dto.ProfileResponse {
	return ProfileResponses(s.builder)
}

// ProfileResponses renders every mode profile in mode order.
func ProfileResponses(b *builder.Builder) []*dto.ProfileResponse {
	out := make([]*dto.ProfileResponse, 0, len(acb.AllModes))
	for _, m := range acb.AllModes {
		p := b.Allocator().Profile(m)
		cats := make([]dto.ProfileCategoryResponse, 0, len(acb.Categories))
		for _, c := range acb.Categories {
			cp := p.Category(c)
			row := dto.ProfileCategoryResponse{
				Category:    string(c),
				Weight:      cp.Weight,
				HalfLife:    cp.HalfLife.String(),
				Capacity:    cp.Capacity,
				RequireFlag: cp.Rule.RequireFlag,
				MinScore:    cp.Rule.MinScore,
			}
			if cp.Rule.MaxAge > 0 {
				row.MaxAge = cp.Rule.MaxAge.String()
			}
			cats = append(cats, row)
		}
		out = append(out, &dto.ProfileResponse{
			Mode:       string(m),
			WeightSum:  p.WeightSum(),
			Categories: cats,
		})
	}
	return out
}
