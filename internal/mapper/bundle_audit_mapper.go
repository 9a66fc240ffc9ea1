package mapper

import (
	"encoding/json"

	"agent-memory-be/internal/entity"
	"agent-memory-be/internal/model"

	"gorm.io/datatypes"
)

type BundleAuditMapper struct{}

func NewBundleAuditMapper() *BundleAuditMapper {
	return &BundleAuditMapper{}
}

func (m *BundleAuditMapper) ToEntity(a *model.BundleAudit) (*entity.BundleAudit, error) {
	if a == nil {
		return nil, nil
	}

	out := &entity.BundleAudit{
		Id:                a.Id,
		TenantId:          a.TenantId,
		SessionId:         a.SessionId,
		AgentId:           a.AgentId,
		Channel:           a.Channel,
		Mode:              a.Mode,
		TotalBudget:       a.TotalBudget,
		TokensUsed:        a.TokensUsed,
		Degraded:          a.Degraded,
		ReallocationCount: a.ReallocationCount,
		CapsuleCount:      a.CapsuleCount,
		OmissionCount:     a.OmissionCount,
		DurationMs:        a.DurationMs,
		BuiltAt:           a.BuiltAt,
		CreatedAt:         a.CreatedAt,
	}
	if len(a.Provenance) > 0 {
		if err := json.Unmarshal(a.Provenance, &out.Provenance); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *BundleAuditMapper) ToModel(a *entity.BundleAudit) (*model.BundleAudit, error) {
	if a == nil {
		return nil, nil
	}

	provenance, err := json.Marshal(a.Provenance)
	if err != nil {
		return nil, err
	}

	return &model.BundleAudit{
		Id:                a.Id,
		TenantId:          a.TenantId,
		SessionId:         a.SessionId,
		AgentId:           a.AgentId,
		Channel:           a.Channel,
		Mode:              a.Mode,
		TotalBudget:       a.TotalBudget,
		TokensUsed:        a.TokensUsed,
		Degraded:          a.Degraded,
		ReallocationCount: a.ReallocationCount,
		CapsuleCount:      a.CapsuleCount,
		OmissionCount:     a.OmissionCount,
		DurationMs:        a.DurationMs,
		Provenance:        datatypes.JSON(provenance),
		BuiltAt:           a.BuiltAt,
		CreatedAt:         a.CreatedAt,
	}, nil
}
