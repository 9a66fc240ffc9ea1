package mapper

import (
	"encoding/json"
	"time"

	"agent-memory-be/internal/entity"
	"agent-memory-be/internal/model"
	"agent-memory-be/pkg/acb"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChunkMapper struct{}

func NewChunkMapper() *ChunkMapper {
	return &ChunkMapper{}
}

func (m *ChunkMapper) ToEntity(c *model.Chunk) *entity.Chunk {
	if c == nil {
		return nil
	}

	var deletedAt *time.Time
	if c.DeletedAt.Valid {
		t := c.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	var embedding []float32
	if c.Embedding != nil {
		embedding = c.Embedding.Slice()
	}

	var metadata map[string]any
	if len(c.Metadata) > 0 {
		// Malformed metadata is dropped rather than failing the read.
		_ = json.Unmarshal(c.Metadata, &metadata)
	}

	return &entity.Chunk{
		Id:          c.Id,
		TenantId:    c.TenantId,
		SessionId:   c.SessionId,
		Category:    c.Category,
		Kind:        c.Kind,
		Actor:       c.Actor,
		Content:     c.Content,
		Tokens:      c.Tokens,
		Embedding:   embedding,
		Importance:  c.Importance,
		Sensitivity: c.Sensitivity,
		Subject:     c.Subject,
		Project:     c.Project,
		Tags:        []string(c.Tags),
		Metadata:    metadata,
		Blocking:    c.Blocking,
		Resolved:    c.Resolved,
		Ts:          c.Ts,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
		IsDeleted:   c.DeletedAt.Valid,
	}
}

func (m *ChunkMapper) ToModel(c *entity.Chunk) *model.Chunk {
	if c == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if c.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *c.DeletedAt, Valid: true}
	} else if c.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	var embedding *pgvector.Vector
	if len(c.Embedding) > 0 {
		v := pgvector.NewVector(c.Embedding)
		embedding = &v
	}

	var metadata datatypes.JSON
	if len(c.Metadata) > 0 {
		if raw, err := json.Marshal(c.Metadata); err == nil {
			metadata = datatypes.JSON(raw)
		}
	}

	sensitivity := c.Sensitivity
	if sensitivity == "" {
		sensitivity = acb.SensitivityNone
	}

	return &model.Chunk{
		Id:          c.Id,
		TenantId:    c.TenantId,
		SessionId:   c.SessionId,
		Category:    c.Category,
		Kind:        c.Kind,
		Actor:       c.Actor,
		Content:     c.Content,
		Tokens:      c.Tokens,
		Embedding:   embedding,
		Importance:  c.Importance,
		Sensitivity: sensitivity,
		Subject:     c.Subject,
		Project:     c.Project,
		Tags:        datatypes.JSONSlice[string](c.Tags),
		Metadata:    metadata,
		Blocking:    c.Blocking,
		Resolved:    c.Resolved,
		Ts:          c.Ts,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
	}
}

// ToCandidate converts a stored chunk into a scoreable candidate. Age is
// measured from the chunk timestamp to now.
func (m *ChunkMapper) ToCandidate(c *entity.Chunk, similarity float64, now time.Time) acb.CandidateItem {
	age := now.Sub(c.Ts)
	if age < 0 {
		age = 0
	}
	return acb.CandidateItem{
		ID:          c.Id.String(),
		Category:    acb.Category(c.Category),
		Content:     c.Content,
		Tokens:      c.Tokens,
		Similarity:  similarity,
		Importance:  c.Importance,
		Age:         age,
		Sensitivity: c.Sensitivity,
		Kind:        c.Kind,
		Actor:       c.Actor,
		Tags:        c.Tags,
		Blocking:    c.Blocking,
		Resolved:    c.Resolved,
		Metadata:    c.Metadata,
	}
}
