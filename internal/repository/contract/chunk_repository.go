package contract

import (
	"context"

	"agent-memory-be/internal/entity"
	"agent-memory-be/internal/repository/specification"

	"github.com/google/uuid"
)

// ScoredChunk wraps a Chunk with its cosine similarity to a query vector.
type ScoredChunk struct {
	Chunk      *entity.Chunk
	Similarity float64 // 0.0 to 1.0 (1.0 = identical)
}

type ChunkRepository interface {
	Create(ctx context.Context, chunk *entity.Chunk) error
	CreateBulk(ctx context.Context, chunks []*entity.Chunk) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Chunk, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// SearchSimilar orders matching chunks by cosine similarity to vector.
	SearchSimilar(ctx context.Context, vector []float32, specs ...specification.Specification) ([]*ScoredChunk, error)
}
