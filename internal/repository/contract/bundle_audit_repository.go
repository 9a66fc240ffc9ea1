package contract

import (
	"context"

	"agent-memory-be/internal/entity"
	"agent-memory-be/internal/repository/specification"
)

type BundleAuditRepository interface {
	// Create ignores a record whose id already exists, so redelivered
	// events are harmless.
	Create(ctx context.Context, audit *entity.BundleAudit) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.BundleAudit, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.BundleAudit, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
