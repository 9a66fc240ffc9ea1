package unitofwork

import (
	"context"

	"agent-memory-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ChunkRepository() contract.ChunkRepository
	BundleAuditRepository() contract.BundleAuditRepository
}
