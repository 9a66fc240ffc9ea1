package implementation

import (
	"context"
	"errors"

	"agent-memory-be/internal/entity"
	"agent-memory-be/internal/mapper"
	"agent-memory-be/internal/model"
	"agent-memory-be/internal/repository/contract"
	"agent-memory-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BundleAuditRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.BundleAuditMapper
}

func NewBundleAuditRepository(db *gorm.DB) contract.BundleAuditRepository {
	return &BundleAuditRepositoryImpl{
		db:     db,
		mapper: mapper.NewBundleAuditMapper(),
	}
}

func (r *BundleAuditRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *BundleAuditRepositoryImpl) Create(ctx context.Context, audit *entity.BundleAudit) error {
	m, err := r.mapper.ToModel(audit)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(m).Error
}

func (r *BundleAuditRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.BundleAudit, error) {
	var m model.BundleAudit
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.BundleAudit{}), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m)
}

func (r *BundleAuditRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.BundleAudit, error) {
	var models []*model.BundleAudit
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.BundleAudit{}), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]*entity.BundleAudit, 0, len(models))
	for _, m := range models {
		e, err := r.mapper.ToEntity(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *BundleAuditRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.BundleAudit{}), specs...)
	err := query.Count(&count).Error
	return count, err
}
