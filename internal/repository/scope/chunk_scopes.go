package scope

import "gorm.io/gorm"

// NewestFirst orders chunks by their memory timestamp, then id for stability.
func NewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("acb_chunks.ts DESC").Order("acb_chunks.id ASC")
}

// ExcludeSoftDelete is needed on raw Table() queries, where GORM does not add
// the soft delete clause on its own.
func ExcludeSoftDelete(db *gorm.DB) *gorm.DB {
	return db.Where("acb_chunks.deleted_at IS NULL")
}
