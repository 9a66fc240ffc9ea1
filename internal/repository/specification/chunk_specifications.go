package specification

import "gorm.io/gorm"

type ByTenant struct {
	TenantID string
}

func (s ByTenant) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("acb_chunks.tenant_id = ?", s.TenantID)
}

type ByCategory struct {
	Category string
}

func (s ByCategory) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("acb_chunks.category = ?", s.Category)
}

type BySession struct {
	SessionID string
}

func (s BySession) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("acb_chunks.session_id = ?", s.SessionID)
}

// ScopedTo keeps chunks of the given subject and project plus unscoped ones.
// Empty fields do not filter.
type ScopedTo struct {
	Subject string
	Project string
}

func (s ScopedTo) Apply(db *gorm.DB) *gorm.DB {
	if s.Subject != "" {
		db = db.Where("(acb_chunks.subject = ? OR acb_chunks.subject = '')", s.Subject)
	}
	if s.Project != "" {
		db = db.Where("(acb_chunks.project = ? OR acb_chunks.project = '')", s.Project)
	}
	return db
}

type Limit struct {
	N int
}

func (s Limit) Apply(db *gorm.DB) *gorm.DB {
	if s.N <= 0 {
		return db
	}
	return db.Limit(s.N)
}
