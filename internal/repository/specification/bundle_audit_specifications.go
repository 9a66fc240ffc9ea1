package specification

import "gorm.io/gorm"

type AuditByTenant struct {
	TenantID string
}

func (s AuditByTenant) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("acb_bundle_audits.tenant_id = ?", s.TenantID)
}

type AuditBySession struct {
	SessionID string
}

func (s AuditBySession) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("acb_bundle_audits.session_id = ?", s.SessionID)
}
