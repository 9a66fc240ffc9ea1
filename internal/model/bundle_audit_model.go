package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BundleAudit is the persisted provenance of one built bundle.
type BundleAudit struct {
	Id                uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TenantId          string         `gorm:"type:varchar(128);not null;index:idx_acb_audits_session,priority:1"`
	SessionId         string         `gorm:"type:varchar(128);not null;index:idx_acb_audits_session,priority:2"`
	AgentId           string         `gorm:"type:varchar(128)"`
	Channel           string         `gorm:"type:varchar(64)"`
	Mode              string         `gorm:"type:varchar(32);not null"`
	TotalBudget       int            `gorm:"not null"`
	TokensUsed        int            `gorm:"not null"`
	Degraded          bool           `gorm:"default:false"`
	ReallocationCount int            `gorm:"default:0"`
	CapsuleCount      int            `gorm:"default:0"`
	OmissionCount     int            `gorm:"default:0"`
	DurationMs        int64          `gorm:"default:0"`
	Provenance        datatypes.JSON `gorm:"type:jsonb"`
	BuiltAt           time.Time      `gorm:"not null;index"`
	CreatedAt         time.Time      `gorm:"autoCreateTime"`
}

func (BundleAudit) TableName() string {
	return "acb_bundle_audits"
}
