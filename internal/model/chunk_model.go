package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chunk is one stored unit of agent memory a bundle can draw from.
type Chunk struct {
	Id          uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantId    string                      `gorm:"type:varchar(128);not null;index:idx_acb_chunks_scope,priority:1"`
	SessionId   string                      `gorm:"type:varchar(128);index"`
	Category    string                      `gorm:"type:varchar(32);not null;index:idx_acb_chunks_scope,priority:2"`
	Kind        string                      `gorm:"type:varchar(32)"`
	Actor       string                      `gorm:"type:varchar(32)"`
	Content     string                      `gorm:"type:text;not null"`
	Tokens      int                         `gorm:"default:0"`
	Embedding   *pgvector.Vector            `gorm:"type:vector(768)"`
	Importance  float64                     `gorm:"default:0"`
	Sensitivity string                      `gorm:"type:varchar(32);default:'none'"`
	Subject     string                      `gorm:"type:varchar(255);index"`
	Project     string                      `gorm:"type:varchar(255);index"`
	Tags        datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Metadata    datatypes.JSON              `gorm:"type:jsonb"`
	Blocking    bool                        `gorm:"default:false"`
	Resolved    bool                        `gorm:"default:false"`
	Ts          time.Time                   `gorm:"not null;index"`
	CreatedAt   time.Time                   `gorm:"autoCreateTime"`
	UpdatedAt   time.Time                   `gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt              `gorm:"index"`
}

func (Chunk) TableName() string {
	return "acb_chunks"
}
