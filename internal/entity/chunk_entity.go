package entity

import (
	"time"

	"github.com/google/uuid"
)

type Chunk struct {
	Id          uuid.UUID
	TenantId    string
	SessionId   string
	Category    string
	Kind        string
	Actor       string
	Content     string
	Tokens      int
	Embedding   []float32
	Importance  float64
	Sensitivity string
	Subject     string
	Project     string
	Tags        []string
	Metadata    map[string]any
	Blocking    bool
	Resolved    bool
	Ts          time.Time
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
}
