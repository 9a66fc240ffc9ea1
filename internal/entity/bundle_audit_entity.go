package entity

import (
	"time"

	"agent-memory-be/pkg/acb"

	"github.com/google/uuid"
)

type BundleAudit struct {
	Id                uuid.UUID
	TenantId          string
	SessionId         string
	AgentId           string
	Channel           string
	Mode              string
	TotalBudget       int
	TokensUsed        int
	Degraded          bool
	ReallocationCount int
	CapsuleCount      int
	OmissionCount     int
	DurationMs        int64
	Provenance        acb.Provenance
	BuiltAt           time.Time
	CreatedAt         time.Time
}
