package dto

import (
	"time"

	"agent-memory-be/pkg/acb"

	"github.com/google/uuid"
)

type ScoringWeights struct {
	Alpha float64 `json:"alpha" validate:"gte=0,lte=1"`
	Beta  float64 `json:"beta" validate:"gte=0,lte=1"`
	Gamma float64 `json:"gamma" validate:"gte=0,lte=1"`
}

// BuildBundleRequest is the body of POST /api/v1/acb/build. TenantId may
// only restate the tenant of a verified bearer token.
type BuildBundleRequest struct {
	TenantId           string          `json:"tenant_id" validate:"max=128"`
	SessionId          string          `json:"session_id" validate:"required,max=128"`
	AgentId            string          `json:"agent_id" validate:"max=128"`
	Channel            string          `json:"channel" validate:"max=64"`
	Intent             string          `json:"intent" validate:"max=2000"`
	QueryText          string          `json:"query_text" validate:"max=8000"`
	BudgetTokens       int             `json:"budget_tokens" validate:"gte=0,lte=10000000"`
	Subject            string          `json:"subject" validate:"max=255"`
	Project            string          `json:"project" validate:"max=255"`
	IncludeCapsules    bool            `json:"include_capsules"`
	IncludeQuarantined bool            `json:"include_quarantined"`
	ScoringWeights     *ScoringWeights `json:"scoring_weights"`
	AllowedSensitivity []string        `json:"allowed_sensitivity" validate:"dive,required,max=32"`
	QueryVector        []float32       `json:"query_vector"`
	DeadlineMs         int             `json:"deadline_ms" validate:"gte=0,lte=600000"`
}

type BundleItemResponse struct {
	Id          string  `json:"id"`
	Content     string  `json:"content"`
	Tokens      int     `json:"tokens"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
	Sensitivity string  `json:"sensitivity"`
	Kind        string  `json:"kind,omitempty"`
	Invariant   int     `json:"invariant_tier,omitempty"`
}

type BundleSectionResponse struct {
	Name         string               `json:"name"`
	BudgetTokens int                  `json:"budget_tokens"`
	TokenUsedEst int                  `json:"token_used_est"`
	Curtailed    bool                 `json:"curtailed,omitempty"`
	Items        []BundleItemResponse `json:"items"`
}

type BuildBundleResponse struct {
	AcbId             string                  `json:"acb_id"`
	BudgetTokens      int                     `json:"budget_tokens"`
	TokenUsedEst      int                     `json:"token_used_est"`
	Sections          []BundleSectionResponse `json:"sections"`
	Omissions         []acb.Omission          `json:"omissions"`
	CapsulesIncluded  []string                `json:"capsules_included"`
	CapsuleCount      int                     `json:"capsule_count"`
	ReallocationCount int                     `json:"reallocation_count"`
	Degraded          bool                    `json:"degraded"`
	DurationMs        int64                   `json:"duration_ms"`
	Provenance        acb.Provenance          `json:"provenance"`
}

type EventActor struct {
	Type string `json:"type" validate:"required,oneof=human agent system"`
	Id   string `json:"id" validate:"max=128"`
}

type EventContent struct {
	Text string `json:"text" validate:"required"`
}

// RecordEventRequest is the body of POST /api/v1/events.
type RecordEventRequest struct {
	TenantId    string         `json:"tenant_id" validate:"max=128"`
	SessionId   string         `json:"session_id" validate:"required,max=128"`
	Channel     string         `json:"channel" validate:"max=64"`
	Actor       EventActor     `json:"actor" validate:"required"`
	Kind        string         `json:"kind" validate:"required,oneof=message correction error decision rule safety capsule evidence task_state"`
	Content     EventContent   `json:"content" validate:"required"`
	Sensitivity string         `json:"sensitivity" validate:"omitempty,max=32"`
	Tags        []string       `json:"tags" validate:"dive,max=64"`
	Importance  *float64       `json:"importance" validate:"omitempty,gte=0,lte=1"`
	Subject     string         `json:"subject" validate:"max=255"`
	Project     string         `json:"project" validate:"max=255"`
	Blocking    bool           `json:"blocking"`
	Metadata    map[string]any `json:"metadata"`
	Ts          *time.Time     `json:"ts"`
}

type RecordEventResponse struct {
	EventId  uuid.UUID   `json:"event_id"`
	ChunkIds []uuid.UUID `json:"chunk_ids"`
	Category string      `json:"category"`
	Embedded bool        `json:"embedded"`
}

type BundleAuditResponse struct {
	AcbId             uuid.UUID      `json:"acb_id"`
	SessionId         string         `json:"session_id"`
	AgentId           string         `json:"agent_id,omitempty"`
	Channel           string         `json:"channel,omitempty"`
	Mode              string         `json:"mode"`
	BudgetTokens      int            `json:"budget_tokens"`
	TokenUsedEst      int            `json:"token_used_est"`
	Degraded          bool           `json:"degraded"`
	ReallocationCount int            `json:"reallocation_count"`
	CapsuleCount      int            `json:"capsule_count"`
	OmissionCount     int            `json:"omission_count"`
	DurationMs        int64          `json:"duration_ms"`
	BuiltAt           time.Time      `json:"built_at"`
	Provenance        acb.Provenance `json:"provenance"`
}

type ProfileCategoryResponse struct {
	Category    string  `json:"category"`
	Weight      int     `json:"weight"`
	HalfLife    string  `json:"half_life"`
	Capacity    int     `json:"capacity"`
	RequireFlag string  `json:"require_flag,omitempty"`
	MinScore    float64 `json:"min_score,omitempty"`
	MaxAge      string  `json:"max_age,omitempty"`
}

type ProfileResponse struct {
	Mode       string                    `json:"mode"`
	WeightSum  int                       `json:"weight_sum"`
	Categories []ProfileCategoryResponse `json:"categories"`
}
