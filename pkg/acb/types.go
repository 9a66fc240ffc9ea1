// Package acb holds the shared domain types of the Active Context Bundle engine.
package acb

import (
	"time"
)

// Mode is the resolved interaction mode of a turn.
type Mode string

const (
	ModeTask        Mode = "TASK"
	ModeExploration Mode = "EXPLORATION"
	ModeDebugging   Mode = "DEBUGGING"
	ModeLearning    Mode = "LEARNING"
	ModeGeneral     Mode = "GENERAL"
)

// AllModes lists every mode of the closed enumeration.
var AllModes = []Mode{ModeTask, ModeExploration, ModeDebugging, ModeLearning, ModeGeneral}

// Valid reports whether m belongs to the closed enumeration.
func (m Mode) Valid() bool {
	switch m {
	case ModeTask, ModeExploration, ModeDebugging, ModeLearning, ModeGeneral:
		return true
	}
	return false
}

// ParseMode returns the mode named by s, or GENERAL when s is unknown.
func ParseMode(s string) Mode {
	m := Mode(s)
	if m.Valid() {
		return m
	}
	return ModeGeneral
}

// Category is one of the six budget partitions of a bundle.
type Category string

const (
	CategoryRules             Category = "rules"
	CategoryTaskState         Category = "task_state"
	CategoryRecentWindow      Category = "recent_window"
	CategoryRetrievedEvidence Category = "retrieved_evidence"
	CategoryRelevantDecisions Category = "relevant_decisions"
	CategoryCapsules          Category = "capsules"
)

// Categories is the section order of every bundle.
var Categories = []Category{
	CategoryRules,
	CategoryTaskState,
	CategoryRecentWindow,
	CategoryRetrievedEvidence,
	CategoryRelevantDecisions,
	CategoryCapsules,
}

// RemainderPriority breaks ties when distributing rounding remainders.
var RemainderPriority = []Category{
	CategoryRetrievedEvidence,
	CategoryRules,
	CategoryTaskState,
	CategoryRecentWindow,
	CategoryRelevantDecisions,
	CategoryCapsules,
}

// DonorOrder is the order in which budget is reclaimed for sticky invariants.
var DonorOrder = []Category{
	CategoryCapsules,
	CategoryRecentWindow,
	CategoryRelevantDecisions,
	CategoryRetrievedEvidence,
}

// Valid reports whether c is one of the six categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Critical categories carry sticky-invariant content; failing to retrieve them
// fails the build and they never donate budget.
func (c Category) Critical() bool {
	return c == CategoryRules || c == CategoryTaskState
}

// CategoryBudget maps every category to a token allotment.
type CategoryBudget map[Category]int

// Total sums every allotment.
func (b CategoryBudget) Total() int {
	total := 0
	for _, v := range b {
		total += v
	}
	return total
}

// Clone returns an independent copy.
func (b CategoryBudget) Clone() CategoryBudget {
	out := make(CategoryBudget, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Candidate kinds understood by the invariant detectors.
const (
	KindRule       = "rule"
	KindSafety     = "safety"
	KindMessage    = "message"
	KindCorrection = "correction"
	KindError      = "error"
	KindDecision   = "decision"
	KindCapsule    = "capsule"
	KindEvidence   = "evidence"
	KindTaskState  = "task_state"
)

// Actor types.
const (
	ActorHuman  = "human"
	ActorAgent  = "agent"
	ActorSystem = "system"
)

// SensitivityNone is the label assumed for unlabeled candidates.
const SensitivityNone = "none"

// CandidateItem is a scoreable unit of content.
type CandidateItem struct {
	ID          string         `json:"id" yaml:"id"`
	Category    Category       `json:"category" yaml:"category"`
	Content     string         `json:"content" yaml:"content"`
	Tokens      int            `json:"tokens" yaml:"tokens"`
	Similarity  float64        `json:"similarity" yaml:"similarity"`
	Importance  float64        `json:"importance" yaml:"importance"`
	Age         time.Duration  `json:"age" yaml:"age"`
	Sensitivity string         `json:"sensitivity" yaml:"sensitivity"`
	Kind        string         `json:"kind,omitempty" yaml:"kind"`
	Actor       string         `json:"actor,omitempty" yaml:"actor"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags"`
	Blocking    bool           `json:"blocking,omitempty" yaml:"blocking"`
	Resolved    bool           `json:"resolved,omitempty" yaml:"resolved"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

// HasTag reports whether the candidate carries tag (case-sensitive).
func (c CandidateItem) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Label returns the sensitivity label, defaulting to "none".
func (c CandidateItem) Label() string {
	if c.Sensitivity == "" {
		return SensitivityNone
	}
	return c.Sensitivity
}

// Weights are the composite scoring weights.
type Weights struct {
	Alpha float64 `json:"alpha" yaml:"alpha"` // similarity
	Beta  float64 `json:"beta" yaml:"beta"`   // importance
	Gamma float64 `json:"gamma" yaml:"gamma"` // recency
}

// DefaultWeights are used when no valid override is supplied.
var DefaultWeights = Weights{Alpha: 0.5, Beta: 0.3, Gamma: 0.2}

// WeightTolerance bounds |alpha+beta+gamma-1|.
const WeightTolerance = 1e-6

// Valid reports whether every weight is in [0,1] and they sum to 1.
func (w Weights) Valid() bool {
	for _, v := range []float64{w.Alpha, w.Beta, w.Gamma} {
		if v < 0 || v > 1 {
			return false
		}
	}
	sum := w.Alpha + w.Beta + w.Gamma
	return sum >= 1-WeightTolerance && sum <= 1+WeightTolerance
}

// DefaultTotalBudget is used when a request leaves the budget unset.
const DefaultTotalBudget = 65000

// Request is a single bundle build request.
type Request struct {
	TenantID           string
	SessionID          string
	AgentID            string
	Channel            string
	Intent             string
	Query              string
	TotalBudget        int
	Subject            string
	Project            string
	IncludeCapsules    bool
	IncludeQuarantined bool
	Weights            *Weights
	AllowedSensitivity []string
	QueryVector        []float32
	Deadline           time.Duration
}

// HistoryKey identifies the mode-history window of the request's session.
func (r Request) HistoryKey() string {
	return r.TenantID + ":" + r.SessionID
}

// Flag reports the value of a named request flag used by inclusion rules.
func (r Request) Flag(name string) bool {
	switch name {
	case FlagIncludeCapsules:
		return r.IncludeCapsules
	case FlagIncludeQuarantined:
		return r.IncludeQuarantined
	}
	return false
}

// Request flag names.
const (
	FlagIncludeCapsules    = "include_capsules"
	FlagIncludeQuarantined = "include_quarantined"
)

// ScoredItem is a candidate with its composite score and rank.
type ScoredItem struct {
	Item    CandidateItem `json:"item"`
	Score   float64       `json:"score"`
	Recency float64       `json:"recency"`
	Rank    int           `json:"rank"`
	// Tier is non-zero for items reserved by a sticky invariant.
	Tier int `json:"tier,omitempty"`
}

// Section is one packed category of a bundle.
type Section struct {
	Category   Category     `json:"name"`
	Items      []ScoredItem `json:"items"`
	TokensUsed int          `json:"token_used_est"`
	Budget     int          `json:"budget_tokens"`
	Curtailed  bool         `json:"curtailed,omitempty"`
}

// Omission reason codes.
const (
	ReasonBudgetExceeded      = "BUDGET_EXCEEDED"
	ReasonSensitivityFiltered = "SENSITIVITY_FILTERED"
	ReasonLowScore            = "LOW_SCORE"
)

// MaxOmissionIDs caps the identifiers recorded per omission.
const MaxOmissionIDs = 10

// Omission records candidates excluded from one category for one reason.
type Omission struct {
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
	Count    int      `json:"count"`
	IDs      []string `json:"ids"`
	BestID   string   `json:"best_id,omitempty"`
}

// Reallocation records budget moved from a donor to a reserving category.
type Reallocation struct {
	From   Category `json:"from"`
	To     Category `json:"to"`
	Tokens int      `json:"tokens"`
}

// Provenance is the audit record of a build.
type Provenance struct {
	Mode               Mode                `json:"mode"`
	ClassifiedMode     Mode                `json:"classified_mode"`
	Confidence         float64             `json:"confidence"`
	Smoothed           bool                `json:"smoothed"`
	QueryTerms         []string            `json:"query_terms"`
	PoolSizes          map[Category]int    `json:"pool_sizes"`
	SensitivityFilters []string            `json:"sensitivity_filters"`
	Weights            Weights             `json:"weights"`
	WeightsFallback    bool                `json:"weights_fallback"`
	ReallocationCount  int                 `json:"reallocation_count"`
	Reallocations      []Reallocation      `json:"reallocations,omitempty"`
	Budgets            CategoryBudget      `json:"budgets"`
	States             []State             `json:"states"`
	Notes              []string            `json:"notes,omitempty"`
	Invariants         map[string]int      `json:"invariants,omitempty"`
	RetrievalErrors    map[Category]string `json:"retrieval_errors,omitempty"`
}

// Result is a successfully assembled bundle.
type Result struct {
	ID                string        `json:"acb_id"`
	TotalBudget       int           `json:"budget_tokens"`
	TokensUsed        int           `json:"token_used_est"`
	Sections          []Section     `json:"sections"`
	Omissions         []Omission    `json:"omissions"`
	Provenance        Provenance    `json:"provenance"`
	CapsuleIDs        []string      `json:"capsules_included"`
	CapsuleCount      int           `json:"capsule_count"`
	ReallocationCount int           `json:"reallocation_count"`
	Degraded          bool          `json:"degraded"`
	Duration          time.Duration `json:"duration"`
}

// Section returns the section for category c, if present.
func (r *Result) Section(c Category) (Section, bool) {
	for _, s := range r.Sections {
		if s.Category == c {
			return s, true
		}
	}
	return Section{}, false
}
