// FILE: pkg/acb/builder/builder.go
// PURPOSE: Orchestrates one Active Context Bundle build through its state machine

package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/budget"
	"agent-memory-be/pkg/acb/invariant"
	"agent-memory-be/pkg/acb/mode"
	"agent-memory-be/pkg/acb/packer"
	"agent-memory-be/pkg/acb/provenance"
	"agent-memory-be/pkg/acb/scoring"
	"agent-memory-be/pkg/acb/supplier"
	"agent-memory-be/pkg/lexical"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("agent-memory-be/pkg/acb/builder")

// DefaultDeadline bounds a build when the request does not.
const DefaultDeadline = 2 * time.Second

// Config wires the builder's collaborators.
type Config struct {
	Supplier   supplier.Supplier
	History    mode.History
	Profiles   *budget.Profiles
	Weights    acb.Weights
	Policy     scoring.Policy
	Detectors  []invariant.Detector
	Sink       provenance.Sink
	Retrieval  supplier.Options
	Threshold  float64
	Deadline   time.Duration
	BudgetSize int
	Logger     logger.ILogger
	// Now is injectable for deterministic event timestamps.
	Now func() time.Time
}

// Builder assembles bundles. It holds no per-build state and is safe for
// concurrent use.
type Builder struct {
	classifier *mode.Classifier
	allocator  *budget.Allocator
	retriever  *supplier.Retriever
	scorer     *scoring.Scorer
	enforcer   *invariant.Enforcer
	packer     *packer.Packer
	sink       provenance.Sink
	deadline   time.Duration
	budgetSize int
	logger     logger.ILogger
	now        func() time.Time
}

func New(cfg Config) *Builder {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.Sink == nil {
		cfg.Sink = provenance.NopSink{}
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.BudgetSize <= 0 {
		cfg.BudgetSize = acb.DefaultTotalBudget
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Builder{
		classifier: mode.NewClassifier(cfg.History, cfg.Threshold, cfg.Logger),
		allocator:  budget.NewAllocator(cfg.Profiles),
		retriever:  supplier.NewRetriever(cfg.Supplier, cfg.Retrieval, cfg.Logger),
		scorer:     scoring.NewScorer(cfg.Weights, cfg.Policy),
		enforcer:   invariant.NewEnforcer(cfg.Detectors, cfg.Logger),
		packer:     packer.NewPacker(cfg.Logger),
		sink:       cfg.Sink,
		deadline:   cfg.Deadline,
		budgetSize: cfg.BudgetSize,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// Allocator exposes the validated profile set and its allocator.
func (b *Builder) Allocator() *budget.Allocator {
	return b.allocator
}

// Build runs one request through the state machine. Fatal errors are
// *acb.BuildError values and carry no bundle.
func (b *Builder) Build(ctx context.Context, req acb.Request) (*acb.Result, error) {
	started := b.now()
	tr := acb.NewTrace()
	rec := provenance.NewRecorder()

	ctx, span := tracer.Start(ctx, "acb.build", traceAttrs(req))
	defer span.End()

	if err := b.normalize(&req); err != nil {
		return nil, b.fail(span, tr, req, err)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Deadline)
	defer cancel()

	// 1. Mode
	resolution := b.classifier.Resolve(ctx, req.HistoryKey(), req.Intent)
	rec.Mode(resolution)
	tr.Advance(acb.StateModeResolved)
	span.SetAttributes(
		attribute.String("acb.mode", string(resolution.Mode)),
		attribute.Float64("acb.mode_confidence", resolution.Confidence),
		attribute.Bool("acb.mode_smoothed", resolution.Smoothed),
	)

	// 2. Budgets
	profile := b.allocator.Profile(resolution.Mode)
	budgets, err := budget.Allocate(profile, req.TotalBudget)
	if err != nil {
		return nil, b.fail(span, tr, req, acb.NewValidationError("%v", err))
	}
	rec.Budgets(budgets)
	tr.Advance(acb.StateBudgetsAllocated)

	// 3. Candidates
	terms := lexical.ExtractTerms(req.Query)
	rec.QueryTerms(terms)
	policy := b.scorer.PolicyFor(req)
	retrieval, err := b.retrieve(ctx, req, terms, policy.Labels(req.IncludeQuarantined), profile)
	tr.Advance(acb.StateCandidatesRetrieved)
	if err != nil {
		return nil, b.fail(span, tr, req, err)
	}
	pools := dedupe(retrieval.Pools, rec)
	rec.Pools(pools, retrieval.Skipped, retrieval.Failures)

	// 4. Scoring
	scored := b.scorer.Score(req, profile, pools)
	rec.Scoring(scored)
	tr.Advance(acb.StateScored)

	// 5. Sticky invariants
	reservation, err := b.enforcer.Enforce(scored.Ranked, budgets)
	tr.Advance(acb.StateInvariantsReserved)
	if err != nil {
		return nil, b.fail(span, tr, req, err)
	}
	rec.Reservation(reservation)

	// 6. Packing
	packed := b.packer.Pack(ctx, packer.Input{
		Profile:   profile,
		Budgets:   reservation.Budgets,
		Reserved:  reservation.Reserved,
		Remaining: reservation.Remaining,
		Filtered:  scored.Filtered,
	})
	tr.Advance(acb.StatePacked)

	curtailed, note := deadlineOutcome(ctx, packed, req.Deadline)
	degraded := len(retrieval.Failures) > 0 || curtailed
	if note != "" {
		rec.Note("%s", note)
	}

	// 7. Provenance
	res := &acb.Result{
		ID:                uuid.NewString(),
		TotalBudget:       req.TotalBudget,
		TokensUsed:        packed.TokensUsed,
		Sections:          packed.Sections,
		Omissions:         packed.Omissions,
		CapsuleIDs:        capsuleIDs(packed.Sections),
		ReallocationCount: reservation.ReallocationCount,
		Degraded:          degraded,
	}
	res.CapsuleCount = len(res.CapsuleIDs)
	tr.Advance(acb.StateProvenanceFinalized)
	tr.Advance(acb.StateReturned)
	res.Provenance = rec.Finalize(tr)
	res.Duration = b.now().Sub(started)

	span.SetAttributes(
		attribute.String("acb.id", res.ID),
		attribute.Int("acb.tokens_used", res.TokensUsed),
		attribute.Int("acb.reallocations", res.ReallocationCount),
		attribute.Bool("acb.degraded", res.Degraded),
	)
	b.publish(req, res)

	b.logger.Info("ACB", "Bundle built", map[string]interface{}{
		"acb_id":      res.ID,
		"tenant":      req.TenantID,
		"session":     req.SessionID,
		"mode":        resolution.Mode,
		"tokens_used": res.TokensUsed,
		"budget":      res.TotalBudget,
		"degraded":    res.Degraded,
		"duration_ms": res.Duration.Milliseconds(),
	})
	return res, nil
}

// deadlineOutcome reports whether packing was cut short by the deadline and
// the provenance note to record, if any. A deadline that passes once every
// section is packed leaves the bundle complete.
func deadlineOutcome(ctx context.Context, packed packer.Output, deadline time.Duration) (bool, string) {
	switch {
	case packed.Curtailed:
		return true, fmt.Sprintf("build deadline of %s reached; remaining sections curtailed", deadline)
	case ctx.Err() != nil:
		return false, fmt.Sprintf("build deadline of %s reached after packing completed", deadline)
	default:
		return false, ""
	}
}

// normalize validates req and fills defaults.
func (b *Builder) normalize(req *acb.Request) error {
	if req.TenantID == "" {
		return acb.NewValidationError("tenant_id is required")
	}
	if req.SessionID == "" {
		return acb.NewValidationError("session_id is required")
	}
	if req.TotalBudget < 0 {
		return acb.NewValidationError("budget_tokens must not be negative, got %d", req.TotalBudget)
	}
	if req.TotalBudget == 0 {
		req.TotalBudget = b.budgetSize
	}
	if req.TotalBudget > budget.MaxTotal {
		return acb.NewValidationError("budget_tokens must be at most %d, got %d", budget.MaxTotal, req.TotalBudget)
	}
	if req.TotalBudget < len(acb.Categories) {
		return acb.NewValidationError("budget_tokens must be at least %d, got %d", len(acb.Categories), req.TotalBudget)
	}
	if req.Deadline < 0 {
		return acb.NewValidationError("deadline must not be negative")
	}
	if req.Deadline == 0 {
		req.Deadline = b.deadline
	}
	return nil
}

func (b *Builder) retrieve(ctx context.Context, req acb.Request, terms, labels []string, profile budget.Profile) (supplier.Retrieval, error) {
	ctx, span := tracer.Start(ctx, "acb.retrieve")
	defer span.End()

	retrieval, err := b.retriever.Retrieve(ctx, req, terms, labels, profile)
	if err != nil {
		span.RecordError(err)
		return retrieval, err
	}
	span.SetAttributes(attribute.Int("acb.degraded_categories", len(retrieval.Failures)))
	return retrieval, nil
}

func (b *Builder) fail(span trace.Span, tr *acb.Trace, req acb.Request, err error) error {
	if acb.CanTransition(tr.Current(), acb.StateFailed) {
		tr.Advance(acb.StateFailed)
	}

	var be *acb.BuildError
	if !errors.As(err, &be) {
		err = &acb.BuildError{Code: acb.CodeValidation, State: acb.StateReceived, Cause: err}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, acb.CodeOf(err))
	b.logger.Error("ACB", "Bundle build failed", map[string]interface{}{
		"error":       err.Error(),
		"reason_code": acb.CodeOf(err),
		"tenant":      req.TenantID,
		"session":     req.SessionID,
		"states":      tr.States(),
	})
	return err
}

func (b *Builder) publish(req acb.Request, res *acb.Result) {
	// Publishing is detached from the build deadline.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.sink.Publish(ctx, provenance.NewEvent(req, res, b.now())); err != nil {
		b.logger.Warn("PROVENANCE", "Failed to publish provenance event", map[string]interface{}{
			"acb_id": res.ID,
			"error":  err.Error(),
		})
	}
}

// dedupe keeps the first occurrence of each id in section order.
func dedupe(pools map[acb.Category][]acb.CandidateItem, rec *provenance.Recorder) map[acb.Category][]acb.CandidateItem {
	seen := make(map[string]acb.Category)
	out := make(map[acb.Category][]acb.CandidateItem, len(pools))
	for _, c := range acb.Categories {
		pool, ok := pools[c]
		if !ok {
			continue
		}
		kept := make([]acb.CandidateItem, 0, len(pool))
		for _, it := range pool {
			if first, dup := seen[it.ID]; dup {
				rec.Note("duplicate candidate %s in %s dropped (kept in %s)", it.ID, c, first)
				continue
			}
			seen[it.ID] = c
			kept = append(kept, it)
		}
		out[c] = kept
	}
	return out
}

func capsuleIDs(sections []acb.Section) []string {
	ids := make([]string, 0)
	for _, s := range sections {
		if s.Category != acb.CategoryCapsules {
			continue
		}
		for _, it := range s.Items {
			ids = append(ids, it.Item.ID)
		}
	}
	return ids
}

func traceAttrs(req acb.Request) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("acb.tenant_id", req.TenantID),
		attribute.String("acb.session_id", req.SessionID),
		attribute.String("acb.channel", req.Channel),
		attribute.Int("acb.budget_tokens", req.TotalBudget),
	)
}
