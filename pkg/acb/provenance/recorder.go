package provenance

import (
	"fmt"

	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/invariant"
	"agent-memory-be/pkg/acb/mode"
	"agent-memory-be/pkg/acb/scoring"
)

// Recorder accumulates the audit record of one build. It is not safe for
// concurrent use; each build owns its own recorder.
type Recorder struct {
	p acb.Provenance
}

func NewRecorder() *Recorder {
	return &Recorder{p: acb.Provenance{
		QueryTerms:         make([]string, 0),
		PoolSizes:          make(map[acb.Category]int),
		SensitivityFilters: make([]string, 0),
		Budgets:            make(acb.CategoryBudget),
		Invariants:         make(map[string]int),
		RetrievalErrors:    make(map[acb.Category]string),
	}}
}

func (r *Recorder) Mode(res mode.Resolution) {
	r.p.Mode = res.Mode
	r.p.ClassifiedMode = res.Classified
	r.p.Confidence = res.Confidence
	r.p.Smoothed = res.Smoothed
	if res.Smoothed {
		r.Note("mode smoothed from %s to %s over recent history %v", res.Classified, res.Mode, res.History)
	}
}

func (r *Recorder) QueryTerms(terms []string) {
	r.p.QueryTerms = append(r.p.QueryTerms[:0], terms...)
}

func (r *Recorder) Budgets(b acb.CategoryBudget) {
	r.p.Budgets = b.Clone()
}

// Pools records retrieved pool sizes and per-category retrieval failures.
func (r *Recorder) Pools(pools map[acb.Category][]acb.CandidateItem, skipped []acb.Category, failures map[acb.Category]error) {
	for _, c := range acb.Categories {
		r.p.PoolSizes[c] = len(pools[c])
	}
	for _, c := range skipped {
		r.Note("%s not retrieved by inclusion rule", c)
	}
	for _, c := range acb.Categories {
		if err, ok := failures[c]; ok {
			r.p.RetrievalErrors[c] = err.Error()
			r.Note("%s retrieval degraded to empty pool", c)
		}
	}
}

func (r *Recorder) Scoring(s scoring.Scored) {
	r.p.Weights = s.Weights
	r.p.WeightsFallback = s.Fallback
	r.p.SensitivityFilters = append(r.p.SensitivityFilters[:0], s.Filters...)
	if s.Fallback {
		r.Note("invalid scoring weights replaced by defaults %.2f/%.2f/%.2f", s.Weights.Alpha, s.Weights.Beta, s.Weights.Gamma)
	}
}

func (r *Recorder) Reservation(res invariant.Reservation) {
	r.p.ReallocationCount = res.ReallocationCount
	r.p.Reallocations = append([]acb.Reallocation(nil), res.Reallocations...)
	for name, n := range res.Matches {
		r.p.Invariants[name] = n
	}
	r.p.Budgets = res.Budgets.Clone()
}

// Note appends a free-form provenance note.
func (r *Recorder) Note(format string, args ...any) {
	r.p.Notes = append(r.p.Notes, fmt.Sprintf(format, args...))
}

// Finalize stamps the state trace and returns the record.
func (r *Recorder) Finalize(trace *acb.Trace) acb.Provenance {
	r.p.States = trace.States()
	return r.p
}
