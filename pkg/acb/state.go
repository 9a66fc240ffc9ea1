package acb

// State is a step of the build state machine.
type State string

const (
	StateReceived            State = "RECEIVED"
	StateModeResolved        State = "MODE_RESOLVED"
	StateBudgetsAllocated    State = "BUDGETS_ALLOCATED"
	StateCandidatesRetrieved State = "CANDIDATES_RETRIEVED"
	StateScored              State = "SCORED"
	StateInvariantsReserved  State = "INVARIANTS_RESERVED"
	StatePacked              State = "PACKED"
	StateProvenanceFinalized State = "PROVENANCE_FINALIZED"
	StateReturned            State = "RETURNED"
	StateFailed              State = "FAILED"
)

var transitions = map[State][]State{
	StateReceived:            {StateModeResolved, StateFailed},
	StateModeResolved:        {StateBudgetsAllocated},
	StateBudgetsAllocated:    {StateCandidatesRetrieved},
	StateCandidatesRetrieved: {StateScored, StateFailed},
	StateScored:              {StateInvariantsReserved},
	StateInvariantsReserved:  {StatePacked, StateFailed},
	StatePacked:              {StateProvenanceFinalized},
	StateProvenanceFinalized: {StateReturned},
}

// CanTransition reports whether the machine may move from one state to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Trace records the states a build passed through.
type Trace struct {
	states []State
}

// NewTrace starts a trace in RECEIVED.
func NewTrace() *Trace {
	return &Trace{states: []State{StateReceived}}
}

// Current returns the latest state.
func (t *Trace) Current() State {
	return t.states[len(t.states)-1]
}

// Advance moves to the next state. Illegal transitions panic: they indicate a
// programming error in the builder, not a runtime condition.
func (t *Trace) Advance(next State) {
	if !CanTransition(t.Current(), next) {
		panic("acb: illegal state transition " + string(t.Current()) + " -> " + string(next))
	}
	t.states = append(t.states, next)
}

// States returns a copy of the trace.
func (t *Trace) States() []State {
	out := make([]State, len(t.states))
	copy(out, t.states)
	return out
}
