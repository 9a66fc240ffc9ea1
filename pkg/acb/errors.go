package acb

import (
	"errors"
	"fmt"
)

// Stable reason codes reported to callers.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeRetrievalFailed  = "RETRIEVAL_FAILED"
	CodeBudgetExhausted  = "BUDGET_EXHAUSTED"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
)

// BuildError is the typed failure of a build. Fatal builds return no bundle.
type BuildError struct {
	Code     string
	State    State
	Category Category
	Message  string
	Cause    error
}

func (e *BuildError) Error() string {
	msg := e.Code
	if e.Category != "" {
		msg += " [" + string(e.Category) + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Is matches another *BuildError by code so sentinel comparisons work.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Category == "" && t.State == ""
}

// Sentinels for errors.Is.
var (
	ErrValidation       = &BuildError{Code: CodeValidation}
	ErrRetrievalFailed  = &BuildError{Code: CodeRetrievalFailed}
	ErrBudgetExhausted  = &BuildError{Code: CodeBudgetExhausted}
	ErrDeadlineExceeded = &BuildError{Code: CodeDeadlineExceeded}
)

// NewValidationError reports a malformed request.
func NewValidationError(format string, args ...any) error {
	return &BuildError{Code: CodeValidation, State: StateReceived, Message: fmt.Sprintf(format, args...)}
}

// NewRetrievalError reports a failed critical category.
func NewRetrievalError(category Category, cause error) error {
	return &BuildError{Code: CodeRetrievalFailed, State: StateCandidatesRetrieved, Category: category, Cause: cause}
}

// NewBudgetExhaustedError reports invariants that cannot fit.
func NewBudgetExhaustedError(category Category, deficit int) error {
	return &BuildError{
		Code:     CodeBudgetExhausted,
		State:    StateInvariantsReserved,
		Category: category,
		Message:  fmt.Sprintf("sticky invariants exceed reclaimable budget by %d tokens", deficit),
	}
}

// NewDeadlineError reports a deadline hit before critical content was resolved.
func NewDeadlineError(state State, cause error) error {
	return &BuildError{Code: CodeDeadlineExceeded, State: state, Cause: cause}
}

// CodeOf returns the stable code of err, or "" when err is not a BuildError.
func CodeOf(err error) string {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
