package acb

import "unicode/utf8"

// CharsPerToken calibrates the shared estimator.
const CharsPerToken = 4

// EstimateTokens is the single deterministic estimator shared by every stage:
// rune count divided by CharsPerToken, rounded up.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := utf8.RuneCountInString(s)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// TokensOf returns the candidate's declared size, or an estimate of its content.
func TokensOf(c CandidateItem) int {
	if c.Tokens > 0 {
		return c.Tokens
	}
	return EstimateTokens(c.Content)
}
