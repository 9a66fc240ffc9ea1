package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "empty query",
			query: "",
			want:  []string{},
		},
		{
			name:  "stopwords and short tokens dropped",
			query: "What is the retry policy for the payment worker?",
			want:  []string{"retry", "policy", "payment", "worker"},
		},
		{
			name:  "duplicates keep first occurrence",
			query: "Cache cache CACHE invalidation",
			want:  []string{"cache", "invalidation"},
		},
		{
			name:  "punctuation and identifiers",
			query: "fix nil-pointer in build_bundle() (again)",
			want:  []string{"fix", "nil-pointer", "build_bundle", "again"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestOverlap(t *testing.T) {
	terms := []string{"retry", "policy", "worker"}

	assert.InDelta(t, 1.0, Overlap(terms, "Worker retry policy: back off exponentially."), 1e-9)
	assert.InDelta(t, 1.0/3.0, Overlap(terms, "the retry happens twice"), 1e-9)
	assert.Equal(t, 0.0, Overlap(terms, ""))
	assert.Equal(t, 0.0, Overlap(nil, "anything"))
}
