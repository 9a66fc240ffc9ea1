package lexical

import (
	"strings"
	"unicode"
)

// stopWords are dropped from extracted query terms.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
	"what": true, "which": true, "who": true, "whom": true, "this": true, "that": true,
	"these": true, "those": true, "with": true, "from": true, "into": true, "about": true,
	"your": true, "you": true, "our": true, "their": true, "they": true, "them": true,
	"have": true, "has": true, "had": true, "not": true, "but": true, "can": true,
	"could": true, "would": true, "should": true, "will": true, "just": true, "how": true,
	"why": true, "when": true, "where": true, "there": true, "here": true, "its": true,
	"all": true, "any": true, "some": true, "please": true, "does": true, "did": true,
	"been": true, "being": true, "than": true, "then": true, "also": true, "very": true,
	"yang": true, "dan": true, "untuk": true, "dengan": true, "adalah": true, "dari": true,
}

// MinTermLength drops very short tokens.
const MinTermLength = 3

// Tokenize lowercases s and splits it on anything that is not a letter, digit,
// underscore or hyphen.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})
}

// ExtractTerms returns the distinct non-stopword terms of query, in order of
// first appearance.
func ExtractTerms(query string) []string {
	terms := make([]string, 0)
	seen := make(map[string]bool)
	for _, word := range Tokenize(query) {
		word = strings.Trim(word, "-_")
		if len([]rune(word)) < MinTermLength || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
	}
	return terms
}

// Overlap returns the fraction of terms present in text, in [0,1].
func Overlap(terms []string, text string) float64 {
	if len(terms) == 0 || text == "" {
		return 0
	}
	words := make(map[string]bool)
	for _, w := range Tokenize(text) {
		words[strings.Trim(w, "-_")] = true
	}
	hits := 0
	for _, t := range terms {
		if words[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
