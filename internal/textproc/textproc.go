// Package textproc implements the shared text primitives: the BM25
// tokenizer and the query normalization used for cache keys. Indexed text
// and queries must pass through the same tokenizer.
package textproc

import (
	"strings"
	"unicode"
)

// tokenPunct is the punctuation stripped from token edges.
const tokenPunct = ".,!?;:\"'"

// Tokenize lower-cases the input, splits on whitespace, strips punctuation
// from each token, and drops empty tokens. No stemming, no stop words.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.Trim(f, tokenPunct)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// NormalizeQuery canonicalizes a query for cache keying: lower-case,
// collapse internal whitespace, strip trailing sentence punctuation, unify
// quote characters. The result is idempotent.
func NormalizeQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))

	// Unify curly quotes before any other processing.
	replacer := strings.NewReplacer(
		"‘", "'", // left single
		"’", "'", // right single
		"“", `"`, // left double
		"”", `"`, // right double
	)
	q = replacer.Replace(q)

	// Collapse runs of whitespace to single spaces.
	q = strings.Join(strings.Fields(q), " ")

	// Strip trailing sentence punctuation.
	q = strings.TrimRightFunc(q, func(r rune) bool {
		return r == '?' || r == '!' || r == '.'
	})

	return strings.TrimRightFunc(q, unicode.IsSpace)
}
