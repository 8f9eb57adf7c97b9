package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/answerforge/ragcore/internal/textproc"
)

// Expander generates query variants to widen keyword recall. The original
// query always ranks first in the returned slice.
type Expander struct {
	// MaxVariants caps the total number of queries including the original.
	MaxVariants int
}

// NewExpander creates an expander with the default variant cap.
func NewExpander() *Expander {
	return &Expander{MaxVariants: 4}
}

// longTokenThreshold is the token count above which a focused subquery of
// the longest tokens is added.
const longTokenThreshold = 3

// Expand returns the query plus up to MaxVariants-1 reformulations:
// question forms for non-question queries, and a subquery of the longest
// tokens for verbose queries.
func (e *Expander) Expand(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	variants := []string{query}
	seen := map[string]struct{}{strings.ToLower(query): {}}

	add := func(v string) {
		if len(variants) >= e.MaxVariants {
			return
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
	}

	if !strings.HasSuffix(query, "?") {
		add(fmt.Sprintf("What is %s?", query))
		add(fmt.Sprintf("How does %s work?", query))
	}

	tokens := textproc.Tokenize(query)
	if len(tokens) > longTokenThreshold {
		add(strings.Join(longestTokens(tokens, longTokenThreshold), " "))
	}

	return variants
}

// longestTokens picks the n longest tokens, preserving query order.
func longestTokens(tokens []string, n int) []string {
	if len(tokens) <= n {
		return tokens
	}

	type indexed struct {
		pos int
		tok string
	}
	byLen := make([]indexed, len(tokens))
	for i, t := range tokens {
		byLen[i] = indexed{pos: i, tok: t}
	}
	// Stable on length so equal-length tokens keep query order.
	sort.SliceStable(byLen, func(i, j int) bool {
		return len(byLen[i].tok) > len(byLen[j].tok)
	})

	picked := make([]indexed, n)
	copy(picked, byLen[:n])
	sort.Slice(picked, func(i, j int) bool { return picked[i].pos < picked[j].pos })

	out := make([]string, len(picked))
	for i, p := range picked {
		out[i] = p.tok
	}
	return out
}
