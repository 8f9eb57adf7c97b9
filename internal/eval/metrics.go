package eval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/answerforge/ragcore/internal/llm"
	"github.com/answerforge/ragcore/internal/prompt"
	"github.com/answerforge/ragcore/internal/textproc"
)

// errUnparseable marks judge responses that did not follow the requested
// format; callers fall back to lexical heuristics.
var errUnparseable = errors.New("judge response not parseable")

// contextRelevancy scores how relevant the retrieved passages are to the
// query: the reranker's mean sigmoid score, or an LLM yes/no vote per
// passage when no reranker is available.
func (e *Evaluator) contextRelevancy(ctx context.Context, query string, texts []string) (float64, error) {
	if len(texts) == 0 {
		return 0, nil
	}

	if e.reranker != nil && e.reranker.Available(ctx) {
		results, err := e.reranker.Rerank(ctx, query, texts, 0)
		if err == nil {
			return meanScores(results), nil
		}
		e.logger.Warn("reranker scoring failed, falling back to judge votes", "error", err)
	}

	votes := 0
	for _, text := range texts {
		relevant, err := e.askYesNo(ctx, fmt.Sprintf(
			"Question: %s\n\nPassage: %s\n\nIs the passage relevant to the question?", query, text))
		switch {
		case errors.Is(err, errUnparseable):
			// Fall back to lexical overlap for this passage.
			relevant = tokenOverlap(query, text) >= 0.3
		case err != nil:
			return 0, err
		}
		if relevant {
			votes++
		}
	}
	return float64(votes) / float64(len(texts)), nil
}

// answerFaithfulness measures the fraction of the answer's claims that the
// top passages support.
func (e *Evaluator) answerFaithfulness(ctx context.Context, answer string, texts []string) (float64, error) {
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}

	claims, err := e.extractClaims(ctx, answer)
	if err != nil {
		return 0, err
	}
	if len(claims) == 0 {
		return noClaimsScore, nil
	}

	context := concatPassages(texts)
	verified := 0
	for _, claim := range claims {
		supported, err := e.askYesNo(ctx, fmt.Sprintf(
			"Context: %s\n\nClaim: %s\n\nIs the claim supported by the context?", context, claim))
		switch {
		case errors.Is(err, errUnparseable):
			supported = tokenOverlap(claim, context) >= 0.5
		case err != nil:
			return 0, err
		}
		if supported {
			verified++
		}
	}
	return float64(verified) / float64(len(claims)), nil
}

// answerRelevancy scores how well the answer addresses the query: the
// reranker on the (query, answer) pair, else questions generated from the
// answer compared back to the query.
func (e *Evaluator) answerRelevancy(ctx context.Context, query, answer string) (float64, error) {
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}

	if e.reranker != nil && e.reranker.Available(ctx) {
		results, err := e.reranker.Rerank(ctx, query, []string{answer}, 0)
		if err == nil && len(results) > 0 {
			return results[0].Score, nil
		}
	}

	questions, err := e.generateQuestions(ctx, answer)
	if err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return tokenOverlap(query, answer), nil
	}
	sum := 0.0
	for _, q := range questions {
		sum += tokenOverlap(query, q)
	}
	return sum / float64(len(questions)), nil
}

// contextRecall measures how much of the needed information the passages
// cover: ground-truth coverage when provided, otherwise the fraction of
// extracted query aspects mentioned by any passage.
func (e *Evaluator) contextRecall(ctx context.Context, query string, texts []string, groundTruth string) (float64, error) {
	if len(texts) == 0 {
		return 0, nil
	}

	if strings.TrimSpace(groundTruth) != "" {
		covered, err := e.askYesNo(ctx, fmt.Sprintf(
			"Passages: %s\n\nExpected answer: %s\n\nDo the passages contain the information in the expected answer?",
			concatPassages(texts), groundTruth))
		switch {
		case errors.Is(err, errUnparseable):
			return bestOverlap(groundTruth, texts), nil
		case err != nil:
			return 0, err
		}
		if covered {
			return 1, nil
		}
		return 0, nil
	}

	aspects, err := e.extractAspects(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(aspects) == 0 {
		return bestOverlap(query, texts), nil
	}

	mentioned := 0
	for _, aspect := range aspects {
		if aspectMentioned(aspect, texts) {
			mentioned++
		}
	}
	return float64(mentioned) / float64(len(aspects)), nil
}

// askYesNo poses a binary question to the judge. The response must start
// with yes or no; anything else is errUnparseable.
func (e *Evaluator) askYesNo(ctx context.Context, question string) (bool, error) {
	text, err := e.ask(ctx, question+" Answer with exactly one word: yes or no.")
	if err != nil {
		return false, err
	}

	switch {
	case strings.HasPrefix(text, "yes"):
		return true, nil
	case strings.HasPrefix(text, "no"):
		return false, nil
	}
	return false, errUnparseable
}

// extractClaims asks the judge for the answer's factual claims as a
// dash-prefixed list, falling back to sentence splitting when the response
// does not follow the format.
func (e *Evaluator) extractClaims(ctx context.Context, answer string) ([]string, error) {
	text, err := e.ask(ctx, fmt.Sprintf(
		"List the factual claims made in the following answer. Write each claim on its own line starting with \"- \".\n\nAnswer: %s", answer))
	if err != nil {
		if errors.Is(err, errUnparseable) {
			return splitSentences(answer), nil
		}
		return nil, err
	}
	if claims := parseDashList(text, 0); len(claims) > 0 {
		return claims, nil
	}
	return splitSentences(answer), nil
}

// extractAspects asks the judge for the query's information aspects,
// falling back to its salient keywords.
func (e *Evaluator) extractAspects(ctx context.Context, query string) ([]string, error) {
	text, err := e.ask(ctx, fmt.Sprintf(
		"List up to %d distinct pieces of information needed to answer the question. Write each on its own line starting with \"- \".\n\nQuestion: %s", maxAspects, query))
	if err != nil {
		if errors.Is(err, errUnparseable) {
			return keywordAspects(query), nil
		}
		return nil, err
	}
	if aspects := parseDashList(text, maxAspects); len(aspects) > 0 {
		return aspects, nil
	}
	return keywordAspects(query), nil
}

// generateQuestions asks the judge which questions the answer addresses.
func (e *Evaluator) generateQuestions(ctx context.Context, answer string) ([]string, error) {
	text, err := e.ask(ctx, fmt.Sprintf(
		"Write 3 questions that the following answer addresses. Write each question on its own line starting with \"- \".\n\nAnswer: %s", answer))
	if err != nil {
		if errors.Is(err, errUnparseable) {
			return nil, nil
		}
		return nil, err
	}
	return parseDashList(text, 3), nil
}

// ask runs a single judge prompt with deterministic settings.
func (e *Evaluator) ask(ctx context.Context, question string) (string, error) {
	if e.llm == nil {
		return "", errUnparseable
	}
	judgeTemp := 0.01
	completion, err := e.llm.Complete(ctx, llm.Request{
		Messages: []prompt.Message{
			{Role: prompt.RoleSystem, Content: "You are a strict evaluation judge. Follow the requested output format exactly."},
			{Role: prompt.RoleUser, Content: question},
		},
		Question:    question,
		Temperature: &judgeTemp,
		MaxTokens:   256,
	})
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(completion.Text)), nil
}

// parseDashList extracts "- " prefixed lines, up to limit (0 = all).
func parseDashList(text string, limit int) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		item := strings.TrimSpace(strings.TrimPrefix(line, "- "))
		if item == "" {
			continue
		}
		items = append(items, item)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items
}

// splitSentences breaks an answer into claim-sized sentences.
func splitSentences(text string) []string {
	var sentences []string
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		s = strings.TrimSpace(s)
		if len(strings.Fields(s)) >= 3 {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// keywordAspects picks the query's salient tokens as recall aspects.
func keywordAspects(query string) []string {
	seen := make(map[string]struct{})
	var aspects []string
	for _, tok := range textproc.Tokenize(query) {
		if len(tok) <= 3 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		aspects = append(aspects, tok)
		if len(aspects) == maxAspects {
			break
		}
	}
	return aspects
}

// aspectMentioned reports whether any passage mentions the aspect, by
// substring or by containing any of its first three words.
func aspectMentioned(aspect string, texts []string) bool {
	aspect = strings.ToLower(aspect)
	words := strings.Fields(aspect)
	if len(words) > 3 {
		words = words[:3]
	}

	for _, text := range texts {
		lower := strings.ToLower(text)
		if strings.Contains(lower, aspect) {
			return true
		}
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// tokenOverlap is the fraction of a's unique tokens present in b.
func tokenOverlap(a, b string) float64 {
	aTokens := textproc.Tokenize(a)
	if len(aTokens) == 0 {
		return 0
	}
	bSet := make(map[string]struct{})
	for _, tok := range textproc.Tokenize(b) {
		bSet[tok] = struct{}{}
	}

	seen := make(map[string]struct{})
	matched := 0
	for _, tok := range aTokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := bSet[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(seen))
}

// bestOverlap is the highest token overlap of text against any passage.
func bestOverlap(text string, passages []string) float64 {
	best := 0.0
	for _, p := range passages {
		if o := tokenOverlap(text, p); o > best {
			best = o
		}
	}
	return best
}
