package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// stubSnippetLength bounds how much of the top passage the stub echoes.
const stubSnippetLength = 200

// StubClient produces deterministic template answers from the retrieved
// contexts. It is the offline provider and the fallback when the remote
// provider is down.
type StubClient struct {
	model string
}

// NewStubClient creates the stub provider.
func NewStubClient() *StubClient {
	return &StubClient{model: "stub"}
}

// Complete answers from the first context, or admits it found nothing.
func (s *StubClient) Complete(_ context.Context, req Request) (*Completion, error) {
	start := time.Now()
	text := s.render(req)

	return &Completion{
		Text:       text,
		TokensUsed: len(strings.Fields(text)),
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		CostUSD:    0,
	}, nil
}

func (s *StubClient) render(req Request) string {
	if len(req.Contexts) == 0 {
		return fmt.Sprintf("I cannot find relevant information to answer: '%s'", req.Question)
	}

	snippet := req.Contexts[0]
	if len(snippet) > stubSnippetLength {
		snippet = snippet[:stubSnippetLength]
	}
	answer := fmt.Sprintf("Based on the available information, regarding '%s': %s", req.Question, snippet)
	if len(req.Contexts) > 1 {
		answer += fmt.Sprintf(" (Found %d relevant sources)", len(req.Contexts))
	}
	return answer
}

// EstimateCost is always zero for the stub.
func (s *StubClient) EstimateCost(promptTokens, completionTokens int) float64 {
	return 0
}

// ModelName returns the stub identifier.
func (s *StubClient) ModelName() string {
	return s.model
}

// Available is always true.
func (s *StubClient) Available(_ context.Context) bool {
	return true
}

// Close releases resources.
func (s *StubClient) Close() error {
	return nil
}
