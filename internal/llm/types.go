// Package llm abstracts chat-completion providers behind a small client
// interface with a deterministic stub for offline operation.
package llm

import (
	"context"

	"github.com/answerforge/ragcore/internal/prompt"
)

// Generation defaults applied when the request leaves them unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 512
)

// Request is one completion call. Question and Contexts carry the raw
// retrieval inputs alongside the rendered messages so template-based
// providers can answer without parsing the prompt back apart.
type Request struct {
	Messages []prompt.Message
	Question string
	Contexts []string

	// Temperature nil and MaxTokens zero fall back to DefaultTemperature /
	// DefaultMaxTokens. A pointer keeps an explicit 0 distinguishable from
	// unset.
	Temperature *float64
	MaxTokens   int
}

// Completion is the provider's answer plus accounting.
type Completion struct {
	Text       string
	TokensUsed int
	LatencyMS  float64
	CostUSD    float64
	// Fallback marks completions produced by the stub after the remote
	// provider failed.
	Fallback bool
}

// Client generates completions.
type Client interface {
	// Complete generates an answer for the request.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// EstimateCost prices a token split in USD.
	EstimateCost(promptTokens, completionTokens int) float64

	// ModelName identifies the underlying model.
	ModelName() string

	// Available reports whether the provider can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// applyDefaults resolves unset generation knobs.
func (r *Request) applyDefaults() {
	if r.Temperature == nil {
		t := float64(DefaultTemperature)
		r.Temperature = &t
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
}
