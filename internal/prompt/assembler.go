// Package prompt builds the grounded chat messages handed to the LLM and
// counts tokens for budgeting and cost accounting.
package prompt

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/model"
)

// Chat message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

const systemInstruction = "You are a helpful AI assistant. Use the following context to answer the question. " +
	"If you cannot answer the question based on the context, say so."

// DefaultMaxContextLength bounds the context block when no budget is
// configured.
const DefaultMaxContextLength = 2048

// Assembler renders retrieved passages into a numbered context block and
// wraps it in the system/user message pair.
type Assembler struct {
	maxContextLength int
}

// NewAssembler applies the configured context budget.
func NewAssembler(cfg config.PromptConfig) *Assembler {
	maxLen := cfg.MaxContextLength
	if maxLen <= 0 {
		maxLen = DefaultMaxContextLength
	}
	return &Assembler{maxContextLength: maxLen}
}

// Build produces the system and user messages for a question grounded in
// the given passages.
func (a *Assembler) Build(question string, passages []model.Passage) []Message {
	context := a.BuildContext(passages)
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", context, question)
	return []Message{
		{Role: RoleSystem, Content: systemInstruction},
		{Role: RoleUser, Content: user},
	}
}

// BuildContext renders passages as "[Source i] title (source)" headers over
// their text, joined by blank lines and truncated at the character budget
// with a trailing ellipsis.
func (a *Assembler) BuildContext(passages []model.Passage) string {
	parts := make([]string, 0, len(passages))
	for i, p := range passages {
		header := fmt.Sprintf("[Source %d]", i+1)
		if p.Chunk.Title != "" {
			header += " " + p.Chunk.Title
		}
		if p.Chunk.Source != "" {
			header += fmt.Sprintf(" (%s)", p.Chunk.Source)
		}
		parts = append(parts, header+"\n"+p.Chunk.Text)
	}

	context := strings.Join(parts, "\n\n")
	if len(context) > a.maxContextLength {
		context = context[:a.maxContextLength] + "..."
	}
	return context
}

// TokenCounter counts tokens with the model's tiktoken encoding, falling
// back to cl100k_base for models tiktoken does not know.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter resolves the encoding for the given model name.
func NewTokenCounter(modelName string) (*TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding: %w", err)
		}
	}
	return &TokenCounter{enc: enc}, nil
}

// Count returns the token count of text.
func (t *TokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessages sums the token counts of all message contents.
func (t *TokenCounter) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += t.Count(m.Content)
	}
	return total
}
