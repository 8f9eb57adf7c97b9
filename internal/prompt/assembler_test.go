package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/model"
)

func passage(text, title, source string) model.Passage {
	return model.Passage{Chunk: model.Chunk{
		Text:   text,
		Title:  title,
		Source: model.DocumentSource(source),
	}}
}

func TestBuildContextHeaders(t *testing.T) {
	a := NewAssembler(config.PromptConfig{})

	ctx := a.BuildContext([]model.Passage{
		passage("alpha body", "Alpha", "wiki"),
		passage("beta body", "", "api"),
		passage("gamma body", "Gamma", ""),
		passage("delta body", "", ""),
	})

	parts := strings.Split(ctx, "\n\n")
	require.Len(t, parts, 4)
	assert.Equal(t, "[Source 1] Alpha (wiki)\nalpha body", parts[0])
	assert.Equal(t, "[Source 2] (api)\nbeta body", parts[1])
	assert.Equal(t, "[Source 3] Gamma\ngamma body", parts[2])
	assert.Equal(t, "[Source 4]\ndelta body", parts[3])
}

func TestBuildContextTruncation(t *testing.T) {
	a := NewAssembler(config.PromptConfig{MaxContextLength: 20})

	ctx := a.BuildContext([]model.Passage{
		passage(strings.Repeat("x", 100), "", ""),
	})

	assert.Len(t, ctx, 23)
	assert.True(t, strings.HasSuffix(ctx, "..."))
	assert.Equal(t, "[Source 1]\nxxxxxxxxx", ctx[:20])
}

func TestBuildContextUnderBudgetUntouched(t *testing.T) {
	a := NewAssembler(config.PromptConfig{MaxContextLength: 500})

	ctx := a.BuildContext([]model.Passage{passage("short", "", "")})
	assert.Equal(t, "[Source 1]\nshort", ctx)
}

func TestBuildContextEmpty(t *testing.T) {
	a := NewAssembler(config.PromptConfig{})
	assert.Empty(t, a.BuildContext(nil))
}

func TestBuildMessages(t *testing.T) {
	a := NewAssembler(config.PromptConfig{})

	msgs := a.Build("what is RAG?", []model.Passage{
		passage("RAG combines retrieval with generation.", "RAG", "wiki"),
	})
	require.Len(t, msgs, 2)

	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Use the following context to answer the question.")
	assert.Contains(t, msgs[0].Content, "say so")

	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Context:\n[Source 1] RAG (wiki)\nRAG combines retrieval with generation.")
	assert.Contains(t, msgs[1].Content, "Question: what is RAG?")
	assert.True(t, strings.HasSuffix(msgs[1].Content, "Answer:"))
}

func TestTokenCounter(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o-mini")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	short := tc.Count("hello world")
	assert.Greater(t, short, 0)

	long := tc.Count(strings.Repeat("hybrid retrieval ", 50))
	assert.Greater(t, long, short)

	total := tc.CountMessages([]Message{
		{Role: RoleSystem, Content: "hello"},
		{Role: RoleUser, Content: "world"},
	})
	assert.Equal(t, tc.Count("hello")+tc.Count("world"), total)
}

func TestTokenCounterUnknownModelFallsBack(t *testing.T) {
	tc, err := NewTokenCounter("definitely-not-a-model")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	assert.Greater(t, tc.Count("fallback encoding still counts"), 0)
}
