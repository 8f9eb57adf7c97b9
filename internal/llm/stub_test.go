package llm

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubNoContexts(t *testing.T) {
	s := NewStubClient()

	c, err := s.Complete(context.Background(), Request{Question: "what is RAG?"})
	require.NoError(t, err)

	assert.Equal(t, "I cannot find relevant information to answer: 'what is RAG?'", c.Text)
	assert.Zero(t, c.CostUSD)
	assert.Greater(t, c.TokensUsed, 0)
}

func TestStubSingleContext(t *testing.T) {
	s := NewStubClient()

	c, err := s.Complete(context.Background(), Request{
		Question: "what is RAG?",
		Contexts: []string{"RAG combines retrieval with generation."},
	})
	require.NoError(t, err)

	assert.Equal(t,
		"Based on the available information, regarding 'what is RAG?': RAG combines retrieval with generation.",
		c.Text)
	assert.NotContains(t, c.Text, "relevant sources")
}

func TestStubMultipleContextsAppendsSourceCount(t *testing.T) {
	s := NewStubClient()

	c, err := s.Complete(context.Background(), Request{
		Question: "q",
		Contexts: []string{"first passage", "second passage", "third passage"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(c.Text, " (Found 3 relevant sources)"))
	assert.Contains(t, c.Text, "first passage")
	assert.NotContains(t, c.Text, "second passage")
}

func TestStubTruncatesLongContext(t *testing.T) {
	s := NewStubClient()
	long := strings.Repeat("a", 500)

	c, err := s.Complete(context.Background(), Request{Question: "q", Contexts: []string{long}})
	require.NoError(t, err)

	want := fmt.Sprintf("Based on the available information, regarding 'q': %s", long[:200])
	assert.Equal(t, want, c.Text)
}

func TestStubMetadata(t *testing.T) {
	s := NewStubClient()
	assert.Equal(t, "stub", s.ModelName())
	assert.True(t, s.Available(context.Background()))
	assert.Zero(t, s.EstimateCost(1000, 1000))
	assert.NoError(t, s.Close())
}
