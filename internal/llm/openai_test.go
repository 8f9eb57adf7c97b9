package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTotal(t *testing.T) {
	tests := []struct {
		total          int
		wantPrompt     int
		wantCompletion int
	}{
		{100, 60, 40},
		{10, 6, 4},
		{5, 3, 2},
		{1, 0, 1},
		{0, 0, 0},
	}

	for _, tt := range tests {
		promptTokens, completionTokens := splitTotal(tt.total)
		assert.Equal(t, tt.wantPrompt, promptTokens, "total %d", tt.total)
		assert.Equal(t, tt.wantCompletion, completionTokens, "total %d", tt.total)
		assert.Equal(t, tt.total, promptTokens+completionTokens, "total %d", tt.total)
	}
}
