package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 1.2, cfg.Search.BM25K1)
	assert.Equal(t, 0.75, cfg.Search.BM25B)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 20, cfg.Search.SearchTopK)
	assert.Equal(t, 5, cfg.Search.FinalTopK)
	assert.Equal(t, 2048, cfg.Prompt.MaxContextLength)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 0.95, cfg.Experiment.Confidence)
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Search.RRFConstant, cfg.Search.RRFConstant)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
chunking:
  chunk_size: 256
search:
  final_top_k: 3
llm:
  model: gpt-4o-mini
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Chunking.ChunkSize)
	assert.Equal(t, 3, cfg.Search.FinalTopK)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	// Untouched values keep defaults.
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 20, cfg.Search.SearchTopK)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RAGCORE_RRF_K", "90")
	t.Setenv("RAGCORE_LLM_MODEL", "gpt-4o")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Search.RRFConstant)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap >= chunk size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{"zero chunk size", func(c *Config) { c.Chunking.ChunkSize = 0 }},
		{"alpha out of range", func(c *Config) { c.Search.HybridAlpha = 1.5 }},
		{"split does not sum to 1", func(c *Config) { c.Experiment.TrafficSplit = []float64{0.5, 0.2, 0.2, 0.2} }},
		{"split length mismatch", func(c *Config) { c.Experiment.TrafficSplit = []float64{0.5, 0.5} }},
		{"temperature out of range", func(c *Config) { c.LLM.Temperature = 3.0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"empty collection", func(c *Config) { c.Store.Collection = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTrafficSplitToleratesEpsilon(t *testing.T) {
	cfg := Default()
	cfg.Experiment.TrafficSplit = []float64{0.2501, 0.25, 0.25, 0.2499}
	assert.NoError(t, cfg.Validate())
}
