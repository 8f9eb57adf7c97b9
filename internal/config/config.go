// Package config loads and validates pipeline configuration from YAML files
// with environment variable overrides. Precedence, lowest to highest:
// hardcoded defaults, config file, RAGCORE_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete pipeline configuration.
type Config struct {
	AppName string `yaml:"app_name" json:"app_name"`

	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Prompt     PromptConfig     `yaml:"prompt" json:"prompt"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Experiment ExperimentConfig `yaml:"experiments" json:"experiments"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Eval       EvalConfig       `yaml:"evaluation" json:"evaluation"`
	Cost       CostConfig       `yaml:"cost" json:"cost"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Features   FeatureConfig    `yaml:"features" json:"features"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// Path is the log file location; empty logs to stderr only.
	Path string `yaml:"path" json:"path"`
}

// ChunkingConfig sizes the document chunker.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "openai", "static", or empty for
	// auto-detection (openai when an API key is present, else static).
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	APIKey     string `yaml:"api_key" json:"-"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	// FinetunedModel is the alternate model id used by the finetuned variant.
	FinetunedModel string `yaml:"finetuned_model" json:"finetuned_model"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b" json:"bm25_b"`

	// HybridAlpha is the semantic-branch weight for normalized-weighted
	// fusion; the BM25 branch gets 1-alpha.
	HybridAlpha float64 `yaml:"hybrid_alpha" json:"hybrid_alpha"`
	RRFConstant int     `yaml:"rrf_k" json:"rrf_k"`

	// SearchTopK is the per-branch candidate count; FinalTopK the returned
	// passage count.
	SearchTopK int `yaml:"search_top_k" json:"search_top_k"`
	FinalTopK  int `yaml:"final_top_k" json:"final_top_k"`
}

// RerankerConfig configures the cross-encoder re-ranker.
type RerankerConfig struct {
	Model string `yaml:"model" json:"model"`
	TopK  int    `yaml:"top_k" json:"top_k"`
}

// PromptConfig bounds prompt assembly.
type PromptConfig struct {
	// MaxContextLength is the context block character budget.
	MaxContextLength int `yaml:"max_context_length" json:"max_context_length"`
}

// LLMConfig configures the chat-completion client.
type LLMConfig struct {
	// Provider selects "openai", "stub", or empty for auto-detection.
	Provider       string  `yaml:"provider" json:"provider"`
	Model          string  `yaml:"model" json:"model"`
	APIKey         string  `yaml:"api_key" json:"-"`
	BaseURL        string  `yaml:"base_url" json:"base_url"`
	Temperature    float64 `yaml:"temperature" json:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ExperimentConfig configures variant routing.
type ExperimentConfig struct {
	Enabled        bool      `yaml:"enabled" json:"enabled"`
	Variants       []string  `yaml:"variants" json:"variants"`
	TrafficSplit   []float64 `yaml:"traffic_split" json:"traffic_split"`
	DefaultVariant string    `yaml:"default_variant" json:"default_variant"`
	MinSamples     int       `yaml:"min_samples" json:"min_samples"`
	Confidence     float64   `yaml:"confidence_level" json:"confidence_level"`
	// BanditEpsilon is the exploration rate for the bandit adapter.
	BanditEpsilon float64 `yaml:"bandit_epsilon" json:"bandit_epsilon"`
}

// CacheConfig configures answer and record caching.
type CacheConfig struct {
	// RedisAddr selects the Redis backend; empty uses the in-memory cache.
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds" json:"ttl_seconds"`
	MaxEntries    int    `yaml:"max_entries" json:"max_entries"`
}

// EvalConfig configures the answer evaluator.
type EvalConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	ThresholdContextRelevancy   float64 `yaml:"threshold_context_relevancy" json:"threshold_context_relevancy"`
	ThresholdAnswerFaithfulness float64 `yaml:"threshold_answer_faithfulness" json:"threshold_answer_faithfulness"`
	ThresholdAnswerRelevancy    float64 `yaml:"threshold_answer_relevancy" json:"threshold_answer_relevancy"`
	ThresholdContextRecall      float64 `yaml:"threshold_context_recall" json:"threshold_context_recall"`
}

// CostConfig externalizes per-unit cost accounting.
type CostConfig struct {
	PerEmbeddingRequest float64 `yaml:"per_embedding_request" json:"per_embedding_request"`
	PerVectorSearch     float64 `yaml:"per_vector_search" json:"per_vector_search"`
	PerRerankRequest    float64 `yaml:"per_rerank_request" json:"per_rerank_request"`
	PerLLMToken         float64 `yaml:"per_llm_token" json:"per_llm_token"`
}

// StoreConfig configures persistent state.
type StoreConfig struct {
	// Collection names the document/embedding collection.
	Collection string `yaml:"collection" json:"collection"`
	// SQLitePath is the metadata database location; empty uses in-memory.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
	// HNSW tuning.
	HNSWM              int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfConstruction int `yaml:"hnsw_ef_construction" json:"hnsw_ef_construction"`
}

// FeatureConfig holds feature flags.
type FeatureConfig struct {
	QueryExpansion    bool `yaml:"query_expansion" json:"query_expansion"`
	MetadataFiltering bool `yaml:"metadata_filtering" json:"metadata_filtering"`
	CostTracking      bool `yaml:"cost_tracking" json:"cost_tracking"`
}

// Default returns a Config with every option at its documented default.
func Default() *Config {
	return &Config{
		AppName: "ragcore",
		Logging: LoggingConfig{
			Level: "info",
		},
		Chunking: ChunkingConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "",
			Model:          "text-embedding-3-small",
			Dimensions:     384,
			BatchSize:      32,
			CacheSize:      10000,
			FinetunedModel: "",
		},
		Search: SearchConfig{
			BM25K1:      1.2,
			BM25B:       0.75,
			HybridAlpha: 0.5,
			RRFConstant: 60,
			SearchTopK:  20,
			FinalTopK:   5,
		},
		Reranker: RerankerConfig{
			Model: "cross-encoder/ms-marco-MiniLM-L-6-v2",
			TopK:  10,
		},
		Prompt: PromptConfig{
			MaxContextLength: 2048,
		},
		LLM: LLMConfig{
			Provider:       "",
			Model:          "gpt-3.5-turbo",
			Temperature:    0.7,
			MaxTokens:      512,
			TimeoutSeconds: 30,
		},
		Experiment: ExperimentConfig{
			Enabled:        true,
			Variants:       []string{"baseline", "reranked", "hybrid", "finetuned"},
			TrafficSplit:   []float64{0.25, 0.25, 0.25, 0.25},
			DefaultVariant: "baseline",
			MinSamples:     100,
			Confidence:     0.95,
			BanditEpsilon:  0.1,
		},
		Cache: CacheConfig{
			TTLSeconds: 3600,
			MaxEntries: 1000,
		},
		Eval: EvalConfig{
			Enabled:                     true,
			ThresholdContextRelevancy:   0.8,
			ThresholdAnswerFaithfulness: 0.8,
			ThresholdAnswerRelevancy:    0.8,
			ThresholdContextRecall:      0.7,
		},
		Cost: CostConfig{
			PerEmbeddingRequest: 0.0001,
			PerVectorSearch:     0.00001,
			PerRerankRequest:    0.00005,
			PerLLMToken:         0.000002,
		},
		Store: StoreConfig{
			Collection:         "rag_documents",
			HNSWM:              16,
			HNSWEfConstruction: 200,
		},
		Features: FeatureConfig{
			QueryExpansion:    true,
			MetadataFiltering: true,
			CostTracking:      true,
		},
	}
}

// Load reads configuration from path (optional), applies environment
// overrides, and validates the result. An empty path uses defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.AppName != "" {
		c.AppName = other.AppName
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Path != "" {
		c.Logging.Path = other.Logging.Path
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.APIKey != "" {
		c.Embeddings.APIKey = other.Embeddings.APIKey
	}
	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.FinetunedModel != "" {
		c.Embeddings.FinetunedModel = other.Embeddings.FinetunedModel
	}

	if other.Search.BM25K1 != 0 {
		c.Search.BM25K1 = other.Search.BM25K1
	}
	if other.Search.BM25B != 0 {
		c.Search.BM25B = other.Search.BM25B
	}
	if other.Search.HybridAlpha != 0 {
		c.Search.HybridAlpha = other.Search.HybridAlpha
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.SearchTopK != 0 {
		c.Search.SearchTopK = other.Search.SearchTopK
	}
	if other.Search.FinalTopK != 0 {
		c.Search.FinalTopK = other.Search.FinalTopK
	}

	if other.Reranker.Model != "" {
		c.Reranker.Model = other.Reranker.Model
	}
	if other.Reranker.TopK != 0 {
		c.Reranker.TopK = other.Reranker.TopK
	}

	if other.Prompt.MaxContextLength != 0 {
		c.Prompt.MaxContextLength = other.Prompt.MaxContextLength
	}

	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.APIKey != "" {
		c.LLM.APIKey = other.LLM.APIKey
	}
	if other.LLM.BaseURL != "" {
		c.LLM.BaseURL = other.LLM.BaseURL
	}
	if other.LLM.Temperature != 0 {
		c.LLM.Temperature = other.LLM.Temperature
	}
	if other.LLM.MaxTokens != 0 {
		c.LLM.MaxTokens = other.LLM.MaxTokens
	}
	if other.LLM.TimeoutSeconds != 0 {
		c.LLM.TimeoutSeconds = other.LLM.TimeoutSeconds
	}

	if len(other.Experiment.Variants) > 0 {
		c.Experiment.Variants = other.Experiment.Variants
	}
	if len(other.Experiment.TrafficSplit) > 0 {
		c.Experiment.TrafficSplit = other.Experiment.TrafficSplit
	}
	if other.Experiment.DefaultVariant != "" {
		c.Experiment.DefaultVariant = other.Experiment.DefaultVariant
	}
	if other.Experiment.MinSamples != 0 {
		c.Experiment.MinSamples = other.Experiment.MinSamples
	}
	if other.Experiment.Confidence != 0 {
		c.Experiment.Confidence = other.Experiment.Confidence
	}
	if other.Experiment.BanditEpsilon != 0 {
		c.Experiment.BanditEpsilon = other.Experiment.BanditEpsilon
	}

	if other.Cache.RedisAddr != "" {
		c.Cache.RedisAddr = other.Cache.RedisAddr
	}
	if other.Cache.RedisPassword != "" {
		c.Cache.RedisPassword = other.Cache.RedisPassword
	}
	if other.Cache.RedisDB != 0 {
		c.Cache.RedisDB = other.Cache.RedisDB
	}
	if other.Cache.TTLSeconds != 0 {
		c.Cache.TTLSeconds = other.Cache.TTLSeconds
	}
	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}

	if other.Eval.ThresholdContextRelevancy != 0 {
		c.Eval.ThresholdContextRelevancy = other.Eval.ThresholdContextRelevancy
	}
	if other.Eval.ThresholdAnswerFaithfulness != 0 {
		c.Eval.ThresholdAnswerFaithfulness = other.Eval.ThresholdAnswerFaithfulness
	}
	if other.Eval.ThresholdAnswerRelevancy != 0 {
		c.Eval.ThresholdAnswerRelevancy = other.Eval.ThresholdAnswerRelevancy
	}
	if other.Eval.ThresholdContextRecall != 0 {
		c.Eval.ThresholdContextRecall = other.Eval.ThresholdContextRecall
	}

	if other.Cost.PerEmbeddingRequest != 0 {
		c.Cost.PerEmbeddingRequest = other.Cost.PerEmbeddingRequest
	}
	if other.Cost.PerVectorSearch != 0 {
		c.Cost.PerVectorSearch = other.Cost.PerVectorSearch
	}
	if other.Cost.PerRerankRequest != 0 {
		c.Cost.PerRerankRequest = other.Cost.PerRerankRequest
	}
	if other.Cost.PerLLMToken != 0 {
		c.Cost.PerLLMToken = other.Cost.PerLLMToken
	}

	if other.Store.Collection != "" {
		c.Store.Collection = other.Store.Collection
	}
	if other.Store.SQLitePath != "" {
		c.Store.SQLitePath = other.Store.SQLitePath
	}
	if other.Store.HNSWM != 0 {
		c.Store.HNSWM = other.Store.HNSWM
	}
	if other.Store.HNSWEfConstruction != 0 {
		c.Store.HNSWEfConstruction = other.Store.HNSWEfConstruction
	}
}

// applyEnvOverrides applies RAGCORE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGCORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RAGCORE_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("RAGCORE_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv("RAGCORE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RAGCORE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("RAGCORE_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("RAGCORE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
		if c.Embeddings.APIKey == "" {
			c.Embeddings.APIKey = v
		}
	}
	if v := os.Getenv("RAGCORE_HYBRID_ALPHA"); v != "" {
		if a, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && a >= 0 && a <= 1 {
			c.Search.HybridAlpha = a
		}
	}
	if v := os.Getenv("RAGCORE_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("RAGCORE_CACHE_TTL_SECONDS"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl > 0 {
			c.Cache.TTLSeconds = ttl
		}
	}
	if v := os.Getenv("RAGCORE_EVAL_ENABLED"); v != "" {
		c.Eval.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate checks the final configuration for consistency.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be >= 1, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if c.Search.BM25K1 <= 0 {
		return fmt.Errorf("bm25_k1 must be positive, got %f", c.Search.BM25K1)
	}
	if c.Search.BM25B < 0 || c.Search.BM25B > 1 {
		return fmt.Errorf("bm25_b must be in [0,1], got %f", c.Search.BM25B)
	}
	if c.Search.HybridAlpha < 0 || c.Search.HybridAlpha > 1 {
		return fmt.Errorf("hybrid_alpha must be in [0,1], got %f", c.Search.HybridAlpha)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_k must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.FinalTopK <= 0 || c.Search.SearchTopK <= 0 {
		return fmt.Errorf("search_top_k and final_top_k must be positive")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0,2], got %f", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}

	if len(c.Experiment.Variants) == 0 {
		return fmt.Errorf("experiments.variants must not be empty")
	}
	if len(c.Experiment.TrafficSplit) != len(c.Experiment.Variants) {
		return fmt.Errorf("experiments.traffic_split length %d does not match %d variants",
			len(c.Experiment.TrafficSplit), len(c.Experiment.Variants))
	}
	var sum float64
	for _, w := range c.Experiment.TrafficSplit {
		if w < 0 {
			return fmt.Errorf("experiments.traffic_split entries must be non-negative")
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-3 {
		return fmt.Errorf("experiments.traffic_split must sum to 1.0, got %.4f", sum)
	}
	if c.Experiment.Confidence <= 0 || c.Experiment.Confidence >= 1 {
		return fmt.Errorf("experiments.confidence_level must be in (0,1), got %f", c.Experiment.Confidence)
	}
	if c.Experiment.BanditEpsilon < 0 || c.Experiment.BanditEpsilon > 1 {
		return fmt.Errorf("experiments.bandit_epsilon must be in [0,1], got %f", c.Experiment.BanditEpsilon)
	}

	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive, got %d", c.Cache.TTLSeconds)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	if c.Store.Collection == "" {
		return fmt.Errorf("store.collection must not be empty")
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
