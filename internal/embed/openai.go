package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	ragerr "github.com/answerforge/ragcore/internal/errors"
)

// openaiRequestTimeout is the per-attempt deadline for embedding calls.
const openaiRequestTimeout = 30 * time.Second

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
// Requests are batched and retried with exponential backoff; vectors are
// L2-normalized before being returned.
type OpenAIEmbedder struct {
	client    openaisdk.Client
	model     string
	dims      int
	batchSize int
	retryCfg  ragerr.RetryConfig
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dims      int
	BatchSize int
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.ErrCodeEmbedderUnavailable, "openai embedder requires an API key", nil)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai embedder requires a model name")
	}
	if cfg.Dims <= 0 {
		cfg.Dims = DefaultDimensions
	}
	if cfg.BatchSize < MinBatchSize || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		client:    openaisdk.NewClient(opts...),
		model:     cfg.Model,
		dims:      cfg.Dims,
		batchSize: cfg.BatchSize,
		retryCfg:  ragerr.RemoteRetryConfig(),
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving order.
// Inputs are split into API batches of the configured size.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := e.embedBatchOnce(ctx, texts[start:end])
		if err != nil {
			return nil, ragerr.Wrap(ragerr.ErrCodeEmbeddingFailed, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedBatchOnce issues one retried API call for a single batch.
func (e *OpenAIEmbedder) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	return ragerr.RetryWithResult(ctx, e.retryCfg, func() ([][]float32, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, openaiRequestTimeout)
		defer cancel()

		params := openaisdk.EmbeddingNewParams{
			Model: openaisdk.EmbeddingModel(e.model),
			Input: openaisdk.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Dimensions: param.NewOpt(int64(e.dims)),
		}

		resp, err := e.client.Embeddings.New(attemptCtx, params)
		if err != nil {
			return nil, classifyAPIError(err)
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
		}

		vecs := make([][]float32, len(resp.Data))
		for i, emb := range resp.Data {
			vec := make([]float32, e.dims)
			for j := 0; j < len(emb.Embedding) && j < e.dims; j++ {
				vec[j] = float32(emb.Embedding[j])
			}
			vecs[i] = normalizeVector(vec)
		}
		return vecs, nil
	})
}

// classifyAPIError maps provider errors onto the retry taxonomy: 4xx is
// permanent, 5xx and transport failures are retryable.
func classifyAPIError(err error) error {
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode >= 400 && apierr.StatusCode < 500 {
			return ragerr.New(ragerr.ErrCodeInvalidInput,
				fmt.Sprintf("embedding request rejected (status %d)", apierr.StatusCode), err)
		}
		return ragerr.New(ragerr.ErrCodeServerError,
			fmt.Sprintf("embedding provider error (status %d)", apierr.StatusCode), err)
	}
	return ragerr.TransportError("embedding request failed", err)
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Available probes the API with a minimal embedding request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := e.client.Embeddings.New(probeCtx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(e.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{"ping"},
		},
	})
	return err == nil
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
