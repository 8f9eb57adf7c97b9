package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/answerforge/ragcore/internal/config"
	ragerr "github.com/answerforge/ragcore/internal/errors"
	"github.com/answerforge/ragcore/internal/prompt"
)

// defaultRequestTimeout is the per-attempt deadline for completion calls.
const defaultRequestTimeout = 30 * time.Second

// modelPricing maps model names to USD per 1K input/output tokens.
// Unknown models fall back to the gpt-4o-mini rates.
var modelPricing = map[string]struct{ input, output float64 }{
	"gpt-4o":        {0.0025, 0.010},
	"gpt-4o-mini":   {0.00015, 0.0006},
	"gpt-4.1":       {0.0020, 0.008},
	"gpt-4.1-mini":  {0.0004, 0.0016},
	"gpt-3.5-turbo": {0.0005, 0.0015},
}

var fallbackPricing = modelPricing["gpt-4o-mini"]

// OpenAIClient generates answers via the OpenAI chat completions API.
// Calls are retried with backoff behind a circuit breaker; when the
// provider stays down the deterministic stub answers instead, so a query
// never fails outright because of the LLM.
type OpenAIClient struct {
	client   openaisdk.Client
	model    string
	timeout  time.Duration
	retryCfg ragerr.RetryConfig
	breaker  *ragerr.CircuitBreaker
	stub     *StubClient
	counter  *prompt.TokenCounter
	logger   *slog.Logger

	temperature float64
	maxTokens   int
}

// NewOpenAIClient builds the OpenAI-backed client.
func NewOpenAIClient(cfg config.LLMConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.ErrCodeLLMUnavailable, "openai client requires an API key", nil)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai client requires a model name")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := defaultRequestTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	// Token counting is best effort: without an encoding we fall back to
	// word counts when the API omits usage.
	counter, err := prompt.NewTokenCounter(cfg.Model)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using word counts", "model", cfg.Model, "error", err)
		counter = nil
	}

	return &OpenAIClient{
		client:      openaisdk.NewClient(opts...),
		model:       cfg.Model,
		timeout:     timeout,
		retryCfg:    ragerr.RemoteRetryConfig(),
		breaker:     ragerr.NewCircuitBreaker("llm"),
		stub:        NewStubClient(),
		counter:     counter,
		logger:      logger,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Complete calls the chat completions API. After retries are exhausted or
// while the breaker is open, the stub renders a fallback answer.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	if req.Temperature == nil && c.temperature > 0 {
		req.Temperature = &c.temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.maxTokens
	}
	req.applyDefaults()

	start := time.Now()
	completion, err := ragerr.CircuitExecuteWithResult(c.breaker,
		func() (*Completion, error) {
			return c.completeOnce(ctx, req)
		},
		func() (*Completion, error) {
			return c.fallback(ctx, req)
		})
	if err != nil {
		// Closed-state failures come back as errors; answer with the stub
		// rather than failing the query.
		c.logger.Warn("completion failed after retries", "model", c.model, "error", err)
		completion, err = c.fallback(ctx, req)
		if err != nil {
			return nil, ragerr.Wrap(ragerr.ErrCodeGenerationFailed, err)
		}
	}

	completion.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
	return completion, nil
}

// completeOnce issues one retried API call.
func (c *OpenAIClient) completeOnce(ctx context.Context, req Request) (*Completion, error) {
	return ragerr.RetryWithResult(ctx, c.retryCfg, func() (*Completion, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		params := openaisdk.ChatCompletionNewParams{
			Model:       openaisdk.ChatModel(c.model),
			Messages:    toSDKMessages(req.Messages),
			Temperature: param.NewOpt(*req.Temperature),
			MaxTokens:   param.NewOpt(int64(req.MaxTokens)),
		}

		resp, err := c.client.Chat.Completions.New(attemptCtx, params)
		if err != nil {
			return nil, classifyAPIError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("completion returned no choices")
		}

		text := resp.Choices[0].Message.Content
		promptTokens := int(resp.Usage.PromptTokens)
		completionTokens := int(resp.Usage.CompletionTokens)
		if promptTokens == 0 && completionTokens == 0 {
			if total := int(resp.Usage.TotalTokens); total > 0 {
				promptTokens, completionTokens = splitTotal(total)
			} else {
				promptTokens, completionTokens = c.estimateTokens(req.Messages, text)
			}
		}

		return &Completion{
			Text:       text,
			TokensUsed: promptTokens + completionTokens,
			CostUSD:    c.EstimateCost(promptTokens, completionTokens),
		}, nil
	})
}

// fallback answers with the stub so the caller still gets a completion.
func (c *OpenAIClient) fallback(ctx context.Context, req Request) (*Completion, error) {
	c.logger.Warn("llm provider unavailable, answering with stub", "model", c.model)
	completion, err := c.stub.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	completion.Fallback = true
	return completion, nil
}

// splitTotal divides an aggregate token count 60/40 prompt/completion,
// the conventional split when the provider itemizes nothing.
func splitTotal(total int) (int, int) {
	promptTokens := total * 60 / 100
	return promptTokens, total - promptTokens
}

// estimateTokens approximates usage when the API omits it.
func (c *OpenAIClient) estimateTokens(messages []prompt.Message, answer string) (int, int) {
	if c.counter != nil {
		return c.counter.CountMessages(messages), c.counter.Count(answer)
	}
	promptTokens := 0
	for _, m := range messages {
		promptTokens += len(strings.Fields(m.Content))
	}
	return promptTokens, len(strings.Fields(answer))
}

// EstimateCost prices a token split from the per-1K model rate table.
func (c *OpenAIClient) EstimateCost(promptTokens, completionTokens int) float64 {
	rates, ok := modelPricing[c.model]
	if !ok {
		rates = fallbackPricing
	}
	return float64(promptTokens)/1000.0*rates.input +
		float64(completionTokens)/1000.0*rates.output
}

// ModelName returns the configured model.
func (c *OpenAIClient) ModelName() string {
	return c.model
}

// Available probes the provider with a minimal completion request.
func (c *OpenAIClient) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.Chat.Completions.New(probeCtx, openaisdk.ChatCompletionNewParams{
		Model:     openaisdk.ChatModel(c.model),
		Messages:  []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage("ping")},
		MaxTokens: param.NewOpt(int64(1)),
	})
	return err == nil
}

// Close releases resources.
func (c *OpenAIClient) Close() error {
	return nil
}

// toSDKMessages converts prompt messages to the SDK union type.
func toSDKMessages(messages []prompt.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case prompt.RoleSystem:
			out = append(out, openaisdk.SystemMessage(m.Content))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}

// classifyAPIError maps provider errors onto the retry taxonomy: 429 and
// 5xx are retryable, other 4xx are permanent.
func classifyAPIError(err error) error {
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return ragerr.New(ragerr.ErrCodeRateLimited, "completion request rate limited", err)
		case apierr.StatusCode >= 400 && apierr.StatusCode < 500:
			return ragerr.New(ragerr.ErrCodeInvalidInput,
				fmt.Sprintf("completion request rejected (status %d)", apierr.StatusCode), err)
		default:
			return ragerr.New(ragerr.ErrCodeServerError,
				fmt.Sprintf("completion provider error (status %d)", apierr.StatusCode), err)
		}
	}
	return ragerr.TransportError("completion request failed", err)
}
