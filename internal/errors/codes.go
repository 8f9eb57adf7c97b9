// Package errors provides structured error handling for the pipeline.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Dependency-unavailable errors
//   - 3XX: Transport errors (retryable)
//   - 4XX: Validation errors
//   - 5XX: Computation and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryDependency indicates an unreachable collaborator (model,
	// vector store, cache, LLM).
	CategoryDependency Category = "DEPENDENCY"
	// CategoryTransport indicates transient network-level failures.
	CategoryTransport Category = "TRANSPORT"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryComputation indicates unexpected internal failures.
	CategoryComputation Category = "COMPUTATION"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199). Fatal at startup.
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigMissing = "ERR_102_CONFIG_MISSING"

	// Dependency errors (200-299). Trigger degraded mode.
	ErrCodeEmbedderUnavailable    = "ERR_201_EMBEDDER_UNAVAILABLE"
	ErrCodeVectorStoreUnavailable = "ERR_202_VECTOR_STORE_UNAVAILABLE"
	ErrCodeCacheUnavailable       = "ERR_203_CACHE_UNAVAILABLE"
	ErrCodeLLMUnavailable         = "ERR_204_LLM_UNAVAILABLE"

	// Transport errors (300-399). Retryable with backoff.
	ErrCodeNetworkTimeout = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeRateLimited    = "ERR_302_RATE_LIMITED"
	ErrCodeServerError    = "ERR_303_SERVER_ERROR"

	// Validation errors (400-499). Rejected with no side effects.
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeMaxResultsRange   = "ERR_404_MAX_RESULTS_RANGE"
	ErrCodeUnknownVariant    = "ERR_405_UNKNOWN_VARIANT"
	ErrCodeInvalidFeedback   = "ERR_406_INVALID_FEEDBACK"

	// Computation errors (500-599).
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeGenerationFailed = "ERR_504_GENERATION_FAILED"
	ErrCodeEvaluationFailed = "ERR_505_EVALUATION_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryComputation
	}

	// Numeric portion, e.g. "301" from "ERR_301_NETWORK_TIMEOUT".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryDependency
	case '3':
		return CategoryTransport
	case '4':
		return CategoryValidation
	default:
		return CategoryComputation
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if categoryFromCode(code) == CategoryConfig {
		return SeverityFatal
	}
	if isRetryableCode(code) || categoryFromCode(code) == CategoryDependency {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeRateLimited, ErrCodeServerError:
		return true
	default:
		return false
	}
}
