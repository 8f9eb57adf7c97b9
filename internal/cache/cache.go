// Package cache provides TTL'd key-value memoization for answers, feedback,
// and experiment records, with Redis and in-memory backends.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/answerforge/ragcore/internal/textproc"
)

// Well-known namespaces and retention periods.
const (
	NamespaceAnswers     = "answers"
	NamespaceFeedback    = "feedback"
	NamespaceExperiments = "experiment_results"

	CounterHits   = "cache_hits"
	CounterMisses = "cache_misses"

	FeedbackTTL   = 30 * 24 * time.Hour
	ExperimentTTL = 7 * 24 * time.Hour
)

// Cache is the semantic container shared by the pipeline, feedback and
// experiment recording. Values are opaque byte payloads (callers store
// JSON). Keys matching is glob-style ("prefix:*").
type Cache interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks presence without fetching.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically adds one to a counter key and returns the new
	// value.
	Increment(ctx context.Context, key string) (int64, error)

	// GetPattern returns all key/value pairs whose key matches the glob.
	GetPattern(ctx context.Context, pattern string) (map[string][]byte, error)

	// FlushPattern deletes all keys matching the glob, returning the count.
	FlushPattern(ctx context.Context, pattern string) (int, error)

	// MakeKey joins parts under the application namespace.
	MakeKey(parts ...string) string

	// Close releases the backend connection.
	Close() error
}

// QueryKey derives the memoization key for a query: the namespace joined
// with the first 16 hex chars of md5(normalized_query || sorted_params_json).
// Normalization (see textproc.NormalizeQuery) is what makes trivially
// rephrased queries share an entry.
func QueryKey(namespace, query string, params map[string]any) string {
	payload := textproc.NormalizeQuery(query)
	if len(params) > 0 {
		// encoding/json sorts map keys, giving a canonical form.
		if b, err := json.Marshal(params); err == nil {
			payload += string(b)
		}
	}
	sum := md5.Sum([]byte(payload))
	return namespace + ":" + hex.EncodeToString(sum[:])[:16]
}

// joinKey builds "app:part:part" keys.
func joinKey(appName string, parts []string) string {
	return strings.Join(append([]string{appName}, parts...), ":")
}
