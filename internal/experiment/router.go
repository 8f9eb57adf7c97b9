// Package experiment routes traffic across retrieval variants, records
// per-variant outcomes, and computes significance statistics for the
// running A/B test.
package experiment

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/answerforge/ragcore/internal/cache"
	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/model"
)

// Outcome is one completed request attributed to a variant.
type Outcome struct {
	Success      bool    `json:"success"`
	LatencyMS    float64 `json:"latency_ms"`
	CostUSD      float64 `json:"cost_usd"`
	OverallScore float64 `json:"overall_score"`
}

// accum collects running sums for one variant of one experiment.
type accum struct {
	Samples    int
	Successes  int
	LatencySum float64
	CostSum    float64
	ScoreSum   float64
}

// Router assigns requests to variants with stable hash-based bucketing and
// aggregates their outcomes.
type Router struct {
	cfg    config.ExperimentConfig
	cache  cache.Cache
	logger *slog.Logger

	mu     sync.Mutex
	counts map[string]map[model.Variant]*accum // experiment -> variant
}

// NewRouter validates the traffic split and builds a router.
func NewRouter(cfg config.ExperimentConfig, c cache.Cache, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Variants) == 0 {
		return nil, fmt.Errorf("experiment config has no variants")
	}
	if len(cfg.Variants) != len(cfg.TrafficSplit) {
		return nil, fmt.Errorf("variants and traffic split length mismatch: %d vs %d",
			len(cfg.Variants), len(cfg.TrafficSplit))
	}
	var sum float64
	for _, s := range cfg.TrafficSplit {
		sum += s
	}
	if sum < 1-1e-3 || sum > 1+1e-3 {
		return nil, fmt.Errorf("traffic split must sum to 1, got %v", sum)
	}

	return &Router{
		cfg:    cfg,
		cache:  c,
		logger: logger,
		counts: make(map[string]map[model.Variant]*accum),
	}, nil
}

// Assign buckets an identifier into a variant. The same identifier always
// lands in the same bucket for a given experiment: the md5 of
// "experimentID:identifier" is reduced modulo 100 and walked against the
// cumulative traffic split. Empty identifiers get a random uuid, making
// the assignment effectively random for anonymous traffic.
func (r *Router) Assign(experimentID, userID, sessionID string) model.Variant {
	if !r.cfg.Enabled {
		return model.Variant(r.cfg.DefaultVariant)
	}

	identifier := userID
	if identifier == "" {
		identifier = sessionID
	}
	if identifier == "" {
		identifier = uuid.NewString()
	}

	sum := md5.Sum([]byte(experimentID + ":" + identifier))
	hash := new(big.Int).SetBytes(sum[:])
	bucket := float64(new(big.Int).Mod(hash, big.NewInt(100)).Int64()) / 100.0

	cumulative := 0.0
	for i, name := range r.cfg.Variants {
		cumulative += r.cfg.TrafficSplit[i]
		if bucket < cumulative {
			return model.Variant(name)
		}
	}
	return model.Variant(r.cfg.DefaultVariant)
}

// RecordOutcome folds an outcome into the in-process accumulators and
// archives the raw record in the cache for seven days.
func (r *Router) RecordOutcome(ctx context.Context, experimentID string, variant model.Variant, out Outcome) {
	r.mu.Lock()
	variants, ok := r.counts[experimentID]
	if !ok {
		variants = make(map[model.Variant]*accum)
		r.counts[experimentID] = variants
	}
	a, ok := variants[variant]
	if !ok {
		a = &accum{}
		variants[variant] = a
	}
	a.Samples++
	if out.Success {
		a.Successes++
	}
	a.LatencySum += out.LatencyMS
	a.CostSum += out.CostUSD
	a.ScoreSum += out.OverallScore
	r.mu.Unlock()

	record := struct {
		Variant   string  `json:"variant"`
		Outcome   Outcome `json:"outcome"`
		Timestamp string  `json:"timestamp"`
	}{
		Variant:   string(variant),
		Outcome:   out,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		r.logger.Warn("marshal outcome record failed", "error", err)
		return
	}

	key := r.cache.MakeKey(cache.NamespaceExperiments, experimentID, string(variant), uuid.NewString())
	if err := r.cache.Set(ctx, key, payload, cache.ExperimentTTL); err != nil {
		r.logger.Warn("archive outcome record failed", "key", key, "error", err)
	}
}

// Stats summarizes the experiment: per-variant rates and averages, Wilson
// confidence intervals, chi-square significance against the baseline
// variant, and the winning variant. Variants below min_samples are skipped.
func (r *Router) Stats(experimentID string) model.ExperimentStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := model.ExperimentStats{ExperimentID: experimentID}
	variants := r.counts[experimentID]
	if len(variants) == 0 {
		return stats
	}

	baseline := variants[model.VariantBaseline]

	for _, name := range r.cfg.Variants {
		variant := model.Variant(name)
		a, ok := variants[variant]
		if !ok {
			continue
		}
		if a.Samples < r.cfg.MinSamples {
			r.logger.Warn("insufficient samples for variant",
				"experiment_id", experimentID,
				"variant", name,
				"samples", a.Samples,
				"min_samples", r.cfg.MinSamples)
			continue
		}

		n := float64(a.Samples)
		vs := model.VariantStats{
			Variant:      variant,
			SampleSize:   a.Samples,
			SuccessRate:  float64(a.Successes) / n,
			AvgLatencyMS: a.LatencySum / n,
			AvgCostUSD:   a.CostSum / n,
			AvgOverall:   a.ScoreSum / n,
			PValue:       1.0,
		}
		vs.CILower, vs.CIUpper = wilsonInterval(a.Successes, a.Samples, r.cfg.Confidence)

		if baseline != nil && variant != model.VariantBaseline && baseline.Samples >= r.cfg.MinSamples {
			p := chiSquareP(a.Successes, a.Samples, baseline.Successes, baseline.Samples)
			vs.PValue = p
			vs.Significant = p < 1-r.cfg.Confidence
		}

		stats.Variants = append(stats.Variants, vs)
	}

	stats.WinningVariant = pickWinner(stats.Variants)
	return stats
}

// pickWinner prefers the significant variant with the highest success
// rate, falling back to the best success rate overall.
func pickWinner(variants []model.VariantStats) model.Variant {
	var best *model.VariantStats
	for i := range variants {
		v := &variants[i]
		if v.Significant && (best == nil || v.SuccessRate > best.SuccessRate) {
			best = v
		}
	}
	if best != nil {
		return best.Variant
	}
	for i := range variants {
		v := &variants[i]
		if best == nil || v.SuccessRate > best.SuccessRate {
			best = v
		}
	}
	if best == nil {
		return ""
	}
	return best.Variant
}
