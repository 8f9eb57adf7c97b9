package experiment

import (
	"math"
	"math/rand"
	"sync"

	"github.com/answerforge/ragcore/internal/model"
)

// Smoothing applied when adapting the traffic split, keeping reallocation
// gradual.
const splitSmoothing = 0.7

// Bandit is an epsilon-greedy multi-armed bandit over the experiment
// variants. It can replace the static-split router for traffic selection.
type Bandit struct {
	variants []model.Variant
	epsilon  float64

	mu      sync.Mutex
	counts  map[model.Variant]int
	rewards map[model.Variant]float64
	rng     *rand.Rand
}

// NewBandit creates a bandit. epsilon <= 0 defaults to 0.1.
func NewBandit(variants []model.Variant, epsilon float64, seed int64) *Bandit {
	if epsilon <= 0 {
		epsilon = 0.1
	}
	counts := make(map[model.Variant]int, len(variants))
	rewards := make(map[model.Variant]float64, len(variants))
	for _, v := range variants {
		counts[v] = 0
		rewards[v] = 0
	}
	return &Bandit{
		variants: variants,
		epsilon:  epsilon,
		counts:   counts,
		rewards:  rewards,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// SelectArm explores uniformly with probability epsilon and otherwise
// exploits the best average reward.
func (b *Bandit) SelectArm() model.Variant {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rng.Float64() < b.epsilon {
		return b.variants[b.rng.Intn(len(b.variants))]
	}

	best := b.variants[0]
	bestAvg := b.avgReward(best)
	for _, v := range b.variants[1:] {
		if avg := b.avgReward(v); avg > bestAvg {
			best, bestAvg = v, avg
		}
	}
	return best
}

func (b *Bandit) avgReward(v model.Variant) float64 {
	n := b.counts[v]
	if n == 0 {
		n = 1
	}
	return b.rewards[v] / float64(n)
}

// UpdateArm folds a reward observation into the arm.
func (b *Bandit) UpdateArm(v model.Variant, reward float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.counts[v]; !ok {
		return
	}
	b.counts[v]++
	b.rewards[v] += reward
}

// AdaptSplit derives a new traffic split from experiment statistics. The
// reward per variant is success_rate * (1 - min(avg_cost, 1)); the split is
// proportional to reward, smoothed 0.7*old + 0.3*new, then renormalized.
func (b *Bandit) AdaptSplit(stats model.ExperimentStats, current []float64) []float64 {
	if len(stats.Variants) == 0 || len(current) != len(b.variants) {
		return current
	}

	rewards := make(map[model.Variant]float64, len(stats.Variants))
	total := 0.0
	for _, vs := range stats.Variants {
		reward := vs.SuccessRate * (1 - math.Min(vs.AvgCostUSD, 1))
		rewards[vs.Variant] = reward
		total += reward
		b.UpdateArm(vs.Variant, reward)
	}

	newSplit := make([]float64, len(b.variants))
	for i, v := range b.variants {
		if total > 0 {
			newSplit[i] = rewards[v] / total
		} else {
			newSplit[i] = 1.0 / float64(len(b.variants))
		}
	}

	smoothed := make([]float64, len(current))
	sum := 0.0
	for i := range current {
		smoothed[i] = splitSmoothing*current[i] + (1-splitSmoothing)*newSplit[i]
		sum += smoothed[i]
	}
	for i := range smoothed {
		smoothed[i] /= sum
	}
	return smoothed
}
