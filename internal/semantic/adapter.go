// Package semantic adapts externally computed similarity scores into
// role probability vectors.
package semantic

import (
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/thebtf/kitforge/internal/config"
	"github.com/thebtf/kitforge/internal/scoring"
	"github.com/thebtf/kitforge/pkg/models"
)

// Reduction names a prompt ensemble reduction mode.
type Reduction string

const (
	ReduceMean Reduction = "mean"
	ReduceMax  Reduction = "max"
	ReduceTopK Reduction = "topk"
)

// Adapter reduces per-role prompt ensembles into a raw similarity
// vector and its softmax probabilities. It is stateless per call and
// safe for concurrent use: subsampling derives a per-sample generator
// from the run seed, so worker scheduling cannot change the draw.
type Adapter struct {
	tau       float64
	reduce    Reduction
	topK      int
	subsample int
	seed      int64
}

// NewAdapter builds an adapter from config and the run seed.
func NewAdapter(cfg config.SemanticConfig, seed int64) (*Adapter, error) {
	reduce := Reduction(cfg.Reduce)
	switch reduce {
	case ReduceMean, ReduceMax, ReduceTopK:
	default:
		return nil, config.Errf("semantic.reduce", "unknown reduction %q", cfg.Reduce)
	}
	if cfg.Tau <= 0 {
		return nil, config.Errf("semantic.tau", "temperature must be positive, got %v", cfg.Tau)
	}
	if reduce == ReduceTopK && cfg.TopK < 1 {
		return nil, config.Errf("semantic.top_k", "topk reduction needs top_k >= 1, got %d", cfg.TopK)
	}

	return &Adapter{
		tau:       cfg.Tau,
		reduce:    reduce,
		topK:      cfg.TopK,
		subsample: cfg.Subsample,
		seed:      seed,
	}, nil
}

// Reduce turns one sample's prompt scores into raw per-role
// similarities and their probabilities. A score set with no prompts at
// all is unusable and reported as ErrUnavailable.
func (a *Adapter) Reduce(scores PromptScores, sampleID string) (raw, probs models.ScoreVector, err error) {
	if scores.Total() == 0 {
		return raw, probs, ErrUnavailable
	}

	var rng *rand.Rand
	if a.subsample > 0 {
		rng = rand.New(rand.NewSource(a.sampleSeed(sampleID)))
	}

	for _, role := range models.AllRoles {
		ensemble := scores[role]
		if rng != nil && len(ensemble) > a.subsample {
			ensemble = subsample(ensemble, a.subsample, rng)
		}
		raw[role] = a.reduceEnsemble(ensemble)
	}

	return raw, scoring.Softmax(raw, a.tau), nil
}

// sampleSeed folds the sample ID into the run seed. Each sample gets
// its own stream, so concurrent reduction order cannot perturb draws.
func (a *Adapter) sampleSeed(sampleID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sampleID))
	return a.seed ^ int64(h.Sum64())
}

func (a *Adapter) reduceEnsemble(ensemble []float64) float64 {
	if len(ensemble) == 0 {
		return 0
	}

	switch a.reduce {
	case ReduceMax:
		best := ensemble[0]
		for _, s := range ensemble[1:] {
			if s > best {
				best = s
			}
		}
		return best

	case ReduceTopK:
		k := a.topK
		if k > len(ensemble) {
			k = len(ensemble)
		}
		top := append([]float64(nil), ensemble...)
		sort.Sort(sort.Reverse(sort.Float64Slice(top)))
		sum := 0.0
		for _, s := range top[:k] {
			sum += s
		}
		return sum / float64(k)

	default: // ReduceMean
		sum := 0.0
		for _, s := range ensemble {
			sum += s
		}
		return sum / float64(len(ensemble))
	}
}

// subsample draws k scores without replacement.
func subsample(ensemble []float64, k int, rng *rand.Rand) []float64 {
	idx := rng.Perm(len(ensemble))[:k]
	picked := make([]float64, k)
	for i, j := range idx {
		picked[i] = ensemble[j]
	}
	return picked
}
