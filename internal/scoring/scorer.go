// Package scoring implements rule-based role scoring for samples.
package scoring

import (
	"math"

	"github.com/thebtf/kitforge/internal/config"
	"github.com/thebtf/kitforge/pkg/models"
)

// softmaxFloor keeps a configured temperature from collapsing the
// exponent into infinities.
const softmaxFloor = 1e-6

// RuleScorer turns feature snapshots into per-role rule scores. It is
// pure and safe for concurrent use once constructed.
type RuleScorer struct {
	tables  [models.NumRoles][]weightedTerm
	tau     float64
	penalty config.TexturePenaltyConfig
}

// NewRuleScorer builds a scorer from config. A weight override
// replaces the whole table for its role; roles left out keep the
// built-in table. Unknown terms and empty tables are ConfigErrors.
func NewRuleScorer(cfg config.ScoringConfig) (*RuleScorer, error) {
	tables := DefaultWeights()

	for roleName, override := range cfg.Weights {
		role, err := models.ParseRole(roleName)
		if err != nil {
			return nil, config.Errf("scoring.weights", "%v", err)
		}
		if len(override) == 0 {
			return nil, config.Errf("scoring.weights."+roleName, "empty weight table")
		}

		table := make(WeightTable, len(override))
		for name, w := range override {
			term := FeatureTerm(name)
			if _, ok := termValue(term, models.FeatureSnapshot{}); !ok {
				return nil, config.Errf("scoring.weights."+roleName, "unknown feature term %q", name)
			}
			table[term] = w
		}
		tables[role] = table
	}

	tau := cfg.TauRule
	if tau < softmaxFloor {
		tau = softmaxFloor
	}

	s := &RuleScorer{tau: tau, penalty: cfg.TexturePenalty}
	for role, table := range tables {
		s.tables[role] = freezeTable(table)
	}
	return s, nil
}

// Score computes the raw rule scores and their softmax probabilities
// for one sample. It never fails: any snapshot yields a full vector.
func (s *RuleScorer) Score(f models.FeatureSnapshot) (raw, probs models.ScoreVector) {
	for _, role := range models.AllRoles {
		raw[role] = s.rawScore(role, f)
	}
	raw = s.applyTexturePenalty(raw, f)
	return raw, Softmax(raw, s.tau)
}

func (s *RuleScorer) rawScore(role models.Role, f models.FeatureSnapshot) float64 {
	total := 0.0
	for _, wt := range s.tables[role] {
		v, _ := termValue(wt.term, f)
		total += wt.weight * v
	}
	return total
}

// applyTexturePenalty corrects the common failure mode of bright,
// fast-decaying hits drifting into TEXTURE. Both gates fire
// independently and only ever subtract from the texture score.
func (s *RuleScorer) applyTexturePenalty(raw models.ScoreVector, f models.FeatureSnapshot) models.ScoreVector {
	p := s.penalty
	if !p.Enabled {
		return raw
	}
	if f.Sharpness >= p.SharpnessMin && f.DecayTime <= p.DecayMax {
		raw[models.RoleTexture] -= p.Penalty
	}
	if p.FlatnessEnabled && f.SpectralFlatness <= p.FlatnessMax {
		raw[models.RoleTexture] -= p.FlatnessPenalty
	}
	return raw
}

// TermContribution is one term's share of a raw role score.
type TermContribution struct {
	Term         FeatureTerm `json:"term"`
	Weight       float64     `json:"weight"`
	Value        float64     `json:"value"`
	Contribution float64     `json:"contribution"`
}

// RoleBreakdown explains one role's raw score term by term. Useful
// for debugging a surprising assignment.
type RoleBreakdown struct {
	Role    models.Role        `json:"role"`
	Terms   []TermContribution `json:"terms"`
	Penalty float64            `json:"penalty,omitempty"`
	Raw     float64            `json:"raw"`
}

// Breakdown returns the full per-term breakdown for every role. The
// sum of contributions minus the penalty equals the raw score used by
// Score.
func (s *RuleScorer) Breakdown(f models.FeatureSnapshot) [models.NumRoles]RoleBreakdown {
	var out [models.NumRoles]RoleBreakdown

	raw, _ := s.Score(f)
	for _, role := range models.AllRoles {
		b := RoleBreakdown{Role: role, Raw: raw[role]}
		total := 0.0
		for _, wt := range s.tables[role] {
			v, _ := termValue(wt.term, f)
			b.Terms = append(b.Terms, TermContribution{
				Term:         wt.term,
				Weight:       wt.weight,
				Value:        v,
				Contribution: wt.weight * v,
			})
			total += wt.weight * v
		}
		if role == models.RoleTexture {
			b.Penalty = total - raw[role]
		}
		out[role] = b
	}
	return out
}

// Softmax converts scores to probabilities at temperature tau with
// max-shift stabilization. Lower temperatures sharpen the
// distribution.
func Softmax(v models.ScoreVector, tau float64) models.ScoreVector {
	if tau < softmaxFloor {
		tau = softmaxFloor
	}

	maxScore := v[0]
	for _, s := range v[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	var out models.ScoreVector
	sum := 0.0
	for r := range v {
		e := math.Exp((v[r] - maxScore) / tau)
		out[r] = e
		sum += e
	}

	denom := sum + 1e-12
	for r := range out {
		out[r] /= denom
	}
	return out
}
