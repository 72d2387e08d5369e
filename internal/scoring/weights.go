// Package scoring implements rule-based role scoring for samples.
package scoring

import (
	"sort"

	"github.com/thebtf/kitforge/pkg/models"
)

// FeatureTerm names one input a weight table can reference. The
// vocabulary is closed: a table referencing anything else fails at
// construction.
type FeatureTerm string

const (
	TermEnergy            FeatureTerm = "energy"
	TermRMS               FeatureTerm = "rms"
	TermSharpness         FeatureTerm = "sharpness"
	TermAttackFast        FeatureTerm = "attack_fast"
	TermDecayShort        FeatureTerm = "decay_short"
	TermDecayTime         FeatureTerm = "decay_time"
	TermLowRatio          FeatureTerm = "low_ratio"
	TermMidRatio          FeatureTerm = "mid_ratio"
	TermHighRatio         FeatureTerm = "high_ratio"
	TermLowPlusMid        FeatureTerm = "low_plus_mid"
	TermSpectralFlatness  FeatureTerm = "spectral_flatness"
	TermZeroCrossingRate  FeatureTerm = "zero_crossing_rate"
	TermOneMinusEnergy    FeatureTerm = "one_minus_energy"
	TermOneMinusSharpness FeatureTerm = "one_minus_sharpness"
)

// WeightTable maps feature terms to signed weights for one role.
// Positive weights reward a trait, negative weights penalize it.
type WeightTable map[FeatureTerm]float64

// DefaultWeights returns the built-in per-role weight tables.
func DefaultWeights() map[models.Role]WeightTable {
	return map[models.Role]WeightTable{
		// Kick-like: low band, fast attack, short decay.
		models.RoleCore: {
			TermLowRatio:          0.40,
			TermAttackFast:        0.25,
			TermDecayShort:        0.25,
			TermOneMinusSharpness: 0.10,
			TermHighRatio:         -0.50, // a kick should not be hissy
			TermSpectralFlatness:  -0.30, // nor pure noise
		},
		// Snare-like: energy, sharpness, mid presence.
		models.RoleAccent: {
			TermEnergy:     0.35,
			TermSharpness:  0.35,
			TermMidRatio:   0.20,
			TermDecayShort: 0.10,
			TermLowRatio:   -0.30, // too boomy reads as core
		},
		// Hat-like: high band, restrained energy, short decay.
		models.RoleMotion: {
			TermHighRatio:      0.40,
			TermOneMinusEnergy: 0.20,
			TermDecayShort:     0.25,
			TermSharpness:      0.15,
			TermLowRatio:       -0.50, // hats carry no bass
		},
		// Tom/FX-like: energetic with a longer tail.
		models.RoleFill: {
			TermEnergy:           0.30,
			TermDecayTime:        0.35,
			TermSharpness:        0.25,
			TermMidRatio:         0.10,
			TermSpectralFlatness: -0.20,
		},
		// Cymbal/pad-like: long decay, soft transient, spread bands.
		models.RoleTexture: {
			TermDecayTime:         0.45,
			TermOneMinusSharpness: 0.25,
			TermLowPlusMid:        0.20,
			TermOneMinusEnergy:    0.10,
			TermSharpness:         -0.30, // punchy material is never texture
		},
	}
}

// termValue evaluates one term against a snapshot. The second return
// is false for terms outside the vocabulary.
func termValue(t FeatureTerm, f models.FeatureSnapshot) (float64, bool) {
	switch t {
	case TermEnergy:
		return f.Energy, true
	case TermRMS:
		return f.RMS, true
	case TermSharpness:
		return f.Sharpness, true
	case TermAttackFast:
		return f.AttackFast(), true
	case TermDecayShort:
		return f.DecayShort(), true
	case TermDecayTime:
		return f.DecayTime, true
	case TermLowRatio:
		return f.LowRatio, true
	case TermMidRatio:
		return f.MidRatio, true
	case TermHighRatio:
		return f.HighRatio, true
	case TermLowPlusMid:
		return f.LowRatio + f.MidRatio, true
	case TermSpectralFlatness:
		return f.SpectralFlatness, true
	case TermZeroCrossingRate:
		return f.ZeroCrossingRate, true
	case TermOneMinusEnergy:
		return 1 - f.Energy, true
	case TermOneMinusSharpness:
		return 1 - f.Sharpness, true
	default:
		return 0, false
	}
}

// weightedTerm is a table entry frozen into evaluation form.
type weightedTerm struct {
	term   FeatureTerm
	weight float64
}

// freezeTable sorts a table by term name. Summing in a fixed order
// keeps raw scores bit-identical across runs; map iteration would not.
func freezeTable(t WeightTable) []weightedTerm {
	frozen := make([]weightedTerm, 0, len(t))
	for term, w := range t {
		frozen = append(frozen, weightedTerm{term: term, weight: w})
	}
	sort.Slice(frozen, func(i, j int) bool {
		return frozen[i].term < frozen[j].term
	})
	return frozen
}
