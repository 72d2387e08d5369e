// Package fusion combines rule and semantic scores into the final role
// probabilities used for assignment.
package fusion

import (
	"github.com/thebtf/kitforge/internal/config"
	"github.com/thebtf/kitforge/pkg/models"
)

// Engine blends the two probability vectors produced upstream:
// final = alpha*rule + (1-alpha)*semantic, plus an optional per-role
// bias, clamped at zero and renormalized.
type Engine struct {
	alpha float64
	bias  models.ScoreVector
}

// NewEngine builds an Engine from config. Alpha is clamped to [0,1];
// bias keys must be role names.
func NewEngine(cfg config.FusionConfig) (*Engine, error) {
	alpha := cfg.Alpha
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}

	var bias models.ScoreVector
	for name, offset := range cfg.Bias {
		role, err := models.ParseRole(name)
		if err != nil {
			return nil, config.Errf("fusion.bias", "%v", err)
		}
		bias[role] = offset
	}

	return &Engine{alpha: alpha, bias: bias}, nil
}

// Alpha reports the blend weight in use.
func (e *Engine) Alpha() float64 {
	return e.alpha
}

// Fuse blends one sample's rule and semantic probability vectors. A
// degraded sample (no usable semantic scores) is blended with alpha
// forced to 1 so the rule vector passes through untouched.
//
// The returned margin is measured before guards run. Guards use it to
// judge confidence; the final confidence is recomputed after them.
func (e *Engine) Fuse(rule, semantic models.ScoreVector, degraded bool) (models.ScoreVector, float64) {
	alpha := e.alpha
	if degraded {
		alpha = 1.0
	}

	var combined models.ScoreVector
	for r := range combined {
		combined[r] = alpha*rule[r] + (1-alpha)*semantic[r] + e.bias[r]
	}

	combined = combined.ClampNegatives().Normalize()
	return combined, combined.Margin()
}
