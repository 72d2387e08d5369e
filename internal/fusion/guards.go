// Package fusion combines rule and semantic scores into the final role
// probabilities used for assignment.
package fusion

import (
	"github.com/thebtf/kitforge/internal/config"
	"github.com/thebtf/kitforge/pkg/models"
)

// guard is one step of the stabilization sequence. Apply returns the
// corrected vector and whether the trigger conditions held.
type guard interface {
	Name() string
	Apply(v models.ScoreVector, f models.FeatureSnapshot, preMargin float64) (models.ScoreVector, bool)
}

// GuardrailSet runs the configured guards in a fixed order and
// renormalizes once after the whole sequence. Each guard multiplies
// the roles it targets by a damping factor when its trigger holds;
// none of them zero a role out.
type GuardrailSet struct {
	guards []guard
}

// NewGuardrailSet builds the guard sequence from config. Disabled
// guards are left out entirely. The order is fixed: texture suppress,
// sustained noise, motion minimum, fill conservative, low-confidence
// texture.
func NewGuardrailSet(cfg config.GuardsConfig) *GuardrailSet {
	set := &GuardrailSet{}

	if cfg.TextureSuppress.Enabled {
		set.guards = append(set.guards, textureSuppress{
			factor:       cfg.TextureSuppress.Factor,
			sharpnessMin: cfg.TextureSuppress.SharpnessMin,
			decayMax:     cfg.TextureSuppress.DecayMax,
		})
	}
	if cfg.SustainedNoise.Enabled {
		set.guards = append(set.guards, sustainedNoise{
			factor:      cfg.SustainedNoise.Factor,
			decayMin:    cfg.SustainedNoise.DecayMin,
			flatnessMin: cfg.SustainedNoise.FlatnessMin,
		})
	}
	if cfg.MotionMin.Enabled {
		set.guards = append(set.guards, motionMin{
			factor:   cfg.MotionMin.Factor,
			highMin:  cfg.MotionMin.HighMin,
			decayMax: cfg.MotionMin.DecayMax,
		})
	}
	if cfg.FillConservative.Enabled {
		set.guards = append(set.guards, fillConservative{
			factor:      cfg.FillConservative.Factor,
			fillProbMin: cfg.FillConservative.FillProbMin,
			marginMin:   cfg.FillConservative.MarginMin,
		})
	}
	if cfg.LowConfidenceTexture.Enabled {
		set.guards = append(set.guards, lowConfTexture{
			factor:    cfg.LowConfidenceTexture.Factor,
			marginMax: cfg.LowConfidenceTexture.MarginMax,
		})
	}

	return set
}

// Apply runs the sequence on a fused probability vector and returns
// the renormalized result plus the names of the guards that fired.
// preMargin is the confidence margin measured before any guard ran.
func (s *GuardrailSet) Apply(v models.ScoreVector, f models.FeatureSnapshot, preMargin float64) (models.ScoreVector, []string) {
	var fired []string
	for _, g := range s.guards {
		var hit bool
		if v, hit = g.Apply(v, f, preMargin); hit {
			fired = append(fired, g.Name())
		}
	}
	return v.Normalize(), fired
}

// Names lists the active guards in application order.
func (s *GuardrailSet) Names() []string {
	names := make([]string, len(s.guards))
	for i, g := range s.guards {
		names[i] = g.Name()
	}
	return names
}

// textureSuppress damps TEXTURE for very bright, near-instant decays.
// Material that percussive belongs with the transient roles.
type textureSuppress struct {
	factor       float64
	sharpnessMin float64
	decayMax     float64
}

func (g textureSuppress) Name() string { return "texture_suppress" }

func (g textureSuppress) Apply(v models.ScoreVector, f models.FeatureSnapshot, _ float64) (models.ScoreVector, bool) {
	if f.Sharpness >= g.sharpnessMin && f.DecayTime <= g.decayMax {
		return v.MultiplyRole(models.RoleTexture, g.factor), true
	}
	return v, false
}

// sustainedNoise damps CORE and ACCENT for long noisy tails. Washy
// sustained material must not anchor the kit.
type sustainedNoise struct {
	factor      float64
	decayMin    float64
	flatnessMin float64
}

func (g sustainedNoise) Name() string { return "sustained_noise_suppress" }

func (g sustainedNoise) Apply(v models.ScoreVector, f models.FeatureSnapshot, _ float64) (models.ScoreVector, bool) {
	if f.DecayTime >= g.decayMin && f.SpectralFlatness >= g.flatnessMin {
		v = v.MultiplyRole(models.RoleCore, g.factor)
		v = v.MultiplyRole(models.RoleAccent, g.factor)
		return v, true
	}
	return v, false
}

// motionMin damps MOTION when the high band is missing or the decay is
// too long to keep time. Either condition alone triggers it.
type motionMin struct {
	factor   float64
	highMin  float64
	decayMax float64
}

func (g motionMin) Name() string { return "motion_min_condition" }

func (g motionMin) Apply(v models.ScoreVector, f models.FeatureSnapshot, _ float64) (models.ScoreVector, bool) {
	if f.HighRatio < g.highMin || f.DecayTime > g.decayMax {
		return v.MultiplyRole(models.RoleMotion, g.factor), true
	}
	return v, false
}

// fillConservative damps FILL unless both its probability and the
// pre-guard margin clear their floors. FILL is only worth assigning
// when the pipeline is sure about it.
type fillConservative struct {
	factor      float64
	fillProbMin float64
	marginMin   float64
}

func (g fillConservative) Name() string { return "fill_conservative" }

func (g fillConservative) Apply(v models.ScoreVector, _ models.FeatureSnapshot, preMargin float64) (models.ScoreVector, bool) {
	if v[models.RoleFill] < g.fillProbMin || preMargin < g.marginMin {
		return v.MultiplyRole(models.RoleFill, g.factor), true
	}
	return v, false
}

// lowConfTexture damps a low-confidence TEXTURE top pick. With TEXTURE
// on top the runner-up is always one of the percussive roles, so the
// sample likely belongs there instead.
type lowConfTexture struct {
	factor    float64
	marginMax float64
}

func (g lowConfTexture) Name() string { return "low_confidence_texture" }

func (g lowConfTexture) Apply(v models.ScoreVector, _ models.FeatureSnapshot, preMargin float64) (models.ScoreVector, bool) {
	if preMargin >= g.marginMax {
		return v, false
	}
	if v.ArgMax() != models.RoleTexture {
		return v, false
	}
	return v.MultiplyRole(models.RoleTexture, g.factor), true
}
