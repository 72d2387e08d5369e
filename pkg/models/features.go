// Package models contains domain models for kitforge.
package models

// FeatureSnapshot is the per-sample acoustic feature set consumed by
// rule scoring and guardrails. It is a plain value: callers copy it,
// nothing mutates it after extraction.
//
// Energy, RMS, Sharpness, the band ratios, SpectralFlatness and
// ZeroCrossingRate live in [0, 1]. AttackTime and DecayTime are in
// seconds and may exceed 1 for sustained material. The three band
// ratios describe the same spectrum, so LowRatio + MidRatio +
// HighRatio is expected to sum to roughly 1 but is not enforced here.
type FeatureSnapshot struct {
	Energy           float64 `json:"energy"`
	RMS              float64 `json:"rms"`
	Sharpness        float64 `json:"sharpness"`
	AttackTime       float64 `json:"attack_time"`
	DecayTime        float64 `json:"decay_time"`
	LowRatio         float64 `json:"low_ratio"`
	MidRatio         float64 `json:"mid_ratio"`
	HighRatio        float64 `json:"high_ratio"`
	SpectralFlatness float64 `json:"spectral_flatness"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
}

// Clamped returns a copy with every unit-range field clamped to
// [0, 1]. The time fields are only floored at zero since long decays
// are meaningful to the guards.
func (f FeatureSnapshot) Clamped() FeatureSnapshot {
	f.Energy = clamp01(f.Energy)
	f.RMS = clamp01(f.RMS)
	f.Sharpness = clamp01(f.Sharpness)
	f.LowRatio = clamp01(f.LowRatio)
	f.MidRatio = clamp01(f.MidRatio)
	f.HighRatio = clamp01(f.HighRatio)
	f.SpectralFlatness = clamp01(f.SpectralFlatness)
	f.ZeroCrossingRate = clamp01(f.ZeroCrossingRate)
	if f.AttackTime < 0 {
		f.AttackTime = 0
	}
	if f.DecayTime < 0 {
		f.DecayTime = 0
	}
	return f
}

// AttackFast rates how immediate the onset is: 1.0 for an instant
// attack, 0.0 for an attack of one second or slower.
func (f FeatureSnapshot) AttackFast() float64 {
	return 1 - clamp01(f.AttackTime)
}

// DecayShort is the decay-stage counterpart of AttackFast.
func (f FeatureSnapshot) DecayShort() float64 {
	return 1 - clamp01(f.DecayTime)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
