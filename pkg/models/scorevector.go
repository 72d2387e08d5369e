// Package models contains domain models for kitforge.
package models

import (
	"encoding/json"
	"sort"
)

// ScoreVector holds one score per role, indexed by Role. A fixed-size
// array keeps role handling exhaustive at compile time and gives clone
// semantics for free: assigning a ScoreVector copies it.
type ScoreVector [NumRoles]float64

// Sum returns the total mass of the vector.
func (v ScoreVector) Sum() float64 {
	total := 0.0
	for _, s := range v {
		total += s
	}
	return total
}

// Normalize returns the vector scaled to sum to 1. A vector with no
// positive mass is returned unchanged so suppressed-to-zero scores
// never divide into NaN.
func (v ScoreVector) Normalize() ScoreVector {
	total := v.Sum()
	if total <= 0 {
		return v
	}
	for r := range v {
		v[r] /= total
	}
	return v
}

// MultiplyRole returns a copy with a single role scaled by factor.
func (v ScoreVector) MultiplyRole(r Role, factor float64) ScoreVector {
	v[r] *= factor
	return v
}

// ClampNegatives returns a copy with negative entries floored at zero.
func (v ScoreVector) ClampNegatives() ScoreVector {
	for r := range v {
		if v[r] < 0 {
			v[r] = 0
		}
	}
	return v
}

// ArgMax returns the highest-scoring role. Equal scores resolve to the
// earlier role in priority order.
func (v ScoreVector) ArgMax() Role {
	best := RoleCore
	for r := 1; r < NumRoles; r++ {
		if v[r] > v[best] {
			best = Role(r)
		}
	}
	return best
}

// Margin returns the gap between the best and second-best scores, the
// confidence measure used throughout assignment and pooling.
func (v ScoreVector) Margin() float64 {
	top, second := v[RoleCore], 0.0
	if NumRoles > 1 {
		second = v[RoleAccent]
		if second > top {
			top, second = second, top
		}
	}
	for r := 2; r < NumRoles; r++ {
		switch s := v[r]; {
		case s > top:
			top, second = s, top
		case s > second:
			second = s
		}
	}
	return top - second
}

// SortedDescending returns the roles ordered best-first. Equal scores
// keep role-priority order.
func (v ScoreVector) SortedDescending() [NumRoles]Role {
	order := AllRoles
	sort.SliceStable(order[:], func(i, j int) bool {
		return v[order[i]] > v[order[j]]
	})
	return order
}

// scoreVectorJSON fixes the on-disk shape of a vector: an object keyed
// by role name, fields in priority order.
type scoreVectorJSON struct {
	Core    float64 `json:"CORE"`
	Accent  float64 `json:"ACCENT"`
	Motion  float64 `json:"MOTION"`
	Fill    float64 `json:"FILL"`
	Texture float64 `json:"TEXTURE"`
}

// MarshalJSON emits the vector as an object keyed by role name, the
// shape feature documents and debug dumps use.
func (v ScoreVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(scoreVectorJSON{
		Core:    v[RoleCore],
		Accent:  v[RoleAccent],
		Motion:  v[RoleMotion],
		Fill:    v[RoleFill],
		Texture: v[RoleTexture],
	})
}

// UnmarshalJSON accepts the same object shape. Roles absent from the
// document decode to zero.
func (v *ScoreVector) UnmarshalJSON(data []byte) error {
	var sv scoreVectorJSON
	if err := json.Unmarshal(data, &sv); err != nil {
		return err
	}
	v[RoleCore] = sv.Core
	v[RoleAccent] = sv.Accent
	v[RoleMotion] = sv.Motion
	v[RoleFill] = sv.Fill
	v[RoleTexture] = sv.Texture
	return nil
}
