// Package models contains domain models for kitforge.
package models

import (
	"encoding/json"
	"math"
	"testing"
)

func TestScoreVectorNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   ScoreVector
		want ScoreVector
	}{
		{
			name: "uniform mass",
			in:   ScoreVector{1, 1, 1, 1, 1},
			want: ScoreVector{0.2, 0.2, 0.2, 0.2, 0.2},
		},
		{
			name: "single role",
			in:   ScoreVector{0, 0, 3, 0, 0},
			want: ScoreVector{0, 0, 1, 0, 0},
		},
		{
			name: "zero vector unchanged",
			in:   ScoreVector{},
			want: ScoreVector{},
		},
		{
			name: "nonpositive mass unchanged",
			in:   ScoreVector{-1, 0.5, 0, 0, 0},
			want: ScoreVector{-1, 0.5, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			for r := range got {
				if math.Abs(got[r]-tt.want[r]) > 1e-9 {
					t.Errorf("Normalize()[%v] = %v, want %v", Role(r), got[r], tt.want[r])
				}
			}
		})
	}
}

func TestScoreVectorNormalizeSumsToOne(t *testing.T) {
	v := ScoreVector{0.13, 0.42, 0.07, 0.91, 0.28}.Normalize()
	if sum := v.Sum(); math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("normalized sum = %v, want 1.0", sum)
	}
}

func TestScoreVectorArgMax(t *testing.T) {
	tests := []struct {
		name string
		in   ScoreVector
		want Role
	}{
		{name: "clear winner", in: ScoreVector{0.1, 0.6, 0.1, 0.1, 0.1}, want: RoleAccent},
		{name: "last role wins", in: ScoreVector{0, 0, 0, 0, 0.9}, want: RoleTexture},
		{name: "two-way tie resolves by priority", in: ScoreVector{0.4, 0.4, 0.1, 0.05, 0.05}, want: RoleCore},
		{name: "all-equal tie resolves to core", in: ScoreVector{0.2, 0.2, 0.2, 0.2, 0.2}, want: RoleCore},
		{name: "motion fill tie", in: ScoreVector{0.1, 0.1, 0.3, 0.3, 0.2}, want: RoleMotion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.ArgMax(); got != tt.want {
				t.Errorf("ArgMax() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreVectorMargin(t *testing.T) {
	tests := []struct {
		name string
		in   ScoreVector
		want float64
	}{
		{name: "distinct top two", in: ScoreVector{0.5, 0.3, 0.1, 0.05, 0.05}, want: 0.2},
		{name: "tied top two", in: ScoreVector{0.4, 0.4, 0.2, 0, 0}, want: 0.0},
		{name: "top two not adjacent", in: ScoreVector{0.1, 0.05, 0.6, 0.05, 0.2}, want: 0.4},
		{name: "zero vector", in: ScoreVector{}, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Margin(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Margin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreVectorMultiplyRole(t *testing.T) {
	v := ScoreVector{0.2, 0.2, 0.2, 0.2, 0.2}
	got := v.MultiplyRole(RoleTexture, 0.5)

	if got[RoleTexture] != 0.1 {
		t.Errorf("suppressed role = %v, want 0.1", got[RoleTexture])
	}
	for _, r := range []Role{RoleCore, RoleAccent, RoleMotion, RoleFill} {
		if got[r] != 0.2 {
			t.Errorf("role %v changed to %v", r, got[r])
		}
	}
	// Value semantics: the source vector is untouched.
	if v[RoleTexture] != 0.2 {
		t.Errorf("MultiplyRole mutated the receiver: %v", v[RoleTexture])
	}
}

func TestScoreVectorClampNegatives(t *testing.T) {
	v := ScoreVector{-0.1, 0.3, -0.001, 0, 0.5}.ClampNegatives()
	want := ScoreVector{0, 0.3, 0, 0, 0.5}
	if v != want {
		t.Errorf("ClampNegatives() = %v, want %v", v, want)
	}
}

func TestScoreVectorSortedDescending(t *testing.T) {
	tests := []struct {
		name string
		in   ScoreVector
		want [NumRoles]Role
	}{
		{
			name: "strictly ordered",
			in:   ScoreVector{0.5, 0.4, 0.3, 0.2, 0.1},
			want: [NumRoles]Role{RoleCore, RoleAccent, RoleMotion, RoleFill, RoleTexture},
		},
		{
			name: "reversed",
			in:   ScoreVector{0.1, 0.2, 0.3, 0.4, 0.5},
			want: [NumRoles]Role{RoleTexture, RoleFill, RoleMotion, RoleAccent, RoleCore},
		},
		{
			name: "ties keep priority order",
			in:   ScoreVector{0.2, 0.4, 0.2, 0.4, 0.2},
			want: [NumRoles]Role{RoleAccent, RoleFill, RoleCore, RoleMotion, RoleTexture},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.SortedDescending(); got != tt.want {
				t.Errorf("SortedDescending() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreVectorJSONRoundTrip(t *testing.T) {
	v := ScoreVector{0.5, 0.2, 0.15, 0.1, 0.05}

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]float64
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}
	if decoded["CORE"] != 0.5 || decoded["TEXTURE"] != 0.05 {
		t.Errorf("unexpected object shape: %v", decoded)
	}

	var back ScoreVector
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != v {
		t.Errorf("round trip = %v, want %v", back, v)
	}
}

func TestScoreVectorUnmarshalPartial(t *testing.T) {
	var v ScoreVector
	if err := json.Unmarshal([]byte(`{"CORE": 0.7, "MOTION": 0.3}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := ScoreVector{0.7, 0, 0.3, 0, 0}
	if v != want {
		t.Errorf("partial decode = %v, want %v", v, want)
	}
}
