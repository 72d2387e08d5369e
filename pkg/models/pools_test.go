// Package models contains domain models for kitforge.
package models

import "testing"

func TestRolePoolsAddAndCounts(t *testing.T) {
	var pools RolePools

	pools.Add(SampleResult{SampleID: "kick", Role: RoleCore})
	pools.Add(SampleResult{SampleID: "snare", Role: RoleAccent})
	pools.Add(SampleResult{SampleID: "kick2", Role: RoleCore})

	if got := pools.Count(RoleCore); got != 2 {
		t.Errorf("Count(RoleCore) = %d, want 2", got)
	}
	if got := pools.Count(RoleTexture); got != 0 {
		t.Errorf("Count(RoleTexture) = %d, want 0", got)
	}
	if got := pools.Total(); got != 3 {
		t.Errorf("Total() = %d, want 3", got)
	}

	counts := pools.Counts()
	if len(counts) != NumRoles {
		t.Fatalf("Counts() has %d entries, want %d", len(counts), NumRoles)
	}
	if counts[RoleAccent] != 1 {
		t.Errorf("Counts()[RoleAccent] = %d, want 1", counts[RoleAccent])
	}

	// Insertion order is preserved.
	core := pools.Samples(RoleCore)
	if core[0].SampleID != "kick" || core[1].SampleID != "kick2" {
		t.Errorf("core pool order = %q, %q", core[0].SampleID, core[1].SampleID)
	}
}

func TestSampleResultWithRole(t *testing.T) {
	orig := SampleResult{
		SampleID: "hat",
		Role:     RoleMotion,
		Scores:   ScoreBundle{Confidence: 0.42},
	}

	moved := orig.WithRole(RoleTexture)

	if moved.Role != RoleTexture {
		t.Errorf("moved role = %v, want RoleTexture", moved.Role)
	}
	if orig.Role != RoleMotion {
		t.Errorf("WithRole mutated the original: %v", orig.Role)
	}
	if moved.SampleID != orig.SampleID || moved.Scores.Confidence != orig.Scores.Confidence {
		t.Error("WithRole must keep every other field")
	}
}

func TestConstraintViolationString(t *testing.T) {
	v := ConstraintViolation{Role: RoleCore, Needed: 1, Got: 0, Reason: "no candidates"}
	want := "pool CORE below minimum (0 < 1): no candidates"
	if got := v.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
