// Package pool allocates assignment results into per-role sample pools
// and repairs minimum and capacity constraints.
package pool

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/thebtf/kitforge/pkg/models"
)

func TestNewDocument_ShapeMatchesConsumer(t *testing.T) {
	var pools models.RolePools
	pools.Add(sample("kick", vec(0.5, 0.25, 0.125, 0.0625, 0.0625)))
	pools.Add(sample("snare", vec(0.25, 0.5, 0.125, 0.0625, 0.0625)))
	pools.Add(sample("kick-2", vec(0.5, 0.25, 0.125, 0.0625, 0.0625)))

	got := NewDocument(&pools)

	want := Document{
		CorePool: []PoolEntry{
			{SampleID: "kick", Filepath: "/samples/kick.wav", Role: models.RoleCore, Confidence: 0.25},
			{SampleID: "kick-2", Filepath: "/samples/kick-2.wav", Role: models.RoleCore, Confidence: 0.25},
		},
		AccentPool: []PoolEntry{
			{SampleID: "snare", Filepath: "/samples/snare.wav", Role: models.RoleAccent, Confidence: 0.25},
		},
		MotionPool:  []PoolEntry{},
		FillPool:    []PoolEntry{},
		TexturePool: []PoolEntry{},
		Counts: map[string]int{
			"CORE": 2, "ACCENT": 1, "MOTION": 0, "FILL": 0, "TEXTURE": 0,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestDocument_MarshalUsesWireKeys(t *testing.T) {
	var pools models.RolePools
	pools.Add(sample("kick", vec(0.5, 0.25, 0.125, 0.0625, 0.0625)))

	raw, err := NewDocument(&pools).Marshal()
	if err != nil {
		t.Fatal(err)
	}

	text := string(raw)
	for _, key := range []string{
		`"CORE_POOL"`, `"ACCENT_POOL"`, `"MOTION_POOL"`,
		`"FILL_POOL"`, `"TEXTURE_POOL"`, `"counts"`,
	} {
		if !strings.Contains(text, key) {
			t.Errorf("missing key %s in:\n%s", key, text)
		}
	}
	if !strings.Contains(text, `"role": "CORE"`) {
		t.Errorf("role should serialize as its name:\n%s", text)
	}
}

func TestDocument_EmptyPoolsSerializeAsLists(t *testing.T) {
	var pools models.RolePools

	raw, err := NewDocument(&pools).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "null") {
		t.Errorf("empty pools must serialize as [], got:\n%s", raw)
	}
}
