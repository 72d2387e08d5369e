// Package pool allocates assignment results into per-role sample pools
// and repairs minimum and capacity constraints.
package pool

import (
	json "github.com/goccy/go-json"

	"github.com/thebtf/kitforge/pkg/models"
)

// PoolEntry is the serialized form of one pooled sample, the subset of
// a result the downstream pattern generator consumes.
type PoolEntry struct {
	SampleID   string      `json:"sample_id"`
	Filepath   string      `json:"filepath"`
	Role       models.Role `json:"role"`
	Confidence float64     `json:"confidence"`
}

// Document is the on-disk pools artifact: one ordered entry list per
// role plus a counts summary. Empty pools serialize as empty lists so
// consumers never see null.
type Document struct {
	CorePool    []PoolEntry    `json:"CORE_POOL"`
	AccentPool  []PoolEntry    `json:"ACCENT_POOL"`
	MotionPool  []PoolEntry    `json:"MOTION_POOL"`
	FillPool    []PoolEntry    `json:"FILL_POOL"`
	TexturePool []PoolEntry    `json:"TEXTURE_POOL"`
	Counts      map[string]int `json:"counts"`
}

// NewDocument flattens role pools into their serialized form.
func NewDocument(pools *models.RolePools) Document {
	counts := make(map[string]int, models.NumRoles)
	for _, r := range models.AllRoles {
		counts[r.String()] = pools.Count(r)
	}
	return Document{
		CorePool:    entries(pools.Samples(models.RoleCore)),
		AccentPool:  entries(pools.Samples(models.RoleAccent)),
		MotionPool:  entries(pools.Samples(models.RoleMotion)),
		FillPool:    entries(pools.Samples(models.RoleFill)),
		TexturePool: entries(pools.Samples(models.RoleTexture)),
		Counts:      counts,
	}
}

func entries(samples []models.SampleResult) []PoolEntry {
	out := make([]PoolEntry, 0, len(samples))
	for _, s := range samples {
		out = append(out, PoolEntry{
			SampleID:   s.SampleID,
			Filepath:   s.Filepath,
			Role:       s.Role,
			Confidence: s.Scores.Confidence,
		})
	}
	return out
}

// Marshal renders the document as indented JSON.
func (d Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
