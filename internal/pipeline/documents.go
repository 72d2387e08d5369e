// Package pipeline runs the batch flow: read feature documents from
// disk, assign roles in parallel, build pools, write artifacts.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/kitforge/internal/assign"
	"github.com/thebtf/kitforge/internal/semantic"
	"github.com/thebtf/kitforge/pkg/models"
)

// featureDocument is the input contract with the upstream feature
// extractor: one JSON document per sample. SampleID and Filepath are
// optional and fall back to the document's file stem and path. The
// semantic section carries precomputed similarities and may be absent.
type featureDocument struct {
	SampleID string                 `json:"sample_id"`
	Filepath string                 `json:"filepath"`
	Features models.FeatureSnapshot `json:"features"`
	Semantic *semanticSection       `json:"semantic"`
}

// semanticSection holds similarity scores keyed by role name.
// Similarities carries one score per role, PromptScores a full prompt
// ensemble. PromptScores wins when both are present.
type semanticSection struct {
	Similarities map[string]float64   `json:"similarities"`
	PromptScores map[string][]float64 `json:"prompt_scores"`
}

// promptScores converts the section into provider form. The second
// return is false when the section carries no scores at all.
func (s *semanticSection) promptScores() (semantic.PromptScores, bool, error) {
	var scores semantic.PromptScores
	if len(s.PromptScores) > 0 {
		for name, list := range s.PromptScores {
			role, err := models.ParseRole(name)
			if err != nil {
				return semantic.PromptScores{}, false, err
			}
			scores[role] = append([]float64(nil), list...)
		}
		return scores, true, nil
	}
	if len(s.Similarities) > 0 {
		for name, score := range s.Similarities {
			role, err := models.ParseRole(name)
			if err != nil {
				return semantic.PromptScores{}, false, err
			}
			scores[role] = []float64{score}
		}
		return scores, true, nil
	}
	return scores, false, nil
}

// listDocuments walks dir for *.json feature documents and returns
// their paths sorted. Walk errors below the root are logged and the
// affected entries skipped; a missing root fails.
func listDocuments(ctx context.Context, dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			log.Warn().Err(walkErr).Str("path", path).Msg("Skipping unreadable input entry")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input directory: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// batch is everything one run reads from the input directory.
type batch struct {
	samples []assign.Sample
	scores  map[string]semantic.PromptScores
	skipped int
}

// collectBatch decodes documents into assignable samples plus the
// semantic score table. Documents that fail to decode or collide on
// sample ID are skipped with a warning, never fatally: one broken
// document must not sink the batch.
func collectBatch(paths []string) *batch {
	b := &batch{scores: make(map[string]semantic.PromptScores)}
	seen := make(map[string]string, len(paths))

	for _, path := range paths {
		doc, err := decodeDocument(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping feature document")
			b.skipped++
			continue
		}
		if first, dup := seen[doc.SampleID]; dup {
			log.Warn().
				Str("sample_id", doc.SampleID).
				Str("path", path).
				Str("first_seen", first).
				Msg("Skipping duplicate sample ID")
			b.skipped++
			continue
		}
		seen[doc.SampleID] = path

		if doc.Semantic != nil {
			scores, ok, err := doc.Semantic.promptScores()
			switch {
			case err != nil:
				log.Warn().Err(err).Str("sample_id", doc.SampleID).
					Msg("Ignoring malformed semantic section")
			case ok:
				b.scores[doc.SampleID] = scores
			}
		}
		b.samples = append(b.samples, assign.Sample{
			SampleID: doc.SampleID,
			Filepath: doc.Filepath,
			Features: doc.Features,
		})
	}
	return b
}

func decodeDocument(path string) (featureDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return featureDocument{}, fmt.Errorf("read document: %w", err)
	}
	var doc featureDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return featureDocument{}, fmt.Errorf("decode document: %w", err)
	}
	if doc.SampleID == "" {
		doc.SampleID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if doc.Filepath == "" {
		doc.Filepath = path
	}
	return doc, nil
}
