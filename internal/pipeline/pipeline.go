// Package pipeline runs the batch flow: read feature documents from
// disk, assign roles in parallel, build pools, write artifacts.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/kitforge/internal/assign"
	"github.com/thebtf/kitforge/internal/config"
	"github.com/thebtf/kitforge/internal/pool"
	"github.com/thebtf/kitforge/internal/semantic"
	"github.com/thebtf/kitforge/pkg/models"
)

const (
	poolsBaseName = "pools"
	debugBaseName = "debug"
)

// Pipeline wires the whole batch flow behind one Run call. It holds no
// per-run state, so one Pipeline serves any number of runs.
type Pipeline struct {
	cfg *config.Config
}

// New builds a pipeline over a validated configuration.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Summary reports one run: what was read, what was assigned, what was
// written and which pool constraints could not be met.
type Summary struct {
	BatchID    string
	Documents  int // documents matched in the input directory
	Skipped    int // documents dropped before assignment
	Samples    int // samples assigned
	Degraded   int // samples assigned without semantic scores
	Discarded  int // samples dropped by strict pool assignment
	Counts     map[models.Role]int
	Violations []models.ConstraintViolation
	PoolsPath  string
	DebugPath  string // empty when debug output is disabled
}

// Run executes one batch: list and decode feature documents under
// inputDir, assign roles, build pools and write numbered artifacts
// into outDir. Cancelling ctx abandons the batch without writing.
func (p *Pipeline) Run(ctx context.Context, inputDir, outDir string) (Summary, error) {
	batchID := fmt.Sprintf("batch_%s", uuid.New().String()[:8])

	paths, err := listDocuments(ctx, inputDir)
	if err != nil {
		return Summary{}, err
	}
	if len(paths) == 0 {
		return Summary{}, fmt.Errorf("no feature documents found in %s", inputDir)
	}
	total := len(paths)
	paths = p.selectDocuments(paths)

	b := collectBatch(paths)
	if len(b.samples) == 0 {
		return Summary{}, fmt.Errorf("no usable feature documents in %s (%d skipped)", inputDir, b.skipped)
	}

	assigner, err := assign.NewRoleAssigner(p.cfg, semantic.NewStaticProvider(b.scores))
	if err != nil {
		return Summary{}, err
	}
	runner := assign.NewRunner(assigner, p.cfg.Runner)
	results, err := runner.Run(ctx, b.samples)
	if err != nil {
		return Summary{}, err
	}

	builder, err := pool.NewBuilder(p.cfg.Pool)
	if err != nil {
		return Summary{}, err
	}
	outcome := builder.Build(results)

	poolsPath, debugPath, err := p.writeArtifacts(outDir, outcome, results)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		BatchID:    batchID,
		Documents:  total,
		Skipped:    b.skipped,
		Samples:    len(results),
		Degraded:   countDegraded(results),
		Discarded:  len(outcome.Dropped),
		Counts:     outcome.Pools.Counts(),
		Violations: outcome.Violations,
		PoolsPath:  poolsPath,
		DebugPath:  debugPath,
	}
	log.Info().
		Str("batch_id", summary.BatchID).
		Int("samples", summary.Samples).
		Int("skipped", summary.Skipped).
		Int("degraded", summary.Degraded).
		Int("violations", len(summary.Violations)).
		Str("pools", summary.PoolsPath).
		Msg("Batch run completed")
	return summary, nil
}

// Explain scores a single feature document and returns the full stage
// trace instead of writing artifacts. Malformed semantic sections
// degrade to rule-only scoring, exactly as they do in a batch run.
func (p *Pipeline) Explain(ctx context.Context, path string) (assign.Explanation, error) {
	doc, err := decodeDocument(path)
	if err != nil {
		return assign.Explanation{}, err
	}

	scores := make(map[string]semantic.PromptScores)
	if doc.Semantic != nil {
		table, ok, err := doc.Semantic.promptScores()
		switch {
		case err != nil:
			log.Warn().Err(err).Str("sample_id", doc.SampleID).
				Msg("Ignoring malformed semantic section")
		case ok:
			scores[doc.SampleID] = table
		}
	}

	assigner, err := assign.NewRoleAssigner(p.cfg, semantic.NewStaticProvider(scores))
	if err != nil {
		return assign.Explanation{}, err
	}
	return assigner.Explain(ctx, assign.Sample{
		SampleID: doc.SampleID,
		Filepath: doc.Filepath,
		Features: doc.Features,
	})
}

// selectDocuments applies the configured shuffle and limit. The
// shuffle is seeded from the run seed so equal seeds replay equal
// batches.
func (p *Pipeline) selectDocuments(paths []string) []string {
	if p.cfg.Input.Shuffle {
		rng := rand.New(rand.NewSource(p.cfg.Seed))
		rng.Shuffle(len(paths), func(i, j int) {
			paths[i], paths[j] = paths[j], paths[i]
		})
	}
	if limit := p.cfg.Input.Limit; limit > 0 && limit < len(paths) {
		paths = paths[:limit]
	}
	return paths
}

var poolsPattern = regexp.MustCompile(`^pools_(\d+)\.json$`)

// nextRunIndex returns one past the highest numbered pools artifact in
// dir, so successive runs never overwrite each other. The debug file
// shares the index to keep one run's artifacts correlated.
func nextRunIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan output directory: %w", err)
	}
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := poolsPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if idx, err := strconv.Atoi(m[1]); err == nil && idx > highest {
			highest = idx
		}
	}
	return highest + 1, nil
}

func (p *Pipeline) writeArtifacts(outDir string, outcome pool.Outcome, results []models.SampleResult) (string, string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output directory: %w", err)
	}
	idx, err := nextRunIndex(outDir)
	if err != nil {
		return "", "", err
	}

	doc := pool.NewDocument(&outcome.Pools)
	var data []byte
	if p.cfg.Output.Indent {
		data, err = doc.Marshal()
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return "", "", fmt.Errorf("encode pools document: %w", err)
	}
	poolsPath := filepath.Join(outDir, fmt.Sprintf("%s_%d.json", poolsBaseName, idx))
	if err := os.WriteFile(poolsPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write pools document: %w", err)
	}

	if !p.cfg.Output.Debug {
		return poolsPath, "", nil
	}
	if p.cfg.Output.Indent {
		data, err = json.MarshalIndent(results, "", "  ")
	} else {
		data, err = json.Marshal(results)
	}
	if err != nil {
		return "", "", fmt.Errorf("encode debug document: %w", err)
	}
	debugPath := filepath.Join(outDir, fmt.Sprintf("%s_%d.json", debugBaseName, idx))
	if err := os.WriteFile(debugPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write debug document: %w", err)
	}
	return poolsPath, debugPath, nil
}

func countDegraded(results []models.SampleResult) int {
	n := 0
	for _, r := range results {
		if r.SemanticMissing {
			n++
		}
	}
	return n
}
