// Package assign orchestrates per-sample role assignment and bounded
// batch execution for kitforge.
package assign

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/kitforge/internal/config"
	"github.com/thebtf/kitforge/pkg/models"
)

// Runner fans a batch out over a bounded worker pool. Results land in
// an index-addressed slice, so neither worker count nor completion
// order can change the output for a given input.
type Runner struct {
	assigner *RoleAssigner
	workers  int
}

// NewRunner builds a Runner. workers 0 means one per CPU.
func NewRunner(assigner *RoleAssigner, cfg config.RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{assigner: assigner, workers: workers}
}

// Workers reports the pool size in use.
func (r *Runner) Workers() int {
	return r.workers
}

// Run assigns every sample and returns the results in input order.
// Degraded samples still produce results; the only failure mode is
// context cancellation, which abandons uncollected samples.
func (r *Runner) Run(ctx context.Context, samples []Sample) ([]models.SampleResult, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	results := make([]models.SampleResult, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, r.workers)

	for i := range samples {
		i := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			result, err := r.assigner.Assign(gctx, samples[i])
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assign batch: %w", err)
	}

	degraded := 0
	for i := range results {
		if results[i].SemanticMissing {
			degraded++
		}
	}
	log.Debug().
		Int("samples", len(samples)).
		Int("degraded", degraded).
		Int("workers", r.workers).
		Msg("Batch assignment completed")

	return results, nil
}
