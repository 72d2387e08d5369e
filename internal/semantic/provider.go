// Package semantic adapts externally computed similarity scores into
// role probability vectors.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thebtf/kitforge/pkg/models"
)

// ErrUnavailable signals that no semantic scores exist for a sample:
// the model is down, the call timed out, or the audio was rejected.
// Callers fall back to rule-only fusion; scores are never guessed.
var ErrUnavailable = errors.New("semantic scores unavailable")

// SampleRef identifies a sample for similarity lookup.
type SampleRef struct {
	SampleID string
	Filepath string
}

// PromptScores holds the per-role prompt ensemble similarities, one
// slice entry per text prompt. A provider may return a single score
// per role.
type PromptScores [models.NumRoles][]float64

// Total returns the number of prompt scores across all roles.
func (p PromptScores) Total() int {
	n := 0
	for r := range p {
		n += len(p[r])
	}
	return n
}

// Provider produces semantic similarity scores for a sample. The
// engine owns no model internals: implementations wrap whatever
// service or precomputed artifact supplies the scores.
//
// Similarity must honor ctx and return an error wrapping
// ErrUnavailable when scores cannot be produced for this sample.
type Provider interface {
	Similarity(ctx context.Context, ref SampleRef) (PromptScores, error)
}

// StaticProvider serves scores from a fixed table keyed by sample ID.
// It backs precomputed feature documents, tests and offline tooling.
type StaticProvider struct {
	scores map[string]PromptScores
}

// NewStaticProvider builds a provider over a fixed score table.
func NewStaticProvider(scores map[string]PromptScores) *StaticProvider {
	if scores == nil {
		scores = map[string]PromptScores{}
	}
	return &StaticProvider{scores: scores}
}

// Similarity implements Provider. Samples without an entry are
// unavailable.
func (p *StaticProvider) Similarity(ctx context.Context, ref SampleRef) (PromptScores, error) {
	if err := ctx.Err(); err != nil {
		return PromptScores{}, err
	}
	scores, ok := p.scores[ref.SampleID]
	if !ok {
		return PromptScores{}, fmt.Errorf("no scores for sample %q: %w", ref.SampleID, ErrUnavailable)
	}
	return scores, nil
}

// TimeoutProvider wraps another provider with a per-call deadline and
// maps expiry onto ErrUnavailable. Batch-level cancellation still
// propagates as cancellation.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// NewTimeoutProvider wraps inner with a per-call timeout. A
// nonpositive timeout leaves calls unbounded.
func NewTimeoutProvider(inner Provider, timeout time.Duration) *TimeoutProvider {
	return &TimeoutProvider{inner: inner, timeout: timeout}
}

// Similarity implements Provider.
func (p *TimeoutProvider) Similarity(ctx context.Context, ref SampleRef) (PromptScores, error) {
	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	scores, err := p.inner.Similarity(callCtx, ref)
	if err == nil {
		return scores, nil
	}
	if ctx.Err() != nil {
		// The whole batch is being torn down.
		return PromptScores{}, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return PromptScores{}, fmt.Errorf("provider call exceeded %s: %w", p.timeout, ErrUnavailable)
	}
	return PromptScores{}, err
}
