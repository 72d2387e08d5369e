// Package assign orchestrates per-sample role assignment and bounded
// batch execution for kitforge.
package assign

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/kitforge/internal/config"
	"github.com/thebtf/kitforge/internal/fusion"
	"github.com/thebtf/kitforge/internal/scoring"
	"github.com/thebtf/kitforge/internal/semantic"
	"github.com/thebtf/kitforge/pkg/models"
)

// Sample is one unit of assignment work: an identified feature
// snapshot handed over by the out-of-scope extractor stage.
type Sample struct {
	SampleID string
	Filepath string
	Features models.FeatureSnapshot
}

// RoleAssigner runs the scoring pipeline for single samples: rule
// scoring, semantic reduction, fusion, guardrails, argmax. Calls are
// independent and safe for concurrent use; all state is fixed at
// construction.
type RoleAssigner struct {
	scorer   *scoring.RuleScorer
	adapter  *semantic.Adapter
	engine   *fusion.Engine
	guards   *fusion.GuardrailSet
	provider semantic.Provider
}

// NewRoleAssigner builds the full pipeline from config. provider may
// be nil; together with semantic.enabled=false that runs every sample
// rule-only. A non-nil provider is wrapped with the configured
// per-call timeout so a stuck backend degrades one sample instead of
// stalling the batch.
func NewRoleAssigner(cfg *config.Config, provider semantic.Provider) (*RoleAssigner, error) {
	scorer, err := scoring.NewRuleScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	adapter, err := semantic.NewAdapter(cfg.Semantic, cfg.Seed)
	if err != nil {
		return nil, err
	}
	engine, err := fusion.NewEngine(cfg.Fusion)
	if err != nil {
		return nil, err
	}

	if provider != nil && !cfg.Semantic.Enabled {
		provider = nil
	}
	if provider != nil {
		provider = semantic.NewTimeoutProvider(provider, cfg.Runner.ProviderTimeout.Std())
	}

	return &RoleAssigner{
		scorer:   scorer,
		adapter:  adapter,
		engine:   engine,
		guards:   fusion.NewGuardrailSet(cfg.Guards),
		provider: provider,
	}, nil
}

// Assign scores one sample and returns its result. Samples without
// usable semantic scores are fused rule-only and flagged, never
// guessed. The only error returned is context cancellation.
func (a *RoleAssigner) Assign(ctx context.Context, s Sample) (models.SampleResult, error) {
	result, _, err := a.assign(ctx, s)
	return result, err
}

// Explanation is the full score trace for one sample, produced for
// the explain command and debug artifacts.
type Explanation struct {
	Result      models.SampleResult                    `json:"result"`
	RuleTrace   [models.NumRoles]scoring.RoleBreakdown `json:"rule_trace"`
	PreMargin   float64                                `json:"pre_guard_margin"`
	GuardsFired []string                               `json:"guards_fired"`
}

// Explain assigns one sample and keeps the intermediate stages that
// Assign throws away.
func (a *RoleAssigner) Explain(ctx context.Context, s Sample) (Explanation, error) {
	result, trace, err := a.assign(ctx, s)
	if err != nil {
		return Explanation{}, err
	}
	return Explanation{
		Result:      result,
		RuleTrace:   a.scorer.Breakdown(s.Features.Clamped()),
		PreMargin:   trace.preMargin,
		GuardsFired: trace.guardsFired,
	}, nil
}

type assignTrace struct {
	preMargin   float64
	guardsFired []string
}

func (a *RoleAssigner) assign(ctx context.Context, s Sample) (models.SampleResult, assignTrace, error) {
	features := s.Features.Clamped()

	ruleRaw, ruleProbs := a.scorer.Score(features)

	var semRaw, semProbs models.ScoreVector
	missing := true
	if a.provider != nil {
		scores, err := a.provider.Similarity(ctx, semantic.SampleRef{
			SampleID: s.SampleID,
			Filepath: s.Filepath,
		})
		switch {
		case err == nil:
			semRaw, semProbs, err = a.adapter.Reduce(scores, s.SampleID)
			if err == nil {
				missing = false
			} else {
				log.Debug().Str("sample_id", s.SampleID).Err(err).
					Msg("Semantic scores unusable, fusing rule-only")
			}
		case ctx.Err() != nil:
			return models.SampleResult{}, assignTrace{}, ctx.Err()
		case errors.Is(err, semantic.ErrUnavailable):
			log.Debug().Str("sample_id", s.SampleID).Err(err).
				Msg("Semantic scores unavailable, fusing rule-only")
		default:
			log.Warn().Str("sample_id", s.SampleID).Err(err).
				Msg("Semantic provider failed, fusing rule-only")
		}
	}

	combined, preMargin := a.engine.Fuse(ruleProbs, semProbs, missing)
	final, fired := a.guards.Apply(combined, features, preMargin)

	result := models.SampleResult{
		SampleID: s.SampleID,
		Filepath: s.Filepath,
		Features: features,
		Scores: models.ScoreBundle{
			RuleRaw:     ruleRaw,
			Rule:        ruleProbs,
			SemanticRaw: semRaw,
			Semantic:    semProbs,
			Final:       final,
			Confidence:  final.Margin(),
		},
		Role:            final.ArgMax(),
		SemanticMissing: missing,
	}
	return result, assignTrace{preMargin: preMargin, guardsFired: fired}, nil
}
