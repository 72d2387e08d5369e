// Package models contains domain models for kitforge.
package models

// ScoreBundle carries every scoring stage for one sample. RuleRaw and
// SemanticRaw are the pre-softmax values kept for debug output; Rule,
// Semantic and Final are probability vectors. Confidence is the margin
// of the final vector after guardrails.
//
// When the semantic provider was unavailable SemanticRaw and Semantic
// stay zero and Final is derived from the rule vector alone.
type ScoreBundle struct {
	RuleRaw     ScoreVector `json:"rule_raw"`
	Rule        ScoreVector `json:"p_rule"`
	SemanticRaw ScoreVector `json:"semantic_similarity"`
	Semantic    ScoreVector `json:"p_semantic"`
	Final       ScoreVector `json:"p_final"`
	Confidence  float64     `json:"confidence"`
}

// SampleResult is the outcome of assigning one sample. It is a value:
// pool building never mutates a result, it derives new ones.
type SampleResult struct {
	SampleID        string          `json:"sample_id"`
	Filepath        string          `json:"filepath"`
	Features        FeatureSnapshot `json:"features"`
	Scores          ScoreBundle     `json:"scores"`
	Role            Role            `json:"role"`
	SemanticMissing bool            `json:"semantic_missing,omitempty"`
}

// WithRole returns a copy of the result assigned to a different role.
func (s SampleResult) WithRole(r Role) SampleResult {
	s.Role = r
	return s
}

// Confidence is shorthand for the final-stage margin.
func (s SampleResult) Confidence() float64 {
	return s.Scores.Confidence
}

// FinalScore returns the fused, guarded probability for one role.
func (s SampleResult) FinalScore(r Role) float64 {
	return s.Scores.Final[r]
}
