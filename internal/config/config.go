// Package config provides configuration management for kitforge.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/kitforge/pkg/models"
)

const (
	// DefaultTauRule is the softmax temperature for rule scores.
	DefaultTauRule = 0.95

	// DefaultTauSemantic is the softmax temperature for semantic
	// similarities. Raw similarities cluster tightly, so the
	// temperature is much sharper than the rule one.
	DefaultTauSemantic = 0.12

	// DefaultAlpha weights rule scores against semantic scores:
	// final = alpha*rule + (1-alpha)*semantic.
	DefaultAlpha = 0.65

	// DefaultProviderTimeout bounds a single semantic provider call.
	DefaultProviderTimeout = 10 * time.Second

	// DefaultWatchDebounce coalesces a burst of filesystem events into
	// a single re-run in watch mode.
	DefaultWatchDebounce = 750 * time.Millisecond
)

// ConfigError reports an invalid configuration value. It is returned
// at construction time, never mid-batch.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Errf builds a ConfigError for a named field.
func Errf(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Duration wraps time.Duration so YAML configs can say "750ms" or
// "10s". yaml.v3 has no native duration decoding.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration tree. Zero values are filled by
// Default; Load merges a YAML file over those defaults.
type Config struct {
	// Seed drives every random choice in a run: input shuffling and
	// semantic prompt subsampling. Equal seeds reproduce equal runs.
	Seed int64 `yaml:"seed"`

	Scoring  ScoringConfig  `yaml:"scoring"`
	Semantic SemanticConfig `yaml:"semantic"`
	Fusion   FusionConfig   `yaml:"fusion"`
	Guards   GuardsConfig   `yaml:"guards"`
	Pool     PoolConfig     `yaml:"pool"`
	Runner   RunnerConfig   `yaml:"runner"`
	Input    InputConfig    `yaml:"input"`
	Watch    WatchConfig    `yaml:"watch"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

// ScoringConfig controls the rule scoring stage.
type ScoringConfig struct {
	// TauRule is the softmax temperature over raw rule scores.
	TauRule float64 `yaml:"tau_rule" validate:"gt=0"`

	// Weights overrides the built-in weight tables per role. Keys are
	// role names; inner keys are feature terms. Roles left out keep
	// their default table. Term names are validated by the scorer.
	Weights map[string]map[string]float64 `yaml:"weights" validate:"omitempty,dive,keys,rolename,endkeys,required"`

	TexturePenalty TexturePenaltyConfig `yaml:"texture_penalty"`
}

// TexturePenaltyConfig tunes the pre-softmax texture correction for
// bright, fast-decaying percussive material.
type TexturePenaltyConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SharpnessMin float64 `yaml:"sharpness_min" validate:"gte=0,lte=1"`
	DecayMax     float64 `yaml:"decay_max" validate:"gte=0"`
	Penalty      float64 `yaml:"penalty" validate:"gte=0"`

	// The flatness gate is independent of the percussive gate.
	FlatnessEnabled bool    `yaml:"flatness_enabled"`
	FlatnessMax     float64 `yaml:"flatness_max" validate:"gte=0,lte=1"`
	FlatnessPenalty float64 `yaml:"flatness_penalty" validate:"gte=0"`
}

// SemanticConfig controls the semantic score adapter.
type SemanticConfig struct {
	// Enabled false skips the provider entirely; fusion runs rule-only.
	Enabled bool `yaml:"enabled"`

	// Tau is the softmax temperature over reduced similarities.
	Tau float64 `yaml:"tau" validate:"gt=0"`

	// Reduce picks the prompt ensemble reduction.
	Reduce string `yaml:"reduce" validate:"oneof=mean max topk"`

	// TopK is the ensemble size for the topk reduction.
	TopK int `yaml:"top_k" validate:"gte=1"`

	// Subsample caps the number of prompt scores considered per role,
	// drawn with the run seed. 0 uses every score.
	Subsample int `yaml:"subsample" validate:"gte=0"`
}

// FusionConfig controls the blend of rule and semantic vectors.
type FusionConfig struct {
	Alpha float64 `yaml:"alpha" validate:"gte=0,lte=1"`

	// Bias adds a per-role offset after blending, keyed by role name.
	Bias map[string]float64 `yaml:"bias" validate:"omitempty,dive,keys,rolename,endkeys,gte=-1,lte=1"`
}

// GuardsConfig holds the guardrail sequence settings. Application
// order is fixed; these only tune thresholds and factors.
type GuardsConfig struct {
	TextureSuppress      TextureSuppressGuard  `yaml:"texture_suppress"`
	SustainedNoise       SustainedNoiseGuard   `yaml:"sustained_noise_suppress"`
	MotionMin            MotionMinGuard        `yaml:"motion_min_condition"`
	FillConservative     FillConservativeGuard `yaml:"fill_conservative"`
	LowConfidenceTexture LowConfTextureGuard   `yaml:"low_confidence_texture"`
}

// TextureSuppressGuard damps TEXTURE for very bright, near-instant
// decays that belong with the percussive roles.
type TextureSuppressGuard struct {
	Enabled      bool    `yaml:"enabled"`
	Factor       float64 `yaml:"factor" validate:"gt=0,lte=1"`
	SharpnessMin float64 `yaml:"sharpness_min" validate:"gte=0,lte=1"`
	DecayMax     float64 `yaml:"decay_max" validate:"gte=0"`
}

// SustainedNoiseGuard damps CORE and ACCENT for long noisy tails.
type SustainedNoiseGuard struct {
	Enabled     bool    `yaml:"enabled"`
	Factor      float64 `yaml:"factor" validate:"gt=0,lte=1"`
	DecayMin    float64 `yaml:"decay_min" validate:"gte=0"`
	FlatnessMin float64 `yaml:"flatness_min" validate:"gte=0,lte=1"`
}

// MotionMinGuard damps MOTION when a sample lacks the minimum high
// band presence or decays far too slowly to keep time.
type MotionMinGuard struct {
	Enabled  bool    `yaml:"enabled"`
	Factor   float64 `yaml:"factor" validate:"gt=0,lte=1"`
	HighMin  float64 `yaml:"high_min" validate:"gte=0,lte=1"`
	DecayMax float64 `yaml:"decay_max" validate:"gte=0"`
}

// FillConservativeGuard damps FILL when its probability or the
// pre-guard margin is too small to trust.
type FillConservativeGuard struct {
	Enabled     bool    `yaml:"enabled"`
	Factor      float64 `yaml:"factor" validate:"gt=0,lte=1"`
	FillProbMin float64 `yaml:"fill_prob_min" validate:"gte=0,lte=1"`
	MarginMin   float64 `yaml:"margin_min" validate:"gte=0"`
}

// LowConfTextureGuard damps a low-confidence TEXTURE top pick whose
// runner-up is a percussive role.
type LowConfTextureGuard struct {
	Enabled   bool    `yaml:"enabled"`
	Factor    float64 `yaml:"factor" validate:"gt=0,lte=1"`
	MarginMax float64 `yaml:"margin_max" validate:"gte=0"`
}

// PoolConfig controls pool building.
type PoolConfig struct {
	// Required maps role names to their minimum pool size.
	Required map[string]int `yaml:"required" validate:"omitempty,dive,keys,rolename,endkeys,gte=0"`

	// MaxSizes maps role names to pool capacity. Absent means
	// unlimited.
	MaxSizes map[string]int `yaml:"max_sizes" validate:"omitempty,dive,keys,rolename,endkeys,gte=1"`

	PromoteWhenMissing  bool `yaml:"promote_when_missing"`
	RebalanceWhenExcess bool `yaml:"rebalance_when_excess"`

	// MinMarginKeep is the largest score gap a rebalance move may
	// cross: a sample only moves to an alternative role when its
	// current-role score exceeds the alternative by at most this.
	MinMarginKeep float64 `yaml:"min_margin_keep" validate:"gte=0"`

	// TryThirdBest lets rebalancing fall through to the third-ranked
	// role before giving up on TEXTURE.
	TryThirdBest bool `yaml:"try_third_best"`

	ForbidCore   ForbidCoreConfig   `yaml:"forbid_core"`
	ForbidMotion ForbidMotionConfig `yaml:"forbid_motion"`

	// StrictAssignMax switches batches of at most this many samples to
	// strict one-best-per-role assignment. 0 disables the cutover.
	StrictAssignMax int `yaml:"strict_assign_max" validate:"gte=0"`
}

// ForbidCoreConfig blocks promotion into CORE for washy sustained
// material.
type ForbidCoreConfig struct {
	Enabled     bool    `yaml:"enabled"`
	DecayMin    float64 `yaml:"decay_min" validate:"gte=0"`
	FlatnessMin float64 `yaml:"flatness_min" validate:"gte=0,lte=1"`
}

// ForbidMotionConfig blocks promotion into MOTION for samples without
// high band content.
type ForbidMotionConfig struct {
	Enabled bool    `yaml:"enabled"`
	HighMax float64 `yaml:"high_max" validate:"gte=0,lte=1"`
}

// RunnerConfig controls parallel batch execution.
type RunnerConfig struct {
	// Workers bounds concurrent sample assignment. 0 means NumCPU.
	Workers int `yaml:"workers" validate:"gte=0"`

	// ProviderTimeout bounds one semantic provider call. Expiry is a
	// degraded sample, not a failed batch.
	ProviderTimeout Duration `yaml:"provider_timeout"`
}

// InputConfig controls how the pipeline picks up feature documents.
type InputConfig struct {
	// Shuffle randomizes document order with the run seed before any
	// limit is applied.
	Shuffle bool `yaml:"shuffle"`

	// Limit caps the number of documents per run. 0 takes all.
	Limit int `yaml:"limit" validate:"gte=0"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// Debounce is how long the watcher waits after the last filesystem
	// event before re-running the batch. A new burst cancels any run
	// still in flight.
	Debounce Duration `yaml:"debounce"`
}

// OutputConfig controls artifact writing.
type OutputConfig struct {
	// Debug writes a per-sample score breakdown beside the pools file.
	Debug bool `yaml:"debug"`

	// Indent pretty-prints the JSON artifacts.
	Indent bool `yaml:"indent"`
}

// LogConfig controls zerolog.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Role-keyed maps are validated here once so consumers can parse
	// keys without error handling.
	_ = validate.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		_, err := models.ParseRole(fl.Field().String())
		return err == nil
	})
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Seed: 0,
		Scoring: ScoringConfig{
			TauRule: DefaultTauRule,
			TexturePenalty: TexturePenaltyConfig{
				Enabled:         true,
				SharpnessMin:    0.55, // bright enough to read as percussive
				DecayMax:        0.35, // short enough to read as a hit
				Penalty:         0.18,
				FlatnessEnabled: true,
				FlatnessMax:     0.18, // tonal material, not noise
				FlatnessPenalty: 0.10,
			},
		},
		Semantic: SemanticConfig{
			Enabled:   true,
			Tau:       DefaultTauSemantic,
			Reduce:    "mean",
			TopK:      3,
			Subsample: 0,
		},
		Fusion: FusionConfig{
			Alpha: DefaultAlpha,
		},
		Guards: GuardsConfig{
			TextureSuppress: TextureSuppressGuard{
				Enabled:      true,
				Factor:       0.90,
				SharpnessMin: 0.95,
				DecayMax:     0.05,
			},
			SustainedNoise: SustainedNoiseGuard{
				Enabled:     true,
				Factor:      0.90,
				DecayMin:    1.0,
				FlatnessMin: 0.60,
			},
			MotionMin: MotionMinGuard{
				Enabled:  true,
				Factor:   0.90,
				HighMin:  0.05,
				DecayMax: 2.0,
			},
			FillConservative: FillConservativeGuard{
				Enabled:     true,
				Factor:      0.90,
				FillProbMin: 0.10,
				MarginMin:   0.01,
			},
			LowConfidenceTexture: LowConfTextureGuard{
				Enabled:   true,
				Factor:    0.80,
				MarginMax: 0.10,
			},
		},
		Pool: PoolConfig{
			Required: map[string]int{
				"CORE":   1, // a kit always needs a low anchor
				"ACCENT": 1,
				"MOTION": 1,
			},
			MaxSizes: map[string]int{
				"CORE":   4,
				"ACCENT": 4,
				"MOTION": 10, // hats and shakers pile up fast
			},
			PromoteWhenMissing:  true,
			RebalanceWhenExcess: true,
			MinMarginKeep:       0.08,
			TryThirdBest:        true,
			ForbidCore: ForbidCoreConfig{
				Enabled:     true,
				DecayMin:    0.75,
				FlatnessMin: 0.25,
			},
			ForbidMotion: ForbidMotionConfig{
				Enabled: true,
				HighMax: 0.25,
			},
			StrictAssignMax: 0,
		},
		Runner: RunnerConfig{
			Workers:         0, // NumCPU
			ProviderTimeout: Duration(DefaultProviderTimeout),
		},
		Input: InputConfig{
			Shuffle: false,
			Limit:   0,
		},
		Watch: WatchConfig{
			Debounce: Duration(DefaultWatchDebounce),
		},
		Output: OutputConfig{
			Debug:  true,
			Indent: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and merges it over defaults. An empty
// path returns validated defaults; a named file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, Errf(path, "parse yaml: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every range and enum constraint in the tree.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return Errf(first.Namespace(), "value %v fails %q", first.Value(), first.Tag())
	}
	return err
}
