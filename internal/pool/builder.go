// Package pool allocates assignment results into per-role sample pools
// and repairs minimum and capacity constraints.
package pool

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/kitforge/internal/config"
	"github.com/thebtf/kitforge/pkg/models"
)

// Builder turns a batch of sample results into role pools. A build runs
// four phases in order: initial fill, promotion into required pools,
// rebalancing of over-full pools, and the final audit. Promotion and
// rebalancing are each optional. Builds are single-threaded over the
// batch and a Builder is safe to reuse across batches.
type Builder struct {
	required map[models.Role]int
	maxSizes map[models.Role]int

	promote       bool
	rebalance     bool
	minMarginKeep float64
	tryThirdBest  bool
	strictMax     int

	forbidCore   config.ForbidCoreConfig
	forbidMotion config.ForbidMotionConfig
}

// Outcome is the final state of one pool build. Violations report
// required minimums the builder could not satisfy; they are
// informational, never fatal. Dropped lists samples discarded by
// strict small-batch assignment and is empty otherwise.
type Outcome struct {
	Pools      models.RolePools
	Violations []models.ConstraintViolation
	Dropped    []models.SampleResult
}

// NewBuilder constructs a pool builder from configuration.
func NewBuilder(cfg config.PoolConfig) (*Builder, error) {
	required, err := parseRoleMap(cfg.Required)
	if err != nil {
		return nil, config.Errf("pool.required", "%v", err)
	}
	maxSizes, err := parseRoleMap(cfg.MaxSizes)
	if err != nil {
		return nil, config.Errf("pool.max_sizes", "%v", err)
	}
	return &Builder{
		required:      required,
		maxSizes:      maxSizes,
		promote:       cfg.PromoteWhenMissing,
		rebalance:     cfg.RebalanceWhenExcess,
		minMarginKeep: cfg.MinMarginKeep,
		tryThirdBest:  cfg.TryThirdBest,
		strictMax:     cfg.StrictAssignMax,
		forbidCore:    cfg.ForbidCore,
		forbidMotion:  cfg.ForbidMotion,
	}, nil
}

func parseRoleMap(m map[string]int) (map[models.Role]int, error) {
	parsed := make(map[models.Role]int, len(m))
	for name, n := range m {
		role, err := models.ParseRole(name)
		if err != nil {
			return nil, err
		}
		parsed[role] = n
	}
	return parsed, nil
}

// Build allocates a batch into role pools. The input results are never
// mutated; reassigned samples appear in the outcome as new values with
// the new role. An empty batch yields empty pools and no violations.
func (b *Builder) Build(results []models.SampleResult) Outcome {
	if len(results) == 0 {
		return Outcome{}
	}
	if b.strictMax > 0 && len(results) <= b.strictMax {
		return b.buildStrict(results)
	}

	st := newBuildState(results)
	if b.promote {
		b.promoteMissing(st)
	}
	if b.rebalance {
		b.rebalanceExcess(st)
	}
	return b.finish(st)
}

// buildState tracks pool membership by batch index so moves stay cheap
// and the caller's slice is left untouched until the outcome is
// materialized.
type buildState struct {
	results []models.SampleResult
	role    []models.Role
	pools   [models.NumRoles][]int
}

func newBuildState(results []models.SampleResult) *buildState {
	st := &buildState{
		results: results,
		role:    make([]models.Role, len(results)),
	}
	for i, res := range results {
		st.role[i] = res.Role
		st.pools[res.Role] = append(st.pools[res.Role], i)
	}
	return st
}

func (st *buildState) final(i int, r models.Role) float64 {
	return st.results[i].Scores.Final[r]
}

func (st *buildState) move(i int, to models.Role) {
	from := st.role[i]
	pool := st.pools[from]
	for k, idx := range pool {
		if idx == i {
			st.pools[from] = append(pool[:k], pool[k+1:]...)
			break
		}
	}
	st.pools[to] = append(st.pools[to], i)
	st.role[i] = to
}

// promoteMissing fills required pools up to their minimums by pulling
// the strongest scorer for the missing role out of an unprotected
// pool. Pools of other required roles already at their minimum are
// protected from raiding.
func (b *Builder) promoteMissing(st *buildState) {
	for _, need := range models.AllRoles {
		min, ok := b.required[need]
		if !ok || min <= 0 {
			continue
		}
		for len(st.pools[need]) < min {
			if !b.promoteOne(st, need) {
				break
			}
		}
	}
}

func (b *Builder) promoteOne(st *buildState, need models.Role) bool {
	candidates := b.promotable(st, need)
	if len(candidates) == 0 {
		return false
	}
	pick := -1
	for _, i := range candidates {
		if !b.forbidden(st.results[i].Features, need) {
			pick = i
			break
		}
	}
	if pick < 0 {
		// Every candidate trips a forbid rule. An empty required pool
		// is worse than a marginal member, so take the best scorer.
		pick = candidates[0]
		log.Warn().
			Str("sample_id", st.results[pick].SampleID).
			Str("role", need.String()).
			Msg("All promotion candidates fail forbid rules, promoting best scorer anyway")
	}
	log.Debug().
		Str("sample_id", st.results[pick].SampleID).
		Str("from", st.role[pick].String()).
		Str("to", need.String()).
		Float64("score", st.final(pick, need)).
		Msg("Promoted sample into required pool")
	st.move(pick, need)
	return true
}

// promotable lists candidate indices for promotion into need, best
// final[need] first. Ties keep batch order.
func (b *Builder) promotable(st *buildState, need models.Role) []int {
	var candidates []int
	for i := range st.results {
		current := st.role[i]
		if current == need {
			continue
		}
		if min, ok := b.required[current]; ok && len(st.pools[current]) <= min {
			continue
		}
		candidates = append(candidates, i)
	}
	sort.SliceStable(candidates, func(a, c int) bool {
		return st.final(candidates[a], need) > st.final(candidates[c], need)
	})
	return candidates
}

// forbidden reports whether a sample's features disqualify it from
// being promoted into a role. Long flat tails make poor anchors and
// samples without high-end cannot keep time.
func (b *Builder) forbidden(f models.FeatureSnapshot, need models.Role) bool {
	switch need {
	case models.RoleCore:
		return b.forbidCore.Enabled &&
			f.DecayTime >= b.forbidCore.DecayMin &&
			f.SpectralFlatness >= b.forbidCore.FlatnessMin
	case models.RoleMotion:
		return b.forbidMotion.Enabled && f.HighRatio <= b.forbidMotion.HighMax
	default:
		return false
	}
}

// rebalanceExcess trims every pool over its capacity by moving its
// weakest members out, weakest first. A mover goes to its best
// alternative role that has capacity and sits within the keep margin,
// falling back to the texture pool, which has no cap on this path.
func (b *Builder) rebalanceExcess(st *buildState) {
	for _, r := range models.AllRoles {
		limit, ok := b.maxSizes[r]
		if !ok {
			continue
		}
		excess := len(st.pools[r]) - limit
		if excess <= 0 {
			continue
		}

		movers := append([]int(nil), st.pools[r]...)
		sort.SliceStable(movers, func(a, c int) bool {
			return st.final(movers[a], r) < st.final(movers[c], r)
		})
		movers = movers[:excess]

		for _, i := range movers {
			if min, ok := b.required[r]; ok && len(st.pools[r]) <= min {
				break
			}
			dest, found := b.alternative(st, i, r)
			if !found {
				if r == models.RoleTexture {
					continue
				}
				dest = models.RoleTexture
			}
			log.Debug().
				Str("sample_id", st.results[i].SampleID).
				Str("from", r.String()).
				Str("to", dest.String()).
				Msg("Rebalanced sample out of full pool")
			st.move(i, dest)
		}
	}
}

// alternative picks the relocation target for a sample leaving role r:
// the sample's best-ranked other role that has capacity and whose score
// trails final[r] by at most the keep margin. At most the top one or,
// when configured, top two alternatives are considered.
func (b *Builder) alternative(st *buildState, i int, r models.Role) (models.Role, bool) {
	limit := 1
	if b.tryThirdBest {
		limit = 2
	}
	tried := 0
	for _, alt := range st.results[i].Scores.Final.SortedDescending() {
		if alt == r {
			continue
		}
		tried++
		if tried > limit {
			break
		}
		if !b.hasCapacity(st, alt) {
			continue
		}
		if st.final(i, r)-st.final(i, alt) > b.minMarginKeep {
			continue
		}
		return alt, true
	}
	return models.RoleTexture, false
}

func (b *Builder) hasCapacity(st *buildState, r models.Role) bool {
	limit, ok := b.maxSizes[r]
	return !ok || len(st.pools[r]) < limit
}

func (b *Builder) finish(st *buildState) Outcome {
	var out Outcome
	for _, r := range models.AllRoles {
		for _, i := range st.pools[r] {
			out.Pools.Add(st.results[i].WithRole(r))
		}
	}

	reason := "no eligible sample to promote"
	switch {
	case !b.promote:
		reason = "promotion disabled"
	case len(st.results) < b.requiredTotal():
		reason = "batch smaller than required minimums"
	}
	out.Violations = b.auditMinimums(&out.Pools, reason)

	log.Debug().
		Int("samples", len(st.results)).
		Int("violations", len(out.Violations)).
		Msg("Pool build completed")
	return out
}

// buildStrict handles small batches by assigning exactly one best
// sample per role in priority order and dropping the rest. Three or
// fewer samples cover the rhythm section only; larger batches cover
// all five roles.
func (b *Builder) buildStrict(results []models.SampleResult) Outcome {
	targets := models.AllRoles[:]
	if len(results) <= 3 {
		targets = models.AllRoles[:3]
	}

	taken := make([]bool, len(results))
	var out Outcome
	for _, r := range targets {
		best := -1
		for i := range results {
			if taken[i] {
				continue
			}
			if best < 0 || results[i].Scores.Final[r] > results[best].Scores.Final[r] {
				best = i
			}
		}
		if best < 0 {
			break
		}
		taken[best] = true
		out.Pools.Add(results[best].WithRole(r))
	}
	for i := range results {
		if !taken[i] {
			out.Dropped = append(out.Dropped, results[i])
		}
	}
	out.Violations = b.auditMinimums(&out.Pools, "strict assignment places at most one sample per role")

	log.Debug().
		Int("samples", len(results)).
		Int("dropped", len(out.Dropped)).
		Msg("Strict assignment picked one sample per role")
	return out
}

func (b *Builder) auditMinimums(pools *models.RolePools, reason string) []models.ConstraintViolation {
	var violations []models.ConstraintViolation
	for _, r := range models.AllRoles {
		min, ok := b.required[r]
		if !ok || min <= 0 {
			continue
		}
		got := pools.Count(r)
		if got >= min {
			continue
		}
		v := models.ConstraintViolation{Role: r, Needed: min, Got: got, Reason: reason}
		violations = append(violations, v)
		log.Warn().
			Str("role", r.String()).
			Int("needed", min).
			Int("got", got).
			Str("reason", reason).
			Msg("Required pool below minimum")
	}
	return violations
}

func (b *Builder) requiredTotal() int {
	total := 0
	for _, min := range b.required {
		total += min
	}
	return total
}
