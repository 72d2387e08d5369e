// Package models contains domain models for kitforge.
package models

import "fmt"

// RolePools groups a batch's samples by their final role. Each pool
// keeps insertion order and a sample lives in at most one pool. A
// fresh RolePools is built per batch.
type RolePools struct {
	Pools [NumRoles][]SampleResult `json:"pools"`
}

// Add appends a sample to the pool matching its role.
func (p *RolePools) Add(s SampleResult) {
	p.Pools[s.Role] = append(p.Pools[s.Role], s)
}

// Samples returns the pool for one role in insertion order.
func (p *RolePools) Samples(r Role) []SampleResult {
	return p.Pools[r]
}

// Count returns the size of one pool.
func (p *RolePools) Count(r Role) int {
	return len(p.Pools[r])
}

// Total returns the number of pooled samples across all roles.
func (p *RolePools) Total() int {
	total := 0
	for r := range p.Pools {
		total += len(p.Pools[r])
	}
	return total
}

// Counts returns the per-role pool sizes keyed by role.
func (p *RolePools) Counts() map[Role]int {
	counts := make(map[Role]int, NumRoles)
	for _, r := range AllRoles {
		counts[r] = len(p.Pools[r])
	}
	return counts
}

// ConstraintViolation records a pool constraint the builder could not
// satisfy. Violations are reported alongside the pools, never fatal.
type ConstraintViolation struct {
	Role   Role   `json:"role"`
	Needed int    `json:"needed"`
	Got    int    `json:"got"`
	Reason string `json:"reason"`
}

func (v ConstraintViolation) String() string {
	return fmt.Sprintf("pool %s below minimum (%d < %d): %s", v.Role, v.Got, v.Needed, v.Reason)
}
