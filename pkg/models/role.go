// Package models contains domain models for kitforge.
package models

import (
	"fmt"
	"strings"
)

// Role identifies the musical function a sample plays inside a kit.
// The declaration order is the fixed priority order used whenever two
// roles are otherwise equal: earlier roles win ties.
type Role uint8

const (
	// RoleCore anchors the low end: kicks, toms, 808s.
	RoleCore Role = iota
	// RoleAccent marks the backbeat: snares, claps, rims.
	RoleAccent
	// RoleMotion keeps time in the highs: hats, shakers, rides.
	RoleMotion
	// RoleFill provides transitional one-shots: sweeps, rolls, stabs.
	RoleFill
	// RoleTexture absorbs atmospheric and sustained material.
	RoleTexture
)

// NumRoles is the size of the closed role set.
const NumRoles = 5

// AllRoles lists every role in priority order.
var AllRoles = [NumRoles]Role{RoleCore, RoleAccent, RoleMotion, RoleFill, RoleTexture}

var roleNames = [NumRoles]string{"CORE", "ACCENT", "MOTION", "FILL", "TEXTURE"}

// String returns the canonical upper-case role name.
func (r Role) String() string {
	if int(r) >= NumRoles {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

// Valid reports whether r is one of the five known roles.
func (r Role) Valid() bool {
	return int(r) < NumRoles
}

// ParseRole maps a role name to its Role. Matching is case-insensitive
// so YAML configs can use either "core" or "CORE".
func ParseRole(name string) (Role, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range roleNames {
		if n == upper {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// MarshalText implements encoding.TextMarshaler so roles serialize as
// their names in JSON and YAML documents.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid role %d", uint8(r))
	}
	return []byte(roleNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
