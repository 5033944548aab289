package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// RoleCode names a project role. Values are validated once when policy data is loaded.
type RoleCode string

const (
	RoleOrgAdmin       RoleCode = "ORG_ADMIN"
	RoleBusinessOwner  RoleCode = "Business Owner"
	RoleArchitect      RoleCode = "Architect"
	RoleQAOfficer      RoleCode = "QA Officer"
	RoleReleaseManager RoleCode = "Release Manager"
	RoleSME            RoleCode = "SME"
	RoleAuditor        RoleCode = "Auditor"
)

const maxRoleCodeLen = 64

// ErrInvalidRoleCode is returned for empty, wildcard or otherwise malformed role codes
var ErrInvalidRoleCode = errors.New("invalid role code")

// KnownRoles lists the built-in role vocabulary
func KnownRoles() []RoleCode {
	return []RoleCode{
		RoleOrgAdmin,
		RoleBusinessOwner,
		RoleArchitect,
		RoleQAOfficer,
		RoleReleaseManager,
		RoleSME,
		RoleAuditor,
	}
}

// ParseRoleCode trims and validates a raw role string.
// Wildcards are rejected rather than expanded.
func ParseRoleCode(raw string) (RoleCode, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoleCode)
	}
	if len(s) > maxRoleCodeLen {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidRoleCode, s, maxRoleCodeLen)
	}
	for _, r := range s {
		if r == '*' || r == '?' {
			return "", fmt.Errorf("%w: %q contains a wildcard", ErrInvalidRoleCode, s)
		}
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %q contains control characters", ErrInvalidRoleCode, s)
		}
	}
	return RoleCode(s), nil
}

// String returns the string representation of the role code
func (r RoleCode) String() string {
	return string(r)
}

// IsValid reports whether the code would survive ParseRoleCode unchanged
func (r RoleCode) IsValid() bool {
	parsed, err := ParseRoleCode(string(r))
	return err == nil && parsed == r
}

// UnmarshalText validates role codes decoded from JSON policy documents
func (r *RoleCode) UnmarshalText(text []byte) error {
	parsed, err := ParseRoleCode(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleSet is an immutable set of validated role codes
type RoleSet map[RoleCode]struct{}

// NewRoleSet builds a set from already validated codes
func NewRoleSet(roles ...RoleCode) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// ParseRoleSet validates every raw entry and fails on the first malformed one
func ParseRoleSet(raw []string) (RoleSet, error) {
	set := make(RoleSet, len(raw))
	for _, s := range raw {
		r, err := ParseRoleCode(s)
		if err != nil {
			return nil, err
		}
		set[r] = struct{}{}
	}
	return set, nil
}

// Has reports whether the set contains the role
func (s RoleSet) Has(r RoleCode) bool {
	_, ok := s[r]
	return ok
}

// HasAny reports whether the set shares at least one role with other
func (s RoleSet) HasAny(other []RoleCode) bool {
	for _, r := range other {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Sorted returns the roles in lexical order
func (s RoleSet) Sorted() []RoleCode {
	out := make([]RoleCode, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actor is the caller of a lifecycle command as resolved by the identity collaborator
type Actor struct {
	ID    string
	Roles RoleSet
}

// SystemActorID identifies commands issued by background workers
const SystemActorID = "system"

// SystemActor returns the actor used for retention archival
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Roles: NewRoleSet(RoleOrgAdmin)}
}

// HasRole reports whether the actor carries the role
func (a Actor) HasRole(r RoleCode) bool {
	return a.Roles.Has(r)
}
