package domain

import "sort"

// AccessKind tags the variant held by a UnitAccess
type AccessKind int

const (
	AccessNone AccessKind = iota
	AccessAllUnits
	AccessUnits
)

// UnitAccess is the effective set of units a user may work with in one directorate.
// The zero value is NoAccess. AllUnits and an empty unit set are distinct values.
type UnitAccess struct {
	kind  AccessKind
	units map[string]struct{}
}

// NoAccess denies every unit and the directorate itself
func NoAccess() UnitAccess {
	return UnitAccess{kind: AccessNone}
}

// AllUnits permits every unit of the directorate
func AllUnits() UnitAccess {
	return UnitAccess{kind: AccessAllUnits}
}

// OnlyUnits permits exactly the given units; with no arguments it permits none
func OnlyUnits(units ...string) UnitAccess {
	set := make(map[string]struct{}, len(units))
	for _, u := range units {
		set[u] = struct{}{}
	}
	return UnitAccess{kind: AccessUnits, units: set}
}

// Kind returns the variant tag
func (a UnitAccess) Kind() AccessKind {
	return a.kind
}

// IsAll reports whether every unit is permitted
func (a UnitAccess) IsAll() bool {
	return a.kind == AccessAllUnits
}

// IsNone reports whether the user has no link at all
func (a UnitAccess) IsNone() bool {
	return a.kind == AccessNone
}

// HasLink reports whether the user has any directorate-level access
func (a UnitAccess) HasLink() bool {
	return a.kind != AccessNone
}

// Allows reports whether the named unit is permitted
func (a UnitAccess) Allows(unit string) bool {
	switch a.kind {
	case AccessAllUnits:
		return true
	case AccessUnits:
		_, ok := a.units[unit]
		return ok
	default:
		return false
	}
}

// Units returns the permitted units in sorted order.
// It returns nil for AllUnits and NoAccess; callers must check the kind first.
func (a UnitAccess) Units() []string {
	if a.kind != AccessUnits {
		return nil
	}
	out := make([]string, 0, len(a.units))
	for u := range a.units {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Filter returns the subset of candidates the access permits, preserving order
func (a UnitAccess) Filter(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if a.Allows(c) {
			out = append(out, c)
		}
	}
	return out
}

func (a UnitAccess) String() string {
	switch a.kind {
	case AccessAllUnits:
		return "all_units"
	case AccessUnits:
		return "units"
	default:
		return "no_access"
	}
}
