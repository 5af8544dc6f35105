package authz

// RoleTable is a data-driven equivalence-class table for in-application
// roles. Sufficiency is exact match plus declared equivalences; there is no
// implicit hierarchy, so "admin" never matches anything but itself unless an
// equivalence says otherwise.
type RoleTable struct {
	equivalences map[string]map[string]bool
}

// DefaultEquivalences reflects the platform's shipped policy: operations and
// manager staff are interchangeable for route requirements, admin stands
// alone.
func DefaultEquivalences() map[string][]string {
	return map[string][]string{
		"manager":    {"operations"},
		"operations": {"manager"},
	}
}

// NewRoleTable builds a table from required-role to the set of other roles
// accepted in its place. The mapping is directional; callers wanting
// symmetry declare both directions.
func NewRoleTable(equivalences map[string][]string) *RoleTable {
	t := &RoleTable{equivalences: make(map[string]map[string]bool, len(equivalences))}
	for required, accepted := range equivalences {
		set := make(map[string]bool, len(accepted))
		for _, role := range accepted {
			set[role] = true
		}
		t.equivalences[required] = set
	}
	return t
}

// NewDefaultRoleTable returns the table with the shipped equivalences.
func NewDefaultRoleTable() *RoleTable {
	return NewRoleTable(DefaultEquivalences())
}

// Sufficient reports whether effective satisfies required.
func (t *RoleTable) Sufficient(effective, required string) bool {
	if required == "" || effective == required {
		return true
	}
	return t.equivalences[required][effective]
}
