package sheet

import (
	"sort"
	"strings"
)

// Role is the semantic meaning of a column.
type Role string

const (
	RoleDate        Role = "date"
	RoleVehicles    Role = "vehicle-list"
	RoleClient      Role = "client"
	RoleAlertType   Role = "alert-type"
	RoleRaised      Role = "raised-timestamp"
	RoleResolved    Role = "resolved-timestamp"
	RoleDescription Role = "issue-description"
)

// Matchers maps each role to the header substring that identifies it.
type Matchers map[Role]string

// Column is a resolved column position. The zero value is an absent column.
type Column struct {
	index int
	found bool
}

// Found reports whether a header matched the role.
func (c Column) Found() bool { return c.found }

// Index returns the zero-based position, or -1 when absent.
func (c Column) Index() int {
	if !c.found {
		return -1
	}
	return c.index
}

// Value reads the column from row; absent columns always read as "".
func (c Column) Value(row Row) string {
	if !c.found {
		return ""
	}
	return row.Cell(c.index)
}

// Columns holds the resolved column per role for one table.
type Columns map[Role]Column

// Get returns the column for role, absent if it was never resolved.
func (c Columns) Get(role Role) Column {
	return c[role]
}

// Missing lists the roles that did not match any header.
func (c Columns) Missing(m Matchers) []Role {
	var missing []Role
	for role := range m {
		if !c[role].found {
			missing = append(missing, role)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// Resolve finds, per role, the first header (left to right) whose lower-cased
// text contains the role's substring. Roles are matched independently, so a
// single header may satisfy several of them.
func Resolve(header []string, m Matchers) Columns {
	lowered := make([]string, len(header))
	for i, h := range header {
		lowered[i] = strings.ToLower(h)
	}

	cols := make(Columns, len(m))
	for role, needle := range m {
		needle = strings.ToLower(needle)
		col := Column{index: -1}
		for i, h := range lowered {
			if strings.Contains(h, needle) {
				col = Column{index: i, found: true}
				break
			}
		}
		cols[role] = col
	}
	return cols
}

// DefaultMatchers returns the header substrings the tracking sheets use.
func DefaultMatchers(kind Kind) Matchers {
	switch kind {
	case KindMisalignment:
		return Matchers{
			RoleDate:     "date",
			RoleVehicles: "vehicle",
			RoleClient:   "client",
		}
	case KindAlerts:
		return Matchers{
			RoleDate:      "date",
			RoleAlertType: "alert type",
			RoleClient:    "client",
		}
	case KindIssues:
		return Matchers{
			RoleRaised:      "timestamp issues raised",
			RoleResolved:    "timestamp issues resolved",
			RoleDescription: "issue",
			RoleClient:      "client",
		}
	default:
		return Matchers{}
	}
}

// ContainsAny reports whether text contains any of the keywords.
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
