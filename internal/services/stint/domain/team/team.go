// Package team defines the grouping of hands a stint coordinates.
package team

// Team groups hands within a stint.
//
// EraID is derived: it changes only when every hand on the team reaches the
// same era, enforced by the variable store's era synchronization rule.
type Team struct {
	ID      string
	StintID string
	Name    string
	EraID   string
}

// Unanimous returns the era every member shares, if any. Members without an
// era block unanimity, as does an empty member list.
func Unanimous(eras []string) (string, bool) {
	if len(eras) == 0 {
		return "", false
	}
	first := eras[0]
	if first == "" {
		return "", false
	}
	for _, era := range eras[1:] {
		if era != first {
			return "", false
		}
	}
	return first, true
}
