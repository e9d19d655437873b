package deployment

import "github.com/samber/lo"

// Drift lists context roots that differ between two observations of a container.
type Drift struct {
	Added   []ContextRoot
	Removed []ContextRoot
	// Changed roots are deployed in both with different content.
	Changed []ContextRoot
}

// Empty reports whether both observations matched.
func (d Drift) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare reports how current differs from before, keyed by context root.
// Roots keep the order of the list they come from.
func Compare(before, current []DeployedUnit) Drift {
	byRoot := func(unit DeployedUnit) (ContextRoot, DeployedUnit) {
		return unit.ContextRoot, unit
	}

	var (
		previous = lo.Associate(before, byRoot)
		now      = lo.Associate(current, byRoot)
		result   Drift
	)

	for _, unit := range current {
		old, ok := previous[unit.ContextRoot]

		switch {
		case !ok:
			result.Added = append(result.Added, unit.ContextRoot)
		case !old.Checksum.Equal(unit.Checksum):
			result.Changed = append(result.Changed, unit.ContextRoot)
		}
	}

	for _, unit := range before {
		if _, ok := now[unit.ContextRoot]; !ok {
			result.Removed = append(result.Removed, unit.ContextRoot)
		}
	}

	return result
}
