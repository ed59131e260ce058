package resolver

import (
	"context"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/store"
	"github.com/bpkgtools/bpkg/version"
	"github.com/bpkgtools/bpkg/workspace"
)

// maxRepairAttempts bounds the recursion depth of the repair search
// (§4.6.4); every adjustment tried is also recorded in the tried set, so
// the search visits each state at most once.
const maxRepairAttempts = 256

// repair implements the §4.6.4 repair search: given at least one
// unsatisfied dependent, try to find a version of the offending
// dependency that satisfies every imposed constraint, or relax one of the
// imposing dependents to a version that drops/loosens its constraint.
// Returns repaired=true if it recorded replaced-version entries and the
// caller should restart the whole resolve.
func (r *Resolver) repair(ctx context.Context, root *store.Configuration, rootType workspace.Type, actions []UserAction) (bool, error) {
	if len(r.unsatisfiedDependents) == 0 {
		return false, nil
	}
	offending := r.unsatisfiedDependents[0]

	tried := map[string]bool{}
	return r.repairOne(ctx, offending, tried, 0)
}

// repairOne attempts to resolve one unsatisfied (dependency, constraint)
// pair, recursing into a dependent replacement if a direct version repair
// is unavailable, bounded by depth and the tried-adjustments set.
func (r *Resolver) repairOne(ctx context.Context, f *Failure, tried map[string]bool, depth int) (bool, error) {
	if depth > maxRepairAttempts {
		return false, nil
	}

	// Intersect every live constraint on this dependency across the
	// current build_packages map.
	var depBP *BuildPackage
	for _, bp := range r.packages {
		if bp.Key.Name.Equal(f.Dependency) {
			depBP = bp
		}
	}
	intersection := version.Any
	if depBP != nil {
		intersection = depBP.effectiveConstraint()
	}

	marker := string(f.Dependent) + "|" + string(f.Dependency) + "|" + intersection.String()
	if tried[marker] {
		return false, nil
	}
	tried[marker] = true

	candidates, err := r.src.AvailablePackagesMatching(ctx, f.Dependency, intersection)
	if err != nil {
		return false, err
	}
	if len(candidates) > 0 {
		// A candidate exists satisfying every live constraint: pin it via
		// a synthetic replaced-version entry and signal the caller to
		// restart the resolve with it in force.
		for k := range r.packages {
			if k.Name.Equal(f.Dependency) {
				r.replacedVersions[k] = true
			}
		}
		return true, nil
	}
	if depBP == nil {
		return false, nil
	}

	// No version satisfies the intersection: the second lever is relaxing
	// one of the dependents that attributed a constraint to depBP. For
	// each such dependent, see whether some other version of it declares
	// a looser (or entirely absent) constraint on f.Dependency; if
	// intersecting the remaining attributions with that looser
	// constraint admits a candidate, replacing the dependent repairs the
	// conflict. If no single replacement repairs it directly, recurse
	// into whatever constrains the dependent itself, so a chain of
	// replacements can be explored, bounded throughout by tried/depth.
	attributedBy := map[string]bool{}
	for _, c := range depBP.Constraints {
		if c.Dependent != "" {
			attributedBy[c.Dependent.Key()] = true
		}
	}

	for dependentKeyName := range attributedBy {
		dependentKey := Key{ConfigurationID: depBP.Key.ConfigurationID, Name: manifest.Name(dependentKeyName)}.normalized()
		dependentBP, ok := r.packages[dependentKey]
		if !ok || dependentBP.Available == nil {
			continue
		}

		residual := version.Any
		for _, c := range depBP.Constraints {
			if c.Dependent.Key() == dependentKeyName {
				continue
			}
			if c.Constraint != nil {
				residual = residual.Intersect(c.Constraint)
			}
		}

		altVersions, err := r.src.AvailablePackagesMatching(ctx, dependentBP.Key.Name, dependentBP.effectiveConstraint())
		if err != nil {
			return false, err
		}

		for _, alt := range altVersions {
			if alt.Version.Format() == dependentBP.Available.Version.Format() {
				continue
			}
			adjMarker := "adjust|" + dependentKeyName + "|" + alt.Version.Format() + "|" + string(f.Dependency)
			if tried[adjMarker] {
				continue
			}
			tried[adjMarker] = true

			combined := residual.Intersect(declaredConstraintOn(alt, f.Dependency))
			repaired, err := r.src.AvailablePackagesMatching(ctx, f.Dependency, combined)
			if err != nil {
				return false, err
			}
			if len(repaired) > 0 {
				r.replacedVersions[dependentBP.Key] = true
				r.replacedVersions[depBP.Key] = true
				return true, nil
			}

			// This candidate still doesn't relax things enough on its
			// own: recurse into whoever constrains the dependent, in
			// case adjusting them in turn frees it up.
			for _, dc := range dependentBP.Constraints {
				if dc.Dependent == "" {
					continue
				}
				sub := &Failure{
					Dependent:  dc.Dependent,
					Dependency: dependentBP.Key.Name,
					Constraint: dc.Constraint,
					Reason:     "blocks a replacement that would repair " + string(f.Dependency),
				}
				if ok, err := r.repairOne(ctx, sub, tried, depth+1); err != nil {
					return false, err
				} else if ok {
					return true, nil
				}
			}
		}
	}

	return false, nil
}

// declaredConstraintOn intersects every constraint avail's own declared
// dependency groups place on name across all alternatives; a version of
// avail that doesn't depend on name at all returns version.Any, i.e. the
// constraint is fully dropped in that version.
func declaredConstraintOn(avail *manifest.AvailablePackage, name manifest.Name) version.Constraint {
	c := version.Any
	for _, group := range avail.Dependencies {
		for _, alt := range group.Alternatives {
			for _, d := range alt.Deps {
				if !d.Name.Equal(name) {
					continue
				}
				dc := d.Constraint
				if dc == nil {
					dc = version.Any
				}
				c = c.Intersect(dc)
			}
		}
	}
	return c
}
