package resolver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/store"
	"github.com/bpkgtools/bpkg/version"
	"github.com/bpkgtools/bpkg/workspace"
)

// collectDependencies walks bp's declared alternative groups (§4.6.1),
// selecting one alternative per group and recursing into its dependencies.
// It returns done=false (without error) when some group is still
// ambiguous and bp must remain postponed.
func (r *Resolver) collectDependencies(ctx context.Context, root *store.Configuration, rootType workspace.Type, bp *BuildPackage) (bool, error) {
	if bp.Available == nil {
		bp.RecursivelyCollected = true
		return true, nil
	}

	if bp.Selected == nil {
		if existing, err := r.loadExisting(ctx, bp.Key); err == nil && existing != nil {
			bp.Selected = existing
			r.applyExistingDecision(bp)
		}
	}

	if bp.AlternativeSelection == nil {
		bp.AlternativeSelection = make([]int, len(bp.Available.Dependencies))
	}

	allResolved := true
	for gi, group := range bp.Available.Dependencies {
		if bp.AlternativeSelection[gi] != 0 {
			continue // already settled this run
		}

		cfgID := bp.Key.ConfigurationID
		if group.BuildTime {
			candidates, err := r.graph.Candidates(ctx, root, rootType, true, "")
			if err != nil {
				return false, err
			}
			if len(candidates) > 0 {
				cfgID = candidates[0].ID
			}
		}

		alreadyUsed := func(name manifest.Name) bool {
			k := Key{ConfigurationID: cfgID, Name: name}.normalized()
			if _, ok := r.packages[k]; ok {
				return true
			}
			sp, _ := r.st.SelectedPackages(ctx, cfgID)
			for _, s := range sp {
				if s.Name.Equal(name) {
					return true
				}
			}
			return false
		}
		unacceptable := func(altIndex int) bool {
			return r.unacceptableAlternatives[unacceptableKey{key: bp.Key, version: bp.Available.Version.Format(), groupIndex: gi, altIndex: altIndex}]
		}
		satisfiable := func(deps []manifest.Dependency) bool {
			for _, d := range deps {
				c := d.Constraint
				if c == nil {
					c = version.Any
				}
				if existing, ok := r.packages[Key{ConfigurationID: cfgID, Name: d.Name}.normalized()]; ok {
					if existing.effectiveConstraint().Intersect(c) == version.None {
						return false
					}
					continue
				}
				cands, err := r.src.AvailablePackagesMatching(ctx, d.Name, c)
				if err != nil || len(cands) == 0 {
					return false
				}
			}
			return true
		}

		idx, ok, err := selectAlternative(bp.Skeleton, group, gi, alreadyUsed, unacceptable, satisfiable)
		if err != nil {
			return false, err
		}
		if !ok {
			allResolved = false
			continue
		}
		bp.AlternativeSelection[gi] = idx + 1
		alt := group.Alternatives[idx]

		if alt.HasConfigClause() {
			r.clusters.register(bp.Key, gi, idx, alt, cfgID, group.Alternatives)
			r.postponedDependencies[bp.Key] = true
			continue
		}

		for _, dep := range alt.Deps {
			if err := r.seedDependency(ctx, bp.Key.Name, cfgID, dep); err != nil {
				return false, err
			}
		}
	}

	if !allResolved {
		return false, nil
	}
	bp.RecursivelyCollected = true
	delete(r.postponedDependencies, bp.Key)
	return true, nil
}

// seedDependency ensures a BuildPackage exists for dep within
// configurationID, merging dep's constraint into the existing attribution
// list, and queues it for collection.
func (r *Resolver) seedDependency(ctx context.Context, dependentName manifest.Name, configurationID int64, dep manifest.Dependency) error {
	key := Key{ConfigurationID: configurationID, Name: dep.Name}.normalized()

	c := dep.Constraint
	if c == nil {
		c = version.Any
	}

	if existing, ok := r.packages[key]; ok {
		merged := existing.effectiveConstraint().Intersect(c)
		if merged == version.None {
			r.unsatisfiedDependents = append(r.unsatisfiedDependents, &Failure{
				Dependent: dependentName, Dependency: dep.Name, Constraint: c,
				Reason: "conflicts with an already-selected version",
			})
		}
		existing.Constraints = append(existing.Constraints, ConstraintEntry{Constraint: c, Dependent: dependentName})
		return nil
	}

	avail, fragID, err := r.bestAvailable(ctx, dep.Name, c)
	if err != nil {
		return errors.Wrapf(err, "resolver: collecting dependency %s of %s", dep.Name, dependentName)
	}

	bp := &BuildPackage{
		Key:        key,
		Action:     ActionBuild,
		Available:  avail,
		FragmentID: fragID,
	}
	bp.Constraints = append(bp.Constraints, ConstraintEntry{Constraint: c, Dependent: dependentName})
	if r.mkSkel != nil {
		bp.Skeleton = r.mkSkel(avail)
	}
	r.packages[key] = bp
	r.postponedPackages = append(r.postponedPackages, key)
	return nil
}

// loadExisting fetches bp's currently-configured selected-package row, if
// any, so its alternative selection and prerequisite history can inform
// §4.6.3's existing-dependent handling.
func (r *Resolver) loadExisting(ctx context.Context, key Key) (*store.SelectedPackage, error) {
	all, err := r.st.SelectedPackages(ctx, key.ConfigurationID)
	if err != nil {
		return nil, err
	}
	for _, sp := range all {
		if sp.Name.Equal(key.Name) {
			return sp, nil
		}
	}
	return nil, nil
}

// applyExistingDecision runs the §4.6.3 pre-reevaluate walk for bp's newly
// loaded existing selection and sets the matching build_package flags.
// Every prerequisite is treated as a potentially-changed dependency since,
// at this point in collection, the resolver cannot yet tell which ones
// actually moved versions; this errs toward the safer DecisionReevaluate
// outcome rather than silently under-reconfiguring a dependent.
func (r *Resolver) applyExistingDecision(bp *BuildPackage) {
	if bp.Selected.Version.Format() == bp.Available.Version.Format() {
		return
	}
	for _, pre := range bp.Selected.Prerequisites {
		decision, _, err := PreReevaluateExisting(bp.Skeleton, bp.Selected, bp.Available, pre.Name, nil)
		if err != nil {
			continue
		}
		switch decision {
		case DecisionRecollect:
			bp.Flags.Recollect = true
			bp.Flags.Reevaluate = true
		case DecisionReevaluate:
			bp.Flags.Reevaluate = true
		default:
			bp.Flags.Reconfigure = true
		}
	}
}

// effectiveConstraint intersects every attributed constraint recorded on
// bp so far.
func (bp *BuildPackage) effectiveConstraint() version.Constraint {
	c := version.Any
	for _, e := range bp.Constraints {
		if e.Constraint != nil {
			c = c.Intersect(e.Constraint)
		}
	}
	return c
}
