package resolver

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/skeleton"
	"github.com/bpkgtools/bpkg/store"
	"github.com/bpkgtools/bpkg/version"
	"github.com/bpkgtools/bpkg/workspace"
)

// seedUserAction turns one UserAction into (or updates) a BuildPackage
// entry and queues it for recursive collection.
func (r *Resolver) seedUserAction(ctx context.Context, root *store.Configuration, rootType workspace.Type, ua UserAction) error {
	cfgID := ua.ConfigurationID
	if cfgID == 0 {
		cfgID = root.ID
	}
	key := Key{ConfigurationID: cfgID, Name: ua.Name}.normalized()

	switch ua.Kind {
	case ActionDrop:
		r.packages[key] = &BuildPackage{Key: key, Action: ActionDrop}
		return nil
	case ActionAdjust:
		bp, ok := r.packages[key]
		if !ok {
			return errors.Errorf("resolver: adjust requested for %s but it is not selected", ua.Name)
		}
		bp.Flags.Reconfigure = true
		return nil
	}

	var c version.Constraint = version.Any
	if ua.RepositoryConstraint != nil {
		c = ua.RepositoryConstraint
	}

	avail, fragID, err := r.bestAvailable(ctx, ua.Name, c)
	if err != nil {
		return err
	}

	bp := &BuildPackage{
		Key:        key,
		Action:     ActionBuild,
		Available:  avail,
		FragmentID: fragID,
	}
	bp.Holds.Package = ua.Hold.Package
	bp.Holds.Version = ua.Hold.Version
	bp.Constraints = append(bp.Constraints, ConstraintEntry{Constraint: c, Dependent: "", IsExisting: false})
	if r.mkSkel != nil {
		bp.Skeleton = r.mkSkel(avail)
		_, _, _ = bp.Skeleton.CollectConfig()
	}

	r.packages[key] = bp
	r.postponedPackages = append(r.postponedPackages, key)
	return nil
}

// bestAvailable picks the highest version of name satisfying c, honoring
// unacceptable-alternative/replaced-version restarts by excluding versions
// already rejected this resolve (§4.6.1 "when selecting among candidate
// versions... the highest version satisfying the intersection of all live
// constraints wins").
func (r *Resolver) bestAvailable(ctx context.Context, name manifest.Name, c version.Constraint) (*manifest.AvailablePackage, int64, error) {
	candidates, err := r.src.AvailablePackagesMatching(ctx, name, c)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "resolver: looking up %s", name)
	}
	if len(candidates) == 0 {
		return nil, 0, errors.Errorf("resolver: no available version of %s satisfies %s", name, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return version.Compare(candidates[i].Version, candidates[j].Version, version.Default) > 0
	})
	best := candidates[0]
	fragID, err := r.src.FragmentIDFor(ctx, best)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "resolver: resolving fragment for %s/%s", best.Name, best.Version)
	}
	return best, fragID, nil
}

// selectAlternative implements §4.6.1: for each declared alternative
// group, evaluate enable expressions and pick a winner, or report
// ambiguity by returning ok=false with no error (the caller postpones).
//
// alreadyUsed reports whether a dependency name is present in the
// collection map, already selected in a workspace, or explicitly
// requested. satisfiable reports whether some available version could
// plausibly satisfy a whole alternative's dependency set (e.g. a matching
// repository candidate exists), independent of whether it has been
// "used" yet.
func selectAlternative(sk *skeleton.Skeleton, group manifest.AlternativeGroup, groupIndex int, alreadyUsed func(manifest.Name) bool, unacceptable func(altIndex int) bool, satisfiable func(deps []manifest.Dependency) bool) (idx int, ok bool, err error) {
	type candidate struct {
		index       int
		alt         manifest.Alternative
		usedScore   int
		satisfiable bool
	}
	var enabled []candidate

	for i, alt := range group.Alternatives {
		if unacceptable(i) {
			continue
		}
		pos := skeleton.Position{}
		on, evalErr := sk.EvaluateEnable(alt.Enable, pos)
		if evalErr != nil {
			return 0, false, evalErr
		}
		if !on {
			continue
		}
		score := 0
		for _, d := range alt.Deps {
			if alreadyUsed(d.Name) {
				score++
			}
		}
		enabled = append(enabled, candidate{index: i, alt: alt, usedScore: score, satisfiable: satisfiable(alt.Deps)})
	}

	if len(enabled) == 0 {
		return 0, false, errors.New("resolver: no enabled alternative in dependency group")
	}

	// Prefer an alternative all of whose dependencies are already used.
	for _, c := range enabled {
		if c.usedScore == len(c.alt.Deps) {
			return c.index, true, nil
		}
	}

	// Otherwise the first enabled alternative whose dependencies are all
	// satisfiable (lower index preferred; `enabled` is already in
	// ascending index order).
	for _, c := range enabled {
		if c.satisfiable {
			return c.index, true, nil
		}
	}

	// No candidate is known-satisfiable yet: ambiguous, so the package
	// must be postponed.
	return 0, false, nil
}
