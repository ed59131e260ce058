// Package planner implements §4.7: turning the resolver's collection map
// into a linear, dependency-consistent sequence of per-package operations.
package planner

import (
	"fmt"
	"sort"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/resolver"
)

// StepKind is one planned operation on a single package (§4.8 handler
// kinds, minus the purely executor-internal ones planner doesn't emit
// directly).
type StepKind string

const (
	StepBuild       StepKind = "build"
	StepReconfigure StepKind = "reconfigure"
	StepDrop        StepKind = "drop"
)

// Step is one entry in the planned sequence.
type Step struct {
	Kind    StepKind
	Package *resolver.BuildPackage

	// TriggeredBy names the prerequisite reported as the trigger of this
	// step when Kind is StepReconfigure (see triggeringPrerequisite).
	TriggeredBy string
}

// CycleError reports a cycle detected in the new prerequisite graph
// (§4.7, §7 "Dependency cycle in new graph — fatal").
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("planner: dependency cycle detected: %v", e.Cycle)
}

// Order linearizes built into a plan: builds, adjusts and reconfigure-only
// actions in one topological order (a package's prerequisites precede it),
// and drops last, in reverse dependency order (§4.7). A reconfigure-only
// step is placed after its prerequisites but not necessarily immediately
// after the one that triggered it.
func Order(built []*resolver.BuildPackage) ([]Step, error) {
	byKey := make(map[resolver.Key]*resolver.BuildPackage, len(built))
	for _, bp := range built {
		byKey[bp.Key] = bp
	}

	var drops, rest []*resolver.BuildPackage
	for _, bp := range built {
		if bp.Action == resolver.ActionDrop {
			drops = append(drops, bp)
		} else {
			rest = append(rest, bp)
		}
	}

	sortByName(rest)
	sortByName(drops)

	ordered, err := topoSort(rest, byKey)
	if err != nil {
		return nil, err
	}

	var steps []Step
	for _, bp := range ordered {
		kind := StepBuild
		if bp.Flags.Reconfigure && !bp.Flags.Reevaluate && !bp.Flags.Recollect {
			kind = StepReconfigure
		}
		step := Step{Kind: kind, Package: bp}
		if kind == StepReconfigure {
			step.TriggeredBy = triggeringPrerequisite(bp)
		}
		steps = append(steps, step)
	}

	// Drops run in reverse dependency order: a package is dropped only
	// after everything that (still) depends on it.
	dropOrder, err := topoSort(drops, byKey)
	if err != nil {
		return nil, err
	}
	for i := len(dropOrder) - 1; i >= 0; i-- {
		steps = append(steps, Step{Kind: StepDrop, Package: dropOrder[i]})
	}

	return steps, nil
}

func sortByName(bps []*resolver.BuildPackage) {
	sort.Slice(bps, func(i, j int) bool { return bps[i].Key.Name.Key() < bps[j].Key.Name.Key() })
}

// topoSort orders pkgs so that every prerequisite returned by
// newPrerequisites (its *new* prerequisite set, taken from the chosen
// alternatives) precedes that package, detecting cycles.
func topoSort(pkgs []*resolver.BuildPackage, byKey map[resolver.Key]*resolver.BuildPackage) ([]*resolver.BuildPackage, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[resolver.Key]int, len(pkgs))
	var order []*resolver.BuildPackage
	var path []string

	var visit func(bp *resolver.BuildPackage) error
	visit = func(bp *resolver.BuildPackage) error {
		switch color[bp.Key] {
		case black:
			return nil
		case gray:
			return &CycleError{Cycle: append(append([]string(nil), path...), string(bp.Key.Name))}
		}
		color[bp.Key] = gray
		path = append(path, string(bp.Key.Name))

		for _, dep := range newPrerequisites(bp) {
			depBP, ok := byKey[dep]
			if !ok {
				continue // prerequisite outside this plan (already configured elsewhere)
			}
			if err := visit(depBP); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		color[bp.Key] = black
		order = append(order, bp)
		return nil
	}

	for _, bp := range pkgs {
		if color[bp.Key] == white {
			if err := visit(bp); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// newPrerequisites extracts the prerequisite keys implied by the
// alternative the resolver actually chose for each of bp's declared
// dependency groups (bp.AlternativeSelection, 1-based per group, mirroring
// the selection loop in resolver/collect.go), not the union of every
// declared alternative. A group left at 0 (never settled, e.g. a build
// that failed before reaching it) contributes no edge.
func newPrerequisites(bp *resolver.BuildPackage) []resolver.Key {
	seen := map[string]bool{}
	var out []resolver.Key
	if bp.Available == nil {
		return out
	}
	for gi, group := range bp.Available.Dependencies {
		if gi >= len(bp.AlternativeSelection) {
			break
		}
		selected := bp.AlternativeSelection[gi]
		if selected == 0 || selected-1 >= len(group.Alternatives) {
			continue
		}
		for _, d := range group.Alternatives[selected-1].Deps {
			key := d.Name.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, resolver.Key{ConfigurationID: bp.Key.ConfigurationID, Name: manifest.Name(key)})
		}
	}
	return out
}

// triggeringPrerequisite names the first dependency of the chosen
// alternative in bp's first settled group, standing in for "the prerequisite that
// triggered" a reconfigure when the resolver did not record a more
// specific one.
func triggeringPrerequisite(bp *resolver.BuildPackage) string {
	if bp.Available == nil {
		return ""
	}
	for gi, group := range bp.Available.Dependencies {
		if gi >= len(bp.AlternativeSelection) {
			break
		}
		selected := bp.AlternativeSelection[gi]
		if selected == 0 || selected-1 >= len(group.Alternatives) {
			continue
		}
		if deps := group.Alternatives[selected-1].Deps; len(deps) > 0 {
			return string(deps[0].Name)
		}
	}
	return ""
}
