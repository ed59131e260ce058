package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/resolver"
	"github.com/bpkgtools/bpkg/version"
)

func mustVersion(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.ParseVersion(s)
	require.NoError(t, err)
	return v
}

// buildPkg declares each dep in its own single-alternative group, selected
// (AlternativeSelection = 1, mirroring resolver/collect.go's 1-based,
// idx+1 convention) as if the resolver had already chosen it.
func buildPkg(t *testing.T, name string, deps ...string) *resolver.BuildPackage {
	var groups []manifest.AlternativeGroup
	var selection []int
	for _, d := range deps {
		groups = append(groups, manifest.AlternativeGroup{
			Alternatives: []manifest.Alternative{{Deps: []manifest.Dependency{{Name: manifest.Name(d)}}}},
		})
		selection = append(selection, 1)
	}
	return &resolver.BuildPackage{
		Key:    resolver.Key{Name: manifest.Name(name)},
		Action: resolver.ActionBuild,
		Available: &manifest.AvailablePackage{
			Name:         manifest.Name(name),
			Version:      mustVersion(t, "1.0.0"),
			Dependencies: groups,
		},
		AlternativeSelection: selection,
	}
}

// buildPkgWithAlternatives declares a single dependency group carrying
// every name in alts as a distinct, separately-enabled alternative, with
// only the alternative at the 0-based chosen index actually selected — the
// rest are declared-but-not-picked, per spec.md §4.6.1 scenario 3.
func buildPkgWithAlternatives(t *testing.T, name string, chosen int, alts ...string) *resolver.BuildPackage {
	var alternatives []manifest.Alternative
	for _, a := range alts {
		alternatives = append(alternatives, manifest.Alternative{
			Deps: []manifest.Dependency{{Name: manifest.Name(a)}},
		})
	}
	return &resolver.BuildPackage{
		Key:    resolver.Key{Name: manifest.Name(name)},
		Action: resolver.ActionBuild,
		Available: &manifest.AvailablePackage{
			Name:         manifest.Name(name),
			Version:      mustVersion(t, "1.0.0"),
			Dependencies: []manifest.AlternativeGroup{{Alternatives: alternatives}},
		},
		AlternativeSelection: []int{chosen + 1},
	}
}

func TestOrderPutsPrerequisitesFirst(t *testing.T) {
	libshared := buildPkg(t, "libshared")
	libclient := buildPkg(t, "libclient", "libshared")

	steps, err := Order([]*resolver.BuildPackage{libclient, libshared})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "libshared", string(steps[0].Package.Key.Name))
	require.Equal(t, "libclient", string(steps[1].Package.Key.Name))
}

func TestOrderDetectsCycle(t *testing.T) {
	a := buildPkg(t, "liba", "libb")
	b := buildPkg(t, "libb", "liba")

	_, err := Order([]*resolver.BuildPackage{a, b})
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestOrderPlacesDropsLastInReverseDependencyOrder(t *testing.T) {
	libshared := buildPkg(t, "libshared")
	libclient := buildPkg(t, "libclient", "libshared")
	libclient.Action = resolver.ActionDrop
	libshared.Action = resolver.ActionDrop

	steps, err := Order([]*resolver.BuildPackage{libclient, libshared})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, StepDrop, steps[0].Kind)
	require.Equal(t, StepDrop, steps[1].Kind)
	// libclient depends on libshared, so libclient (the dependent) must be
	// dropped first.
	require.Equal(t, "libclient", string(steps[0].Package.Key.Name))
	require.Equal(t, "libshared", string(steps[1].Package.Key.Name))
}

func TestOrderIgnoresUnchosenAlternatives(t *testing.T) {
	// libshared is never built: only libopenssl is a prerequisite, since
	// libclient's dependency group chose alternative index 1 (libopenssl)
	// over index 0 (libshared). A buggy newPrerequisites that unions every
	// declared alternative would fabricate an edge to libshared too.
	libopenssl := buildPkg(t, "libopenssl")
	libclient := buildPkgWithAlternatives(t, "libclient", 1, "libshared", "libopenssl")

	steps, err := Order([]*resolver.BuildPackage{libclient, libopenssl})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "libopenssl", string(steps[0].Package.Key.Name))
	require.Equal(t, "libclient", string(steps[1].Package.Key.Name))
}

func TestOrderDoesNotFabricateCycleFromUnchosenAlternative(t *testing.T) {
	// liba's group declares two alternatives: index 0 depends on libb
	// (which itself depends on liba, a cycle), but the resolver actually
	// chose index 1, which has no dependencies at all. The real
	// (chosen-only) graph is acyclic; a buggy newPrerequisites that unions
	// every declared alternative would manufacture a CycleError here.
	liba := buildPkgWithAlternatives(t, "liba", 1, "libb")
	liba.Available.Dependencies[0].Alternatives = append(liba.Available.Dependencies[0].Alternatives, manifest.Alternative{})
	liba.AlternativeSelection = []int{2}
	libb := buildPkg(t, "libb", "liba")

	steps, err := Order([]*resolver.BuildPackage{liba, libb})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "liba", string(steps[0].Package.Key.Name))
	require.Equal(t, "libb", string(steps[1].Package.Key.Name))
}

func TestOrderMarksReconfigureOnlyStep(t *testing.T) {
	libshared := buildPkg(t, "libshared")
	libshared.Flags.Reconfigure = true

	steps, err := Order([]*resolver.BuildPackage{libshared})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, StepReconfigure, steps[0].Kind)
}
