// Package resolver implements the resolver core described in §4.6: given a
// set of user actions and the current workspace cluster state, it produces
// a dependency-consistent set of intended package actions, or a structured
// failure.
//
// This is deliberately the largest and least forgiving package in the
// module; the algorithm is staged exactly as the specification lays it
// out: dependency-alternative selection (§4.6.1), configuration-cluster
// negotiation (§4.6.2), existing-dependent handling (§4.6.3), and the
// restart/repair loop (§4.6.4) that ties the first three together.
package resolver

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/skeleton"
	"github.com/bpkgtools/bpkg/store"
	"github.com/bpkgtools/bpkg/version"
	"github.com/bpkgtools/bpkg/workspace"
)

// ActionKind is the kind of intended action recorded on a BuildPackage.
type ActionKind string

const (
	ActionBuild ActionKind = "build"
	ActionDrop  ActionKind = "drop"
	ActionAdjust ActionKind = "adjust"
)

// Flags is the build_package flags bitfield (§4.6).
type Flags struct {
	Unhold      bool
	Reconfigure bool
	Repoint     bool
	Reevaluate  bool
	Recollect   bool
	Replace     bool
}

// ConstraintEntry is one imposed constraint plus the dependent that imposed
// it (§4.6 "constraints list with attribution").
type ConstraintEntry struct {
	Constraint  version.Constraint
	Dependent   manifest.Name
	IsExisting  bool
}

// Key identifies a build_package within one workspace cluster.
type Key struct {
	ConfigurationID int64
	Name            manifest.Name
}

func (k Key) normalized() Key { return Key{ConfigurationID: k.ConfigurationID, Name: manifest.Name(k.Name.Key())} }

// BuildPackage is the intended-action record described in §4.6.
type BuildPackage struct {
	Key Key

	Action ActionKind

	Selected  *store.SelectedPackage
	Available *manifest.AvailablePackage

	FragmentID int64

	Holds struct {
		Package bool
		Version bool
	}

	Constraints []ConstraintEntry

	System bool
	Flags  Flags

	// RecursivelyCollected marks that this package's own dependencies
	// have already been walked this run.
	RecursivelyCollected bool

	// AlternativeSelection mirrors store.SelectedPackage.AlternativeSelection
	// but is mutable while collection is underway.
	AlternativeSelection []int

	Skeleton *skeleton.Skeleton
}

// UserAction is one input action requested by the caller (§4.6 Input).
type UserAction struct {
	Kind   ActionKind
	Name   manifest.Name

	Hold struct {
		Package bool
		Version bool
	}
	ConfigOverrides map[string]string

	// Source identifies where to get the package from: at most one of
	// these is set.
	ArchivePath       string
	Directory         string
	RepositoryConstraint version.Constraint

	ConfigurationID int64
}

// Failure is the structured failure result (§4.6 Output, §4.6.4 "fail with
// the first recorded unsatisfied dependent").
type Failure struct {
	Dependent  manifest.Name
	Dependency manifest.Name
	Constraint version.Constraint
	Reason     string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("resolver: %s's constraint %s on %s could not be satisfied: %s",
		f.Dependent, f.Constraint, f.Dependency, f.Reason)
}

// restartSignal is the internal typed "restart" control-flow error of
// §4.6.4: when raised, Resolve's outer loop retries from scratch with
// accumulated state (replacedVersions, unacceptableAlternatives,
// postponedDependencies) preserved.
type restartSignal struct {
	reason string
}

func (r *restartSignal) Error() string { return "resolver: restart: " + r.reason }

// maxRestarts bounds the restart loop so a logic error degrades into a
// reported failure instead of an infinite loop; a real negotiation settles
// in a small number of rounds because every restart either consumes an
// unacceptable-alternative entry or a replaced-version entry, both of
// which are finite per package.
const maxRestarts = 1000

// Source abstracts repository/available-package lookup so the resolver
// does not depend on the network or VCS layers directly.
type Source interface {
	AvailablePackagesMatching(ctx context.Context, name manifest.Name, c version.Constraint) ([]*manifest.AvailablePackage, error)
	FragmentIDFor(ctx context.Context, pkg *manifest.AvailablePackage) (int64, error)
}

// SkeletonFactory builds a fresh skeleton.Skeleton for a package under
// evaluation (§6 "make-skeleton" invocation boundary).
type SkeletonFactory func(pkg *manifest.AvailablePackage) *skeleton.Skeleton

// Resolver runs one resolution over a workspace cluster.
type Resolver struct {
	st     *store.Store
	graph  *workspace.Graph
	src    Source
	mkSkel SkeletonFactory

	// build_packages: the map of intended actions being accumulated.
	packages map[Key]*BuildPackage

	replacedVersions map[Key]bool

	postponedPackages []Key

	clusters *clusterSet

	postponedDependencies          map[Key]bool
	postponedExistingDependencies  map[Key]bool

	unacceptableAlternatives map[unacceptableKey]bool

	unsatisfiedDependents []*Failure
}

type unacceptableKey struct {
	key          Key
	version      string
	groupIndex   int
	altIndex     int
}

// New constructs a Resolver over st/graph, using src for available-package
// lookups and mkSkel to build per-package skeletons.
func New(st *store.Store, graph *workspace.Graph, src Source, mkSkel SkeletonFactory) *Resolver {
	return &Resolver{
		st:     st,
		graph:  graph,
		src:    src,
		mkSkel: mkSkel,

		packages:                      map[Key]*BuildPackage{},
		replacedVersions:              map[Key]bool{},
		clusters:                      newClusterSet(),
		postponedDependencies:         map[Key]bool{},
		postponedExistingDependencies: map[Key]bool{},
		unacceptableAlternatives:      map[unacceptableKey]bool{},
	}
}

// Resolve runs the full resolution for actions against the current
// workspace cluster rooted at root, returning the build_packages map as a
// name-ordered slice (planner.Order performs the topological sort), or a
// structured Failure.
func (r *Resolver) Resolve(ctx context.Context, root *store.Configuration, rootType workspace.Type, actions []UserAction) ([]*BuildPackage, error) {
	var lastErr error
	for attempt := 0; attempt < maxRestarts; attempt++ {
		r.packages = map[Key]*BuildPackage{}
		r.postponedPackages = nil
		r.clusters = newClusterSet()
		r.unsatisfiedDependents = nil

		err := r.runOnce(ctx, root, rootType, actions)
		if err == nil {
			if len(r.unsatisfiedDependents) > 0 {
				if repaired, rerr := r.repair(ctx, root, rootType, actions); rerr != nil {
					return nil, rerr
				} else if repaired {
					continue
				}
				return nil, r.unsatisfiedDependents[0]
			}
			return r.ordered(), nil
		}
		var restart *restartSignal
		if stderrors.As(err, &restart) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, errors.Wrap(lastErr, "resolver: exceeded maximum restart attempts")
}

// runOnce performs one collection pass: seed user actions, recursively
// collect dependencies (postponing where §4.6.1/.2/.3 require it), and
// drain postponed work until a fixed point.
func (r *Resolver) runOnce(ctx context.Context, root *store.Configuration, rootType workspace.Type, actions []UserAction) error {
	for _, ua := range actions {
		if err := r.seedUserAction(ctx, root, rootType, ua); err != nil {
			return err
		}
	}
	return r.drain(ctx, root, rootType)
}

// drain repeatedly attempts to recursively collect every postponed
// package and negotiate every pending cluster until nothing changes
// (§4.6.2 item 5: "a full pass occurs with no changes").
func (r *Resolver) drain(ctx context.Context, root *store.Configuration, rootType workspace.Type) error {
	for {
		progressed := false

		for _, key := range append([]Key(nil), r.postponedPackages...) {
			bp, ok := r.packages[key]
			if !ok || bp.RecursivelyCollected {
				continue
			}
			done, err := r.collectDependencies(ctx, root, rootType, bp)
			if err != nil {
				return err
			}
			if done {
				progressed = true
			}
		}
		r.postponedPackages = r.pendingKeys()

		changed, err := r.clusters.negotiateRound(ctx, r)
		if err != nil {
			return err
		}
		if changed {
			progressed = true
		}

		if !progressed {
			return nil
		}
	}
}

func (r *Resolver) pendingKeys() []Key {
	var out []Key
	for k, bp := range r.packages {
		if !bp.RecursivelyCollected {
			out = append(out, k)
		}
	}
	return out
}

// ordered returns the accumulated build_packages as a slice; planner.Order
// performs the actual topological sort, so this simply provides a stable,
// name-ordered seed for it.
func (r *Resolver) ordered() []*BuildPackage {
	out := make([]*BuildPackage, 0, len(r.packages))
	for _, bp := range r.packages {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Name != out[j].Key.Name {
			return out[i].Key.Name < out[j].Key.Name
		}
		return out[i].Key.ConfigurationID < out[j].Key.ConfigurationID
	})
	return out
}
