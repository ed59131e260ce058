// Package executor implements §4.8: applying the planner's sequence of
// steps transactionally, one package at a time. Every step is delegated
// to a Handler kind; the executor itself only guarantees ordering, the
// atomicity of each individual step, and that a failed step leaves the
// selected-package row in a valid `broken` state rather than a silently
// inconsistent one.
package executor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/planner"
	"github.com/bpkgtools/bpkg/store"
)

// StepKind enumerates the per-package operations the executor can apply
// (§4.8).
type StepKind string

const (
	StepFetch       StepKind = "fetch"
	StepUnpack      StepKind = "unpack"
	StepConfigure   StepKind = "configure"
	StepDisfigure   StepKind = "disfigure"
	StepPurge       StepKind = "purge"
	StepUpdate      StepKind = "update"
	StepTest        StepKind = "test"
	StepInstall     StepKind = "install"
	StepUninstall   StepKind = "uninstall"
	StepDrop        StepKind = "drop"
)

// Handler performs the filesystem/network side effect for one StepKind
// against sp (already loaded, possibly mutated in place by the handler
// before the executor persists it). A returned error marks the step
// failed; the executor is responsible for recording the broken state.
type Handler func(ctx context.Context, sp *store.SelectedPackage) error

// Executor applies a planned sequence against a store, one package
// transaction at a time.
type Executor struct {
	st       *store.Store
	handlers map[StepKind]Handler
}

// New builds an Executor backed by st. handlers maps each StepKind this
// run will need to its side-effecting implementation; a StepKind with no
// registered handler is a no-op mutation of the selected-package row only
// (useful in tests and for kinds a given driver never exercises).
func New(st *store.Store, handlers map[StepKind]Handler) *Executor {
	if handlers == nil {
		handlers = map[StepKind]Handler{}
	}
	return &Executor{st: st, handlers: handlers}
}

// Plan is the ordered input to Run: one entry per planner.Step, mapped
// onto the concrete executor StepKind(s) it requires. A planner.StepBuild
// expands to fetch→unpack→configure→update (and optionally test/install);
// a planner.StepReconfigure to disfigure→configure; a planner.StepDrop to
// uninstall→disfigure→purge.
type Plan struct {
	Steps []PlannedStep
}

// PlannedStep is one executor-level operation plus the selected-package
// snapshot it operates on.
type PlannedStep struct {
	Kind    StepKind
	Package *store.SelectedPackage
}

// Expand lowers a planner.Step into the concrete executor steps it
// requires, using sp as the package's (possibly not-yet-persisted)
// selected-package snapshot.
func Expand(step planner.Step, sp *store.SelectedPackage, runTests, install bool) []PlannedStep {
	switch step.Kind {
	case planner.StepDrop:
		return []PlannedStep{
			{Kind: StepUninstall, Package: sp},
			{Kind: StepDisfigure, Package: sp},
			{Kind: StepPurge, Package: sp},
		}
	case planner.StepReconfigure:
		return []PlannedStep{
			{Kind: StepDisfigure, Package: sp},
			{Kind: StepConfigure, Package: sp},
		}
	default: // planner.StepBuild
		steps := []PlannedStep{
			{Kind: StepFetch, Package: sp},
			{Kind: StepUnpack, Package: sp},
			{Kind: StepConfigure, Package: sp},
			{Kind: StepUpdate, Package: sp},
		}
		if runTests {
			steps = append(steps, PlannedStep{Kind: StepTest, Package: sp})
		}
		if install {
			steps = append(steps, PlannedStep{Kind: StepInstall, Package: sp})
		}
		return steps
	}
}

// Run applies plan in order, one step at a time: advance the package
// state, run the registered handler (if any), then persist the resulting
// selected-package row, which the store writes in one transaction. The
// handler runs outside that transaction, and its filesystem changes are
// not undone when it fails. A handler failure persists a `broken` row
// instead, then stops the run and returns the error — the caller (the
// driver loop) decides whether to retry or report it.
func (e *Executor) Run(ctx context.Context, plan Plan) error {
	for _, step := range plan.Steps {
		if err := e.runStep(ctx, step); err != nil {
			return errors.Wrapf(err, "executor: step %s on %s", step.Kind, step.Package.Name)
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, step PlannedStep) error {
	sp := step.Package
	handler := e.handlers[step.Kind]

	if step.Kind == StepPurge {
		return e.st.DeleteSelectedPackage(ctx, sp.ConfigurationID, sp.Name)
	}

	applyState(sp, step.Kind)

	if handler != nil {
		if err := handler(ctx, sp); err != nil {
			sp.State = store.StateBroken
			if persistErr := e.st.UpsertSelectedPackage(ctx, sp); persistErr != nil {
				return errors.Wrap(persistErr, "executor: recording broken state after handler failure")
			}
			return err
		}
	}

	return e.st.UpsertSelectedPackage(ctx, sp)
}

// applyState advances sp.State to what a successful step of kind implies,
// matching the selected_package lifecycle of §3.
func applyState(sp *store.SelectedPackage, kind StepKind) {
	switch kind {
	case StepFetch:
		sp.State = store.StateFetched
	case StepUnpack:
		sp.State = store.StateUnpacked
	case StepConfigure:
		sp.State = store.StateConfigured
	case StepDisfigure:
		sp.State = store.StateUnpacked
	case StepUninstall, StepInstall, StepUpdate, StepTest:
		// These do not change the configured/unpacked state machine by
		// themselves; they operate on an already-configured package.
	}
}
