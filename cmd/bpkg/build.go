package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bpkgtools/bpkg/executor"
	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/planner"
	"github.com/bpkgtools/bpkg/resolver"
	"github.com/bpkgtools/bpkg/store"
	"github.com/bpkgtools/bpkg/version"
	"github.com/bpkgtools/bpkg/workspace"
)

func newBuildCommand() *cobra.Command {
	var runTests, install bool
	cmd := &cobra.Command{
		Use:   "build <pkg[/constraint]>...",
		Short: "Resolve and build one or more packages into the workspace",
		Args:  wrapPositionalArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				return runBuild(ctx, rt, args, runTests, install)
			})
		},
	}
	cmd.Flags().BoolVar(&runTests, "test", false, "run each package's test step after configure")
	cmd.Flags().BoolVar(&install, "install", false, "run each package's install step")
	return cmd
}

func parseBuildArg(arg string) (manifest.Name, version.Constraint, error) {
	name, constraintStr, hasConstraint := strings.Cut(arg, "/")
	if name == "" {
		return "", nil, fmt.Errorf("empty package name in %q", arg)
	}
	if !hasConstraint {
		return manifest.Name(name), version.Any, nil
	}
	c, err := version.Parse(constraintStr, version.Default)
	if err != nil {
		return "", nil, fmt.Errorf("parsing constraint in %q: %w", arg, err)
	}
	return manifest.Name(name), c, nil
}

func runBuild(ctx context.Context, rt *runtime, args []string, runTests, install bool) error {
	graph := workspace.New(rt.st, nil)
	src := resolver.NewStoreSource(rt.st)
	r := resolver.New(rt.st, graph, src, makeSkeleton)

	actions := make([]resolver.UserAction, 0, len(args))
	for _, arg := range args {
		name, constraint, err := parseBuildArg(arg)
		if err != nil {
			return err
		}
		actions = append(actions, resolver.UserAction{
			Kind:                 resolver.ActionBuild,
			Name:                 name,
			RepositoryConstraint: constraint,
		})
	}

	self := &store.Configuration{ID: store.SelfConfigurationID, Type: workspace.Target, Path: rt.root}
	built, err := r.Resolve(ctx, self, workspace.Target, actions)
	if err != nil {
		return fmt.Errorf("resolving: %w", err)
	}
	rt.logger.InfoContext(ctx, "resolved build set", "count", len(built))

	steps, err := planner.Order(built)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	layout := workspaceLayout{root: rt.root}
	exec := executor.New(rt.st, executor.DefaultHandlers(layout))

	var plan executor.Plan
	for _, step := range steps {
		sp := selectedPackageFor(step.Package)
		plan.Steps = append(plan.Steps, executor.Expand(step, sp, runTests, install)...)
	}

	if err := exec.Run(ctx, plan); err != nil {
		return fmt.Errorf("executing: %w", err)
	}

	for _, bp := range built {
		fmt.Printf("%s %s configured\n", bp.Key.Name, bp.Available.Version.Format())
	}
	return nil
}

// selectedPackageFor returns bp's already-recorded selected package, or a
// fresh `fetched`-state row for a package being built for the first time.
func selectedPackageFor(bp *resolver.BuildPackage) *store.SelectedPackage {
	if bp.Selected != nil {
		return bp.Selected
	}
	return &store.SelectedPackage{
		ConfigurationID: bp.Key.ConfigurationID,
		Name:            bp.Key.Name,
		Version:         bp.Available.Version,
		State:           store.StateFetched,
	}
}
