package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpkgtools/bpkg/executor"
	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/planner"
	"github.com/bpkgtools/bpkg/resolver"
	"github.com/bpkgtools/bpkg/store"
	"github.com/bpkgtools/bpkg/workspace"
)

func newDropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <pkg>...",
		Short: "Remove one or more packages (their dependents are not dropped)",
		Args:  wrapPositionalArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				return runDrop(ctx, rt, args)
			})
		},
	}
}

func runDrop(ctx context.Context, rt *runtime, args []string) error {
	graph := workspace.New(rt.st, nil)
	src := resolver.NewStoreSource(rt.st)
	r := resolver.New(rt.st, graph, src, makeSkeleton)

	actions := make([]resolver.UserAction, 0, len(args))
	for _, arg := range args {
		actions = append(actions, resolver.UserAction{Kind: resolver.ActionDrop, Name: manifest.Name(arg)})
	}

	self := &store.Configuration{ID: store.SelfConfigurationID, Type: workspace.Target, Path: rt.root}
	built, err := r.Resolve(ctx, self, workspace.Target, actions)
	if err != nil {
		return fmt.Errorf("resolving: %w", err)
	}

	steps, err := planner.Order(built)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	layout := workspaceLayout{root: rt.root}
	exec := executor.New(rt.st, executor.DefaultHandlers(layout))

	selected, err := rt.st.SelectedPackages(ctx, store.SelfConfigurationID)
	if err != nil {
		return fmt.Errorf("listing selected packages: %w", err)
	}

	var plan executor.Plan
	for _, step := range steps {
		sp := step.Package.Selected
		for _, s := range selected {
			if sp == nil && s.Name.Equal(step.Package.Key.Name) {
				sp = s
			}
		}
		if sp == nil {
			return fmt.Errorf("%s is not selected in this workspace", step.Package.Key.Name)
		}
		plan.Steps = append(plan.Steps, executor.Expand(step, sp, false, false)...)
	}

	if err := exec.Run(ctx, plan); err != nil {
		return fmt.Errorf("executing: %w", err)
	}

	for _, bp := range built {
		if bp.Action == resolver.ActionDrop {
			fmt.Printf("%s dropped\n", bp.Key.Name)
		}
	}
	return nil
}
