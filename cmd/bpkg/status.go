package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bpkgtools/bpkg/store"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the configured state of every selected package",
		Args:  wrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, runStatus)
		},
	}
}

func runStatus(ctx context.Context, rt *runtime) error {
	packages, err := rt.st.SelectedPackages(ctx, store.SelfConfigurationID)
	if err != nil {
		return fmt.Errorf("listing selected packages: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "PACKAGE\tVERSION\tSTATE\tHOLD")
	for _, sp := range packages {
		hold := ""
		if sp.IsHeld() {
			hold = "held"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sp.Name, sp.Version.Format(), sp.State, hold)
	}
	return nil
}
