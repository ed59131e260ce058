package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// onlySubcommands rejects positional arguments on a command that exists
// only to group subcommands, with a suggestion when the typo is close to a
// real one.
func onlySubcommands(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	err := fmt.Errorf("invalid subcommand %q", args[0])
	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	if suggestions := cmd.SuggestionsFor(args[0]); len(suggestions) > 0 {
		err = fmt.Errorf("%w\nDid you mean one of these?\n\t%s", err, strings.Join(suggestions, "\n\t"))
	}
	return flagErrorFunc(cmd, err)
}

// wrapPositionalArgs routes a cobra.PositionalArgs failure through
// flagErrorFunc so usage errors are reported consistently whether they
// come from flag parsing or argument validation.
func wrapPositionalArgs(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return flagErrorFunc(cmd, inner(cmd, args))
	}
}

// flagErrorFunc prints a GNU-style usage error and exits instead of
// returning, so every bad invocation reports the same way regardless of
// which cobra hook caught it.
func flagErrorFunc(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	errStr := strings.TrimRight(err.Error(), "\n")
	if strings.Contains(errStr, "\n") {
		errStr += "\n"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\nSee '%s --help' for more information.\n",
		cmd.CommandPath(), errStr, cmd.CommandPath())
	os.Exit(2)
	return nil
}
