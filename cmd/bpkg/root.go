package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bpkgtools/bpkg/internal/telemetry"
	"github.com/bpkgtools/bpkg/store"
)

// runtime carries the objects every subcommand needs: the open store for
// the workspace rooted at --workspace, and a logger configured from
// viper-resolved defaults plus environment overrides, the way
// ipiton-alert-history-service wires its own Config into each subsystem.
type runtime struct {
	root   string
	st     *store.Store
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "bpkg",
		Short: "Manage a build2-style package configuration cluster",
		Args:  onlySubcommands,
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.SetFlagErrorFunc(flagErrorFunc)

	pflags := root.PersistentFlags()
	pflags.String("workspace", ".", "path to the workspace root (the directory containing bpkg/)")
	pflags.String("config", "", "path to a bpkg.yaml default-options file")
	pflags.String("log-level", "info", "log level: debug, info, warn, error")
	pflags.Bool("verbose", false, "also mirror log output to stderr")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("verbose", false)
	viper.BindPFlag("log_level", pflags.Lookup("log-level"))
	viper.BindPFlag("verbose", pflags.Lookup("verbose"))
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("bpkg")

	root.AddCommand(newBuildCommand(), newDropCommand(), newStatusCommand())
	return root
}

// withRuntime opens the workspace store and logger named by --workspace and
// --config before delegating to fn, and always closes the store
// afterwards. Subcommand RunE funcs use this instead of duplicating the
// open/close/teardown dance.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	workspacePath, err := cmd.Flags().GetString("workspace")
	if err != nil {
		return err
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		}
	}

	absRoot, err := filepath.Abs(workspacePath)
	if err != nil {
		return err
	}

	logger, err := telemetry.New(telemetry.Config{
		Root:    absRoot,
		Level:   viper.GetString("log_level"),
		Console: viper.GetBool("verbose"),
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	st, err := store.Open(absRoot)
	if err != nil {
		return fmt.Errorf("opening workspace %s: %w", absRoot, err)
	}
	defer st.Close()

	return fn(cmd.Context(), &runtime{root: absRoot, st: st, logger: logger})
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
