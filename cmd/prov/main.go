package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"prov-go/internal/app"
	"prov-go/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "prov",
	Short:         "Track the provenance of datasets and the activities producing them",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// loadConfig reads the config file from its default location.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

type appOptions struct {
	mutating         bool
	skipVersionCheck bool
}

// withApp opens the App for cmd, runs fn and closes the App with fn's
// outcome, so failed mutating commands are recorded too.
func withApp(cmd *cobra.Command, args []string, o appOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelInfo
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{
		Command:          strings.TrimPrefix(cmd.CommandPath(), rootCmd.Name()+" "),
		Parameters:       strings.Join(args, " "),
		Mutating:         o.mutating,
		SkipVersionCheck: o.skipVersionCheck,
		Version:          version,
		LogLevel:         level,
	})
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}

	err = fn(ctx, a)
	if cerr := a.Close(ctx, err); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log progress to stderr")
	rootCmd.PersistentFlags().StringP("format", "o", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(versionCmd)
}
