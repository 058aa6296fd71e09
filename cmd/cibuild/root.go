// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for cibuild.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cibuild-cli/internal/config"
	"cibuild-cli/internal/dispatch"
	"cibuild-cli/internal/issue"
	"cibuild-cli/internal/session"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "cibuild <step> <distro>",
		Short: "CI job dispatcher for multi-distro builds",
		Long: TitleStyle.Render("cibuild") + SubtitleStyle.Render(" - CI job dispatcher for multi-distro builds") + `

cibuild runs one CI pipeline step either natively on the host or inside
a per-distro session container, and owns the scheduled static-analysis
scan so it runs exactly once across parallel jobs.

Steps:
  install   provision build dependencies (container setup; host no-op)
  build     configure and compile the project
  run       local unit tests plus the private external test corpus

` + SubtitleStyle.Render("Examples:") + `
  cibuild install ubuntu    Create and provision the Ubuntu session container
  cibuild build ubuntu      Compile inside the existing session container
  cibuild run native        Run the test suites directly on this host`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), args[0], args[1])
		},
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/cibuild/config.cue)")

	// Add subcommands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(manualCmd)
	rootCmd.AddCommand(distrosCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// runJob loads configuration, snapshots the job context, and hands off to
// the dispatcher. Non-zero delegated exit codes surface as ExitError so
// fang can unwind without os.Exit in the handler.
func runJob(ctx context.Context, step, distro string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
		cfg = config.DefaultConfig()
	}
	if cfg.Verbose {
		verbose = true
	}

	logger := newLogger()
	job := config.NewJob(step, distro, cfg)

	code, err := dispatch.New(cfg, logger).Run(ctx, job)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
		return &ExitError{Code: code, Err: err}
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// loadConfig reads the tool configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger builds the structured logger used below the CLI layer.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// distrosCmd lists the supported container distros and the native sentinel.
var distrosCmd = &cobra.Command{
	Use:   "distros",
	Short: "List supported distro targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(TitleStyle.Render("Supported distros"))
		fmt.Println()
		for _, distro := range session.SupportedDistros() {
			fmt.Printf("  %s  %s\n", CmdStyle.Render(string(distro)),
				SubtitleStyle.Render(string(distro.Image())))
		}
		fmt.Println()
		fmt.Printf("  %s  %s\n", CmdStyle.Render(dispatch.DistroNative),
			SubtitleStyle.Render("run on this host, no container"))
		return nil
	},
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}
