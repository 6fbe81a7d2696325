// Package cli exposes the scanner as a cobra command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/logging"
)

const configPathEnv = "APPLICATION_SCANNER_CONFIG"

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	verbose    bool
	logFormat  string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// BuildCLI assembles the root command. Streams are injectable for tests.
func BuildCLI(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stdin: stdin, stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "applicationscanner",
		Short: "Track job applications from your inbox in a spreadsheet",
		Long: `applicationscanner reads job-related mail, classifies each message with a
language model and keeps one row per application in a Google Sheet or SQL table.

Progress is kept in a local ledger so interrupted runs resume where they stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (overrides $"+configPathEnv+")")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(buildRunCommand(opts))
	rootCmd.AddCommand(buildWatchCommand(opts))
	rootCmd.AddCommand(buildStatusCommand(opts))
	rootCmd.AddCommand(buildResetCommand(opts))
	rootCmd.AddCommand(buildCheckCommand(opts))
	rootCmd.AddCommand(buildAuthCommand(opts))

	return rootCmd
}

// Execute runs the CLI against the process streams and returns the exit code.
func Execute() int {
	root := BuildCLI(os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (o *globalOptions) loadConfig() (config.Config, *slog.Logger, error) {
	if o.configPath != "" {
		if err := os.Setenv(configPathEnv, o.configPath); err != nil {
			return config.Config{}, nil, fmt.Errorf("set config path: %w", err)
		}
	}
	cfg := config.Load()
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, logging.NewWithWriter(o.stderr, cfg.Logging.Level, cfg.Logging.Format), nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(domain.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", value)
	}
	return t, nil
}
