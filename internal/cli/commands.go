package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ApplicationScanner/internal/app"
	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/infrastructure/google"
	"ApplicationScanner/internal/infrastructure/scheduler"
	"ApplicationScanner/internal/ledger"
	"ApplicationScanner/internal/report"
	"ApplicationScanner/internal/usecase"
)

type runFlags struct {
	since         string
	until         string
	maxEmails     int
	reset         bool
	dryRun        bool
	spreadsheetID string
	sheetName     string
	model         string
	yes           bool
	onSinceChange string
	skipChecks    bool
}

func buildRunCommand(opts *globalOptions) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the inbox once and update the tracker",
		Long: `Fetch job-related messages received since --since, classify each one and
append or update rows in the tracker. Messages handled by an earlier run are skipped.

Examples:
  applicationscanner run --since 2026-01-01
  applicationscanner run --since 2026-01-01 --max-emails 50 --dry-run
  applicationscanner run --since 2026-02-01 --yes --on-since-change reset`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), opts, f)
		},
	}

	cmd.Flags().StringVar(&f.since, "since", "", "only messages received on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.until, "until", "", "only messages received before this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.maxEmails, "max-emails", 0, "stop after this many new messages (0 = no limit)")
	cmd.Flags().BoolVar(&f.reset, "reset", false, "forget processed messages before starting")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the plan without writing rows or updating the ledger")
	cmd.Flags().StringVar(&f.spreadsheetID, "spreadsheet-id", "", "spreadsheet id or URL (overrides config)")
	cmd.Flags().StringVar(&f.sheetName, "sheet-name", "", "sheet tab name (overrides config)")
	cmd.Flags().StringVar(&f.model, "model", "", "language model name (overrides config)")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "do not prompt; resume previous sessions")
	cmd.Flags().StringVar(&f.onSinceChange, "on-since-change", "abort", "with --yes, what to do when --since differs from the previous session: continue, reset or abort")
	cmd.Flags().BoolVar(&f.skipChecks, "skip-checks", false, "do not verify Gmail, sink and model access before running")
	_ = cmd.MarkFlagRequired("since")

	return cmd
}

func runOnce(parent context.Context, opts *globalOptions, f runFlags) error {
	cfg, logger, err := opts.loadConfig()
	if err != nil {
		return err
	}
	applyRunOverrides(&cfg, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	loc := cfg.Scheduler.Location()
	since, err := parseDate(f.since, loc)
	if err != nil {
		return err
	}
	until, err := parseDate(f.until, loc)
	if err != nil {
		return err
	}
	if !until.IsZero() && !until.After(since) {
		return fmt.Errorf("--until %s must be after --since %s", f.until, f.since)
	}

	prompter, err := chooseRunPrompter(opts, f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if !f.skipChecks {
		if err := checkAndReport(ctx, opts, application); err != nil {
			return err
		}
	}

	pipeline := application.Pipeline()
	proceed, err := pipeline.Begin(ctx, since, f.reset, prompter)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(opts.stdout, "Aborted; nothing was processed.")
		return nil
	}
	if err != nil {
		return err
	}
	if !proceed {
		fmt.Fprintln(opts.stdout, "Aborted; nothing was processed.")
		return nil
	}

	summary, runErr := pipeline.Run(ctx, usecase.RunOptions{
		Since:       since,
		Until:       until,
		MaxMessages: f.maxEmails,
		DryRun:      f.dryRun,
	})
	if f.dryRun {
		report.Plan(opts.stdout, summary.Plan)
	}
	report.Summary(opts.stdout, summary)
	if !f.dryRun {
		report.Progress(opts.stdout, summary.Progress)
	}
	if summary.Interrupted {
		fmt.Fprintln(opts.stdout, "Interrupted. Run the same command again to continue.")
	}
	return runErr
}

func applyRunOverrides(cfg *config.Config, f runFlags) {
	if f.spreadsheetID != "" {
		cfg.Sink.Sheets.SpreadsheetID = config.ExtractSpreadsheetID(f.spreadsheetID)
	}
	if f.sheetName != "" {
		cfg.Sink.Sheets.SheetName = f.sheetName
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
}

func chooseRunPrompter(opts *globalOptions, f runFlags) (usecase.Prompter, error) {
	if !f.yes {
		return newTerminalPrompter(opts.stdin, opts.stdout), nil
	}
	choice, err := usecase.ParseSinceChoice(f.onSinceChange)
	if err != nil {
		return nil, fmt.Errorf("--on-since-change: %w", err)
	}
	return usecase.PolicyPrompter{Resume: true, OnSinceChange: choice}, nil
}

func checkAndReport(ctx context.Context, opts *globalOptions, application *app.Application) error {
	results, err := application.Check(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		report.Checks(opts.stdout, results)
		return fmt.Errorf("%d prerequisite check(s) failed", failed)
	}
	return nil
}

func buildWatchCommand(opts *globalOptions) *cobra.Command {
	var (
		sinceDays int
		runNow    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the scan on the configured cron schedule",
		Long: `Run the scan repeatedly on scheduler.cronExpression, looking back --since-days
days from each trigger. Overlapping triggers are skipped. Stop with Ctrl+C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return watch(cmd.Context(), opts, sinceDays, runNow)
		},
	}
	cmd.Flags().IntVar(&sinceDays, "since-days", 7, "look-back window in days for each run")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately on start")
	return cmd
}

func watch(parent context.Context, opts *globalOptions, sinceDays int, runNow bool) error {
	if sinceDays <= 0 {
		return errors.New("--since-days must be positive")
	}
	cfg, logger, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := checkAndReport(ctx, opts, application); err != nil {
		return err
	}

	loc := cfg.Scheduler.Location()
	window := func(trigger time.Time) usecase.RunOptions {
		day := time.Date(trigger.Year(), trigger.Month(), trigger.Day(), 0, 0, 0, 0, loc)
		return usecase.RunOptions{Since: day.AddDate(0, 0, -sinceDays)}
	}

	// the window rolls forward every day, so keep processed ids across date changes
	policy := usecase.PolicyPrompter{Resume: true, OnSinceChange: usecase.SinceContinue}
	if _, err := application.Pipeline().Begin(ctx, window(time.Now().In(loc)).Since, false, policy); err != nil {
		return err
	}

	sched := application.Scheduler(window, runNow)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	if next, err := scheduler.NextRun(cfg.Scheduler.CronExpression, loc, time.Now()); err == nil {
		fmt.Fprintf(opts.stdout, "Watching; next run at %s. Press Ctrl+C to stop.\n", next.Format(time.RFC1123))
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return sched.Stop(stopCtx)
}

func buildStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show progress recorded in the processing ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			led, closeFn, err := openLedger(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := contextOrBackground(cmd.Context())
			led.Load(ctx)
			if led.State() == ledger.Empty {
				fmt.Fprintln(opts.stdout, "No previous session.")
				return nil
			}
			report.Progress(opts.stdout, led.Progress())
			return nil
		},
	}
}

func buildResetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget every processed message so the next run starts over",
		RunE: func(cmd *cobra.Command, _ []string) error {
			led, closeFn, err := openLedger(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := led.Reset(contextOrBackground(cmd.Context())); err != nil {
				return err
			}
			fmt.Fprintln(opts.stdout, "Processing ledger cleared.")
			return nil
		},
	}
}

func openLedger(opts *globalOptions) (*ledger.Ledger, func() error, error) {
	cfg, logger, err := opts.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return app.OpenLedger(cfg, logger)
}

func buildCheckCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify access to Gmail, the tracker and the language model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := contextOrBackground(cmd.Context())
			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			results, err := application.Check(ctx)
			report.Checks(opts.stdout, results)
			if err != nil {
				return err
			}
			for _, r := range results {
				if !r.OK() {
					return errors.New("some prerequisites are not met")
				}
			}
			return nil
		},
	}
}

func buildAuthCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail and Sheets access and store the OAuth token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			oauthCfg, err := google.LoadOAuthConfig(cfg.Google.CredentialsPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tok, err := google.Authorize(ctx, oauthCfg, func(authURL string) {
				fmt.Fprintf(opts.stdout, "Open this URL in your browser to grant access:\n\n%s\n\nWaiting for the redirect...\n", authURL)
			})
			if err != nil {
				return err
			}
			if err := google.SaveToken(cfg.Google.TokenPath, tok); err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Token saved to %s\n", cfg.Google.TokenPath)
			return nil
		},
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
