package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/infrastructure/gmail"
	"ApplicationScanner/internal/infrastructure/google"
	"ApplicationScanner/internal/infrastructure/llm"
	"ApplicationScanner/internal/infrastructure/scheduler"
	"ApplicationScanner/internal/infrastructure/sheets"
	"ApplicationScanner/internal/infrastructure/storage"
	"ApplicationScanner/internal/infrastructure/telegram"
	"ApplicationScanner/internal/ledger"
	"ApplicationScanner/internal/logging"
	"ApplicationScanner/internal/metrics"
	"ApplicationScanner/internal/ports"
	"ApplicationScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	verifiers []ports.Verifier
	closers   []func() error
}

// New builds every adapter the configuration selects. The Google OAuth token must
// already exist; run the auth command first.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	led, closeLedger, err := OpenLedger(cfg, baseLogger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLedger)

	httpClient, err := google.HTTPClient(ctx, cfg.Google.CredentialsPath, cfg.Google.TokenPath)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("google credentials: %w", err)
	}

	source := gmail.NewSource(httpClient, cfg.Gmail, baseLogger.With("component", "gmail"))

	extractor, err := llm.NewExtractor(cfg.LLM, baseLogger.With("component", "llm"))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	sink, err := a.buildSink(ctx, httpClient)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var notifier ports.Notifier
	a.verifiers = usecase.Verifiers(source, sink, extractor)
	if cfg.Notifications.Telegram.Enabled() {
		tg := telegram.NewNotifier(cfg.Notifications.Telegram)
		notifier = tg
		a.verifiers = append(a.verifiers, tg)
	}

	var pipelineSink ports.ApplicationSink = sink
	if !cfg.Sink.Sheets.RenameOnSuccess {
		pipelineSink = unstamped{sink}
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:    source,
		Extractor: extractor,
		Sink:      pipelineSink,
		Ledger:    led,
		Notifier:  notifier,
		Metrics:   metrics.NewCollector(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job),
		Logger:    baseLogger.With("component", "pipeline"),
		Location:  cfg.Scheduler.Location(),
	})
	return a, nil
}

// OpenLedger builds the processing ledger on the configured store without touching any
// remote service other than the store itself.
func OpenLedger(cfg config.Config, logger *slog.Logger) (*ledger.Ledger, func() error, error) {
	var (
		store   ledger.Store
		closeFn = func() error { return nil }
	)
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Ledger.Redis.Addr,
			Password: cfg.Ledger.Redis.Password,
			DB:       cfg.Ledger.Redis.DB,
		})
		store = ledger.NewRedisStore(client, cfg.Ledger.Redis.Key)
		closeFn = client.Close
	case config.LedgerFile, "":
		store = ledger.NewFileStore(cfg.Ledger.Path)
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	led := ledger.New(store,
		ledger.WithFlushEvery(cfg.Ledger.FlushEvery),
		ledger.WithLogger(logger),
	)
	return led, closeFn, nil
}

func (a *Application) buildSink(ctx context.Context, httpClient *http.Client) (ports.ApplicationSink, error) {
	switch a.cfg.Sink.Backend {
	case config.SinkSheets:
		return sheets.NewSink(httpClient, a.cfg.Sink.Sheets, a.logger.With("component", "sheets")), nil
	case config.SinkPostgres, config.SinkSQLite:
		db, err := storage.Open(ctx, a.cfg.Sink.Backend, a.cfg.Sink.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		sink, err := storage.NewSQLSink(db, a.cfg.Sink.Backend, a.cfg.Sink.Database.Table, a.logger.With("component", "storage"))
		if err != nil {
			return nil, err
		}
		if err := sink.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown sink backend %q", a.cfg.Sink.Backend)
	}
}

// Config returns the configuration the application was built from.
func (a *Application) Config() config.Config {
	return a.cfg
}

// Pipeline exposes the run use case.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Check runs every adapter's prerequisite check.
func (a *Application) Check(ctx context.Context) ([]usecase.CheckResult, error) {
	return usecase.CheckPrerequisites(ctx, a.verifiers...)
}

// Scheduler wires the pipeline to a cron driver using the configured expression and
// timezone. options is evaluated on every trigger.
func (a *Application) Scheduler(options func(trigger time.Time) usecase.RunOptions, runImmediately bool) *usecase.Scheduler {
	opts := []scheduler.Option{
		scheduler.WithLocation(a.cfg.Scheduler.Location()),
		scheduler.WithLogger(a.logger),
	}
	if runImmediately {
		opts = append(opts, scheduler.WithRunImmediately())
	}
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, opts...)
	return usecase.NewScheduler(driver, a.pipeline, options, a.logger.With("component", "watch"))
}

// Close releases connections held by the adapters.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// unstamped hides the sink's Stamper so the pipeline leaves its title alone.
type unstamped struct {
	ports.ApplicationSink
}
