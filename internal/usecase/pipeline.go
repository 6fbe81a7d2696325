package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/ledger"
	"ApplicationScanner/internal/metrics"
	"ApplicationScanner/internal/ports"
	"ApplicationScanner/internal/reconcile"
)

// ErrNotConfigured is returned when a required adapter is missing.
var ErrNotConfigured = errors.New("pipeline is missing a mail source, extractor or sink")

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.MailSource
	Extractor ports.Extractor
	Sink      ports.ApplicationSink
	Ledger    *ledger.Ledger
	Notifier  ports.Notifier
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	// Location decides the calendar day of a message's submission date.
	Location *time.Location
	Now      func() time.Time
}

// Pipeline implements fetch → extract → reconcile → persist → ledger update.
type Pipeline struct {
	source    ports.MailSource
	extractor ports.Extractor
	sink      ports.ApplicationSink
	ledger    *ledger.Ledger
	notifier  ports.Notifier
	metrics   *metrics.Collector
	logger    *slog.Logger
	location  *time.Location
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:    deps.Source,
		extractor: deps.Extractor,
		sink:      deps.Sink,
		ledger:    deps.Ledger,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		location:  deps.Location,
		now:       deps.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.location == nil {
		p.location = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Ledger returns the processing ledger the pipeline mutates.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.ledger
}

// RunOptions bounds one run.
type RunOptions struct {
	Since time.Time
	// Until is exclusive; zero means open-ended.
	Until time.Time
	// MaxMessages caps unprocessed messages handled in this run; zero means no cap.
	MaxMessages int
	// DryRun reconciles and reports without touching the sink or the ledger.
	DryRun bool
}

// Summary describes what one run did.
type Summary struct {
	RunID       string
	Fetched     int
	Extracted   int
	Failed      int
	Plan        reconcile.Plan
	Appended    int
	Updated     int
	Interrupted bool
	DryRun      bool
	Duration    time.Duration
	Progress    ledger.Progress
}

// Run processes every unprocessed message in the window. Cancelling ctx stops the loop
// between messages; the records collected so far are still reconciled and written, and
// the ledger is saved before Run returns.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	start := p.now()
	summary := Summary{RunID: runID, DryRun: opts.DryRun}

	if p.source == nil || p.extractor == nil || p.sink == nil || p.ledger == nil {
		return summary, ErrNotConfigured
	}

	logger.Info("run started",
		"since", opts.Since.Format(domain.DateLayout),
		"until", formatDate(opts.Until),
		"max", opts.MaxMessages,
		"dry_run", opts.DryRun)

	// in-flight work for a record is allowed to finish after an interrupt
	work := context.WithoutCancel(ctx)

	query := ports.Query{
		Since:  opts.Since,
		Until:  opts.Until,
		Max:    opts.MaxMessages,
		Filter: p.ledger.FilterUnprocessed,
	}

	var (
		records  []domain.Application
		fetchErr error
	)
	for msg, err := range p.source.Messages(ctx, query) {
		if err != nil {
			if ctx.Err() != nil {
				summary.Interrupted = true
				break
			}
			fetchErr = fmt.Errorf("fetch messages: %w", err)
			logger.Error("fetching messages failed", "error", err)
			break
		}

		summary.Fetched++
		records = append(records, p.extract(work, logger, msg, &summary))

		if !opts.DryRun {
			p.ledger.MarkProcessed(work, msg.ID)
			p.metrics.RecordProcessed()
		}

		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}
	}
	if summary.Interrupted {
		logger.Warn("interrupt received, saving progress", "handled", summary.Fetched)
	}

	writeErr := p.write(work, logger, records, opts.DryRun, &summary)

	if !opts.DryRun {
		if err := p.ledger.Save(work); err != nil {
			p.metrics.RecordLedgerSaveFailure()
		}
	}

	finished := p.now()
	summary.Duration = finished.Sub(start)
	summary.Progress = p.ledger.Progress()

	runErr := errors.Join(fetchErr, writeErr)
	p.metrics.RecordRun(summary.Duration, finished, runErr == nil)
	if err := p.metrics.Push(work); err != nil {
		logger.Warn("failed to push metrics", "error", err)
	}

	if !opts.DryRun {
		p.notify(work, logger, summary)
		if runErr == nil && !summary.Interrupted {
			p.stamp(work, logger, finished)
		}
	}

	logger.Info("run finished",
		"fetched", summary.Fetched,
		"failed", summary.Failed,
		"appended", summary.Appended,
		"updated", summary.Updated,
		"merged", summary.Plan.Merged,
		"unchanged", summary.Plan.Unchanged,
		"interrupted", summary.Interrupted,
		"duration", summary.Duration)

	return summary, runErr
}

func (p *Pipeline) extract(ctx context.Context, logger *slog.Logger, msg domain.Message, summary *Summary) domain.Application {
	ext, err := p.extractor.Extract(ctx, msg)
	if err != nil {
		summary.Failed++
		p.metrics.RecordExtractionFailure()
		logger.Error("extraction failed, recording placeholder", "message_id", msg.ID, "error", err)
		return domain.PlaceholderApplication(msg, p.location)
	}

	summary.Extracted++
	app := domain.NewApplication(msg, ext, p.location)
	logger.Debug("message extracted",
		"message_id", msg.ID,
		"company", app.Company,
		"role", app.Role,
		"status", app.Status.String())
	return app
}

func (p *Pipeline) write(ctx context.Context, logger *slog.Logger, records []domain.Application, dryRun bool, summary *Summary) error {
	if len(records) == 0 {
		logger.Info("no new messages to reconcile")
		return nil
	}

	rows, err := p.sink.ReadAll(ctx)
	if err != nil {
		logger.Warn("failed to read existing applications, reconciling against an empty snapshot", "error", err)
		rows = nil
	}

	engine := reconcile.NewEngine(reconcile.NewSnapshot(rows), logger.With("component", "reconcile"))
	plan := engine.Reconcile(records)
	summary.Plan = plan

	logger.Info("batch reconciled",
		"existing", len(rows),
		"new", len(plan.New),
		"updates", len(plan.Updates),
		"merged", plan.Merged,
		"unchanged", plan.Unchanged)

	if dryRun {
		return nil
	}

	var errs []error
	if len(plan.New) > 0 {
		n, err := p.sink.Append(ctx, plan.New)
		summary.Appended = n
		p.ledger.MarkWritten(n)
		if err != nil {
			p.metrics.RecordSinkError()
			logger.Error("failed to append rows", "written", n, "error", err)
			errs = append(errs, fmt.Errorf("append rows: %w", err))
		}
	}

	for _, u := range plan.Updates {
		if err := p.sink.Update(ctx, u.Row, u.Status, u.Link); err != nil {
			p.metrics.RecordSinkError()
			logger.Error("failed to update row", "row", u.Row, "company", u.Company, "error", err)
			errs = append(errs, fmt.Errorf("update row %d: %w", u.Row, err))
			continue
		}
		summary.Updated++
		logger.Info("row updated",
			"row", u.Row,
			"company", u.Company,
			"role", u.Role,
			"from", u.Previous.String(),
			"to", u.Status.String())
	}

	p.metrics.RecordPlan(summary.Appended, summary.Updated, plan.Merged, plan.Unchanged)
	return errors.Join(errs...)
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, summary Summary) {
	if p.notifier == nil || (summary.Appended == 0 && summary.Updated == 0) {
		return
	}
	if err := p.notifier.Notify(ctx, BuildNotification(summary)); err != nil {
		logger.Warn("failed to send notification", "error", err)
	}
}

func (p *Pipeline) stamp(ctx context.Context, logger *slog.Logger, at time.Time) {
	stamper, ok := p.sink.(ports.Stamper)
	if !ok {
		return
	}
	if err := stamper.Stamp(ctx, at.In(p.location)); err != nil {
		logger.Warn("could not stamp sink with run date", "error", err)
	}
}

// BuildNotification renders a short plain-text run summary.
func BuildNotification(s Summary) string {
	text := fmt.Sprintf("Application scan finished\nNew applications: %d\nStatus updates: %d\nMessages handled: %d",
		s.Appended, s.Updated, s.Fetched)
	if s.Failed > 0 {
		text += fmt.Sprintf("\nExtraction failures: %d", s.Failed)
	}
	if s.Interrupted {
		text += "\nRun was interrupted before all messages were handled."
	}
	return text
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
