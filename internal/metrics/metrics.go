// Package metrics collects per-run counters and optionally pushes them to a Prometheus pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "application_scanner"

// Collector owns a private registry so several collectors can coexist in one process.
// All methods are safe on a nil receiver.
type Collector struct {
	registry *prometheus.Registry

	messagesProcessed  prometheus.Counter
	extractionFailures prometheus.Counter
	rowsAppended       prometheus.Counter
	rowsUpdated        prometheus.Counter
	duplicatesMerged   prometheus.Counter
	recordsUnchanged   prometheus.Counter
	sinkErrors         prometheus.Counter
	ledgerSaveFailures prometheus.Counter

	runDuration prometheus.Gauge
	lastSuccess prometheus.Gauge

	pushURL string
	job     string
}

// NewCollector registers all run metrics. pushURL may be empty to disable pushing.
func NewCollector(pushURL, job string) *Collector {
	if job == "" {
		job = "application_scanner"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pushURL:  pushURL,
		job:      job,
		messagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Messages marked processed in the ledger",
		}),
		extractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Messages whose extraction failed and produced a placeholder",
		}),
		rowsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_appended_total",
			Help:      "Rows appended to the sink",
		}),
		rowsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_updated_total",
			Help:      "Persisted rows whose status advanced",
		}),
		duplicatesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_merged_total",
			Help:      "In-batch duplicates folded into a queued record",
		}),
		recordsUnchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_unchanged_total",
			Help:      "Records that did not outrank the known status",
		}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Terminal sink write failures",
		}),
		ledgerSaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_save_failures_total",
			Help:      "Ledger saves that failed and were swallowed",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last pipeline run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without sink errors",
		}),
	}

	c.registry.MustRegister(
		c.messagesProcessed,
		c.extractionFailures,
		c.rowsAppended,
		c.rowsUpdated,
		c.duplicatesMerged,
		c.recordsUnchanged,
		c.sinkErrors,
		c.ledgerSaveFailures,
		c.runDuration,
		c.lastSuccess,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordProcessed() {
	if c != nil {
		c.messagesProcessed.Inc()
	}
}

func (c *Collector) RecordExtractionFailure() {
	if c != nil {
		c.extractionFailures.Inc()
	}
}

// RecordPlan adds the reconciliation outcome of one batch.
func (c *Collector) RecordPlan(appended, updated, merged, unchanged int) {
	if c == nil {
		return
	}
	c.rowsAppended.Add(float64(appended))
	c.rowsUpdated.Add(float64(updated))
	c.duplicatesMerged.Add(float64(merged))
	c.recordsUnchanged.Add(float64(unchanged))
}

func (c *Collector) RecordSinkError() {
	if c != nil {
		c.sinkErrors.Inc()
	}
}

func (c *Collector) RecordLedgerSaveFailure() {
	if c != nil {
		c.ledgerSaveFailures.Inc()
	}
}

// RecordRun stores the run duration and, on success, the completion time.
func (c *Collector) RecordRun(d time.Duration, finished time.Time, ok bool) {
	if c == nil {
		return
	}
	c.runDuration.Set(d.Seconds())
	if ok {
		c.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Push sends the registry to the configured pushgateway. It is a no-op without a URL.
func (c *Collector) Push(ctx context.Context) error {
	if c == nil || c.pushURL == "" {
		return nil
	}
	if err := push.New(c.pushURL, c.job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
