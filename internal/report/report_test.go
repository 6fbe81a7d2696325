package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/ledger"
	"ApplicationScanner/internal/reconcile"
	"ApplicationScanner/internal/status"
	"ApplicationScanner/internal/usecase"
)

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	Progress(&buf, ledger.Progress{SinceDate: "2026-01-01", TotalProcessed: 12, TotalWritten: 4, Tracked: 12})

	out := buf.String()
	assert.Contains(t, out, "Processing progress")
	assert.Contains(t, out, "2026-01-01")
	assert.Contains(t, out, "12")
	// empty last run renders as a dash
	assert.Contains(t, out, "-")
}

func TestPlan(t *testing.T) {
	var buf bytes.Buffer
	Plan(&buf, reconcile.Plan{
		New: []domain.Application{{
			Company:   "Acme",
			Role:      "Engineer",
			Status:    status.Submitted,
			Submitted: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			Link:      "https://mail.google.com/mail/u/0/#inbox/a",
		}},
		Updates: []reconcile.Update{{Row: 7, Company: "Globex", Role: "Analyst", Previous: status.Submitted, Status: status.Interview}},
		Merged:  1,
	})

	out := buf.String()
	assert.Contains(t, out, "New applications")
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "2026-01-02")
	assert.Contains(t, out, "Status updates")
	assert.Contains(t, out, status.LabelInterview)
	assert.Contains(t, out, "Merged duplicates: 1, unchanged: 0")
}

func TestPlanEmpty(t *testing.T) {
	var buf bytes.Buffer
	Plan(&buf, reconcile.Plan{Unchanged: 3})

	assert.Contains(t, buf.String(), "Nothing to write.")
	assert.NotContains(t, buf.String(), "New applications")
	assert.Contains(t, buf.String(), "unchanged: 3")
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, usecase.Summary{RunID: "run-1", Fetched: 5, Appended: 2, Interrupted: true, DryRun: true, Duration: 1500 * time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, "Dry run summary")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "yes")
}

func TestChecks(t *testing.T) {
	var buf bytes.Buffer
	Checks(&buf, []usecase.CheckResult{
		{Name: "gmail"},
		{Name: "sheets", Err: errors.New("sheet tab missing")},
	})

	out := buf.String()
	assert.Contains(t, out, "gmail")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "sheet tab missing")
}
