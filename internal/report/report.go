// Package report renders ledger progress, reconciliation plans and run summaries as
// terminal tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ApplicationScanner/internal/ledger"
	"ApplicationScanner/internal/reconcile"
	"ApplicationScanner/internal/usecase"
)

// maxLinkWidth keeps message links from blowing up the table width.
const maxLinkWidth = 60

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// Progress prints the ledger's cumulative counters.
func Progress(w io.Writer, p ledger.Progress) {
	t := newTable(w, "Processing progress")
	t.AppendRows([]table.Row{
		{"Last run", orDash(p.LastRun)},
		{"Since date", orDash(p.SinceDate)},
		{"Last message", orDash(p.LastProcessedID)},
		{"Messages processed", p.TotalProcessed},
		{"Rows written", p.TotalWritten},
		{"Tracked ids", p.Tracked},
	})
	t.Render()
}

// Plan prints the rows a run would append and the rows it would update.
func Plan(w io.Writer, plan reconcile.Plan) {
	if plan.Empty() {
		fmt.Fprintln(w, "Nothing to write.")
	}

	if len(plan.New) > 0 {
		t := newTable(w, "New applications")
		t.AppendHeader(table.Row{"#", "Company", "Role", "Status", "Date", "Link"})
		for i, app := range plan.New {
			t.AppendRow(table.Row{i + 1, app.Company, app.Role, app.Status.Label(), app.SubmittedOn(), app.Link})
		}
		t.SetColumnConfigs([]table.ColumnConfig{{Name: "Link", WidthMax: maxLinkWidth, WidthMaxEnforcer: text.Trim}})
		t.Render()
	}

	if len(plan.Updates) > 0 {
		t := newTable(w, "Status updates")
		t.AppendHeader(table.Row{"Row", "Company", "Role", "From", "To"})
		for _, u := range plan.Updates {
			t.AppendRow(table.Row{u.Row, u.Company, u.Role, u.Previous.Label(), u.Status.Label()})
		}
		t.Render()
	}

	if plan.Merged > 0 || plan.Unchanged > 0 {
		fmt.Fprintf(w, "Merged duplicates: %d, unchanged: %d\n", plan.Merged, plan.Unchanged)
	}
}

// Summary prints the outcome of one pipeline run.
func Summary(w io.Writer, s usecase.Summary) {
	title := "Run summary"
	if s.DryRun {
		title = "Dry run summary"
	}
	t := newTable(w, title)
	t.AppendRows([]table.Row{
		{"Run id", s.RunID},
		{"Messages handled", s.Fetched},
		{"Extracted", s.Extracted},
		{"Extraction failures", s.Failed},
		{"Rows appended", s.Appended},
		{"Rows updated", s.Updated},
		{"Duplicates merged", s.Plan.Merged},
		{"Unchanged", s.Plan.Unchanged},
		{"Interrupted", yesNo(s.Interrupted)},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
	})
	t.Render()
}

// Checks prints prerequisite results with a pass/fail marker per adapter.
func Checks(w io.Writer, results []usecase.CheckResult) {
	t := newTable(w, "Prerequisites")
	t.AppendHeader(table.Row{"Check", "Result", "Detail"})
	for _, r := range results {
		result, detail := "ok", ""
		if !r.OK() {
			result, detail = "FAILED", r.Err.Error()
		}
		t.AppendRow(table.Row{r.Name, result, detail})
	}
	t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
