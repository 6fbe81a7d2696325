// Package reconcile folds a batch of extracted applications into the rows a sink already holds.
package reconcile

import (
	"log/slog"

	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/status"
)

// Update is a status/link change for a persisted row.
type Update struct {
	Row      int64
	Company  string
	Role     string
	Previous status.Status
	Status   status.Status
	Link     string
}

// Plan is the outcome of reconciling one batch.
type Plan struct {
	// New holds one record per distinct identity key, in first-seen order.
	New []domain.Application
	// Updates holds at most one change per persisted row, in first-seen order.
	Updates []Update
	// Merged counts in-batch duplicates folded into a queued record.
	Merged int
	// Unchanged counts records that did not outrank what was already known.
	Unchanged int
}

// Empty reports whether the plan has nothing to write.
func (p Plan) Empty() bool {
	return len(p.New) == 0 && len(p.Updates) == 0
}

// Engine reconciles batches against a snapshot it owns. It is not safe for
// concurrent use; callers serialize batches through a single owner.
type Engine struct {
	snapshot Snapshot
	batch    int
	logger   *slog.Logger
}

// NewEngine wraps a snapshot loaded from the sink. A nil snapshot is treated as empty.
func NewEngine(snapshot Snapshot, logger *slog.Logger) *Engine {
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	return &Engine{snapshot: snapshot, logger: logger}
}

// Lookup returns the current snapshot entry for key.
func (e *Engine) Lookup(key Key) (Entry, bool) {
	entry, ok := e.snapshot[key]
	return entry, ok
}

// Reconcile partitions records, in order, into new records and row updates.
//
// The first record for an unseen key is queued as new; later records with the same key
// only raise the queued status. Records matching a persisted row produce an update when
// their status outranks the row's. Entries queued by an earlier call are never requeued.
func (e *Engine) Reconcile(records []domain.Application) Plan {
	e.batch++
	batch := e.batch

	var plan Plan
	updateIdx := map[int64]int{}

	for _, rec := range records {
		key := KeyOf(rec.Company, rec.Role)
		if !key.Valid() || rec.IsPlaceholder() {
			plan.New = append(plan.New, rec)
			continue
		}

		entry, found := e.snapshot[key]
		if !found {
			plan.New = append(plan.New, rec)
			e.snapshot[key] = Entry{
				Origin: PendingInBatch{batch: batch, index: len(plan.New) - 1},
				Status: rec.Status,
				Link:   rec.Link,
			}
			continue
		}

		if !status.ShouldUpdate(entry.Status, rec.Status) {
			e.debug("record does not outrank known status", "company", rec.Company, "role", rec.Role,
				"known", entry.Status.String(), "candidate", rec.Status.String())
			if pending, ok := entry.Origin.(PendingInBatch); ok && pending.batch == batch {
				plan.Merged++
			} else {
				plan.Unchanged++
			}
			continue
		}

		switch origin := entry.Origin.(type) {
		case PendingInBatch:
			if origin.batch != batch {
				// queued by an earlier batch; its row is not addressable from here
				plan.Unchanged++
				continue
			}
			plan.Merged++
			queued := &plan.New[origin.index]
			queued.Status = rec.Status
			queued.Link = rec.Link
			entry.Status = rec.Status
			entry.Link = rec.Link
			e.snapshot[key] = entry

		case Persisted:
			if i, ok := updateIdx[origin.Row]; ok {
				plan.Updates[i].Status = rec.Status
				plan.Updates[i].Link = rec.Link
			} else {
				updateIdx[origin.Row] = len(plan.Updates)
				plan.Updates = append(plan.Updates, Update{
					Row:      origin.Row,
					Company:  rec.Company,
					Role:     rec.Role,
					Previous: entry.Status,
					Status:   rec.Status,
					Link:     rec.Link,
				})
			}
			entry.Status = rec.Status
			entry.Link = rec.Link
			e.snapshot[key] = entry
		}
	}

	return plan
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
