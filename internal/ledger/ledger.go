// Package ledger tracks which source messages have been handled so an interrupted run can resume.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DefaultFlushEvery is the number of MarkProcessed calls between automatic saves.
const DefaultFlushEvery = 10

// State is the coarse lifecycle of a ledger.
type State int

const (
	Empty State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "empty"
}

// Progress is a read-only view of the ledger counters.
type Progress struct {
	LastRun         string
	LastProcessedID string
	SinceDate       string
	TotalProcessed  int
	TotalWritten    int
	Tracked         int
}

type record struct {
	ProcessedIDs    []string `json:"processed_ids"`
	LastProcessedID *string  `json:"last_processed_id"`
	LastRun         *string  `json:"last_run"`
	SinceDate       *string  `json:"since_date"`
	TotalProcessed  int      `json:"total_processed"`
	TotalWritten    int      `json:"total_written"`
}

// Ledger is the in-memory processing state plus its persistence policy.
// It is owned by a single pipeline and is not safe for concurrent use.
type Ledger struct {
	store      Store
	flushEvery int
	logger     *slog.Logger
	now        func() time.Time

	processed       map[string]struct{}
	lastProcessedID string
	lastRun         string
	sinceDate       string
	totalProcessed  int
	totalWritten    int

	unsaved int
	loaded  bool
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithFlushEvery sets the auto-save interval. Values below one disable auto-save.
func WithFlushEvery(n int) Option {
	return func(l *Ledger) { l.flushEvery = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp last_run.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns an empty ledger persisted through store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		flushEvery: DefaultFlushEvery,
		logger:     slog.Default(),
		now:        time.Now,
		processed:  map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "ledger")
	return l
}

// Load replaces the in-memory state with the persisted one. It reports whether a
// persisted ledger was found and parsed; missing or malformed data leaves the ledger empty.
func (l *Ledger) Load(ctx context.Context) bool {
	l.clear()

	data, err := l.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			l.logger.Info("no existing ledger found, starting fresh")
		} else {
			l.logger.Warn("failed to load ledger", "error", err)
		}
		return false
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		l.logger.Warn("failed to parse ledger, starting fresh", "error", err)
		return false
	}

	for _, id := range rec.ProcessedIDs {
		l.processed[id] = struct{}{}
	}
	l.lastProcessedID = deref(rec.LastProcessedID)
	l.lastRun = deref(rec.LastRun)
	l.sinceDate = deref(rec.SinceDate)
	l.totalProcessed = rec.TotalProcessed
	l.totalWritten = rec.TotalWritten
	l.loaded = true

	l.logger.Info("ledger loaded", "processed", len(l.processed))
	return true
}

// IsProcessed reports whether id was already handled.
func (l *Ledger) IsProcessed(id string) bool {
	_, ok := l.processed[id]
	return ok
}

// FilterUnprocessed returns the ids not yet handled, in their original order.
func (l *Ledger) FilterUnprocessed(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !l.IsProcessed(id) {
			out = append(out, id)
		}
	}
	return out
}

// MarkProcessed records id as handled and saves once every flush interval.
func (l *Ledger) MarkProcessed(ctx context.Context, id string) {
	l.processed[id] = struct{}{}
	l.lastProcessedID = id
	l.totalProcessed++
	l.unsaved++

	if l.flushEvery > 0 && l.unsaved >= l.flushEvery {
		_ = l.Save(ctx)
	}
}

// MarkWritten adds n to the cumulative count of rows written to the sink.
func (l *Ledger) MarkWritten(n int) {
	if n > 0 {
		l.totalWritten += n
	}
}

// SetSinceDate records the date filter this ledger belongs to.
func (l *Ledger) SetSinceDate(date string) {
	l.sinceDate = date
}

// SinceDate returns the recorded date filter, or "" when none is set.
func (l *Ledger) SinceDate() string {
	return l.sinceDate
}

// Save persists the full state and stamps last_run. Errors are logged and returned,
// but the in-memory state is kept so a later save can recover.
func (l *Ledger) Save(ctx context.Context) error {
	l.lastRun = l.now().Format(time.RFC3339)

	ids := make([]string, 0, len(l.processed))
	for id := range l.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rec := record{
		ProcessedIDs:    ids,
		LastProcessedID: ref(l.lastProcessedID),
		LastRun:         ref(l.lastRun),
		SinceDate:       ref(l.sinceDate),
		TotalProcessed:  l.totalProcessed,
		TotalWritten:    l.totalWritten,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		l.logger.Error("failed to encode ledger", "error", err)
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := l.store.Save(ctx, data); err != nil {
		l.logger.Error("failed to save ledger", "error", err)
		return err
	}

	l.unsaved = 0
	l.loaded = true
	l.logger.Debug("ledger saved", "tracked", len(ids))
	return nil
}

// Reset clears all state and deletes the persisted form.
func (l *Ledger) Reset(ctx context.Context) error {
	l.clear()
	if err := l.store.Delete(ctx); err != nil {
		l.logger.Warn("failed to delete ledger", "error", err)
		return err
	}
	l.logger.Info("ledger reset")
	return nil
}

// HasPreviousSession reports whether a persisted ledger with processed ids was loaded.
func (l *Ledger) HasPreviousSession() bool {
	return l.loaded && len(l.processed) > 0
}

// State returns Empty until something was loaded, processed or saved.
func (l *Ledger) State() State {
	if l.loaded || len(l.processed) > 0 || l.sinceDate != "" {
		return Active
	}
	return Empty
}

// Progress returns the current counters.
func (l *Ledger) Progress() Progress {
	return Progress{
		LastRun:         l.lastRun,
		LastProcessedID: l.lastProcessedID,
		SinceDate:       l.sinceDate,
		TotalProcessed:  l.totalProcessed,
		TotalWritten:    l.totalWritten,
		Tracked:         len(l.processed),
	}
}

func (l *Ledger) clear() {
	l.processed = map[string]struct{}{}
	l.lastProcessedID = ""
	l.lastRun = ""
	l.sinceDate = ""
	l.totalProcessed = 0
	l.totalWritten = 0
	l.unsaved = 0
	l.loaded = false
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
