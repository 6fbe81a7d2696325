package reconcile

import (
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/normalize"
	"ApplicationScanner/internal/status"
)

// Key identifies one job application across messages.
type Key struct {
	Company string
	Role    string
}

// KeyOf builds the identity key for a company/role pair.
func KeyOf(company, role string) Key {
	return Key{Company: normalize.Company(company), Role: normalize.Role(role)}
}

// failedExtraction reports whether both halves are placeholders. Such records carry
// no identity and each one keeps its own row.
func failedExtraction(company, role string) bool {
	return company == domain.PlaceholderCompany && role == domain.PlaceholderRole
}

// Valid reports whether the key can take part in deduplication.
func (k Key) Valid() bool {
	return k.Company != "" && k.Role != ""
}

// Origin tells where a snapshot entry lives: Persisted or PendingInBatch.
type Origin interface {
	origin()
}

// Persisted is an entry backed by a sink row.
type Persisted struct {
	Row int64
}

// PendingInBatch is an entry queued for insertion by the current batch.
type PendingInBatch struct {
	batch int
	index int
}

func (Persisted) origin()      {}
func (PendingInBatch) origin() {}

// Entry is the snapshot value for one key.
type Entry struct {
	Origin Origin
	Status status.Status
	Link   string
}

// Snapshot maps identity keys to what the sink (or the current batch) already holds.
type Snapshot map[Key]Entry

// NewSnapshot indexes sink rows by identity key. Rows whose key has an empty half and
// rows left by failed extractions are skipped. When several rows share a key the later
// row wins.
func NewSnapshot(rows []domain.StoredApplication) Snapshot {
	snap := make(Snapshot, len(rows))
	for _, row := range rows {
		key := KeyOf(row.Company, row.Role)
		if !key.Valid() || failedExtraction(row.Company, row.Role) {
			continue
		}
		snap[key] = Entry{
			Origin: Persisted{Row: row.Row},
			Status: row.Status,
			Link:   row.Link,
		}
	}
	return snap
}
