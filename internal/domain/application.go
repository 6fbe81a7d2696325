package domain

import (
	"time"

	"ApplicationScanner/internal/status"
)

// Placeholders substituted when extraction yields no usable company or role.
const (
	PlaceholderCompany = "Unknown Company"
	PlaceholderRole    = "Unknown Role"
)

// DateLayout is the calendar-date format used for submission dates and the since filter.
const DateLayout = "2006-01-02"

// Message is a single inbox message as fetched from the mail source.
type Message struct {
	ID      string
	Subject string
	Sender  string
	Body    string
	Link    string
	SentAt  time.Time
}

// Extraction is the raw classifier output for one message. Any field may hold a
// placeholder such as "Unknown" or "n/a".
type Extraction struct {
	Company string
	Role    string
	Status  string
}

// Application is one job application event ready for reconciliation.
type Application struct {
	Company   string
	Role      string
	Status    status.Status
	Submitted time.Time
	Link      string
}

// SubmittedOn renders the submission date as YYYY-MM-DD.
func (a Application) SubmittedOn() string {
	if a.Submitted.IsZero() {
		return ""
	}
	return a.Submitted.Format(DateLayout)
}

// IsPlaceholder reports whether the record stands in for a failed extraction: neither
// company nor role could be recovered.
func (a Application) IsPlaceholder() bool {
	return a.Company == PlaceholderCompany && a.Role == PlaceholderRole
}

// StoredApplication is a row already persisted in the tabular sink.
type StoredApplication struct {
	Row     int64
	Company string
	Role    string
	Status  status.Status
	Link    string
}
