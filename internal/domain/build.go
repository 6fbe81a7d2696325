package domain

import (
	"strings"
	"time"

	"ApplicationScanner/internal/normalize"
	"ApplicationScanner/internal/status"
)

// NewApplication combines an extraction with its source message. Placeholder values
// from the classifier are replaced with the canonical placeholders and the raw status
// is mapped onto the closed status set.
func NewApplication(msg Message, ext Extraction, loc *time.Location) Application {
	company := strings.TrimSpace(ext.Company)
	if normalize.IsUnknown(company) {
		company = PlaceholderCompany
	}
	role := strings.TrimSpace(ext.Role)
	if normalize.IsUnknown(role) {
		role = PlaceholderRole
	}

	return Application{
		Company:   company,
		Role:      role,
		Status:    status.Classify(ext.Status),
		Submitted: submissionDate(msg.SentAt, loc),
		Link:      msg.Link,
	}
}

// PlaceholderApplication records a message whose extraction failed.
func PlaceholderApplication(msg Message, loc *time.Location) Application {
	return Application{
		Company:   PlaceholderCompany,
		Role:      PlaceholderRole,
		Status:    status.Unknown,
		Submitted: submissionDate(msg.SentAt, loc),
		Link:      msg.Link,
	}
}

func submissionDate(sent time.Time, loc *time.Location) time.Time {
	if sent.IsZero() {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := sent.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
