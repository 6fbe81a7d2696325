package ports

import (
	"context"
	"errors"
	"iter"
	"time"

	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/status"
)

// ErrExtraction marks a terminal extractor failure for a single message.
var ErrExtraction = errors.New("extraction failed")

// Query selects messages from a mail source.
type Query struct {
	Since time.Time
	// Until is exclusive; zero means no upper bound.
	Until time.Time
	// Max caps the number of messages yielded after Filter; zero means no cap.
	Max int
	// Filter drops ids that should not be fetched, preserving order.
	Filter func(ids []string) []string
}

// MailSource streams messages matching a query, oldest page first as the provider returns them.
type MailSource interface {
	Messages(ctx context.Context, q Query) iter.Seq2[domain.Message, error]
}

// Extractor turns one message into a structured extraction.
type Extractor interface {
	Extract(ctx context.Context, msg domain.Message) (domain.Extraction, error)
}

// ApplicationSink is the tabular store holding one row per application.
type ApplicationSink interface {
	ReadAll(ctx context.Context) ([]domain.StoredApplication, error)
	// Append writes the records in order and returns how many rows were written.
	Append(ctx context.Context, apps []domain.Application) (int, error)
	Update(ctx context.Context, row int64, st status.Status, link string) error
}

// Verifier is implemented by adapters that can check their prerequisites up front.
type Verifier interface {
	Name() string
	Verify(ctx context.Context) error
}

// Stamper is implemented by sinks that record the time of the last successful run.
type Stamper interface {
	Stamp(ctx context.Context, at time.Time) error
}

// Notifier delivers a short run summary to a chat channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
