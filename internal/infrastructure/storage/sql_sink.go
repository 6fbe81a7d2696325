package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/ports"
	"ApplicationScanner/internal/status"
)

const defaultBatchSize = 100

var tableNameExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSink persists applications in a relational table. The row number reported to the
// reconciler is the table's surrogate id.
type SQLSink struct {
	db        *sql.DB
	backend   string
	table     string
	batchSize int
	builder   sq.StatementBuilderType
	logger    *slog.Logger
}

var (
	_ ports.ApplicationSink = (*SQLSink)(nil)
	_ ports.Verifier        = (*SQLSink)(nil)
)

// Open connects to the database selected by backend (postgres or sqlite).
func Open(ctx context.Context, backend, dsn string) (*sql.DB, error) {
	driver, err := driverName(backend)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backend, err)
	}
	if backend == config.SinkSQLite {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", backend, err)
	}
	return db, nil
}

func driverName(backend string) (string, error) {
	switch backend {
	case config.SinkPostgres:
		return "postgres", nil
	case config.SinkSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported sql backend %q", backend)
	}
}

// NewSQLSink wires an open database. Postgres gets $n placeholders, everything else ?.
func NewSQLSink(db *sql.DB, backend, table string, logger *slog.Logger) (*SQLSink, error) {
	if table == "" {
		table = "applications"
	}
	if !tableNameExpr.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = slog.Default()
	}

	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if backend == config.SinkPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLSink{
		db:        db,
		backend:   backend,
		table:     table,
		batchSize: defaultBatchSize,
		builder:   builder,
		logger:    logger,
	}, nil
}

// Name identifies the adapter in prerequisite checks.
func (s *SQLSink) Name() string {
	return s.backend
}

// Verify pings the database and makes sure the table exists.
func (s *SQLSink) Verify(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database is not configured")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return s.EnsureSchema(ctx)
}

// EnsureSchema creates the applications table when missing.
func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.backend == config.SinkPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id %s,
    company TEXT NOT NULL,
    status TEXT NOT NULL,
    role TEXT NOT NULL,
    submitted_on TEXT,
    link TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, s.table, id)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// ReadAll returns every stored application ordered by id.
func (s *SQLSink) ReadAll(ctx context.Context) ([]domain.StoredApplication, error) {
	query, args, err := s.builder.
		Select("id", "company", "status", "role", "link").
		From(s.table).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}

	var result []domain.StoredApplication
	for rows.Next() {
		var (
			app   domain.StoredApplication
			label string
		)
		if err := rows.Scan(&app.Row, &app.Company, &label, &app.Role, &app.Link); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan application: %w", err)
		}
		st, ok := status.ParseLabel(label)
		if !ok {
			s.logger.Warn("unrecognised status label", "id", app.Row, "value", label)
		}
		app.Status = st
		result = append(result, app)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Append inserts apps in order, one multi-row INSERT per batch.
func (s *SQLSink) Append(ctx context.Context, apps []domain.Application) (int, error) {
	written := 0
	for start := 0; start < len(apps); start += s.batchSize {
		end := min(start+s.batchSize, len(apps))

		insert := s.builder.
			Insert(s.table).
			Columns("company", "status", "role", "submitted_on", "link")
		for _, app := range apps[start:end] {
			insert = insert.Values(app.Company, app.Status.Label(), app.Role, nullableDate(app), app.Link)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return written, fmt.Errorf("build insert: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return written, fmt.Errorf("insert applications: %w", err)
		}
		written += end - start
	}
	if written > 0 {
		s.logger.Info("inserted applications", "count", written, "table", s.table)
	}
	return written, nil
}

// Update sets the status and link of one stored application.
func (s *SQLSink) Update(ctx context.Context, row int64, st status.Status, link string) error {
	query, args, err := s.builder.
		Update(s.table).
		Set("status", st.Label()).
		Set("link", link).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": row}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update application %d: %w", row, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update application %d: %w", row, sql.ErrNoRows)
	}
	return nil
}

func nullableDate(app domain.Application) any {
	if d := app.SubmittedOn(); d != "" {
		return d
	}
	return nil
}
