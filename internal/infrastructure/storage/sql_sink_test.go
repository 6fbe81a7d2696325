package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/domain"
	"ApplicationScanner/internal/status"
)

func newMockSink(t *testing.T, backend string) (*SQLSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sink, err := NewSQLSink(db, backend, "applications", nil)
	require.NoError(t, err)
	return sink, mock
}

func TestNewSQLSink_RejectsBadTableName(t *testing.T) {
	_, err := NewSQLSink(nil, config.SinkPostgres, "apps; DROP TABLE x", nil)
	assert.ErrorContains(t, err, "invalid table name")
}

func TestSQLSink_ReadAll(t *testing.T) {
	sink, mock := newMockSink(t, config.SinkPostgres)

	rows := sqlmock.NewRows([]string{"id", "company", "status", "role", "link"}).
		AddRow(int64(1), "Acme", status.LabelSubmitted, "Engineer", "l1").
		AddRow(int64(2), "Globex", "garbage", "Analyst", "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, company, status, role, link FROM applications ORDER BY id")).
		WillReturnRows(rows)

	got, err := sink.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.StoredApplication{Row: 1, Company: "Acme", Role: "Engineer", Status: status.Submitted, Link: "l1"}, got[0])
	assert.Equal(t, status.Unknown, got[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_ReadAllError(t *testing.T) {
	sink, mock := newMockSink(t, config.SinkPostgres)
	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)

	_, err := sink.ReadAll(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_AppendBatches(t *testing.T) {
	sink, mock := newMockSink(t, config.SinkPostgres)
	sink.batchSize = 2

	day := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	apps := []domain.Application{
		{Company: "Acme", Role: "Engineer", Status: status.Submitted, Submitted: day, Link: "l1"},
		{Company: "Globex", Role: "Analyst", Status: status.Interview, Submitted: day, Link: "l2"},
		{Company: "Initech", Role: "SRE", Status: status.Rejected, Link: "l3"},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications (company,status,role,submitted_on,link) VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10)")).
		WithArgs("Acme", status.LabelSubmitted, "Engineer", "2026-01-03", "l1",
			"Globex", status.LabelInterview, "Analyst", "2026-01-03", "l2").
		WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications (company,status,role,submitted_on,link) VALUES ($1,$2,$3,$4,$5)")).
		WithArgs("Initech", status.LabelRejected, "SRE", nil, "l3").
		WillReturnResult(sqlmock.NewResult(3, 1))

	n, err := sink.Append(context.Background(), apps)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_AppendPartialFailure(t *testing.T) {
	sink, mock := newMockSink(t, config.SinkSQLite)
	sink.batchSize = 1

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications (company,status,role,submitted_on,link) VALUES (?,?,?,?,?)")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO applications").WillReturnError(sql.ErrTxDone)

	n, err := sink.Append(context.Background(), []domain.Application{
		{Company: "Acme", Role: "Engineer"},
		{Company: "Globex", Role: "Analyst"},
	})
	assert.ErrorIs(t, err, sql.ErrTxDone)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_Update(t *testing.T) {
	sink, mock := newMockSink(t, config.SinkPostgres)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = $1, link = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3")).
		WithArgs(status.LabelInterview, "new", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, sink.Update(context.Background(), 7, status.Interview, "new"))

	mock.ExpectExec("UPDATE applications").WillReturnResult(sqlmock.NewResult(0, 0))
	err := sink.Update(context.Background(), 99, status.Rejected, "x")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_Verify(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewSQLSink(db, config.SinkPostgres, "", nil)
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, sink.Verify(context.Background()))
	assert.Equal(t, "postgres", sink.Name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSink_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, config.SinkSQLite, filepath.Join(t.TempDir(), "apps.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer db.Close()

	sink, err := NewSQLSink(db, config.SinkSQLite, "applications", nil)
	require.NoError(t, err)
	require.NoError(t, sink.EnsureSchema(ctx))

	n, err := sink.Append(ctx, []domain.Application{
		{Company: "Acme", Role: "Engineer", Status: status.Submitted, Submitted: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Link: "l1"},
		{Company: "Globex", Role: "Analyst", Status: status.AssessmentInvite, Link: "l2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := sink.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	require.NoError(t, sink.Update(ctx, stored[0].Row, status.Interview, "l9"))

	stored, err = sink.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.Interview, stored[0].Status)
	assert.Equal(t, "l9", stored[0].Link)
	assert.Equal(t, status.AssessmentInvite, stored[1].Status)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported sql backend")
}
