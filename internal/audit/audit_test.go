package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecorderStartAllocatesIDInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`select nextval\('audit_id_seq'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(41)))
	mock.ExpectExec("insert into audit_log").
		WithArgs(int64(41), "POST", "/spaces", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := NewRecorder(db, WithClock(fixedClock(now)))
	id, err := rec.Start(context.Background(), "POST", "/spaces")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id != 41 {
		t.Fatalf("id = %d, want 41", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecorderStartRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`select nextval\('audit_id_seq'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	mock.ExpectExec("insert into audit_log").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	rec := NewRecorder(db)
	if _, err := rec.Start(context.Background(), "GET", "/spaces"); err == nil {
		t.Fatal("Start succeeded despite failed insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecorderEndWritesCompletionRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 1, 12, 0, 1, 0, time.UTC)
	mock.ExpectExec("insert into audit_log").
		WithArgs(int64(41), "POST", "/spaces", sql.NullString{String: "alice", Valid: true}, 201, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewRecorder(db, WithClock(fixedClock(now)))
	if err := rec.End(context.Background(), 41, "POST", "/spaces", "alice", 201); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecorderEndWithoutSubjectWritesNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 1, 12, 0, 1, 0, time.UTC)
	mock.ExpectExec("insert into audit_log").
		WithArgs(int64(42), "POST", "/sessions", sql.NullString{}, 401, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewRecorder(db, WithClock(fixedClock(now)))
	if err := rec.End(context.Background(), 42, "POST", "/sessions", "", 401); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecorderReadReturnsRecentEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"audit_id", "method", "path", "user_id", "status", "audit_time"}).
		AddRow(int64(41), "POST", "/spaces", sql.NullString{String: "alice", Valid: true}, sql.NullInt64{Int64: 201, Valid: true}, now).
		AddRow(int64(41), "POST", "/spaces", sql.NullString{}, sql.NullInt64{}, now.Add(-time.Second))
	mock.ExpectQuery("select audit_id, method, path, user_id, status, audit_time").
		WithArgs(now.Add(-time.Hour)).
		WillReturnRows(rows)

	rec := NewRecorder(db, WithClock(fixedClock(now)))
	entries, err := rec.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Subject != "alice" || entries[0].Status != 201 {
		t.Fatalf("completion row = %+v", entries[0])
	}
	if entries[1].Subject != "" || entries[1].Status != 0 {
		t.Fatalf("start row = %+v", entries[1])
	}
}

func TestAuditIDTravelsWithContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := IDFromContext(ctx); ok {
		t.Fatal("id resolved from empty context")
	}
	ctx = WithID(ctx, 41)
	id, ok := IDFromContext(ctx)
	if !ok || id != 41 {
		t.Fatalf("id = %d, ok=%v", id, ok)
	}
}
