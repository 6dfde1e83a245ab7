package persist

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

const (
	insertRunSQL = "INSERT INTO runs (run_id, proposal, success, bundle, report, started_at, finished_at) VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT DO NOTHING"
	selectRunSQL = "SELECT run_id, proposal, success, bundle, report, started_at, finished_at, created_at FROM runs WHERE run_id=$1"
)

var runColumns = []string{"run_id", "proposal", "success", "bundle", "report", "started_at", "finished_at", "created_at"}

func TestPostgresSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &PostgresStore{DB: db}
	res := finishedResult("run-1")

	mock.ExpectExec(regexp.QuoteMeta(insertRunSQL)).
		WithArgs("run-1", res.State.Proposal, true, sqlmock.AnyArg(), sqlmock.AnyArg(), res.StartedAt, res.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.Save(context.Background(), res); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresInsertDedup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &PostgresStore{DB: db}
	finished := time.Unix(100, 0).UTC()
	rec := RunRecord{RunID: "run-1", Proposal: "p", Success: true, Bundle: json.RawMessage(`{"run_id":"run-1"}`), Report: "# r", StartedAt: time.Unix(0, 0).UTC(), FinishedAt: finished}

	mock.ExpectExec(regexp.QuoteMeta(insertRunSQL)).
		WithArgs(rec.RunID, rec.Proposal, rec.Success, []byte(rec.Bundle), rec.Report, rec.StartedAt, rec.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows(runColumns).
		AddRow(rec.RunID, rec.Proposal, true, []byte(rec.Bundle), rec.Report, rec.StartedAt, finished, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(selectRunSQL)).WithArgs(rec.RunID).WillReturnRows(rows)

	if err := st.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert dedup: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresInsertConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &PostgresStore{DB: db}
	rec := RunRecord{RunID: "run-1", Proposal: "p", Bundle: json.RawMessage(`{}`), StartedAt: time.Unix(0, 0).UTC(), FinishedAt: time.Unix(100, 0).UTC()}

	mock.ExpectExec(regexp.QuoteMeta(insertRunSQL)).
		WithArgs(rec.RunID, rec.Proposal, rec.Success, []byte(rec.Bundle), rec.Report, rec.StartedAt, rec.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows(runColumns).
		AddRow(rec.RunID, "other", true, []byte(`{}`), "", rec.StartedAt, time.Unix(500, 0).UTC(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(selectRunSQL)).WithArgs(rec.RunID).WillReturnRows(rows)

	if err := st.Insert(context.Background(), rec); !errors.Is(err, ErrRunExists) {
		t.Fatalf("expected ErrRunExists, got %v", err)
	}
}

func TestPostgresInsertValidates(t *testing.T) {
	st := &PostgresStore{}
	if err := st.Insert(context.Background(), RunRecord{Bundle: json.RawMessage(`{}`)}); err == nil {
		t.Fatalf("expected run_id error")
	}
	if err := st.Insert(context.Background(), RunRecord{RunID: "r"}); err == nil {
		t.Fatalf("expected bundle error")
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(selectRunSQL)).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, ok, err := (&PostgresStore{DB: db}).Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestPostgresBundle(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(runColumns).
		AddRow("run-1", "p", true, []byte(`{"run_id":"run-1","report":"# r","steps":9}`), "# r", time.Unix(0, 0), time.Unix(1, 0), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(selectRunSQL)).WithArgs("run-1").WillReturnRows(rows)

	b, ok, err := (&PostgresStore{DB: db}).Bundle(context.Background(), "run-1")
	if err != nil || !ok {
		t.Fatalf("Bundle: ok=%v err=%v", ok, err)
	}
	if b.RunID != "run-1" || b.Steps != 9 {
		t.Fatalf("bundle = %+v", b)
	}
}
