package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/ideascope/internal/pipeline"
	"github.com/mohammad-safakhou/ideascope/internal/report"
)

// ErrRunExists is returned when a different bundle was already stored for
// the run id.
var ErrRunExists = errors.New("run already stored")

// PostgresStore keeps bundles in the runs table.
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore opens and pings dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{DB: db}, nil
}

func (p *PostgresStore) Close() error { return p.DB.Close() }

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID      string
	Proposal   string
	Success    bool
	Bundle     json.RawMessage
	Report     string
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
}

// Save implements pipeline.Sink.
func (p *PostgresStore) Save(ctx context.Context, res pipeline.Result) error {
	b := report.NewBundle(res)
	md, err := report.Render(b)
	if err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return p.Insert(ctx, RunRecord{
		RunID:      b.RunID,
		Proposal:   b.Proposal,
		Success:    b.Success,
		Bundle:     data,
		Report:     md,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
	})
}

// Insert stores rec. Runs are written once: inserting the same run again is
// a no-op when the finish time matches, ErrRunExists otherwise.
func (p *PostgresStore) Insert(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("run_id required")
	}
	if len(rec.Bundle) == 0 {
		return fmt.Errorf("bundle payload required")
	}
	res, err := p.DB.ExecContext(ctx, `
INSERT INTO runs (run_id, proposal, success, bundle, report, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT DO NOTHING
`, rec.RunID, rec.Proposal, rec.Success, []byte(rec.Bundle), rec.Report, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		return nil
	} else if err != nil {
		return err
	}
	existing, ok, err := p.Get(ctx, rec.RunID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run insert conflict but existing record missing")
	}
	if existing.FinishedAt.Equal(rec.FinishedAt) {
		return nil
	}
	return ErrRunExists
}

// Get returns the stored run, or ok=false when there is none.
func (p *PostgresStore) Get(ctx context.Context, runID string) (RunRecord, bool, error) {
	var rec RunRecord
	var bundle []byte
	err := p.DB.QueryRowContext(ctx, `
SELECT run_id, proposal, success, bundle, report, started_at, finished_at, created_at
FROM runs WHERE run_id=$1
`, runID).Scan(&rec.RunID, &rec.Proposal, &rec.Success, &bundle, &rec.Report, &rec.StartedAt, &rec.FinishedAt, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	rec.Bundle = json.RawMessage(bundle)
	return rec, true, nil
}

// Bundle decodes the stored bundle for runID.
func (p *PostgresStore) Bundle(ctx context.Context, runID string) (report.Bundle, bool, error) {
	var b report.Bundle
	rec, ok, err := p.Get(ctx, runID)
	if err != nil || !ok {
		return b, ok, err
	}
	if err := json.Unmarshal(rec.Bundle, &b); err != nil {
		return b, false, fmt.Errorf("decode bundle %s: %w", runID, err)
	}
	return b, true, nil
}

// List returns the most recent runs, newest first, without their payloads.
func (p *PostgresStore) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.DB.QueryContext(ctx, `
SELECT run_id, proposal, success, started_at, finished_at, created_at
FROM runs ORDER BY finished_at DESC LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.RunID, &rec.Proposal, &rec.Success, &rec.StartedAt, &rec.FinishedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
