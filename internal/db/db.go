package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/scan-sweeper/internal/model"
)

const batchSize = 100

// maxStoredStream bounds captured scanner output kept per item.
const maxStoredStream = 8 * 1024

type Store struct{ Pool *pgxpool.Pool }

func Open(ctx context.Context, url string) (*Store, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: p}, nil
}

func (s *Store) Close() { s.Pool.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

// IsInsufficientPrivilege reports a Postgres 42501 error, raised when the
// role may not create the schema.
func IsInsufficientPrivilege(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}

func (s *Store) StartRun(ctx context.Context, run model.RunInfo) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO sweep_runs (id, root, status, started_at, total_items, start_cursor, end_cursor)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO NOTHING
	`, run.ID.String(), run.Root, string(model.RunRunning), run.StartedAt, run.Total, run.StartCursor)
	return err
}

func (s *Store) FinishRun(ctx context.Context, run model.RunInfo) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE sweep_runs
		SET status=$2, finished_at=$3, end_cursor=$4,
		    processed=$5, scanned=$6, reused=$7, skipped=$8, failed=$9, reported=$10
		WHERE id=$1::uuid
	`, run.ID.String(), string(run.Status), run.FinishedAt, run.EndCursor,
		run.Processed, run.Scanned, run.Reused, run.Skipped, run.Failed, run.Reported)
	return err
}

func (s *Store) RecordItem(ctx context.Context, runID uuid.UUID, o model.ItemOutcome) error {
	var exitCode *int
	if o.Outcome == model.OutcomeScanFailed {
		code := o.ExitCode
		exitCode = &code
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO sweep_items (run_id, item, item_index, outcome, exit_code, stdout_tail, stderr_tail, reportable, report_path)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
	`, runID.String(), o.Item, o.Index, string(o.Outcome), exitCode,
		nullableString(tail(o.Stdout, maxStoredStream)), nullableString(tail(o.Stderr, maxStoredStream)),
		o.Reportable, nullableString(o.ReportPath))
	return err
}

// RecordReport stores a filtered report and its findings. A report name that
// is already present is left untouched, so ingesting twice is harmless.
// runID may be uuid.Nil for reports that did not come from a live run.
func (s *Store) RecordReport(ctx context.Context, runID uuid.UUID, name, objectKey string, rep model.FilteredReport) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var run *string
	if runID != uuid.Nil {
		id := runID.String()
		run = &id
	}
	summaryJSON, _ := json.Marshal(rep.Summary())

	var reportID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO sweep_reports (run_id, item, report_name, object_key, created_at, summary_json)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (report_name) DO NOTHING
		RETURNING id
	`, run, rep.Item, name, nullableString(objectKey), rep.CreatedAt, string(summaryJSON)).Scan(&reportID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := batchInsertFindings(ctx, tx, reportID, rep.Findings); err != nil {
		return fmt.Errorf("batch insert findings: %w", err)
	}
	return tx.Commit(ctx)
}

// batchInsertFindings pipelines finding inserts in groups of batchSize.
func batchInsertFindings(ctx context.Context, tx pgx.Tx, reportID int64, findings []model.Finding) error {
	for start := 0; start < len(findings); start += batchSize {
		end := start + batchSize
		if end > len(findings) {
			end = len(findings)
		}
		chunk := findings[start:end]

		batch := &pgx.Batch{}
		for i, f := range chunk {
			tags := f.Tags
			if tags == nil {
				tags = []string{}
			}
			tagsJSON, _ := json.Marshal(tags)
			batch.Queue(`
INSERT INTO sweep_findings (report_id, position, severity, tags, line)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (report_id, position) DO NOTHING`,
				reportID, start+i, nullableString(string(f.Severity)), string(tagsJSON), f.Line)
		}

		br := tx.SendBatch(ctx, batch)
		for range chunk {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ReportExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sweep_reports WHERE report_name=$1)`, name).Scan(&exists)
	return exists, err
}

// InterruptStaleRuns closes runs left in 'running' by a process that died
// without finishing them.
func (s *Store) InterruptStaleRuns(ctx context.Context, idleFor time.Duration) ([]string, error) {
	seconds := int64(idleFor.Seconds())
	if seconds <= 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
		WITH stale AS (
			SELECT r.id
			FROM sweep_runs r
			LEFT JOIN LATERAL (
				SELECT MAX(created_at) AS last_item_ts
				FROM sweep_items i
				WHERE i.run_id = r.id
			) it ON true
			WHERE r.status='running'
			  AND COALESCE(it.last_item_ts, r.started_at) < now() - ($1::bigint * interval '1 second')
		)
		UPDATE sweep_runs r
		SET status='interrupted', finished_at=now()
		FROM stale
		WHERE r.id = stale.id
		RETURNING r.id::text
	`, seconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) RecentRuns(ctx context.Context, limit int) ([]model.RunInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.Pool.Query(ctx, `
SELECT id::text, root, status, started_at, COALESCE(finished_at, started_at),
       total_items, start_cursor, end_cursor, processed, scanned, reused, skipped, failed, reported
FROM sweep_runs
ORDER BY started_at DESC
LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.RunInfo, 0, limit)
	for rows.Next() {
		var (
			r      model.RunInfo
			id     string
			status string
		)
		if err := rows.Scan(&id, &r.Root, &status, &r.StartedAt, &r.FinishedAt,
			&r.Total, &r.StartCursor, &r.EndCursor, &r.Processed, &r.Scanned,
			&r.Reused, &r.Skipped, &r.Failed, &r.Reported); err != nil {
			return nil, err
		}
		r.ID, _ = uuid.Parse(id)
		r.Status = model.RunStatus(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// tail keeps at most the last n bytes of s as text Postgres accepts: the cut
// moves forward to a rune boundary, invalid sequences and NUL bytes go.
func tail(s string, n int) string {
	if len(s) > n {
		s = s[len(s)-n:]
		i := 0
		for i < len(s) && !utf8.RuneStart(s[i]) {
			i++
		}
		s = s[i:]
	}
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sweep_runs (
  id UUID PRIMARY KEY,
  root TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('running','completed','interrupted','aborted')),
  started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  finished_at TIMESTAMPTZ,
  total_items INTEGER NOT NULL DEFAULT 0,
  start_cursor INTEGER NOT NULL DEFAULT 0,
  end_cursor INTEGER NOT NULL DEFAULT 0,
  processed INTEGER NOT NULL DEFAULT 0,
  scanned INTEGER NOT NULL DEFAULT 0,
  reused INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  reported INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sweep_runs_status_started ON sweep_runs (status, started_at);

CREATE TABLE IF NOT EXISTS sweep_items (
  id BIGSERIAL PRIMARY KEY,
  run_id UUID NOT NULL REFERENCES sweep_runs(id) ON DELETE CASCADE,
  item TEXT NOT NULL,
  item_index INTEGER NOT NULL,
  outcome TEXT NOT NULL,
  exit_code INTEGER,
  stdout_tail TEXT,
  stderr_tail TEXT,
  reportable INTEGER NOT NULL DEFAULT 0,
  report_path TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sweep_items_run ON sweep_items (run_id, item_index);
CREATE INDEX IF NOT EXISTS idx_sweep_items_item ON sweep_items (item, created_at);

CREATE TABLE IF NOT EXISTS sweep_reports (
  id BIGSERIAL PRIMARY KEY,
  run_id UUID REFERENCES sweep_runs(id) ON DELETE SET NULL,
  item TEXT NOT NULL,
  report_name TEXT NOT NULL UNIQUE,
  object_key TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  summary_json JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_sweep_reports_item ON sweep_reports (item, created_at);

CREATE TABLE IF NOT EXISTS sweep_findings (
  id BIGSERIAL PRIMARY KEY,
  report_id BIGINT NOT NULL REFERENCES sweep_reports(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  severity TEXT,
  tags JSONB NOT NULL DEFAULT '[]'::jsonb,
  line TEXT NOT NULL,
  UNIQUE(report_id, position)
);

CREATE INDEX IF NOT EXISTS idx_sweep_findings_severity ON sweep_findings (severity);
`)
	return err
}
