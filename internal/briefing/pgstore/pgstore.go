// Package pgstore provides a PostgreSQL implementation of briefing.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/hermes/internal/briefing"
)

var tracer = otel.Tracer("github.com/linnemanlabs/hermes/internal/briefing/pgstore")

//go:embed schema.sql
var schema string

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// Store persists briefing run state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// BeginRun inserts the pending run, claiming its date. The partial unique
// index on non-failed runs turns a concurrent or committed run for the same
// date into briefing.ErrRunExists.
func (s *Store) BeginRun(ctx context.Context, run *briefing.Run) error {
	ctx, span := startSpan(ctx, "pgstore.BeginRun", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO briefing_runs (id, run_date, status, created_at)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.RunDate, string(run.Status), run.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return briefing.ErrRunExists
		}
		return spanErr(span, fmt.Errorf("insert run: %w", err))
	}
	return nil
}

// PutRun updates a run's status, counts, and error.
func (s *Store) PutRun(ctx context.Context, run *briefing.Run) error {
	ctx, span := startSpan(ctx, "pgstore.PutRun", "UPDATE")
	defer span.End()

	if err := s.updateRun(ctx, s.pool, run); err != nil {
		return spanErr(span, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*briefing.Run, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetRun", "SELECT")
	defer span.End()

	row := s.pool.QueryRow(ctx,
		`SELECT id, to_char(run_date, 'YYYY-MM-DD'), status, error, counts, created_at, completed_at, duration_s
		 FROM briefing_runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if run == nil {
		return nil, false, nil
	}
	return run, true, nil
}

// Ledger loads the full published-fingerprint set and last run time.
func (s *Store) Ledger(ctx context.Context) (*briefing.Ledger, error) {
	ctx, span := startSpan(ctx, "pgstore.Ledger", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT fingerprint FROM published_stories`)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query ledger: %w", err))
	}
	defer rows.Close()

	published := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan fingerprint: %w", err))
		}
		published[fp] = true
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate ledger: %w", err))
	}

	ledger := &briefing.Ledger{Published: published}

	var lastRunAt *time.Time
	err = s.pool.QueryRow(ctx, `SELECT last_run_at FROM run_state WHERE singleton`).Scan(&lastRunAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, spanErr(span, fmt.Errorf("query run state: %w", err))
	}
	if lastRunAt != nil {
		ledger.LastRunAt = *lastRunAt
	}
	return ledger, nil
}

// CommitBriefing stores the briefing, marks its entries published, records
// last_run_at, and finalizes the run, all in one transaction. A fingerprint
// already in the ledger aborts the whole commit with ErrAlreadyPublished.
func (s *Store) CommitBriefing(ctx context.Context, run *briefing.Run, b *briefing.Briefing) error {
	ctx, span := startSpan(ctx, "pgstore.CommitBriefing", "INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	for _, e := range b.Entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO published_stories (fingerprint, run_date, title, published_at)
			 VALUES ($1, $2, $3, $4)`,
			e.Story.Fingerprint, b.RunDate, e.Story.Representative.Title, b.RenderedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return spanErr(span, fmt.Errorf("%w: %s",
					briefing.ErrAlreadyPublished, e.Story.Fingerprint))
			}
			return spanErr(span, fmt.Errorf("insert published story: %w", err))
		}
	}

	entriesJSON, err := json.Marshal(b.Entries)
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal entries: %w", err))
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO briefings (run_date, run_id, document, entries, rendered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.RunDate, run.ID, b.Document, entriesJSON, b.RenderedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert briefing: %w", err))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO run_state (singleton, last_run_at) VALUES (TRUE, $1)
		 ON CONFLICT (singleton) DO UPDATE SET last_run_at = EXCLUDED.last_run_at`,
		run.CompletedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("update run state: %w", err))
	}

	if err := s.updateRun(ctx, tx, run); err != nil {
		return spanErr(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GetBriefing retrieves a committed briefing by run date.
func (s *Store) GetBriefing(ctx context.Context, runDate string) (*briefing.Briefing, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetBriefing", "SELECT")
	defer span.End()

	var (
		b           briefing.Briefing
		entriesJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT to_char(run_date, 'YYYY-MM-DD'), document, entries, rendered_at
		 FROM briefings WHERE run_date = $1`, runDate,
	).Scan(&b.RunDate, &b.Document, &entriesJSON, &b.RenderedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, spanErr(span, fmt.Errorf("query briefing: %w", err))
	}

	if err := json.Unmarshal(entriesJSON, &b.Entries); err != nil {
		return nil, false, spanErr(span, fmt.Errorf("unmarshal entries: %w", err))
	}
	return &b, true, nil
}

// execer covers both pool and transaction for run updates.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) updateRun(ctx context.Context, db execer, run *briefing.Run) error {
	countsJSON, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}

	var completedAt *time.Time
	if !run.CompletedAt.IsZero() {
		completedAt = &run.CompletedAt
	}

	tag, err := db.Exec(ctx,
		`UPDATE briefing_runs SET
			status = $2, error = $3, counts = $4, completed_at = $5, duration_s = $6
		 WHERE id = $1`,
		run.ID, string(run.Status), run.Error, countsJSON, completedAt, run.Duration,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run: no row for id %s", run.ID)
	}
	return nil
}

func scanRun(row pgx.Row) (*briefing.Run, error) {
	var (
		r           briefing.Run
		status      string
		countsJSON  []byte
		completedAt *time.Time
	)
	err := row.Scan(&r.ID, &r.RunDate, &status, &r.Error, &countsJSON, &r.CreatedAt, &completedAt, &r.Duration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.Status = briefing.Status(status)
	if completedAt != nil {
		r.CompletedAt = *completedAt
	}
	if err := json.Unmarshal(countsJSON, &r.Counts); err != nil {
		return nil, fmt.Errorf("unmarshal counts: %w", err)
	}
	return &r, nil
}
