package pgstore_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linnemanlabs/hermes/internal/article"
	"github.com/linnemanlabs/hermes/internal/briefing"
	"github.com/linnemanlabs/hermes/internal/briefing/pgstore"
	"github.com/linnemanlabs/hermes/internal/impact"
	"github.com/linnemanlabs/hermes/internal/postgres"
	"github.com/linnemanlabs/hermes/internal/story"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("HERMES_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HERMES_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

var dateSeq atomic.Int64

func uniqueDate(t *testing.T) string {
	t.Helper()
	// Far-future synthetic dates keep test runs from colliding on the
	// active-date index; the sequence spreads calls across distinct days.
	days := int(time.Now().UnixNano()%100_000) + int(dateSeq.Add(1))*200_000
	return time.Now().UTC().AddDate(100, 0, days).Format(briefing.DateFormat)
}

func testBriefing(date, fingerprint string) *briefing.Briefing {
	return &briefing.Briefing{
		RunDate:    date,
		Document:   "# Briefing " + date,
		RenderedAt: time.Now().Truncate(time.Microsecond).UTC(),
		Entries: []briefing.Entry{{
			Rank: 1,
			Story: story.CanonicalStory{
				Fingerprint:    fingerprint,
				Representative: article.Article{Title: "Test Story", URL: "https://e.com/x"},
				SourceCount:    2,
				FirstSeenAt:    time.Now().Truncate(time.Microsecond).UTC(),
			},
			Assessment: impact.Assessment{Score: 80, Category: impact.CategoryBreach},
			Summary:    "summary",
			Commentary: "commentary",
		}},
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	date := uniqueDate(t)

	run := &briefing.Run{
		ID:        "test-run-" + date,
		RunDate:   date,
		Status:    briefing.StatusPending,
		CreatedAt: time.Now().Truncate(time.Microsecond).UTC(),
	}
	if err := s.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	// Date lock holds while the run is live.
	dup := &briefing.Run{ID: run.ID + "-dup", RunDate: date, Status: briefing.StatusPending, CreatedAt: run.CreatedAt}
	if err := s.BeginRun(ctx, dup); !errors.Is(err, briefing.ErrRunExists) {
		t.Fatalf("duplicate BeginRun err = %v, want ErrRunExists", err)
	}

	run.Status = briefing.StatusScoring
	run.Counts.EntriesFetched = 12
	if err := s.PutRun(ctx, run); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	got, ok, err := s.GetRun(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("GetRun: ok=%v err=%v", ok, err)
	}
	if got.Status != briefing.StatusScoring {
		t.Errorf("status = %q", got.Status)
	}
	if got.RunDate != date {
		t.Errorf("run_date = %q, want %q", got.RunDate, date)
	}
	if got.Counts.EntriesFetched != 12 {
		t.Errorf("counts.entries_fetched = %d, want 12", got.Counts.EntriesFetched)
	}
}

func TestCommitBriefing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	date := uniqueDate(t)
	fp := "fp-commit-" + date

	run := &briefing.Run{
		ID:        "test-commit-" + date,
		RunDate:   date,
		Status:    briefing.StatusPending,
		CreatedAt: time.Now().Truncate(time.Microsecond).UTC(),
	}
	if err := s.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	run.Status = briefing.StatusCommitted
	run.CompletedAt = time.Now().Truncate(time.Microsecond).UTC()
	run.Counts.Published = 1

	if err := s.CommitBriefing(ctx, run, testBriefing(date, fp)); err != nil {
		t.Fatalf("CommitBriefing: %v", err)
	}

	ledger, err := s.Ledger(ctx)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if !ledger.Has(fp) {
		t.Error("committed fingerprint missing from ledger")
	}
	if ledger.LastRunAt.IsZero() {
		t.Error("last_run_at not recorded")
	}

	b, ok, err := s.GetBriefing(ctx, date)
	if err != nil || !ok {
		t.Fatalf("GetBriefing: ok=%v err=%v", ok, err)
	}
	if len(b.Entries) != 1 || b.Entries[0].Story.Fingerprint != fp {
		t.Errorf("briefing entries = %+v", b.Entries)
	}
	if b.Document == "" {
		t.Error("expected stored document")
	}
}

func TestCommitBriefing_RepublishRejectedAtomically(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	date1, fp := uniqueDate(t), "fp-repub-"+uniqueDate(t)

	r1 := &briefing.Run{ID: "test-repub-1-" + date1, RunDate: date1, Status: briefing.StatusPending, CreatedAt: time.Now().UTC()}
	if err := s.BeginRun(ctx, r1); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	r1.Status = briefing.StatusCommitted
	r1.CompletedAt = time.Now().UTC()
	if err := s.CommitBriefing(ctx, r1, testBriefing(date1, fp)); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	date2 := uniqueDate(t)
	r2 := &briefing.Run{ID: "test-repub-2-" + date2, RunDate: date2, Status: briefing.StatusPending, CreatedAt: time.Now().UTC()}
	if err := s.BeginRun(ctx, r2); err != nil {
		t.Fatalf("BeginRun 2: %v", err)
	}
	r2.Status = briefing.StatusCommitted
	r2.CompletedAt = time.Now().UTC()

	err := s.CommitBriefing(ctx, r2, testBriefing(date2, fp))
	if !errors.Is(err, briefing.ErrAlreadyPublished) {
		t.Fatalf("err = %v, want ErrAlreadyPublished", err)
	}

	// Rejection must roll back the whole commit: no briefing for date2.
	if _, ok, _ := s.GetBriefing(ctx, date2); ok {
		t.Error("rejected commit must not store a briefing")
	}
}
