package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/hermes/internal/article"
	"github.com/linnemanlabs/hermes/internal/briefing"
	"github.com/linnemanlabs/hermes/internal/story"
)

func testRun(id, date string) *briefing.Run {
	return &briefing.Run{
		ID:        id,
		RunDate:   date,
		Status:    briefing.StatusPending,
		CreatedAt: time.Now(),
	}
}

func testBriefing(date string, fingerprints ...string) *briefing.Briefing {
	b := &briefing.Briefing{RunDate: date, RenderedAt: time.Now()}
	for i, fp := range fingerprints {
		b.Entries = append(b.Entries, briefing.Entry{
			Rank:  i + 1,
			Story: story.CanonicalStory{Fingerprint: fp, Representative: article.Article{Title: fp}},
		})
	}
	return b
}

func TestBeginRun_LocksDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	if err := s.BeginRun(ctx, testRun("r1", "2026-03-02")); err != nil {
		t.Fatalf("first BeginRun: %v", err)
	}
	err := s.BeginRun(ctx, testRun("r2", "2026-03-02"))
	if !errors.Is(err, briefing.ErrRunExists) {
		t.Fatalf("second BeginRun err = %v, want ErrRunExists", err)
	}
	if err := s.BeginRun(ctx, testRun("r3", "2026-03-03")); err != nil {
		t.Errorf("different date should be allowed: %v", err)
	}
}

func TestBeginRun_FailedRunReleasesDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	r1 := testRun("r1", "2026-03-02")
	if err := s.BeginRun(ctx, r1); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	r1.Status = briefing.StatusFailed
	if err := s.PutRun(ctx, r1); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	if err := s.BeginRun(ctx, testRun("r2", "2026-03-02")); err != nil {
		t.Errorf("retry after failed run should be allowed: %v", err)
	}
}

func TestCommitBriefing_UpdatesLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	run := testRun("r1", "2026-03-02")
	if err := s.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	run.Status = briefing.StatusCommitted
	run.CompletedAt = time.Now()

	if err := s.CommitBriefing(ctx, run, testBriefing("2026-03-02", "fp-a", "fp-b")); err != nil {
		t.Fatalf("CommitBriefing: %v", err)
	}

	ledger, err := s.Ledger(ctx)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if !ledger.Has("fp-a") || !ledger.Has("fp-b") {
		t.Error("committed fingerprints missing from ledger")
	}
	if ledger.LastRunAt.IsZero() {
		t.Error("last_run_at not recorded")
	}

	b, ok, err := s.GetBriefing(ctx, "2026-03-02")
	if err != nil || !ok {
		t.Fatalf("GetBriefing: ok=%v err=%v", ok, err)
	}
	if len(b.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(b.Entries))
	}
}

func TestCommitBriefing_RejectsRepublish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	r1 := testRun("r1", "2026-03-02")
	r1.Status = briefing.StatusCommitted
	r1.CompletedAt = time.Now()
	if err := s.CommitBriefing(ctx, r1, testBriefing("2026-03-02", "fp-a")); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	r2 := testRun("r2", "2026-03-03")
	r2.Status = briefing.StatusCommitted
	err := s.CommitBriefing(ctx, r2, testBriefing("2026-03-03", "fp-a"))
	if !errors.Is(err, briefing.ErrAlreadyPublished) {
		t.Fatalf("err = %v, want ErrAlreadyPublished", err)
	}

	// The failed commit must not have partially mutated state.
	if _, ok, _ := s.GetBriefing(ctx, "2026-03-03"); ok {
		t.Error("rejected commit must not store a briefing")
	}
}

func TestGetRun_ReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	run := testRun("r1", "2026-03-02")
	if err := s.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	got, ok, err := s.GetRun(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("GetRun: ok=%v err=%v", ok, err)
	}
	got.Status = briefing.StatusFailed

	again, _, _ := s.GetRun(ctx, "r1")
	if again.Status != briefing.StatusPending {
		t.Error("mutating a returned run leaked into the store")
	}
}
