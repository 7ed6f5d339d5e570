package briefing

import (
	"time"

	"github.com/linnemanlabs/hermes/internal/impact"
	"github.com/linnemanlabs/hermes/internal/story"
)

// Status tracks where a briefing run is in its lifecycle. A run moves
// through the pipeline stages in order and ends in committed or failed;
// there is no partial-commit state.
type Status string

const (
	// StatusPending means created, not yet started.
	StatusPending Status = "pending"

	StatusFetching    Status = "fetching"
	StatusNormalizing Status = "normalizing"
	StatusDeduping    Status = "deduping"
	StatusScoring     Status = "scoring"
	StatusSummarizing Status = "summarizing"
	StatusRendering   Status = "rendering"

	// StatusCommitted means the briefing was rendered and run state
	// persisted atomically.
	StatusCommitted Status = "committed"

	// StatusFailed means the run terminated without mutating run state.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusFailed
}

// Entry is one canonical story selected for publication.
type Entry struct {
	Rank       int                  `json:"rank"`
	Story      story.CanonicalStory `json:"story"`
	Assessment impact.Assessment    `json:"assessment"`
	Summary    string               `json:"summary"`
	Commentary string               `json:"commentary,omitempty"`

	// Degraded marks an entry produced without the full classification or
	// summarization capability. Carried through to rendering so consumers
	// can see reduced quality.
	Degraded bool `json:"degraded,omitempty"`
}

// Briefing is the ordered entry sequence for one run date, immutable once
// rendered.
type Briefing struct {
	RunDate    string    `json:"run_date"` // YYYY-MM-DD
	Entries    []Entry   `json:"entries"`
	Document   string    `json:"document"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Counts is the per-run quality report.
type Counts struct {
	FeedsFetched     int `json:"feeds_fetched"`
	FeedErrors       int `json:"feed_errors"`
	EntriesFetched   int `json:"entries_fetched"`
	EntriesDropped   int `json:"entries_dropped"`
	Stories          int `json:"stories"`
	Filtered         int `json:"filtered"`
	AlreadyPublished int `json:"already_published"`
	Degraded         int `json:"degraded"`
	Published        int `json:"published"`
}

// Run is the record of one pipeline invocation.
type Run struct {
	ID          string    `json:"id"`
	RunDate     string    `json:"run_date"`
	Status      Status    `json:"status"`
	Counts      Counts    `json:"counts"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Duration    float64   `json:"duration_seconds,omitempty"`
}

// Ledger is the cross-run idempotency state: every fingerprint surfaced in
// any prior briefing, plus the last successful run time. It is read once at
// run start and written exactly once at commit.
type Ledger struct {
	Published map[string]bool
	LastRunAt time.Time
}

// Has reports whether a fingerprint was already published.
func (l *Ledger) Has(fingerprint string) bool {
	return l != nil && l.Published[fingerprint]
}

// DateFormat is the run-date layout used throughout the pipeline.
const DateFormat = "2006-01-02"
