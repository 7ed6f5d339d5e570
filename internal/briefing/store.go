package briefing

import (
	"context"
	"errors"
)

// ErrRunExists is returned by BeginRun when a non-failed run already exists
// for the date. Failed runs release the date so they can be retried.
var ErrRunExists = errors.New("briefing run already exists for date")

// ErrAlreadyPublished is returned by CommitBriefing when an entry's
// fingerprint is already in the ledger. It indicates a pipeline defect: the
// engine must filter published fingerprints before assembly.
var ErrAlreadyPublished = errors.New("fingerprint already in published ledger")

// Store is the persistence interface for run state. CommitBriefing is the
// only operation that mutates the ledger, and it must be atomic: the
// briefing document, the published fingerprints, and the run's terminal
// status commit together or not at all.
type Store interface {
	// BeginRun claims the run date and persists the pending run.
	BeginRun(ctx context.Context, run *Run) error
	// PutRun updates a run's status, counts, and error.
	PutRun(ctx context.Context, run *Run) error
	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*Run, bool, error)
	// Ledger loads the published-fingerprint set and last run time.
	Ledger(ctx context.Context) (*Ledger, error)
	// CommitBriefing atomically stores the briefing, marks its entries
	// published, records last_run_at, and moves the run to committed.
	CommitBriefing(ctx context.Context, run *Run, b *Briefing) error
	// GetBriefing retrieves a committed briefing by run date.
	GetBriefing(ctx context.Context, runDate string) (*Briefing, bool, error)
}
