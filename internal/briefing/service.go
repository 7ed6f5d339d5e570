package briefing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"
)

// Notifier delivers a committed briefing to an external channel. Delivery
// failures never affect the run outcome.
type Notifier interface {
	Send(ctx context.Context, b *Briefing) error
}

// StartResult is the outcome of requesting a briefing run.
type StartResult struct {
	ID      string
	Skipped bool
	Reason  string
}

// Service is the business boundary for briefing runs: run-date locking,
// lifecycle bookkeeping, and async dispatch of the engine.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a briefing service. metrics and notifier may be nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// StartRun claims the run date and kicks off the pipeline asynchronously.
// A second start for a date with a pending, in-progress, or committed run
// is skipped; a failed run releases the date for retry.
func (s *Service) StartRun(ctx context.Context, runDate string) (*StartResult, error) {
	if _, err := time.Parse(DateFormat, runDate); err != nil {
		return nil, fmt.Errorf("invalid run date %q: %w", runDate, err)
	}

	run := &Run{
		ID:        ulid.Make().String(),
		RunDate:   runDate,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	if err := s.store.BeginRun(ctx, run); err != nil {
		if errors.Is(err, ErrRunExists) {
			s.countStart("duplicate")
			return &StartResult{Skipped: true, Reason: "run already exists for " + runDate}, nil
		}
		s.countStart("error")
		return nil, fmt.Errorf("begin run: %w", err)
	}
	s.countStart("accepted")

	// Detach from the request context so the run survives the HTTP call.
	go s.runPipeline(context.WithoutCancel(ctx), run)

	return &StartResult{ID: run.ID}, nil
}

// GetRun retrieves a run by ID.
func (s *Service) GetRun(ctx context.Context, id string) (*Run, bool, error) {
	return s.store.GetRun(ctx, id)
}

// GetBriefing retrieves a committed briefing by run date.
func (s *Service) GetBriefing(ctx context.Context, runDate string) (*Briefing, bool, error) {
	return s.store.GetBriefing(ctx, runDate)
}

func (s *Service) runPipeline(ctx context.Context, run *Run) {
	start := time.Now()
	L := s.logger.With("run_id", run.ID, "run_date", run.RunDate)

	// The ledger is the only cross-run state: read once here, written once
	// at commit. An unreadable ledger is run-fatal.
	ledger, err := s.store.Ledger(ctx)
	if err != nil {
		s.fail(ctx, L, run, start, fmt.Errorf("load ledger: %w", err))
		return
	}

	progress := func(stage Status) {
		run.Status = stage
		if err := s.store.PutRun(ctx, run); err != nil {
			L.Warn(ctx, "failed to persist run stage", "stage", stage, "error", err)
		}
	}

	outcome := s.engine.Run(ctx, run.RunDate, ledger, progress)
	run.Counts = outcome.Counts

	if outcome.Err != nil {
		s.fail(ctx, L, run, start, outcome.Err)
		return
	}

	run.Status = StatusCommitted
	run.CompletedAt = time.Now()
	run.Duration = time.Since(start).Seconds()

	// Render result and ledger mutation commit together; a failed commit
	// leaves the ledger untouched so the run can be retried safely.
	if err := s.store.CommitBriefing(ctx, run, outcome.Briefing); err != nil {
		s.fail(ctx, L, run, start, fmt.Errorf("commit briefing: %w", err))
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveRun(run)
	}

	L.Info(ctx, "briefing run committed",
		"duration", run.Duration,
		"published", run.Counts.Published,
		"stories", run.Counts.Stories,
		"filtered", run.Counts.Filtered,
		"degraded", run.Counts.Degraded,
		"feed_errors", run.Counts.FeedErrors,
	)

	if s.notifier != nil && len(outcome.Briefing.Entries) > 0 {
		if err := s.notifier.Send(ctx, outcome.Briefing); err != nil {
			L.Warn(ctx, "briefing notification failed", "error", err)
		}
	}
}

func (s *Service) fail(ctx context.Context, L log.Logger, run *Run, start time.Time, cause error) {
	run.Status = StatusFailed
	run.Error = cause.Error()
	run.CompletedAt = time.Now()
	run.Duration = time.Since(start).Seconds()

	if err := s.store.PutRun(ctx, run); err != nil {
		L.Error(ctx, err, "failed to persist failed run")
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(run)
	}

	L.Error(ctx, cause, "briefing run failed", "duration", run.Duration)
}

func (s *Service) countStart(result string) {
	if s.metrics != nil {
		s.metrics.StartsTotal.WithLabelValues(result).Inc()
	}
}
