package briefing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/hermes/internal/article"
	"github.com/linnemanlabs/hermes/internal/feed"
	"github.com/linnemanlabs/hermes/internal/impact"
	"github.com/linnemanlabs/hermes/internal/story"
)

// Fetcher retrieves raw entries from every configured source.
type Fetcher interface {
	FetchAll(ctx context.Context) []feed.Result
}

// Scorer assesses a canonical story. Implementations never fail; they
// degrade internally.
type Scorer interface {
	Score(ctx context.Context, st *story.CanonicalStory) impact.Assessment
}

// Summary is the external summarization capability's output for one story.
type Summary struct {
	Summary    string
	Commentary string
}

// Summarizer is the external summarization capability. Calls may fail or
// time out; the engine falls back to an extractive summary when they do.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (*Summary, error)
}

// Renderer turns an assembled briefing into the output document.
type Renderer interface {
	Render(b *Briefing) (string, error)
}

// EngineHooks are optional callbacks for instrumentation. Nil fields are
// skipped.
type EngineHooks struct {
	OnStage func(stage Status, seconds float64)
}

// Options are the engine's policy parameters, configurable rather than
// hard-coded.
type Options struct {
	// Threshold is the minimum final score for inclusion.
	Threshold int
	// MaxEntries caps the briefing after ranking; 0 means unlimited.
	MaxEntries int
	// LLMPoolSize bounds concurrent score/summarize calls.
	LLMPoolSize int
	// SummarizeTimeout bounds each summarization call.
	SummarizeTimeout time.Duration
	// FallbackExcerptChars is the extractive-summary length used when the
	// summarizer is unavailable.
	FallbackExcerptChars int
	// RunDeadline bounds the whole run; pending items at expiry fail
	// individually and the run proceeds with whatever completed.
	RunDeadline time.Duration
}

// Outcome is the result of one engine run. A nil Err with a non-nil
// Briefing means the run is ready to commit; Err marks a run-level fatal
// failure.
type Outcome struct {
	Briefing *Briefing
	Counts   Counts
	Err      error
}

// Engine executes the pipeline stages for one run. It is pure orchestration:
// no store access, no run bookkeeping.
type Engine struct {
	fetcher    Fetcher
	scorer     Scorer
	summarizer Summarizer
	renderer   Renderer
	logger     log.Logger
	hooks      EngineHooks
	opts       Options
}

// NewEngine creates an engine with the given collaborators.
func NewEngine(fetcher Fetcher, scorer Scorer, summarizer Summarizer, renderer Renderer, logger log.Logger, hooks EngineHooks, opts Options) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if opts.LLMPoolSize < 1 {
		opts.LLMPoolSize = 1
	}
	if opts.FallbackExcerptChars < 1 {
		opts.FallbackExcerptChars = 280
	}
	return &Engine{
		fetcher:    fetcher,
		scorer:     scorer,
		summarizer: summarizer,
		renderer:   renderer,
		logger:     logger,
		hooks:      hooks,
		opts:       opts,
	}
}

// Run executes fetch → normalize → dedup → score → summarize → render for
// one run date. progress, if non-nil, is called as each stage begins.
// Item-local failures degrade or drop items; only run-level failures set
// Outcome.Err.
func (e *Engine) Run(ctx context.Context, runDate string, ledger *Ledger, progress func(Status)) *Outcome {
	if e.opts.RunDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunDeadline)
		defer cancel()
	}

	out := &Outcome{}
	L := e.logger.With("run_date", runDate)

	// FETCHING
	results, err := e.stageFetch(ctx, L, progress, &out.Counts)
	if err != nil {
		out.Err = err
		return out
	}

	// NORMALIZING
	articles := e.stageNormalize(ctx, L, progress, results, &out.Counts)

	// DEDUPING
	stories := e.stageDedup(ctx, L, progress, articles, &out.Counts)

	// SCORING + filter
	selected, err := e.stageScore(ctx, L, progress, stories, ledger, &out.Counts)
	if err != nil {
		out.Err = err
		return out
	}

	// SUMMARIZING
	entries := e.stageSummarize(ctx, L, progress, selected, &out.Counts)

	// RENDERING
	b, err := e.stageRender(ctx, L, progress, runDate, entries, &out.Counts)
	if err != nil {
		out.Err = err
		return out
	}

	out.Briefing = b
	return out
}

func (e *Engine) stageStart(stage Status, progress func(Status)) func() {
	if progress != nil {
		progress(stage)
	}
	start := time.Now()
	return func() {
		if e.hooks.OnStage != nil {
			e.hooks.OnStage(stage, time.Since(start).Seconds())
		}
	}
}

func (e *Engine) stageFetch(ctx context.Context, L log.Logger, progress func(Status), counts *Counts) ([]feed.Result, error) {
	done := e.stageStart(StatusFetching, progress)
	defer done()

	results := e.fetcher.FetchAll(ctx)
	if len(results) == 0 {
		return nil, errors.New("no feeds configured")
	}

	entriesTotal := 0
	for _, r := range results {
		if r.Err != nil {
			counts.FeedErrors++
			continue
		}
		counts.FeedsFetched++
		entriesTotal += len(r.Entries)
	}

	// Deadline expiring before any item completes is run-fatal; partial
	// results proceed.
	if entriesTotal == 0 && ctx.Err() != nil {
		return nil, fmt.Errorf("run deadline exceeded before any feed completed: %w", ctx.Err())
	}

	L.Info(ctx, "fetch stage complete",
		"feeds_ok", counts.FeedsFetched,
		"feed_errors", counts.FeedErrors,
		"entries", entriesTotal,
	)
	return results, nil
}

func (e *Engine) stageNormalize(ctx context.Context, L log.Logger, progress func(Status), results []feed.Result, counts *Counts) []article.Article {
	done := e.stageStart(StatusNormalizing, progress)
	defer done()

	var articles []article.Article
	for _, r := range results {
		for _, raw := range r.Entries {
			counts.EntriesFetched++
			a, err := article.Normalize(raw)
			if err != nil {
				counts.EntriesDropped++
				L.Warn(ctx, "dropped unusable entry", "source", raw.SourceID, "error", err)
				continue
			}
			articles = append(articles, *a)
		}
	}

	L.Info(ctx, "normalize stage complete",
		"articles", len(articles),
		"dropped", counts.EntriesDropped,
	)
	return articles
}

func (e *Engine) stageDedup(ctx context.Context, L log.Logger, progress func(Status), articles []article.Article, counts *Counts) []story.CanonicalStory {
	done := e.stageStart(StatusDeduping, progress)
	defer done()

	stories := story.Deduplicate(articles)
	counts.Stories = len(stories)

	L.Info(ctx, "dedup stage complete",
		"articles", len(articles),
		"stories", len(stories),
	)
	return stories
}

type scored struct {
	story      story.CanonicalStory
	assessment impact.Assessment
}

func (e *Engine) stageScore(ctx context.Context, L log.Logger, progress func(Status), stories []story.CanonicalStory, ledger *Ledger, counts *Counts) ([]scored, error) {
	done := e.stageStart(StatusScoring, progress)
	defer done()

	assessments := make([]impact.Assessment, len(stories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.LLMPoolSize)
	for i := range stories {
		g.Go(func() error {
			assessments[i] = e.scorer.Score(gctx, &stories[i])
			return nil
		})
	}
	_ = g.Wait() // scorer never returns errors

	var selected []scored
	for i, st := range stories {
		a := assessments[i]
		if a.Score < 0 || a.Score > 100 {
			// Integrity defect, never silently coerced.
			return nil, fmt.Errorf("assessment score %d out of range [0,100] for fingerprint %s", a.Score, st.Fingerprint)
		}

		if ledger.Has(st.Fingerprint) {
			counts.AlreadyPublished++
			continue
		}
		if a.Score < e.opts.Threshold {
			counts.Filtered++
			continue
		}
		selected = append(selected, scored{story: st, assessment: a})
	}

	L.Info(ctx, "score stage complete",
		"stories", len(stories),
		"selected", len(selected),
		"filtered", counts.Filtered,
		"already_published", counts.AlreadyPublished,
	)
	return selected, nil
}

func (e *Engine) stageSummarize(ctx context.Context, L log.Logger, progress func(Status), selected []scored, counts *Counts) []Entry {
	done := e.stageStart(StatusSummarizing, progress)
	defer done()

	entries := make([]Entry, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.LLMPoolSize)
	for i := range selected {
		g.Go(func() error {
			entries[i] = e.summarizeOne(gctx, L, selected[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, en := range entries {
		if en.Degraded {
			counts.Degraded++
		}
	}

	L.Info(ctx, "summarize stage complete",
		"entries", len(entries),
		"degraded", counts.Degraded,
	)
	return entries
}

func (e *Engine) summarizeOne(ctx context.Context, L log.Logger, sc scored) Entry {
	entry := Entry{
		Story:      sc.story,
		Assessment: sc.assessment,
		Degraded:   sc.assessment.Degraded,
	}

	text := sc.story.Representative.Title + "\n\n" + sc.story.Representative.RawExcerpt

	sctx := ctx
	if e.opts.SummarizeTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, e.opts.SummarizeTimeout)
		defer cancel()
	}

	sum, err := e.summarize(sctx, text)
	if err != nil {
		L.Warn(ctx, "summarize call failed, using extractive fallback",
			"fingerprint", sc.story.Fingerprint,
			"error", err,
		)
		entry.Summary = extractiveSummary(sc.story.Representative, e.opts.FallbackExcerptChars)
		entry.Degraded = true
		return entry
	}

	entry.Summary = sum.Summary
	entry.Commentary = sum.Commentary
	return entry
}

func (e *Engine) summarize(ctx context.Context, text string) (*Summary, error) {
	if e.summarizer == nil {
		return nil, errors.New("no summarizer configured")
	}
	sum, err := e.summarizer.Summarize(ctx, text)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sum.Summary) == "" {
		return nil, errors.New("summarizer returned empty summary")
	}
	return sum, nil
}

// extractiveSummary is the deterministic fallback: the first limit
// characters of the excerpt, or the title when there is no excerpt.
func extractiveSummary(a article.Article, limit int) string {
	text := strings.TrimSpace(a.RawExcerpt)
	if text == "" {
		return a.Title
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func (e *Engine) stageRender(ctx context.Context, L log.Logger, progress func(Status), runDate string, entries []Entry, counts *Counts) (*Briefing, error) {
	done := e.stageStart(StatusRendering, progress)
	defer done()

	rank(entries)
	if e.opts.MaxEntries > 0 && len(entries) > e.opts.MaxEntries {
		entries = entries[:e.opts.MaxEntries]
	}
	counts.Published = len(entries)

	b := &Briefing{
		RunDate:    runDate,
		Entries:    entries,
		RenderedAt: time.Now().UTC(),
	}

	doc, err := e.renderer.Render(b)
	if err != nil {
		return nil, fmt.Errorf("render briefing: %w", err)
	}
	b.Document = doc

	L.Info(ctx, "render stage complete", "published", len(entries))
	return b, nil
}

// rank sorts entries by descending score, tie-broken by first-seen time
// ascending then title lexicographic, and assigns 1-based ranks.
func rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Assessment.Score != b.Assessment.Score {
			return a.Assessment.Score > b.Assessment.Score
		}
		if !a.Story.FirstSeenAt.Equal(b.Story.FirstSeenAt) {
			return a.Story.FirstSeenAt.Before(b.Story.FirstSeenAt)
		}
		return a.Story.Representative.Title < b.Story.Representative.Title
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
