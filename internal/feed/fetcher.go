package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/hermes/internal/article"
)

// Result is the fetch outcome for one source: either parsed entries or an
// error. A failed source never aborts the run.
type Result struct {
	Source  Source
	Entries []article.Raw
	Err     error
}

// Fetcher retrieves and parses all configured sources concurrently.
type Fetcher struct {
	sources        []Source
	poolSize       int
	defaultTimeout time.Duration
	logger         log.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewFetcher creates a Fetcher over the given sources. poolSize bounds
// concurrent fetches; defaultTimeout applies to sources without their own.
func NewFetcher(sources []Source, poolSize int, defaultTimeout time.Duration, logger log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Nop()
	}
	if poolSize < 1 {
		poolSize = 1
	}
	return &Fetcher{
		sources:        sources,
		poolSize:       poolSize,
		defaultTimeout: defaultTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// FetchAll fetches every source over a bounded pool and returns one Result
// per source, in source order. Individual failures are recorded in the
// Result, not returned.
func (f *Fetcher) FetchAll(ctx context.Context) []Result {
	results := make([]Result, len(f.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.poolSize)

	for i, src := range f.sources {
		g.Go(func() error {
			entries, err := f.fetchOne(gctx, src)
			results[i] = Result{Source: src, Entries: entries, Err: err}
			if err != nil {
				f.logger.Warn(gctx, "feed fetch failed", "source", src.ID, "url", src.URL, "error", err)
			} else {
				f.logger.Info(gctx, "feed fetched", "source", src.ID, "entries", len(entries))
			}
			return nil // per-source errors stay in the Result
		})
	}
	_ = g.Wait() // goroutines never return errors

	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, src Source) ([]article.Raw, error) {
	timeout := f.defaultTimeout
	if src.TimeoutSeconds > 0 {
		timeout = time.Duration(src.TimeoutSeconds) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}

	doc, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.URL, err)
	}

	fetchedAt := f.now()
	entries := make([]article.Raw, 0, len(doc.Items))
	for _, item := range doc.Items {
		raw := article.Raw{
			SourceID:  src.ID,
			Title:     item.Title,
			URL:       item.Link,
			Excerpt:   item.Description,
			FetchedAt: fetchedAt,
		}
		if raw.Excerpt == "" {
			raw.Excerpt = item.Content
		}
		if item.PublishedParsed != nil {
			raw.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			raw.Published = *item.UpdatedParsed
		}
		entries = append(entries, raw)
	}
	return entries, nil
}
