// Package story collapses near-duplicate Articles into canonical stories.
// Multiple feeds covering one incident must never surface as multiple
// briefing entries.
package story

import (
	"sort"
	"time"

	"github.com/linnemanlabs/hermes/internal/article"
)

// CanonicalStory is the deduplicated representative of one or more Articles
// sharing a content fingerprint. Immutable once created for a run.
type CanonicalStory struct {
	Fingerprint    string          `json:"fingerprint"`
	Representative article.Article `json:"representative_article"`
	SourceCount    int             `json:"source_count"`
	FirstSeenAt    time.Time       `json:"first_seen_at"`
}

// Deduplicate groups Articles by fingerprint and produces one CanonicalStory
// per group. The representative is the Article with the longest excerpt,
// tie-broken by earliest published time, then URL. Output order is sorted by
// fingerprint so results are reproducible regardless of input order.
func Deduplicate(articles []article.Article) []CanonicalStory {
	groups := make(map[string][]article.Article)
	for _, a := range articles {
		groups[a.Fingerprint] = append(groups[a.Fingerprint], a)
	}

	stories := make([]CanonicalStory, 0, len(groups))
	for fp, group := range groups {
		stories = append(stories, CanonicalStory{
			Fingerprint:    fp,
			Representative: pickRepresentative(group),
			SourceCount:    countSources(group),
			FirstSeenAt:    firstSeen(group),
		})
	}

	sort.Slice(stories, func(i, j int) bool {
		return stories[i].Fingerprint < stories[j].Fingerprint
	})
	return stories
}

func pickRepresentative(group []article.Article) article.Article {
	best := group[0]
	for _, a := range group[1:] {
		switch {
		case len(a.RawExcerpt) != len(best.RawExcerpt):
			if len(a.RawExcerpt) > len(best.RawExcerpt) {
				best = a
			}
		case !a.PublishedAt.Equal(best.PublishedAt):
			if a.PublishedAt.Before(best.PublishedAt) {
				best = a
			}
		case a.URL < best.URL:
			best = a
		}
	}
	return best
}

// countSources counts distinct feeds in the group. A feed republishing the
// same story twice is not corroboration.
func countSources(group []article.Article) int {
	ids := make(map[string]struct{}, len(group))
	for _, a := range group {
		ids[a.SourceID] = struct{}{}
	}
	return len(ids)
}

func firstSeen(group []article.Article) time.Time {
	first := group[0].PublishedAt
	for _, a := range group[1:] {
		if a.PublishedAt.Before(first) {
			first = a.PublishedAt
		}
	}
	return first
}
