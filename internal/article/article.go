// Package article turns raw feed entries into canonical Articles and
// computes the content fingerprint used for cross-feed deduplication.
package article

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"
)

// ErrUnusable is returned for entries missing both title and URL.
// Such entries cannot be deduplicated or displayed and are dropped.
var ErrUnusable = errors.New("entry has neither title nor url")

// Raw is a feed entry as reported by a source, before normalization.
type Raw struct {
	SourceID  string
	Title     string
	URL       string
	Excerpt   string
	Published time.Time
	FetchedAt time.Time
}

// Article is one ingested story in canonical form.
type Article struct {
	SourceID    string    `json:"source_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	RawExcerpt  string    `json:"raw_excerpt,omitempty"`
	Fingerprint string    `json:"content_fingerprint"`
}

// trackingParams are query parameters stripped during URL normalization.
// utm_* is handled by prefix.
var trackingParams = map[string]bool{
	"ref": true,
	"src": true,
}

// Normalize maps one raw feed entry to one Article. It trims and collapses
// title whitespace, lowercases the URL scheme and host, strips tracking
// query parameters, and computes the content fingerprint. Entries missing
// both title and URL return ErrUnusable.
func Normalize(raw Raw) (*Article, error) {
	title := collapseSpaces(strings.TrimSpace(raw.Title))
	rawURL := strings.TrimSpace(raw.URL)

	if title == "" && rawURL == "" {
		return nil, ErrUnusable
	}

	normURL, host, path := normalizeURL(rawURL)

	published := raw.Published
	if published.IsZero() {
		published = raw.FetchedAt
	}

	return &Article{
		SourceID:    raw.SourceID,
		URL:         normURL,
		Title:       title,
		PublishedAt: published,
		RawExcerpt:  raw.Excerpt,
		Fingerprint: fingerprint(host, path, title),
	}, nil
}

// normalizeURL lowercases scheme and host, strips tracking parameters, and
// returns the rebuilt URL plus the host and path used for fingerprinting.
// Unparseable URLs are kept verbatim and fingerprinted as-is.
func normalizeURL(raw string) (normalized, host, path string) {
	if raw == "" {
		return "", "", ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw, "", raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") || trackingParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), u.Host, u.Path
}

// fingerprint hashes the normalized URL host+path together with the sorted
// title token set. Sorting the tokens makes the hash stable across feeds
// that reorder the same headline.
func fingerprint(host, path, title string) string {
	tokens := titleTokens(title)

	h := sha256.New()
	h.Write([]byte(host))
	h.Write([]byte(path))
	h.Write([]byte{0})
	for _, tok := range tokens {
		h.Write([]byte(tok))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stopWords are filler words dropped from title tokens. Headlines for the
// same story routinely add or drop these when feeds rephrase ("2M Records
// Exposed in Acme Breach" vs "Acme Breach: 2M Records Exposed").
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"in": true, "on": true, "at": true, "of": true, "for": true,
	"to": true, "by": true, "with": true, "from": true,
	"and": true, "as": true, "after": true, "over": true,
}

// titleTokens lowercases the title, splits on non-alphanumeric runes, drops
// stop words, and returns the sorted, deduplicated token set.
func titleTokens(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	sort.Strings(tokens)
	return tokens
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
