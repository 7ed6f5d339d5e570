// Package feed loads the syndication source list and fetches raw entries
// from each source over a bounded worker pool.
package feed

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/hermes/internal/impact"
)

// Source is one configured syndication feed.
type Source struct {
	ID             string `yaml:"id"`
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// File is the on-disk feeds configuration: the source list plus an optional
// impact keyword table override.
type File struct {
	Sources  []Source         `yaml:"sources"`
	Keywords []impact.Keyword `yaml:"keywords,omitempty"`
}

// DefaultSources is the built-in cybersecurity feed list, used when no feeds
// file is configured.
func DefaultSources() []Source {
	return []Source{
		{ID: "krebsonsecurity", URL: "https://krebsonsecurity.com/feed/"},
		{ID: "bleepingcomputer", URL: "https://www.bleepingcomputer.com/feed/"},
		{ID: "mandiant", URL: "https://www.mandiant.com/resources/rss"},
		{ID: "msft-security", URL: "https://www.microsoft.com/en-us/security/blog/feed/"},
		{ID: "google-tag", URL: "https://blog.google/threat-analysis-group/rss/"},
		{ID: "unit42", URL: "https://unit42.paloaltonetworks.com/feed/"},
		{ID: "cisa-alerts", URL: "https://www.cisa.gov/alerts.xml"},
		{ID: "cisa-advisories", URL: "https://www.cisa.gov/advisories.xml"},
		{ID: "darkreading", URL: "https://www.darkreading.com/rss.xml"},
	}
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Load reads and validates a feeds file. An empty path returns the built-in
// defaults.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{Sources: DefaultSources()}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if len(f.Sources) == 0 {
		return fmt.Errorf("feeds file declares no sources")
	}

	seen := make(map[string]bool, len(f.Sources))
	for i, s := range f.Sources {
		if s.ID == "" {
			return fmt.Errorf("source %d: missing id", i)
		}
		if s.URL == "" {
			return fmt.Errorf("source %q: missing url", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
		if s.TimeoutSeconds < 0 {
			return fmt.Errorf("source %q: negative timeout", s.ID)
		}
	}

	for i, kw := range f.Keywords {
		if kw.Term == "" {
			return fmt.Errorf("keyword %d: missing term", i)
		}
		if kw.Weight <= 0 || kw.Weight > 100 {
			return fmt.Errorf("keyword %q: weight %d out of range (1..100)", kw.Term, kw.Weight)
		}
		if kw.Category != "" && !kw.Category.Valid() {
			return fmt.Errorf("keyword %q: unknown category %q", kw.Term, kw.Category)
		}
	}
	return nil
}
