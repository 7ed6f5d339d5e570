// Package impact assigns impact scores and categories to canonical stories.
// Scoring blends deterministic keyword rules with an external classifier so
// a single mis-scored model call cannot fully override safety-relevant
// keyword signals.
package impact

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies what kind of security story this is.
type Category string

const (
	CategoryBreach        Category = "breach"
	CategoryThreatActor   Category = "threat-actor-activity"
	CategoryRegulatory    Category = "regulatory-action"
	CategoryVulnerability Category = "vulnerability-disclosure"
	CategoryOther         Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBreach, CategoryThreatActor, CategoryRegulatory,
		CategoryVulnerability, CategoryOther:
		return true
	}
	return false
}

// Keyword is one entry in the impact keyword table.
type Keyword struct {
	Term     string   `yaml:"term"`
	Weight   int      `yaml:"weight"`
	Category Category `yaml:"category"`
}

// DefaultKeywords is the built-in impact keyword table, used when the feeds
// file does not override it.
func DefaultKeywords() []Keyword {
	return []Keyword{
		{Term: "breach", Weight: 40, Category: CategoryBreach},
		{Term: "data leak", Weight: 35, Category: CategoryBreach},
		{Term: "records exposed", Weight: 30, Category: CategoryBreach},
		{Term: "ransomware", Weight: 45, Category: CategoryThreatActor},
		{Term: "nation-state", Weight: 40, Category: CategoryThreatActor},
		{Term: "apt", Weight: 30, Category: CategoryThreatActor},
		{Term: "threat actor", Weight: 25, Category: CategoryThreatActor},
		{Term: "zero-day", Weight: 45, Category: CategoryVulnerability},
		{Term: "critical vulnerability", Weight: 40, Category: CategoryVulnerability},
		{Term: "cve-", Weight: 25, Category: CategoryVulnerability},
		{Term: "actively exploited", Weight: 40, Category: CategoryVulnerability},
		{Term: "regulatory fine", Weight: 35, Category: CategoryRegulatory},
		{Term: "settlement", Weight: 20, Category: CategoryRegulatory},
		{Term: "gdpr", Weight: 25, Category: CategoryRegulatory},
		{Term: "sec disclosure", Weight: 30, Category: CategoryRegulatory},
	}
}

// Assessment is the scoring outcome attached to a canonical story.
type Assessment struct {
	Score     int      `json:"score"`
	Category  Category `json:"category"`
	Rationale string   `json:"rationale"`

	// RuleScore is the corroboration-boosted rule score before blending.
	RuleScore int `json:"rule_score"`
	// ModelScore is the classifier's relevance estimate, -1 when the
	// classifier was unavailable.
	ModelScore int `json:"model_score"`
	// Degraded marks an assessment produced without the classifier.
	Degraded bool `json:"degraded,omitempty"`
}

// RuleMatch records one keyword hit for the rationale.
type RuleMatch struct {
	Term   string
	Weight int
}

// RuleResult is the deterministic keyword-rule score for a story text.
type RuleResult struct {
	Score    int
	Category Category
	Matches  []RuleMatch
}

// RuleScore matches text against the keyword table. The score is the capped
// sum of matched weights; the category comes from the heaviest match.
func RuleScore(text string, keywords []Keyword) RuleResult {
	lower := strings.ToLower(text)

	res := RuleResult{Category: CategoryOther}
	top := 0
	for _, kw := range keywords {
		if !strings.Contains(lower, strings.ToLower(kw.Term)) {
			continue
		}
		res.Score += kw.Weight
		res.Matches = append(res.Matches, RuleMatch{Term: kw.Term, Weight: kw.Weight})
		if kw.Weight > top {
			top = kw.Weight
			res.Category = kw.Category
		}
	}
	if res.Score > 100 {
		res.Score = 100
	}

	sort.Slice(res.Matches, func(i, j int) bool {
		if res.Matches[i].Weight != res.Matches[j].Weight {
			return res.Matches[i].Weight > res.Matches[j].Weight
		}
		return res.Matches[i].Term < res.Matches[j].Term
	})
	return res
}

// Boost applies the corroboration multiplier for a story reported by
// sourceCount feeds: 5% per extra source, multiplier capped at capMult
// (e.g. 1.25). The boosted score is clamped to 100.
func Boost(score, sourceCount int, capMult float64) int {
	if sourceCount < 1 {
		sourceCount = 1
	}
	mult := 1 + 0.05*float64(sourceCount-1)
	if mult > capMult {
		mult = capMult
	}
	boosted := int(float64(score)*mult + 0.5)
	if boosted > 100 {
		boosted = 100
	}
	return boosted
}

func matchedTerms(matches []RuleMatch) string {
	if len(matches) == 0 {
		return "none"
	}
	terms := make([]string, len(matches))
	for i, m := range matches {
		terms[i] = m.Term
	}
	return strings.Join(terms, ", ")
}

func blendRationale(rule RuleResult, ruleScore, modelScore int, modelCat Category) string {
	return fmt.Sprintf("rules %d (matched: %s), model %d (%s)",
		ruleScore, matchedTerms(rule.Matches), modelScore, modelCat)
}

func fallbackRationale(rule RuleResult, ruleScore int, cause string) string {
	return fmt.Sprintf("rules %d (matched: %s); classifier unavailable: %s",
		ruleScore, matchedTerms(rule.Matches), cause)
}
