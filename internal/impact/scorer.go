package impact

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/hermes/internal/story"
)

// Classification is the external classifier's verdict for one story.
type Classification struct {
	Category  Category
	Relevance int // 0..100
}

// Classifier is the external classification capability. Calls may fail or
// time out; the scorer degrades to rule-only scoring when they do.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

// Config holds the scoring policy parameters.
type Config struct {
	Keywords       []Keyword
	RuleWeight     float64 // e.g. 0.4
	ModelWeight    float64 // e.g. 0.6
	SourceBoostCap float64 // e.g. 1.25
	CallTimeout    time.Duration
}

// Scorer produces an Assessment for each canonical story.
type Scorer struct {
	classifier Classifier
	cfg        Config
	logger     log.Logger
}

// NewScorer creates a Scorer. A nil classifier produces rule-only
// assessments, which is useful for tests and offline runs.
func NewScorer(classifier Classifier, cfg Config, logger log.Logger) *Scorer {
	if logger == nil {
		logger = log.Nop()
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultKeywords()
	}
	return &Scorer{classifier: classifier, cfg: cfg, logger: logger}
}

// Score assesses one story. It never fails: classifier errors degrade to the
// boosted rule score with category "other" per the recoverable-degradation
// policy.
func (s *Scorer) Score(ctx context.Context, st *story.CanonicalStory) Assessment {
	text := st.Representative.Title + "\n" + st.Representative.RawExcerpt

	rule := RuleScore(text, s.cfg.Keywords)
	boosted := Boost(rule.Score, st.SourceCount, s.cfg.SourceBoostCap)

	cls, err := s.classify(ctx, text)
	if err != nil {
		s.logger.Warn(ctx, "classifier call failed, using rule-only score",
			"fingerprint", st.Fingerprint,
			"rule_score", boosted,
			"error", err,
		)
		return Assessment{
			Score:      boosted,
			Category:   CategoryOther,
			Rationale:  fallbackRationale(rule, boosted, err.Error()),
			RuleScore:  boosted,
			ModelScore: -1,
			Degraded:   true,
		}
	}

	blended := int(s.cfg.RuleWeight*float64(boosted) + s.cfg.ModelWeight*float64(cls.Relevance) + 0.5)

	return Assessment{
		Score:      blended,
		Category:   cls.Category,
		Rationale:  blendRationale(rule, boosted, cls.Relevance, cls.Category),
		RuleScore:  boosted,
		ModelScore: cls.Relevance,
	}
}

// classify wraps the external call with a timeout and validates its output.
// An out-of-range relevance or unknown category is treated as a failed call.
func (s *Scorer) classify(ctx context.Context, text string) (*Classification, error) {
	if s.classifier == nil {
		return nil, fmt.Errorf("no classifier configured")
	}

	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	cls, err := s.classifier.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	if cls.Relevance < 0 || cls.Relevance > 100 {
		return nil, fmt.Errorf("classifier relevance %d out of range [0,100]", cls.Relevance)
	}
	if !cls.Category.Valid() {
		return nil, fmt.Errorf("classifier returned unknown category %q", cls.Category)
	}
	return cls, nil
}
