package cfg

import (
	"errors"
	"flag"
	"fmt"
	"math"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	ClaudeAPIKey          string
	ClaudeModel           string
	DatabaseURL           string
	SlackWebhookURL       string
	FeedsFile             string
	ImpactThreshold       int
	RuleWeight            float64
	ModelWeight           float64
	SourceBoostCap        float64
	FetchTimeoutSeconds   int
	LLMTimeoutSeconds     int
	RunDeadlineMinutes    int
	FetchPoolSize         int
	LLMPoolSize           int
	MaxEntries            int
	SummaryFallbackChars  int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider (empty = rule-only scoring, extractive summaries)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for briefing notifications")
	fs.StringVar(&c.FeedsFile, "feeds-file", "", "path to YAML feed/keyword config (empty = built-in defaults)")
	fs.IntVar(&c.ImpactThreshold, "impact-threshold", 60, "minimum impact score for a story to make the briefing (0..100)")
	fs.Float64Var(&c.RuleWeight, "rule-weight", 0.4, "weight of the keyword rule score in the blend (0..1)")
	fs.Float64Var(&c.ModelWeight, "model-weight", 0.6, "weight of the classifier relevance in the blend (0..1)")
	fs.Float64Var(&c.SourceBoostCap, "source-boost-cap", 1.25, "multiplier cap for multi-source corroboration (1..2)")
	fs.IntVar(&c.FetchTimeoutSeconds, "fetch-timeout-seconds", 15, "per-feed fetch timeout (1..120)")
	fs.IntVar(&c.LLMTimeoutSeconds, "llm-timeout-seconds", 60, "per-call LLM timeout (1..300)")
	fs.IntVar(&c.RunDeadlineMinutes, "run-deadline-minutes", 10, "whole-run deadline (1..60)")
	fs.IntVar(&c.FetchPoolSize, "fetch-pool-size", 8, "concurrent feed fetches (1..64)")
	fs.IntVar(&c.LLMPoolSize, "llm-pool-size", 4, "concurrent LLM calls (1..32)")
	fs.IntVar(&c.MaxEntries, "briefing-max-entries", 10, "maximum stories per briefing (1..100)")
	fs.IntVar(&c.SummaryFallbackChars, "summary-fallback-chars", 280, "extractive fallback summary length in characters (50..2000)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Claude model only matters when a key is configured
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if c.ImpactThreshold < 0 || c.ImpactThreshold > 100 {
		errs = append(errs, fmt.Errorf("invalid IMPACT_THRESHOLD %d (must be 0..100)", c.ImpactThreshold))
	}

	// Blend weights must each be in range and sum to 1. The negated form
	// also rejects NaN.
	if !(c.RuleWeight >= 0 && c.RuleWeight <= 1) {
		errs = append(errs, fmt.Errorf("invalid RULE_WEIGHT %g (must be 0..1)", c.RuleWeight))
	}
	if !(c.ModelWeight >= 0 && c.ModelWeight <= 1) {
		errs = append(errs, fmt.Errorf("invalid MODEL_WEIGHT %g (must be 0..1)", c.ModelWeight))
	}
	if !(math.Abs(c.RuleWeight+c.ModelWeight-1.0) <= 1e-9) {
		errs = append(errs, fmt.Errorf("RULE_WEIGHT %g and MODEL_WEIGHT %g must sum to 1", c.RuleWeight, c.ModelWeight))
	}

	if !(c.SourceBoostCap >= 1 && c.SourceBoostCap <= 2) {
		errs = append(errs, fmt.Errorf("invalid SOURCE_BOOST_CAP %g (must be 1..2)", c.SourceBoostCap))
	}

	if c.FetchTimeoutSeconds <= 0 || c.FetchTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid FETCH_TIMEOUT_SECONDS %d (must be 1..120)", c.FetchTimeoutSeconds))
	}
	if c.LLMTimeoutSeconds <= 0 || c.LLMTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS %d (must be 1..300)", c.LLMTimeoutSeconds))
	}
	if c.RunDeadlineMinutes <= 0 || c.RunDeadlineMinutes > 60 {
		errs = append(errs, fmt.Errorf("invalid RUN_DEADLINE_MINUTES %d (must be 1..60)", c.RunDeadlineMinutes))
	}

	if c.FetchPoolSize <= 0 || c.FetchPoolSize > 64 {
		errs = append(errs, fmt.Errorf("invalid FETCH_POOL_SIZE %d (must be 1..64)", c.FetchPoolSize))
	}
	if c.LLMPoolSize <= 0 || c.LLMPoolSize > 32 {
		errs = append(errs, fmt.Errorf("invalid LLM_POOL_SIZE %d (must be 1..32)", c.LLMPoolSize))
	}

	if c.MaxEntries <= 0 || c.MaxEntries > 100 {
		errs = append(errs, fmt.Errorf("invalid BRIEFING_MAX_ENTRIES %d (must be 1..100)", c.MaxEntries))
	}
	if c.SummaryFallbackChars < 50 || c.SummaryFallbackChars > 2000 {
		errs = append(errs, fmt.Errorf("invalid SUMMARY_FALLBACK_CHARS %d (must be 50..2000)", c.SummaryFallbackChars))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
