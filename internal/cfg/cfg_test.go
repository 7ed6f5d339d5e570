package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-20250514",
		ImpactThreshold:       60,
		RuleWeight:            0.4,
		ModelWeight:           0.6,
		SourceBoostCap:        1.25,
		FetchTimeoutSeconds:   15,
		LLMTimeoutSeconds:     60,
		RunDeadlineMinutes:    10,
		FetchPoolSize:         8,
		LLMPoolSize:           4,
		MaxEntries:            10,
		SummaryFallbackChars:  280,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.ImpactThreshold != 60 {
		t.Errorf("ImpactThreshold = %d, want 60", c.ImpactThreshold)
	}
	if c.RuleWeight != 0.4 || c.ModelWeight != 0.6 {
		t.Errorf("weights = %g/%g, want 0.4/0.6", c.RuleWeight, c.ModelWeight)
	}
	if c.SourceBoostCap != 1.25 {
		t.Errorf("SourceBoostCap = %g, want 1.25", c.SourceBoostCap)
	}
	if c.MaxEntries != 10 {
		t.Errorf("MaxEntries = %d, want 10", c.MaxEntries)
	}
	if c.SummaryFallbackChars != 280 {
		t.Errorf("SummaryFallbackChars = %d, want 280", c.SummaryFallbackChars)
	}

	// Parsed defaults must pass validation as-is.
	if err := c.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-claude-api-key", "sk-override",
		"-claude-model", "claude-opus-4-20250514",
		"-feeds-file", "/etc/hermes/feeds.yaml",
		"-impact-threshold", "75",
		"-rule-weight", "0.5",
		"-model-weight", "0.5",
		"-briefing-max-entries", "5",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.ClaudeModel != "claude-opus-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-opus-4-20250514")
	}
	if c.FeedsFile != "/etc/hermes/feeds.yaml" {
		t.Errorf("FeedsFile = %q", c.FeedsFile)
	}
	if c.ImpactThreshold != 75 {
		t.Errorf("ImpactThreshold = %d, want 75", c.ImpactThreshold)
	}
	if c.RuleWeight != 0.5 || c.ModelWeight != 0.5 {
		t.Errorf("weights = %g/%g, want 0.5/0.5", c.RuleWeight, c.ModelWeight)
	}
	if c.MaxEntries != 5 {
		t.Errorf("MaxEntries = %d, want 5", c.MaxEntries)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	mutate := func(fn func(*Config)) Config {
		c := validBase()
		fn(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "empty claude key means rule-only mode",
			cfg: mutate(func(c *Config) {
				c.ClaudeAPIKey = ""
				c.ClaudeModel = ""
			}),
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       mutate(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain negative",
			cfg:       mutate(func(c *Config) { c.DrainSeconds = -1 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name: "drain above max",
			cfg: mutate(func(c *Config) {
				c.DrainSeconds = 301
				c.ShutdownBudgetSeconds = 302
			}),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:    "drain at lower bound",
			cfg:     mutate(func(c *Config) { c.DrainSeconds = 1 }),
			wantErr: false,
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       mutate(func(c *Config) { c.ShutdownBudgetSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       mutate(func(c *Config) { c.ShutdownBudgetSeconds = 301 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       mutate(func(c *Config) { c.ShutdownBudgetSeconds = c.DrainSeconds }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "budget less than drain",
			cfg:       mutate(func(c *Config) { c.ShutdownBudgetSeconds = 30 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:    "budget is drain plus one",
			cfg:     mutate(func(c *Config) { c.ShutdownBudgetSeconds = c.DrainSeconds + 1 }),
			wantErr: false,
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       mutate(func(c *Config) { c.APIPort = 0 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       mutate(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Claude cross-field
		{
			name: "key without model",
			cfg: mutate(func(c *Config) {
				c.ClaudeAPIKey = "k"
				c.ClaudeModel = ""
			}),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MODEL"},
		},
		// Scoring policy
		{
			name:      "threshold above max",
			cfg:       mutate(func(c *Config) { c.ImpactThreshold = 101 }),
			wantErr:   true,
			errSubstr: []string{"IMPACT_THRESHOLD"},
		},
		{
			name:      "threshold negative",
			cfg:       mutate(func(c *Config) { c.ImpactThreshold = -1 }),
			wantErr:   true,
			errSubstr: []string{"IMPACT_THRESHOLD"},
		},
		{
			name:    "threshold zero is valid",
			cfg:     mutate(func(c *Config) { c.ImpactThreshold = 0 }),
			wantErr: false,
		},
		{
			name: "weights do not sum to one",
			cfg: mutate(func(c *Config) {
				c.RuleWeight = 0.5
				c.ModelWeight = 0.6
			}),
			wantErr:   true,
			errSubstr: []string{"must sum to 1"},
		},
		{
			name:      "rule weight out of range",
			cfg:       mutate(func(c *Config) { c.RuleWeight = 1.4 }),
			wantErr:   true,
			errSubstr: []string{"RULE_WEIGHT"},
		},
		{
			name:      "negative model weight",
			cfg:       mutate(func(c *Config) { c.ModelWeight = -0.6 }),
			wantErr:   true,
			errSubstr: []string{"MODEL_WEIGHT"},
		},
		{
			name: "all-rule blend is valid",
			cfg: mutate(func(c *Config) {
				c.RuleWeight = 1.0
				c.ModelWeight = 0.0
			}),
			wantErr: false,
		},
		{
			name:      "boost cap below one",
			cfg:       mutate(func(c *Config) { c.SourceBoostCap = 0.9 }),
			wantErr:   true,
			errSubstr: []string{"SOURCE_BOOST_CAP"},
		},
		{
			name:      "boost cap above two",
			cfg:       mutate(func(c *Config) { c.SourceBoostCap = 2.5 }),
			wantErr:   true,
			errSubstr: []string{"SOURCE_BOOST_CAP"},
		},
		{
			name:    "boost cap of one disables corroboration",
			cfg:     mutate(func(c *Config) { c.SourceBoostCap = 1.0 }),
			wantErr: false,
		},
		// Timeouts, pools, sizes
		{
			name:      "fetch timeout zero",
			cfg:       mutate(func(c *Config) { c.FetchTimeoutSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"FETCH_TIMEOUT_SECONDS"},
		},
		{
			name:      "llm timeout above max",
			cfg:       mutate(func(c *Config) { c.LLMTimeoutSeconds = 301 }),
			wantErr:   true,
			errSubstr: []string{"LLM_TIMEOUT_SECONDS"},
		},
		{
			name:      "run deadline zero",
			cfg:       mutate(func(c *Config) { c.RunDeadlineMinutes = 0 }),
			wantErr:   true,
			errSubstr: []string{"RUN_DEADLINE_MINUTES"},
		},
		{
			name:      "fetch pool too large",
			cfg:       mutate(func(c *Config) { c.FetchPoolSize = 65 }),
			wantErr:   true,
			errSubstr: []string{"FETCH_POOL_SIZE"},
		},
		{
			name:      "llm pool zero",
			cfg:       mutate(func(c *Config) { c.LLMPoolSize = 0 }),
			wantErr:   true,
			errSubstr: []string{"LLM_POOL_SIZE"},
		},
		{
			name:      "max entries zero",
			cfg:       mutate(func(c *Config) { c.MaxEntries = 0 }),
			wantErr:   true,
			errSubstr: []string{"BRIEFING_MAX_ENTRIES"},
		},
		{
			name:      "fallback chars too small",
			cfg:       mutate(func(c *Config) { c.SummaryFallbackChars = 10 }),
			wantErr:   true,
			errSubstr: []string{"SUMMARY_FALLBACK_CHARS"},
		},
		// Error accumulation
		{
			name:    "all fields invalid",
			cfg:     Config{},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT",
				"must sum to 1", "SOURCE_BOOST_CAP", "FETCH_TIMEOUT_SECONDS",
				"LLM_TIMEOUT_SECONDS", "RUN_DEADLINE_MINUTES",
				"FETCH_POOL_SIZE", "LLM_POOL_SIZE",
				"BRIEFING_MAX_ENTRIES", "SUMMARY_FALLBACK_CHARS",
			},
		},
		// Extreme values
		{
			name: "extreme negative values",
			cfg: mutate(func(c *Config) {
				c.DrainSeconds = math.MinInt32
				c.ShutdownBudgetSeconds = math.MinInt32
				c.APIPort = math.MinInt32
			}),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, threshold int
		ruleW, modelW                  float64
	}{
		{60, 90, 8080, 60, 0.4, 0.6},
		{1, 2, 1, 0, 0.0, 1.0},
		{299, 300, 65535, 100, 1.0, 0.0},
		{0, 0, 0, -1, 0, 0},
		{-1, -1, -1, 101, -0.5, 1.5},
		{300, 300, 65535, 50, 0.5, 0.5},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, -1, -1},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, 2, 2},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.threshold, s.ruleW, s.modelW)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, threshold int, ruleW, modelW float64) {
		c := validBase()
		c.DrainSeconds = drain
		c.ShutdownBudgetSeconds = budget
		c.APIPort = port
		c.ImpactThreshold = threshold
		c.RuleWeight = ruleW
		c.ModelWeight = modelW
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		thresholdOK := threshold >= 0 && threshold <= 100
		ruleOK := ruleW >= 0 && ruleW <= 1
		modelOK := modelW >= 0 && modelW <= 1
		sumOK := math.Abs(ruleW+modelW-1.0) <= 1e-9

		allValid := drainOK && budgetOK && portOK && crossOK && thresholdOK && ruleOK && modelOK && sumOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
