package config

import (
	"fmt"
	"strings"
	"time"
)

// DedupPolicy controls what happens when a submission targets a (category, type) slot
// that already has a live job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type DedupPolicy string

const (
	// DedupAllow accepts every submission.
	DedupAllow DedupPolicy = "allow"
	// DedupReject refuses a submission while the slot is held.
	DedupReject DedupPolicy = "reject"
	// DedupReuse returns the id of the job holding the slot.
	DedupReuse DedupPolicy = "reuse"
)

// Valid returns true if the policy is known.
func (p DedupPolicy) Valid() bool {
	return p == DedupAllow || p == DedupReject || p == DedupReuse
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (p *DedupPolicy) UnmarshalText(text []byte) error {
	v := DedupPolicy(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*p = DedupAllow
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid dedup policy: %q (valid options: allow, reject, reuse)", string(text))
	}
	*p = v
	return nil
}

// EvaluationConfig contains job storage, scheduling and submission configuration.
type EvaluationConfig struct {
	// ResultsDir holds one JSON snapshot per job and is scanned at startup.
	ResultsDir string `env:"EVAL_RESULTS_DIR" envDefault:"./evaluation_results"`

	// IndexPath is the badger directory for the job index. Empty keeps the index in memory.
	IndexPath string `env:"EVAL_INDEX_PATH" envDefault:""`

	// IndexSyncWrites fsyncs every index write.
	IndexSyncWrites bool `env:"EVAL_INDEX_SYNC_WRITES" envDefault:"false"`

	// CatalogPath points to a YAML catalog. Empty uses the embedded default.
	CatalogPath string `env:"EVAL_CATALOG_PATH" envDefault:""`

	DedupPolicy DedupPolicy   `env:"EVAL_DEDUP_POLICY" envDefault:"allow"`
	DedupTTL    time.Duration `env:"EVAL_DEDUP_TTL"    envDefault:"6h"`

	CancellationEnabled bool `env:"EVAL_CANCELLATION_ENABLED" envDefault:"false"`

	// ModelConcurrency bounds models evaluated at once per job. Zero means unbounded.
	ModelConcurrency int `env:"EVAL_MODEL_CONCURRENCY" envDefault:"0"`

	// MetricConcurrency bounds metrics scored at once per model. Zero means unbounded.
	MetricConcurrency int `env:"EVAL_METRIC_CONCURRENCY" envDefault:"4"`
}

// Sanitize applies guardrails to evaluation configuration values.
func (c *EvaluationConfig) Sanitize() {
	c.ResultsDir = strings.TrimSpace(c.ResultsDir)
	if c.ResultsDir == "" {
		c.ResultsDir = "./evaluation_results"
	}
	c.IndexPath = strings.TrimSpace(c.IndexPath)
	c.CatalogPath = strings.TrimSpace(c.CatalogPath)
	if !c.DedupPolicy.Valid() {
		c.DedupPolicy = DedupAllow
	}
	if c.DedupTTL < time.Minute {
		c.DedupTTL = time.Minute
	}
	if c.ModelConcurrency < 0 {
		c.ModelConcurrency = 0
	}
	if c.MetricConcurrency < 0 {
		c.MetricConcurrency = 0
	}
}

// IndexInMemory reports whether the job index lives only in RAM.
func (c *EvaluationConfig) IndexInMemory() bool {
	return c.IndexPath == ""
}

// SecurityRunnerConfig configures the external adversarial test process.
type SecurityRunnerConfig struct {
	// Path is the runner executable. Empty means every security run uses the fallback score.
	Path string `env:"EVAL_SECURITY_RUNNER_PATH" envDefault:""`

	// Args are passed before --model and --category, separated by spaces.
	Args []string `env:"EVAL_SECURITY_RUNNER_ARGS" envSeparator:" "`

	// Env entries are KEY=VALUE pairs separated by semicolons.
	Env []string `env:"EVAL_SECURITY_RUNNER_ENV" envSeparator:";"`

	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration `env:"EVAL_SECURITY_RUNNER_TIMEOUT" envDefault:"10m"`

	// StructuredOutput enables the NDJSON result channel on fd 3.
	StructuredOutput bool `env:"EVAL_SECURITY_STRUCTURED_OUTPUT" envDefault:"true"`

	// JMESPath expressions used to read runner payloads. Empty values keep the built-in defaults.
	ScoreExpr      string `env:"EVAL_SECURITY_EXPR_SCORE"`
	TotalTestsExpr string `env:"EVAL_SECURITY_EXPR_TOTAL_TESTS"`
	ResistedExpr   string `env:"EVAL_SECURITY_EXPR_RESISTED"`
	FailedExpr     string `env:"EVAL_SECURITY_EXPR_FAILED"`
	CategoriesExpr string `env:"EVAL_SECURITY_EXPR_CATEGORIES"`
}

// Sanitize trims paths and drops blank args and env entries.
func (c *SecurityRunnerConfig) Sanitize() {
	c.Path = strings.TrimSpace(c.Path)
	c.Args = compactStrings(c.Args)
	c.Env = compactStrings(c.Env)
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	c.ScoreExpr = strings.TrimSpace(c.ScoreExpr)
	c.TotalTestsExpr = strings.TrimSpace(c.TotalTestsExpr)
	c.ResistedExpr = strings.TrimSpace(c.ResistedExpr)
	c.FailedExpr = strings.TrimSpace(c.FailedExpr)
	c.CategoriesExpr = strings.TrimSpace(c.CategoriesExpr)
}

// ScorerKind selects the MetricScorer implementation.
type ScorerKind string

const (
	// ScorerHeuristic derives deterministic scores locally.
	ScorerHeuristic ScorerKind = "heuristic"
	// ScorerRemote calls an HTTP scoring service.
	ScorerRemote ScorerKind = "remote"
)

// ScorerConfig configures the quality metric scorer.
type ScorerConfig struct {
	Kind ScorerKind `env:"EVAL_SCORER" envDefault:"heuristic"`

	URL               string        `env:"EVAL_SCORER_URL"`
	Token             string        `env:"EVAL_SCORER_TOKEN"`
	Timeout           time.Duration `env:"EVAL_SCORER_TIMEOUT"             envDefault:"0s"`
	RequestsPerSecond float64       `env:"EVAL_SCORER_RPS"                 envDefault:"10"`
	Burst             int           `env:"EVAL_SCORER_BURST"               envDefault:"5"`
	HeuristicDelay    time.Duration `env:"EVAL_SCORER_HEURISTIC_DELAY"     envDefault:"0s"`
}

// Sanitize normalises the scorer kind and clamps limits.
func (c *ScorerConfig) Sanitize() {
	c.Kind = ScorerKind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
	if c.Kind != ScorerRemote {
		c.Kind = ScorerHeuristic
	}
	c.URL = strings.TrimSpace(c.URL)
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.RequestsPerSecond < 0 {
		c.RequestsPerSecond = 0
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.HeuristicDelay < 0 {
		c.HeuristicDelay = 0
	}
}
