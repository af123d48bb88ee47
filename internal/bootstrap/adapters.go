package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/adapters/scorer"
	"github.com/target/evalorch/internal/adapters/securityrunner"
	"github.com/target/evalorch/internal/catalog"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/data"
	"github.com/target/evalorch/internal/observability/statsd"
)

// NewMetricScorer builds the scorer selected by cfg.Kind.
//
//nolint:ireturn // the scorer kind is chosen at runtime.
func NewMetricScorer(cfg config.ScorerConfig, cat *catalog.Catalog, logger *slog.Logger) (core.MetricScorer, error) {
	if cfg.Kind == config.ScorerRemote {
		remote, err := scorer.NewRemoteScorer(scorer.RemoteOptions{
			URL:               cfg.URL,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			Timeout:           cfg.Timeout,
			AuthToken:         cfg.Token,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create remote scorer: %w", err)
		}
		return remote, nil
	}

	return scorer.NewHeuristicScorer(scorer.HeuristicOptions{
		Baseline: func(modelKey string) (float64, bool) {
			m, ok := cat.Model(modelKey)
			return m.Baseline, ok
		},
		Delay: cfg.HeuristicDelay,
	}), nil
}

// NewSecurityRunner builds the subprocess security runner.
func NewSecurityRunner(cfg config.SecurityRunnerConfig, logger *slog.Logger, sink statsd.Sink) (*securityrunner.Runner, error) {
	runner, err := securityrunner.New(securityrunner.Options{
		Path:             cfg.Path,
		Args:             cfg.Args,
		Env:              cfg.Env,
		Timeout:          cfg.Timeout,
		StructuredOutput: cfg.StructuredOutput,
		Expressions: securityrunner.Expressions{
			Score:      cfg.ScoreExpr,
			TotalTests: cfg.TotalTestsExpr,
			Resisted:   cfg.ResistedExpr,
			Failed:     cfg.FailedExpr,
			Categories: cfg.CategoriesExpr,
		},
		Logger:  logger,
		Metrics: sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create security runner: %w", err)
	}
	if cfg.Path == "" && logger != nil {
		logger.Warn("EVAL_SECURITY_RUNNER_PATH not set; security evaluations will return fallback results")
	}
	return runner, nil
}

// NewSubmissionLock returns the Redis lock when a client is available and the in-process
// lock otherwise. It returns nil when dedup is off.
//
//nolint:ireturn // the backing store is chosen at runtime.
func NewSubmissionLock(policy config.DedupPolicy, client redis.UniversalClient, prefix string) core.SubmissionLock {
	if policy == config.DedupAllow {
		return nil
	}
	if client != nil {
		return data.NewRedisSubmissionLock(client, prefix)
	}
	return data.NewMemorySubmissionLock()
}

// NewJobEventPublisher returns a Redis publisher, or nil without a client or channel.
//
//nolint:ireturn // nil disables event publishing.
func NewJobEventPublisher(client redis.UniversalClient, channel string) core.JobEventPublisher {
	if client == nil || channel == "" {
		return nil
	}
	return data.NewRedisJobEventPublisher(client, channel)
}
