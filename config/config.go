package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: PostgreSQL archive and Redis configuration
//   - evaluation.go: Evaluation scheduling, scorer and security runner configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode and background worker configuration
//   - observability.go: Metrics sinks
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,recovery,archiver"`

	// Evaluation orchestration configuration
	Evaluation EvaluationConfig
	Security   SecurityRunnerConfig
	Scorer     ScorerConfig

	// Background services
	Archiver ArchiverConfig
	Recovery RecoveryConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Redis.Sanitize()
	c.Evaluation.Sanitize()
	c.Security.Sanitize()
	c.Scorer.Sanitize()
	c.Archiver.Sanitize()
	c.Observability.Sanitize()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsRecoveryEnabled returns true if startup recovery of persisted snapshots is enabled.
func (c *AppConfig) IsRecoveryEnabled() bool {
	return c.serviceEnabled(ServiceModeRecovery)
}

// IsArchiverEnabled returns true if the archive worker is enabled and has a database to write to.
func (c *AppConfig) IsArchiverEnabled() bool {
	return c.serviceEnabled(ServiceModeArchiver) && c.Postgres.Enabled
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
