package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeRecovery reloads persisted snapshots at startup and reschedules running jobs.
	ServiceModeRecovery ServiceMode = "recovery"
	// ServiceModeArchiver drains the archive queue into PostgreSQL.
	ServiceModeArchiver ServiceMode = "archiver"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeRecovery,
		ServiceModeArchiver,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeRecovery, ServiceModeArchiver:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, recovery, archiver)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ArchiverConfig contains archive worker configuration.
type ArchiverConfig struct {
	// QueueSize bounds the number of finished jobs waiting to be archived.
	QueueSize int `env:"ARCHIVER_QUEUE_SIZE" envDefault:"256"`

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int `env:"ARCHIVER_MAX_RETRIES" envDefault:"5"`

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `env:"ARCHIVER_INITIAL_BACKOFF" envDefault:"500ms"`

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration `env:"ARCHIVER_MAX_BACKOFF" envDefault:"30s"`

	// AttemptTimeout bounds a single archive write.
	AttemptTimeout time.Duration `env:"ARCHIVER_ATTEMPT_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to archiver configuration values.
func (a *ArchiverConfig) Sanitize() {
	if a.QueueSize < 1 {
		a.QueueSize = 1
	}
	if a.MaxRetries < 0 {
		a.MaxRetries = 0
	}
	if a.MaxRetries > 20 {
		a.MaxRetries = 20
	}
	if a.InitialBackoff < 10*time.Millisecond {
		a.InitialBackoff = 10 * time.Millisecond
	}
	if a.MaxBackoff < a.InitialBackoff {
		a.MaxBackoff = a.InitialBackoff
	}
	if a.AttemptTimeout <= 0 {
		a.AttemptTimeout = 10 * time.Second
	}
}

// RecoveryConfig contains startup recovery configuration.
type RecoveryConfig struct {
	// IndexTerminal also loads completed and errored snapshots into the job index,
	// keeping them queryable when the index is in memory.
	IndexTerminal bool `env:"RECOVERY_INDEX_TERMINAL" envDefault:"false"`
}
