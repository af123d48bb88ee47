package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DBConfig contains PostgreSQL archive configuration.
type DBConfig struct {
	// Enabled turns on the relational archive. Without it finished jobs live only in snapshots.
	Enabled  bool   `env:"ENABLED"                 envDefault:"false"`
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"evalorch"`
	Password string `env:"PASSWORD"                envDefault:"evalorch"`
	Name     string `env:"NAME"                    envDefault:"evalorch"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN returns a postgres connection URL for the pgx stdlib driver.
func (c DBConfig) DSN() string {
	// url.URL escapes special characters in credentials.
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	// Enabled switches dedup locking and job events to Redis.
	Enabled bool `env:"ENABLED" envDefault:"false"`
	// URI is a redis:// or rediss:// URL, or a bare host:port.
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`

	// KeyPrefix namespaces the dedup lock keys.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"evalorch:"`
	// EventsChannel is the pub/sub channel for job events. Empty disables publishing.
	EventsChannel string `env:"EVENTS_CHANNEL" envDefault:"evalorch:jobs"`
}

// Sanitize trims string fields.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	c.EventsChannel = strings.TrimSpace(c.EventsChannel)
	if c.DB < 0 {
		c.DB = 0
	}
}

func compactStrings(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
