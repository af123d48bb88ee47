package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		t.Setenv("TEST_DB_PORT", "")
		t.Setenv("TEST_DB_HOST", "")
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, "55432", cfg.Port)
		assert.Equal(t, "evalorch", cfg.User)
	})

	t.Run("respects TEST_DB_PORT environment variable", func(t *testing.T) {
		t.Setenv("TEST_DB_PORT", "5432")
		assert.Equal(t, "5432", DefaultTestDBConfig().Port)
	})

	t.Run("renders dsn", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "db")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("DB_SSL_MODE", "")
		assert.Equal(t, "postgres://evalorch:evalorch@db:5432/evalorch?sslmode=disable", DefaultTestDBConfig().DSN())
	})
}

func TestNewJobRecordIsValid(t *testing.T) {
	assert.NoError(t, NewJobRecord("job-1").Validate())
}
