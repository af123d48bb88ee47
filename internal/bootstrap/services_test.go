package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/data"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "recovery and archiver",
			modes: []config.ServiceMode{config.ServiceModeRecovery, config.ServiceModeArchiver},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeRecovery,
				config.ServiceModeArchiver,
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestErrorChannelBufferSize(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 1,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeRecovery,
				config.ServiceModeArchiver,
			},
			want: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelBufferSize(enabled); got != tt.want {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Services: "http,recovery",
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0"},
		Evaluation: config.EvaluationConfig{
			ResultsDir:          t.TempDir(),
			DedupPolicy:         config.DedupAllow,
			CancellationEnabled: true,
			MetricConcurrency:   2,
		},
		Scorer: config.ScorerConfig{Kind: config.ScorerHeuristic},
		Redis:  config.RedisConfig{KeyPrefix: "evalorch:test:"},
	}
	cfg.Sanitize()
	return cfg
}

func newTestServices(t *testing.T, cfg *config.AppConfig) ServiceContainer {
	t.Helper()
	index, closeIndex, err := OpenJobIndex(cfg.Evaluation, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeIndex() })

	services, err := NewServices(&ServiceDeps{
		Config: cfg,
		Index:  index,
		Logger: testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Observability.Close() })
	return services
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "archiver, http"}
	assert.Equal(t, []string{"http", "archiver"}, GetEnabledServices(cfg))

	cfg.Services = "http,bogus"
	assert.Empty(t, GetEnabledServices(cfg))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.AppConfig)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*config.AppConfig) {},
		},
		{
			name:    "no services",
			mutate:  func(c *config.AppConfig) { c.Services = "" },
			wantErr: "invalid service configuration",
		},
		{
			name:    "unknown service",
			mutate:  func(c *config.AppConfig) { c.Services = "http,worker" },
			wantErr: "invalid service configuration",
		},
		{
			name: "remote scorer without url",
			mutate: func(c *config.AppConfig) {
				c.Scorer.Kind = config.ScorerRemote
				c.Scorer.URL = ""
			},
			wantErr: "EVAL_SCORER_URL",
		},
		{
			name: "dedup without ttl",
			mutate: func(c *config.AppConfig) {
				c.Evaluation.DedupPolicy = config.DedupReject
				c.Evaluation.DedupTTL = 0
			},
			wantErr: "EVAL_DEDUP_TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAppConfig(t)
			tt.mutate(cfg)
			err := ValidateServiceConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, ValidateServiceConfig(nil))
}

func TestInitLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.Background()
	debug := InitLogger("debug")
	assert.True(t, debug.Enabled(ctx, slog.LevelDebug))

	warn := InitLogger("warn")
	assert.False(t, warn.Enabled(ctx, slog.LevelInfo))
	assert.True(t, warn.Enabled(ctx, slog.LevelWarn))

	fallback := InitLogger("loud")
	assert.True(t, fallback.Enabled(ctx, slog.LevelInfo))
	assert.False(t, fallback.Enabled(ctx, slog.LevelDebug))
}

func TestNewServices(t *testing.T) {
	t.Run("requires config and index", func(t *testing.T) {
		_, err := NewServices(nil)
		require.Error(t, err)

		_, err = NewServices(&ServiceDeps{Config: testAppConfig(t)})
		require.Error(t, err)
	})

	t.Run("wires evaluation services", func(t *testing.T) {
		services := newTestServices(t, testAppConfig(t))

		require.NotNil(t, services.Catalog)
		require.NotNil(t, services.Evaluations)
		require.NotNil(t, services.Scheduler)
		require.NotNil(t, services.Recovery)
		assert.Nil(t, services.Archive, "archiver needs postgres")
		assert.True(t, services.Evaluations.CancellationEnabled())
		assert.Nil(t, services.Observability.MetricsSink)
		assert.Nil(t, services.Observability.MetricsHandler())
		assert.NotEmpty(t, services.Evaluations.Catalog().Categories)
	})

	t.Run("prometheus enabled", func(t *testing.T) {
		cfg := testAppConfig(t)
		cfg.Observability.Prometheus.Enabled = true
		services := newTestServices(t, cfg)

		assert.NotNil(t, services.Observability.Prometheus)
		assert.NotNil(t, services.Observability.MetricsSink)
		assert.NotNil(t, services.Observability.MetricsHandler())
	})

	t.Run("bad catalog path", func(t *testing.T) {
		cfg := testAppConfig(t)
		cfg.Evaluation.CatalogPath = "/nonexistent/catalog.yaml"
		index, closeIndex, err := OpenJobIndex(cfg.Evaluation, testLogger())
		require.NoError(t, err)
		defer func() { _ = closeIndex() }()

		_, err = NewServices(&ServiceDeps{Config: cfg, Index: index, Logger: testLogger()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load catalog")
	})
}

func TestNewSubmissionLock(t *testing.T) {
	assert.Nil(t, NewSubmissionLock(config.DedupAllow, nil, "p:"))

	lock := NewSubmissionLock(config.DedupReject, nil, "p:")
	assert.IsType(t, &data.MemorySubmissionLock{}, lock)

	assert.Nil(t, NewJobEventPublisher(nil, "evalorch:jobs"))
}

func TestBuildHTTPHandler(t *testing.T) {
	cfg := testAppConfig(t)
	services := newTestServices(t, cfg)
	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   testLogger(),
		Services: buildRouterServices(cfg, services, testLogger()),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","activeEvaluations":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartAndShutdownHTTPServer(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.HTTP.MaxConnections = 4
	services := newTestServices(t, cfg)

	server, err := StartHTTPServer(&HTTPServerConfig{Config: cfg, Services: services, Logger: testLogger()})
	require.NoError(t, err)
	require.NotNil(t, server)

	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{
		Context: context.Background(),
		Server:  server,
		Timeout: time.Second,
		Logger:  testLogger(),
	}))

	cfg.HTTP.Addr = "256.0.0.1:bad"
	_, err = StartHTTPServer(&HTTPServerConfig{Config: cfg, Services: services, Logger: testLogger()})
	assert.Error(t, err)
}

func TestGracefulStopCancelsBackgroundServices(t *testing.T) {
	services := newTestServices(t, testAppConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	err := gracefulStop(shutdownConfig{
		cancel:      cancel,
		timeout:     time.Second,
		scheduler:   services.Scheduler,
		logger:      testLogger(),
		backgrounds: []backgroundServiceHandle{{mode: config.ServiceModeRecovery, name: "recovery", done: done}},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	select {
	case <-done:
	default:
		t.Fatal("background service did not stop")
	}
}

func TestStartBackgroundServicesSkipsDisabledModes(t *testing.T) {
	services := newTestServices(t, testAppConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := &serviceStartupDeps{
		ctx:             ctx,
		cfg:             &ServiceOrchestrationConfig{Services: services},
		logger:          testLogger(),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeRecovery: true},
		errCh:           make(chan error, 2),
	}
	handles := startBackgroundServices(deps, buildBackgroundServices(deps))
	require.Len(t, handles, 1)
	assert.Equal(t, "recovery", handles[0].name)

	select {
	case <-handles[0].done:
	case <-time.After(5 * time.Second):
		t.Fatal("recovery did not finish")
	}
	assert.Empty(t, deps.errCh)
}
