package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/catalog"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/data"
	"github.com/target/evalorch/internal/observability/prom"
	"github.com/target/evalorch/internal/observability/statsd"
	"github.com/target/evalorch/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Catalog       *catalog.Catalog
	Evaluations   *service.EvaluationService
	Scheduler     *service.EvaluationScheduler
	Recovery      *service.RecoveryService
	Archive       *service.ArchiveService // nil when the archiver is disabled
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink fans out to every enabled backend; nil when none is enabled.
	MetricsSink statsd.Sink
	Statsd      *statsd.Client
	Prometheus  *prom.Sink
}

// MetricsHandler returns the Prometheus handler, or nil when Prometheus is disabled.
func (o ObservabilityContainer) MetricsHandler() http.Handler {
	if o.Prometheus == nil {
		return nil
	}
	return o.Prometheus.Handler()
}

// Close releases metric client resources.
func (o ObservabilityContainer) Close() error {
	if o.Statsd == nil {
		return nil
	}
	return o.Statsd.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // Optional: archive database
	RedisClient redis.UniversalClient // Optional: dedup lock and job events
	Index       core.JobIndex
	Logger      *slog.Logger
}

// buildObservability configures the statsd and Prometheus sinks.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var out ObservabilityContainer
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.Statsd = client
		}
	}
	if cfg.Prometheus.Enabled {
		out.Prometheus = prom.NewSink(prom.Options{
			Namespace:       cfg.Prometheus.Namespace,
			Logger:          obsLogger,
			RegisterRuntime: true,
		})
	}

	var sinks []statsd.Sink
	if out.Statsd != nil {
		sinks = append(sinks, out.Statsd)
	}
	if out.Prometheus != nil {
		sinks = append(sinks, out.Prometheus)
	}
	out.MetricsSink = statsd.Fanout(sinks...)
	return out
}

// loadCatalog reads the catalog file when configured and the embedded default otherwise.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// OpenJobIndex opens the badger-backed job index described by cfg. The returned close
// function must be called on shutdown.
func OpenJobIndex(cfg config.EvaluationConfig, logger *slog.Logger) (*data.BadgerJobIndex, func() error, error) {
	db, err := data.OpenBadger(data.BadgerConfig{
		Path:       cfg.IndexPath,
		InMemory:   cfg.IndexInMemory(),
		SyncWrites: cfg.IndexSyncWrites,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open job index: %w", err)
	}
	return data.NewBadgerJobIndex(db), db.Close, nil
}

// NewServices wires the evaluation services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	if deps.Index == nil {
		return ServiceContainer{}, errors.New("job index is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := loadCatalog(cfg.Evaluation.CatalogPath)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("load catalog: %w", err)
	}
	snapshots, err := data.NewFileSnapshotRepo(cfg.Evaluation.ResultsDir)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("open results directory: %w", err)
	}

	obs := buildObservability(logger, cfg.Observability)

	scorer, err := NewMetricScorer(cfg.Scorer, cat, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	security, err := NewSecurityRunner(cfg.Security, logger, obs.MetricsSink)
	if err != nil {
		return ServiceContainer{}, err
	}
	lock := NewSubmissionLock(cfg.Evaluation.DedupPolicy, deps.RedisClient, cfg.Redis.KeyPrefix)

	container := ServiceContainer{Catalog: cat, Observability: obs}

	if cfg.IsArchiverEnabled() && deps.DB != nil {
		container.Archive, err = service.NewArchiveService(service.ArchiveServiceOptions{
			Archiver: data.NewEvaluationArchiveRepo(deps.DB),
			Config:   cfg.Archiver,
			Logger:   logger,
			Metrics:  obs.MetricsSink,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("create archive service: %w", err)
		}
	}

	schedOpts := service.EvaluationSchedulerOptions{
		Stores: service.SchedulerStores{
			Index:     deps.Index,
			Snapshots: snapshots,
			Events:    NewJobEventPublisher(deps.RedisClient, cfg.Redis.EventsChannel),
		},
		Scoring: service.SchedulerScoring{Catalog: cat, Scorer: scorer, Security: security},
		Config:  cfg.Evaluation,
		Lock:    lock,
		Logger:  logger,
		Metrics: obs.MetricsSink,
	}
	if container.Archive != nil {
		schedOpts.Archive = container.Archive
	}
	container.Scheduler, err = service.NewEvaluationScheduler(schedOpts)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create evaluation scheduler: %w", err)
	}

	container.Recovery, err = service.NewRecoveryService(service.RecoveryServiceOptions{
		Snapshots: snapshots,
		Index:     deps.Index,
		Scheduler: container.Scheduler,
		Config:    cfg.Recovery,
		Logger:    logger,
		Metrics:   obs.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create recovery service: %w", err)
	}

	container.Evaluations, err = service.NewEvaluationService(service.EvaluationServiceOptions{
		Catalog:   cat,
		Index:     deps.Index,
		Snapshots: snapshots,
		Scheduler: container.Scheduler,
		Lock:      lock,
		Config:    cfg.Evaluation,
		Logger:    logger,
		Metrics:   obs.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create evaluation service: %w", err)
	}

	logger.Info("services initialised",
		"scorer", cfg.Scorer.Kind,
		"dedup_policy", cfg.Evaluation.DedupPolicy,
		"cancellation", cfg.Evaluation.CancellationEnabled,
		"archiver", container.Archive != nil,
		"redis", deps.RedisClient != nil,
	)
	return container, nil
}

// ServiceOrchestrationConfig contains everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
	if err != nil {
		deps.errCh <- fmt.Errorf("http server failed: %w", err)
		return nil
	}
	return server
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}
	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newRecoveryBackgroundService(recovery *service.RecoveryService) backgroundService {
	return backgroundService{
		mode:  config.ServiceModeRecovery,
		name:  "recovery",
		start: recovery.Run,
	}
}

func newArchiverBackgroundService(archive *service.ArchiveService) backgroundService {
	return backgroundService{
		mode:  config.ServiceModeArchiver,
		name:  "archiver",
		start: archive.Run,
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil {
		return nil
	}
	var out []backgroundService
	if deps.cfg.Services.Recovery != nil {
		out = append(out, newRecoveryBackgroundService(deps.cfg.Services.Recovery))
	}
	if deps.cfg.Services.Archive != nil {
		out = append(out, newArchiverBackgroundService(deps.cfg.Services.Archive))
	}
	return out
}

// ServiceStartupResult contains what startServices launched.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts the enabled services and blocks until SIGINT/SIGTERM or
// a service error, then shuts everything down.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		timeout:     cfg.Config.HTTP.ShutdownTimeout,
		scheduler:   cfg.Services.Scheduler,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	timeout     time.Duration
	scheduler   *service.EvaluationScheduler
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops accepting requests, lets running evaluations finish, then stops the
// background services so the archiver can drain what the evaluations produced.
func gracefulStop(cfg shutdownConfig) error {
	var errs []error
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Timeout: cfg.timeout,
			Logger:  cfg.logger,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.scheduler != nil {
		wait := cfg.timeout
		if wait <= 0 {
			wait = shutdownWaitTimeout
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), wait)
		if err := cfg.scheduler.Wait(drainCtx); err != nil {
			cfg.logger.Warn("evaluations still running at shutdown; they will be recovered on restart",
				"active", cfg.scheduler.ActiveCount())
		}
		cancel()
	}

	cfg.cancel()
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return errors.Join(errs...)
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
