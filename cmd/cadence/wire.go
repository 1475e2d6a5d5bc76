package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/api"
	"github.com/persistorai/cadence/internal/auth"
	"github.com/persistorai/cadence/internal/automation"
	"github.com/persistorai/cadence/internal/config"
	"github.com/persistorai/cadence/internal/crypto"
	"github.com/persistorai/cadence/internal/db"
	"github.com/persistorai/cadence/internal/dbpool"
	"github.com/persistorai/cadence/internal/ingest"
	"github.com/persistorai/cadence/internal/metric"
	"github.com/persistorai/cadence/internal/middleware"
	"github.com/persistorai/cadence/internal/notify"
	"github.com/persistorai/cadence/internal/replay"
	"github.com/persistorai/cadence/internal/scheduler"
	"github.com/persistorai/cadence/internal/service"
	"github.com/persistorai/cadence/internal/store"
)

// Fan-out and audit queue sizing.
const (
	fanoutConcurrency = 8
	auditQueueSize    = 1000
)

// app is the fully wired server.
type app struct {
	pool      *dbpool.Pool
	redis     *redis.Client
	listener  *db.JobListener
	scheduler *scheduler.Scheduler
	audit     *service.AuditWorker
	router    *api.RouterDeps

	tenants     *store.TenantStore
	dataSources *store.DataSourceStore
}

// close releases connections held by the app.
func (a *app) close() {
	if a.redis != nil {
		a.redis.Close() //nolint:errcheck // shutdown path.
	}
	a.pool.Close()
}

// buildApp connects to the database and Redis and wires every component.
func buildApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), int32(cfg.DBMaxConns)) //nolint:gosec // bounded by validation.
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	a := &app{pool: pool}

	if err := db.Migrate(ctx, pool, log); err != nil {
		a.close()
		return nil, err
	}
	if err := db.CheckSchema(ctx, pool); err != nil {
		a.close()
		return nil, err
	}

	keys, err := crypto.NewDerivedProvider(cfg.EncryptionKey.Value())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}

	var guard service.ReplayGuard
	if cfg.RedisAddr != "" {
		a.redis, err = replay.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword.Value(), cfg.RedisDB)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		guard = replay.NewRedisGuard(a.redis)
	} else {
		log.Warn("REDIS_ADDR not set, webhook replay protection is process-local")
		guard = replay.NewMemoryGuard()
	}

	base := store.Base{Pool: pool, Log: log, Crypto: crypto.NewService(keys)}
	tenantStore := store.NewTenantStore(base)
	userStore := store.NewUserStore(base)
	memberStore := store.NewMembershipStore(base)
	datasetStore := store.NewDatasetStore(base)
	sourceStore := store.NewDataSourceStore(base)
	logStore := store.NewIngestionLogStore(base)
	metricStore := store.NewMetricStore(base)
	dashboardStore := store.NewDashboardStore(base)
	ruleStore := store.NewAutomationStore(base)
	notificationStore := store.NewNotificationStore(base)
	auditStore := store.NewAuditStore(base)
	jobStore := store.NewJobStore(base, cfg.JobHistoryLimit)

	a.tenants = tenantStore
	a.dataSources = sourceStore

	calc := metric.NewCalculator(metricStore, datasetStore)
	fanout := notify.New(memberStore, notificationStore, log, fanoutConcurrency)
	engine := automation.NewEngine(ruleStore, calc, fanout,
		automation.NewHTTPDeliverer(cfg.WebhookDeliveryTimeout), cfg.AutomationEvalInterval, log)

	auditSvc := service.NewAuditService(auditStore, log)
	a.audit = service.NewAuditWorker(auditSvc, log, auditQueueSize)

	a.scheduler = scheduler.New(jobStore, scheduler.Config{
		PollInterval:       cfg.SchedulerPollInterval,
		AutomationInterval: cfg.AutomationEvalInterval,
		ETLInterval:        cfg.ETLPollInterval,
		MaxAttempts:        cfg.JobMaxAttempts,
		BackoffBase:        cfg.JobBackoffBase,
	}, log)
	a.listener = db.NewJobListener(log, pool)

	ingestion := service.NewIngestionService(sourceStore, datasetStore, logStore,
		ingest.NewFetcher(cfg.RESTPollTimeout), guard,
		service.WebhookConfig{ReplayTTL: cfg.WebhookReplayTTL, TimestampTolerance: cfg.WebhookTimestampTolerance}, log)

	(&scheduler.Workers{
		Rules:         engine,
		Poller:        ingestion,
		Metrics:       calc,
		Notifications: notificationStore,
		Log:           log,
	}).Install(a.scheduler)

	checks := []api.NamedCheck{
		{Name: "database", Check: pool.HealthCheck},
		{Name: "schema", Check: func(ctx context.Context) error { return db.CheckSchema(ctx, pool) }},
	}
	if a.redis != nil {
		rdb := a.redis
		checks = append(checks, api.NamedCheck{
			Name:     "redis",
			Optional: true,
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	a.router = &api.RouterDeps{
		Log:         log,
		Tokens:      auth.NewTokens(cfg.JWTSecret.Value(), cfg.JWTIssuer, cfg.InternalJWTSecret.Value(), cfg.InternalTokenTTL),
		Users:       userStore,
		Members:     memberStore,
		AdminEmails: middleware.NewAdminEmails(cfg.PlatformAdminEmails),

		Tenants:       service.NewTenantService(tenantStore, a.scheduler, a.audit, log),
		Memberships:   service.NewUserService(memberStore, userStore, a.scheduler, a.audit, log),
		Datasets:      service.NewDatasetService(datasetStore, a.audit),
		DataSources:   service.NewDataSourceService(sourceStore, datasetStore, a.scheduler, a.audit, log),
		Ingestion:     ingestion,
		Metrics:       service.NewMetricService(metricStore, calc, a.scheduler, a.audit),
		Dashboards:    service.NewDashboardService(dashboardStore, memberStore, a.audit),
		Automations:   service.NewAutomationService(ruleStore, engine, a.scheduler, a.audit),
		Notifications: service.NewNotificationService(notificationStore),
		Audit:         auditSvc,
		Admin:         service.NewAdminService(tenantStore, userStore, jobStore),

		Database:             pool.HealthCheck,
		ReadyChecks:          checks,
		CORSOrigins:          cfg.CORSOrigins,
		Version:              config.Version,
		WebhookRatePerMinute: cfg.WebhookRatePerMinute,
	}

	return a, nil
}
