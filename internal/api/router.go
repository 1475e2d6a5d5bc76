package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/middleware"
	"github.com/persistorai/cadence/internal/models"
)

// TokenService verifies bearer tokens and issues session tokens.
type TokenService interface {
	middleware.Authenticator
	SessionIssuer
}

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log           *logrus.Logger
	Tokens        TokenService
	Users         middleware.UserResolver
	Members       middleware.MembershipFinder
	AdminEmails   middleware.AdminEmails
	Tenants       TenantService
	Memberships   UserService
	Datasets      DatasetService
	DataSources   DataSourceService
	Ingestion     IngestionService
	Metrics       MetricService
	Dashboards    DashboardService
	Automations   AutomationService
	Notifications NotificationService
	Audit         AuditService
	Admin         AdminService
	Database      Check
	ReadyChecks   []NamedCheck
	CORSOrigins   []string
	Version       string
	// WebhookRatePerMinute bounds webhook deliveries per client IP.
	WebhookRatePerMinute int
}

// Router-level limits.
const (
	maxBodySize      = 10 << 20 // 10 MB
	rateLimit        = 100      // requests per second per IP
	rateBurst        = 200      // token bucket burst size
	authRatePerMin   = 30
	defaultHookLimit = 60
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestContext(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.PrometheusMiddleware())

	// Metrics endpoint (unauthenticated, like health).
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.Database, deps.ReadyChecks, log, deps.Version)
	authH := NewAuthHandler(deps.Tokens, log)
	tenants := NewTenantHandler(deps.Tenants, log)
	users := NewUserHandler(deps.Memberships, log)
	datasets := NewDatasetHandler(deps.Datasets, log)
	sources := NewDataSourceHandler(deps.DataSources, deps.Ingestion, log)
	metricsH := NewMetricHandler(deps.Metrics, log)
	dashboards := NewDashboardHandler(deps.Dashboards, log)
	automations := NewAutomationHandler(deps.Automations, log)
	notifications := NewNotificationHandler(deps.Notifications, log)
	audit := NewAuditHandler(deps.Audit, log)
	admin := NewAdminHandler(deps.Admin, log)

	// Health and readiness are unauthenticated.
	r.GET("/health", health.Liveness)
	r.GET("/ready", health.Readiness)

	api := r.Group("/api/v1")

	// Webhooks authenticate by signature, not by bearer token.
	hookLimit := deps.WebhookRatePerMinute
	if hookLimit <= 0 {
		hookLimit = defaultHookLimit
	}
	api.POST("/webhooks/data-sources/:id",
		middleware.NewPerMinuteLimiter(ctx, hookLimit, "Too many webhook requests").Handler(),
		middleware.WebhookContext(),
		sources.Webhook,
	)

	// All other API routes require authentication.
	bfGuard := middleware.NewBruteForceGuard(ctx, log)
	authed := api.Group("",
		middleware.BruteForceMiddleware(bfGuard),
		middleware.Auth(deps.Tokens, middleware.NewCachedUserResolver(ctx, deps.Users), deps.AdminEmails, log, bfGuard),
		middleware.ResolveTenant(deps.Members, log),
	)

	authed.POST("/auth/session",
		middleware.NewPerMinuteLimiter(ctx, authRatePerMin, "Too many auth requests").Handler(),
		authH.CreateSession,
	)

	// Onboarding works before a tenant exists.
	authed.POST("/tenants", tenants.Create)
	authed.GET("/tenants/me", tenants.Me)

	// Platform admin.
	adminGroup := authed.Group("/admin", middleware.RequirePlatformAdmin())
	adminGroup.GET("/tenants", admin.Tenants)
	adminGroup.GET("/users", admin.Users)
	adminGroup.GET("/jobs", admin.Jobs)

	scoped := authed.Group("", middleware.RequireTenant())
	owner := middleware.RequireRole(models.OwnerOnly)
	analyst := middleware.RequireRole(models.AnalystAndOwner)
	member := middleware.RequireRole(models.AnyTenantRole)

	// Users.
	scoped.GET("/users", analyst, users.List)
	scoped.POST("/users", owner, users.Add)
	scoped.PATCH("/users/:userId/role", owner, users.UpdateRole)
	scoped.DELETE("/users/:userId", owner, users.Remove)

	// Audit logs.
	scoped.GET("/audit-logs", owner, audit.Query)

	// Data sources and ingestion.
	scoped.GET("/data-sources", analyst, sources.List)
	scoped.POST("/data-sources", analyst, sources.Create)
	scoped.GET("/data-sources/:id", analyst, sources.Get)
	scoped.PATCH("/data-sources/:id", analyst, sources.Update)
	scoped.DELETE("/data-sources/:id", owner, sources.Delete)
	scoped.POST("/data-sources/:id/ingest", analyst, sources.Ingest)
	scoped.POST("/data-sources/:id/poll", analyst, sources.Poll)
	scoped.GET("/ingestion-logs", analyst, sources.Logs)

	// Datasets.
	scoped.GET("/datasets", analyst, datasets.List)
	scoped.POST("/datasets", analyst, datasets.Create)
	scoped.GET("/datasets/:id", analyst, datasets.Get)
	scoped.GET("/datasets/:id/records", analyst, datasets.Records)

	// Metrics.
	scoped.GET("/metrics", member, metricsH.List)
	scoped.POST("/metrics", analyst, metricsH.Create)
	scoped.GET("/metrics/:id", member, metricsH.Get)
	scoped.GET("/metrics/:id/value", member, metricsH.Value)
	scoped.POST("/metrics/:id/evaluate", analyst, metricsH.Evaluate)

	// Dashboards.
	scoped.GET("/dashboards", member, dashboards.List)
	scoped.POST("/dashboards", analyst, dashboards.Create)
	scoped.GET("/dashboards/:id", member, dashboards.Get)
	scoped.PATCH("/dashboards/:id", member, dashboards.Update)
	scoped.POST("/dashboards/:id/share", analyst, dashboards.Share)

	// Automations. The static runs route is registered before /:id.
	scoped.GET("/automations/runs", member, automations.Runs)
	scoped.GET("/automations", analyst, automations.List)
	scoped.POST("/automations", analyst, automations.Create)
	scoped.GET("/automations/:id", analyst, automations.Get)
	scoped.PATCH("/automations/:id/status", analyst, automations.SetStatus)
	scoped.POST("/automations/:id/run", analyst, automations.Run)

	// Notifications.
	scoped.GET("/notifications", member, notifications.List)
	scoped.POST("/notifications/:id/read", member, notifications.MarkRead)
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r, deps)

	return r
}
