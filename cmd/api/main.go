package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/mailguard/internal/auth"
	"github.com/BradenHooton/mailguard/internal/background"
	"github.com/BradenHooton/mailguard/internal/config"
	"github.com/BradenHooton/mailguard/internal/database"
	"github.com/BradenHooton/mailguard/internal/detection"
	"github.com/BradenHooton/mailguard/internal/geo"
	"github.com/BradenHooton/mailguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/mailguard/internal/middleware"
	"github.com/BradenHooton/mailguard/internal/repositories"
	"github.com/BradenHooton/mailguard/internal/routes"
	"github.com/BradenHooton/mailguard/internal/services"
	pkghttp "github.com/BradenHooton/mailguard/pkg/http"
	pkglogger "github.com/BradenHooton/mailguard/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, cfg.Database.DSN(), logger); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	loginRecordRepo := repositories.NewLoginRecordRepository(db)
	trustedDeviceRepo := repositories.NewTrustedDeviceRepository(db)
	geoCacheRepo := repositories.NewGeoCacheRepository(db)
	riskRuleRepo := repositories.NewRiskRuleRepository(db)
	alertRepo := repositories.NewSecurityAlertRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)
	adminRepo := repositories.NewAdminRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Geolocation
	resolver, closeGeo, err := buildResolver(cfg.Geo, geoCacheRepo, logger)
	if err != nil {
		logger.Error("failed to initialize geolocation", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeGeo()

	// Detection
	registry := detection.NewRegistry(riskRuleRepo, logger)
	if err := registry.Load(ctx); err != nil {
		logger.Error("failed to load risk rules", slog.Any("error", err))
		os.Exit(1)
	}

	settingsService := services.NewSettingsService(settingsRepo, cfg.Detection, logger)
	engine := detection.NewEngine(resolver, registry, loginRecordRepo, trustedDeviceRepo, settingsService, cfg.Detection.TrustedDeviceMaxScore, logger)

	// Notifications
	mailer, err := buildMailer(ctx, cfg.Notification, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", slog.Any("error", err))
		os.Exit(1)
	}
	queue := services.NewNotificationQueue(adminRepo, mailer, settingsService, cfg.Notification, logger)
	dispatcher := services.NewAlertDispatcher(alertRepo, queue, settingsService, logger, auditLogger)
	securityService := services.NewSecurityService(alertRepo, loginRecordRepo, trustedDeviceRepo, riskRuleRepo, registry, logger, auditLogger)

	// HTTP
	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Handlers{
		Health:          handlers.NewHealthHandler(db),
		LoginAssessment: handlers.NewLoginAssessmentHandler(engine, dispatcher, securityService, cfg.Detection.AutoBlockThreshold, logger),
		Admin:           handlers.NewAdminHandler(securityService, dispatcher, logger),
	}, auth.NewTokenManager(cfg.Auth.JWTSecret), ipConfig)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Supervised workers
	supervisor := background.NewSupervisor(logger, 30*time.Second)
	supervisor.Add(queue)
	supervisor.Add(background.NewCleanupManager(
		geoCacheRepo,
		loginRecordRepo,
		logger,
		cfg.Cleanup.Interval,
		cfg.Geo.CacheTTL,
		cfg.Cleanup.LoginRecordRetention,
	))
	supervisor.Add(background.NewHTTPServerService(server, 30*time.Second, logger))

	logger.Info("starting server", slog.String("addr", server.Addr))
	if err := supervisor.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("supervisor stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// buildResolver wires the geolocation provider, its rate limiter and the cache.
// The returned func releases the provider and Redis resources.
func buildResolver(cfg config.GeoConfig, cache geo.CacheStore, logger *slog.Logger) (*geo.Resolver, func(), error) {
	catalogue, err := config.LoadGeoProviders(cfg.ProvidersFile)
	if err != nil {
		return nil, nil, err
	}

	provider, err := geo.BuildProvider(cfg, catalogue, logger)
	if err != nil {
		return nil, nil, err
	}

	quotas := geo.Quotas(catalogue)
	local := geo.NewLocalRateLimiter(quotas, 30)

	var limiter geo.RateLimiter = local
	closers := []func(){}
	if c, ok := provider.(interface{ Close() error }); ok {
		closers = append(closers, func() { _ = c.Close() })
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rdb := redis.NewClient(opts)
		closers = append(closers, func() { _ = rdb.Close() })
		limiter = geo.NewRedisRateLimiter(rdb, quotas, 30, local, logger)
		logger.Info("using shared redis rate limiter for geolocation providers")
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return geo.NewResolver(cache, provider, limiter, cfg.CacheTTL, logger), closeAll, nil
}

func buildMailer(ctx context.Context, cfg config.NotificationConfig, logger *slog.Logger) (services.Mailer, error) {
	if cfg.FromAddress == "" {
		logger.Warn("EMAIL_FROM_ADDRESS not set, alert emails will only be logged")
		return services.NewLogMailer(logger), nil
	}
	return services.NewSESMailer(ctx, cfg.AWSRegion, cfg.FromAddress, cfg.SendTimeout, logger)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
