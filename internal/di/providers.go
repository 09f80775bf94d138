package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/bvc-digitalhub/digitalhub-api/internal/app"
	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
	"github.com/bvc-digitalhub/digitalhub-api/internal/database"
	"github.com/bvc-digitalhub/digitalhub-api/internal/health"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/handler"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/middleware"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/router"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/repository"
	"github.com/bvc-digitalhub/digitalhub-api/internal/security"
	"github.com/bvc-digitalhub/digitalhub-api/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewAccountRepository,
	repository.NewProjectRepository,
	provideOneTimeCodeRepository,
	provideIdempotencyStore,
)

var SecuritySet = wire.NewSet(
	provideJWTManager,
	provideTokenService,
)

var ServiceSet = wire.NewSet(
	provideNotifier,
	wire.Bind(new(service.Notifier), new(*service.AsyncNotifier)),
	service.NewAuthService,
	service.NewAccountService,
	provideProjectService,
	provideAuthAbuseGuard,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.AccountServiceInterface), new(*service.AccountService)),
	wire.Bind(new(service.ProjectServiceInterface), new(*service.ProjectService)),
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	handler.NewAccountHandler,
	handler.NewProjectHandler,
	provideGlobalRateLimiter,
	provideAuthRateLimiter,
	provideIdempotency,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

type MigrationRunner struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewMigrationRunner(db *gorm.DB, logger *slog.Logger) *MigrationRunner {
	return &MigrationRunner{db: db, logger: logger}
}

func (m *MigrationRunner) Run(ctx context.Context) ([]string, error) {
	if err := database.Migrate(m.db.WithContext(ctx)); err != nil {
		return nil, err
	}
	tables := database.ModelTables(m.db)
	m.logger.InfoContext(ctx, "migration complete", "tables", tables)
	return tables, nil
}

func (m *MigrationRunner) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideBootstrapLogger(cfg *config.Config) *slog.Logger {
	return observability.NewBootstrapLogger(cfg)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// provideRedisClient returns nil when no component is configured to use redis.
func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if !cfg.UsesRedis() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, observability.RedisStores{
		cfg.OTPRedisPrefix:              "otp_codes",
		cfg.RateLimitRedisPrefix:        "rate_limit",
		cfg.AuthAbuseRedisPrefix:        "auth_abuse",
		cfg.ProjectFeedCacheRedisPrefix: "project_feed",
		cfg.IdempotencyRedisPrefix:      "idempotency",
	}, nil)
	return client
}

func provideOneTimeCodeRepository(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) repository.OneTimeCodeRepository {
	if cfg.OTPStore == config.OTPStoreRedis && redisClient != nil {
		return repository.NewRedisOneTimeCodeRepository(redisClient, cfg.OTPRedisPrefix, cfg.OTPTTL)
	}
	return repository.NewOneTimeCodeRepository(db)
}

// provideIdempotencyStore picks the store the same way as the OTP store: redis
// when configured and reachable, the database otherwise.
func provideIdempotencyStore(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) service.IdempotencyStore {
	if cfg.IdempotencyStore == config.IdempotencyStoreRedis && redisClient != nil {
		return service.NewRedisIdempotencyStore(redisClient, cfg.IdempotencyRedisPrefix)
	}
	return service.NewDBIdempotencyStore(db)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
}

func provideTokenService(cfg *config.Config, jwt *security.JWTManager) *service.TokenService {
	return service.NewTokenService(jwt, cfg.JWTAccessTTL)
}

func provideNotifier(cfg *config.Config, logger *slog.Logger) *service.AsyncNotifier {
	var sender service.Sender
	switch cfg.NotifyProvider {
	case config.NotifyProviderBrevo:
		sender = service.NewBrevoSender(service.BrevoConfig{
			BaseURL:     cfg.BrevoAPIURL,
			APIKey:      cfg.BrevoAPIKey,
			SenderEmail: cfg.BrevoSenderEmail,
			SenderName:  cfg.BrevoSenderName,
			Timeout:     cfg.NotifyTimeout,
		})
	default:
		sender = service.NewLogSender(logger)
	}
	return service.NewAsyncNotifier(sender, cfg.NotifyProvider, cfg.NotifyTimeout, logger)
}

func provideProjectService(cfg *config.Config, repo repository.ProjectRepository, redisClient redis.UniversalClient, logger *slog.Logger) *service.ProjectService {
	svc := service.NewProjectService(repo)
	if cfg.ProjectFeedCacheTTL <= 0 {
		return svc
	}
	var cache service.ProjectFeedCache
	if redisClient != nil {
		cache = service.NewRedisProjectFeedCache(redisClient, cfg.ProjectFeedCacheRedisPrefix)
	} else {
		cache = service.NewInMemoryProjectFeedCache()
	}
	return svc.WithFeedCache(cache, cfg.ProjectFeedCacheTTL, logger)
}

func provideAuthAbuseGuard(cfg *config.Config, redisClient redis.UniversalClient) service.AuthAbuseGuard {
	if !cfg.AuthAbuseProtectionEnabled {
		return service.NewNoopAuthAbuseGuard()
	}
	policy := service.AuthAbusePolicy{
		FreeAttempts: cfg.AuthAbuseFreeAttempts,
		BaseDelay:    cfg.AuthAbuseBaseDelay,
		Multiplier:   cfg.AuthAbuseMultiplier,
		MaxDelay:     cfg.AuthAbuseMaxDelay,
		ResetWindow:  cfg.AuthAbuseResetWindow,
	}
	if redisClient != nil {
		return service.NewRedisAuthAbuseGuard(redisClient, cfg.AuthAbuseRedisPrefix, policy)
	}
	return service.NewInMemoryAuthAbuseGuard(policy)
}

func provideAuthHandler(authSvc service.AuthServiceInterface, guard service.AuthAbuseGuard, cfg *config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(authSvc, guard, cfg.SecureCookies())
}

func provideGlobalRateLimiter(cfg *config.Config, redisClient redis.UniversalClient, tokens *service.TokenService) router.GlobalRateLimiterFunc {
	var limiter middleware.Limiter = middleware.NewLocalFixedWindowLimiter()
	if cfg.RateLimitRedisEnabled && redisClient != nil {
		limiter = middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix)
	}
	return middleware.NewDistributedRateLimiterWithKey(
		limiter,
		cfg.APIRateLimitPerMin,
		time.Minute,
		middleware.FailOpen,
		"api",
		middleware.SubjectOrIPKeyFunc(tokens),
	).Middleware()
}

func provideAuthRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) router.AuthRateLimiterFunc {
	var limiter middleware.Limiter = middleware.NewLocalFixedWindowLimiter()
	if cfg.RateLimitRedisEnabled && redisClient != nil {
		limiter = middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix)
	}
	return middleware.NewDistributedRateLimiter(
		limiter,
		cfg.AuthRateLimitPerMin,
		time.Minute,
		middleware.FailClosed,
		"auth",
	).Middleware()
}

func provideIdempotency(cfg *config.Config, store service.IdempotencyStore) router.IdempotencyFunc {
	return middleware.NewIdempotency(store, cfg.IdempotencyTTL).Middleware
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	accountHandler *handler.AccountHandler,
	projectHandler *handler.ProjectHandler,
	tokens *service.TokenService,
	globalRateLimiter router.GlobalRateLimiterFunc,
	authRateLimiter router.AuthRateLimiterFunc,
	idempotency router.IdempotencyFunc,
	readiness *health.ProbeRunner,
	logger *slog.Logger,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:       authHandler,
		AccountHandler:    accountHandler,
		ProjectHandler:    projectHandler,
		Tokens:            tokens,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		AuthRateLimitRPM:  cfg.AuthRateLimitPerMin,
		APIRateLimitRPM:   cfg.APIRateLimitPerMin,
		GlobalRateLimiter: globalRateLimiter,
		AuthRateLimiter:   authRateLimiter,
		Idempotency:       idempotency,
		Readiness:         readiness,
		Logger:            logger,
		EnableOTelHTTP:    cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	return health.NewProbeRunner(
		cfg.ReadinessProbeTimeout,
		cfg.ServerStartGracePeriod,
		health.NewDBChecker(db, database.ModelTables(db)...),
		health.NewRedisChecker(redisClient),
	)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	notifier *service.AsyncNotifier,
	idempotencyStore service.IdempotencyStore,
) *app.App {
	var jobs []app.Job
	if sweeper, ok := idempotencyStore.(*service.DBIdempotencyStore); ok && cfg.IdempotencyCleanupInterval > 0 {
		jobs = append(jobs, func(ctx context.Context) {
			sweeper.RunSweeper(ctx, cfg.IdempotencyCleanupInterval, logger)
		})
	}
	return app.New(cfg, logger, server, runtime, db, redisClient, notifier, jobs...)
}
