package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	JWTIssuer    string
	JWTAudience  string
	JWTSecret    string
	JWTAccessTTL time.Duration

	OTPTTL         time.Duration
	OTPStore       string
	OTPRedisPrefix string

	NotifyProvider   string
	NotifyTimeout    time.Duration
	BrevoAPIURL      string
	BrevoAPIKey      string
	BrevoSenderEmail string
	BrevoSenderName  string

	CORSAllowedOrigins []string

	ProjectFeedCacheTTL         time.Duration
	ProjectFeedCacheRedisPrefix string

	IdempotencyStore           string
	IdempotencyTTL             time.Duration
	IdempotencyRedisPrefix     string
	IdempotencyCleanupInterval time.Duration

	AuthRateLimitPerMin   int
	APIRateLimitPerMin    int
	RateLimitRedisEnabled bool
	RateLimitRedisPrefix  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthAbuseProtectionEnabled bool
	AuthAbuseRedisPrefix       string
	AuthAbuseFreeAttempts      int
	AuthAbuseBaseDelay         time.Duration
	AuthAbuseMultiplier        float64
	AuthAbuseMaxDelay          time.Duration
	AuthAbuseResetWindow       time.Duration

	ReadinessProbeTimeout        time.Duration
	ServerStartGracePeriod       time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

const (
	OTPStoreDB    = "db"
	OTPStoreRedis = "redis"

	IdempotencyStoreDB    = "db"
	IdempotencyStoreRedis = "redis"

	NotifyProviderBrevo = "brevo"
	NotifyProviderLog   = "log"
)

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	defaultProvider := NotifyProviderBrevo
	if isLocalLikeEnv(env) {
		defaultProvider = NotifyProviderLog
	}

	cfg := &Config{
		Env:                        env,
		HTTPPort:                   getEnv("HTTP_PORT", "8080"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		JWTIssuer:                  getEnv("JWT_ISSUER", "digitalhub-api"),
		JWTAudience:                getEnv("JWT_AUDIENCE", "digitalhub-web"),
		JWTSecret:                  os.Getenv("JWT_SECRET"),
		OTPStore:                   strings.ToLower(getEnv("OTP_STORE", OTPStoreDB)),
		OTPRedisPrefix:             getEnv("OTP_REDIS_PREFIX", "otp"),
		NotifyProvider:             strings.ToLower(getEnv("NOTIFY_PROVIDER", defaultProvider)),
		BrevoAPIURL:                strings.TrimRight(getEnv("BREVO_API_URL", "https://api.brevo.com"), "/"),
		BrevoAPIKey:                os.Getenv("BREVO_API_KEY"),
		BrevoSenderEmail:           getEnv("BREVO_SENDER_EMAIL", "admin@bvc-digitalhub.com"),
		BrevoSenderName:            getEnv("BREVO_SENDER_NAME", "BVC DigitalHub"),
		CORSAllowedOrigins:         splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,https://bvc-digitalhub.vercel.app")),
		AuthRateLimitPerMin:        getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:         getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		RateLimitRedisEnabled:      getEnvBool("RATE_LIMIT_REDIS_ENABLED", false),
		RateLimitRedisPrefix:       getEnv("RATE_LIMIT_REDIS_PREFIX", "rl"),
		RedisAddr:                  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		RedisDB:                    getEnvInt("REDIS_DB", 0),
		AuthAbuseProtectionEnabled: getEnvBool("AUTH_ABUSE_PROTECTION_ENABLED", true),
		AuthAbuseRedisPrefix:       getEnv("AUTH_ABUSE_REDIS_PREFIX", "auth_abuse"),
		AuthAbuseFreeAttempts:      getEnvInt("AUTH_ABUSE_FREE_ATTEMPTS", 5),
		AuthAbuseMultiplier:        getEnvFloat("AUTH_ABUSE_MULTIPLIER", 2.0),

		ProjectFeedCacheRedisPrefix: getEnv("PROJECT_FEED_CACHE_REDIS_PREFIX", "project_feed"),
		IdempotencyStore:            strings.ToLower(getEnv("IDEMPOTENCY_STORE", IdempotencyStoreDB)),
		IdempotencyRedisPrefix:      getEnv("IDEMPOTENCY_REDIS_PREFIX", "idem"),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "digitalhub-api"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", true),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", true),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", true),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"JWT_ACCESS_TTL", "168h", &cfg.JWTAccessTTL},
		{"OTP_TTL", "5m", &cfg.OTPTTL},
		{"NOTIFY_TIMEOUT", "10s", &cfg.NotifyTimeout},
		{"PROJECT_FEED_CACHE_TTL", "30s", &cfg.ProjectFeedCacheTTL},
		{"IDEMPOTENCY_TTL", "10m", &cfg.IdempotencyTTL},
		{"IDEMPOTENCY_CLEANUP_INTERVAL", "5m", &cfg.IdempotencyCleanupInterval},
		{"AUTH_ABUSE_BASE_DELAY", "2s", &cfg.AuthAbuseBaseDelay},
		{"AUTH_ABUSE_MAX_DELAY", "5m", &cfg.AuthAbuseMaxDelay},
		{"AUTH_ABUSE_RESET_WINDOW", "30m", &cfg.AuthAbuseResetWindow},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SERVER_START_GRACE_PERIOD", "0s", &cfg.ServerStartGracePeriod},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dest = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 chars")
	}
	if c.JWTAccessTTL < time.Hour || c.JWTAccessTTL > (30*24*time.Hour) {
		errs = append(errs, "JWT_ACCESS_TTL must be between 1h and 30d")
	}
	if c.OTPTTL < 30*time.Second || c.OTPTTL > time.Hour {
		errs = append(errs, "OTP_TTL must be between 30s and 1h")
	}
	switch c.OTPStore {
	case OTPStoreDB:
	case OTPStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when OTP_STORE=redis")
		}
	default:
		errs = append(errs, "OTP_STORE must be one of db, redis")
	}
	switch c.NotifyProvider {
	case NotifyProviderLog:
		if !isLocalLikeEnv(c.Env) {
			errs = append(errs, "NOTIFY_PROVIDER=log is only allowed in local environments")
		}
	case NotifyProviderBrevo:
		if c.BrevoAPIKey == "" {
			errs = append(errs, "BREVO_API_KEY is required when NOTIFY_PROVIDER=brevo")
		}
		if c.BrevoSenderEmail == "" {
			errs = append(errs, "BREVO_SENDER_EMAIL is required when NOTIFY_PROVIDER=brevo")
		}
	default:
		errs = append(errs, "NOTIFY_PROVIDER must be one of brevo, log")
	}
	if c.NotifyTimeout <= 0 || c.NotifyTimeout > time.Minute {
		errs = append(errs, "NOTIFY_TIMEOUT must be between 1ms and 1m")
	}
	if c.ProjectFeedCacheTTL < 0 || c.ProjectFeedCacheTTL > 10*time.Minute {
		errs = append(errs, "PROJECT_FEED_CACHE_TTL must be between 0 and 10m")
	}
	switch c.IdempotencyStore {
	case IdempotencyStoreDB:
	case IdempotencyStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when IDEMPOTENCY_STORE=redis")
		}
	default:
		errs = append(errs, "IDEMPOTENCY_STORE must be one of db, redis")
	}
	if c.IdempotencyTTL < time.Minute || c.IdempotencyTTL > 24*time.Hour {
		errs = append(errs, "IDEMPOTENCY_TTL must be between 1m and 24h")
	}
	if c.IdempotencyCleanupInterval < 0 {
		errs = append(errs, "IDEMPOTENCY_CLEANUP_INTERVAL must be >= 0")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.RateLimitRedisEnabled && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when RATE_LIMIT_REDIS_ENABLED=true")
	}
	if c.AuthAbuseFreeAttempts < 0 {
		errs = append(errs, "AUTH_ABUSE_FREE_ATTEMPTS must be >= 0")
	}
	if c.AuthAbuseMultiplier < 1 {
		errs = append(errs, "AUTH_ABUSE_MULTIPLIER must be >= 1")
	}
	if c.AuthAbuseBaseDelay <= 0 || c.AuthAbuseMaxDelay < c.AuthAbuseBaseDelay {
		errs = append(errs, "AUTH_ABUSE_MAX_DELAY must be >= AUTH_ABUSE_BASE_DELAY > 0")
	}
	if c.AuthAbuseResetWindow <= 0 {
		errs = append(errs, "AUTH_ABUSE_RESET_WINDOW must be > 0")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// SecureCookies reports whether auth cookies must carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return !isLocalLikeEnv(c.Env)
}

// UsesRedis reports whether any runtime component needs a redis client.
func (c *Config) UsesRedis() bool {
	return c.OTPStore == OTPStoreRedis || c.IdempotencyStore == IdempotencyStoreRedis || c.RateLimitRedisEnabled
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
