package config

import (
	"strings"
	"testing"
	"time"
)

func validConfigForTest() *Config {
	return &Config{
		Env:                        "development",
		DatabaseURL:                "postgres://x",
		JWTSecret:                  "abcdefghijklmnopqrstuvwxyz123456",
		JWTAccessTTL:               7 * 24 * time.Hour,
		OTPTTL:                     5 * time.Minute,
		OTPStore:                   OTPStoreDB,
		IdempotencyStore:           IdempotencyStoreDB,
		IdempotencyTTL:             10 * time.Minute,
		NotifyProvider:             NotifyProviderLog,
		NotifyTimeout:              10 * time.Second,
		AuthRateLimitPerMin:        30,
		APIRateLimitPerMin:         120,
		AuthAbuseProtectionEnabled: true,
		AuthAbuseFreeAttempts:      5,
		AuthAbuseBaseDelay:         2 * time.Second,
		AuthAbuseMultiplier:        2,
		AuthAbuseMaxDelay:          5 * time.Minute,
		AuthAbuseResetWindow:       30 * time.Minute,
		OTELTraceSamplingRatio:     1.0,
		OTELMetricsExportInterval:  10 * time.Second,
		OTELLogLevel:               "info",
	}
}

func TestValidateDevelopmentProfile(t *testing.T) {
	if err := validConfigForTest().Validate(); err != nil {
		t.Fatalf("expected valid development config, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = "" }, want: "DATABASE_URL"},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, want: "JWT_SECRET"},
		{name: "token ttl too long", mutate: func(c *Config) { c.JWTAccessTTL = 90 * 24 * time.Hour }, want: "JWT_ACCESS_TTL"},
		{name: "otp ttl too short", mutate: func(c *Config) { c.OTPTTL = time.Second }, want: "OTP_TTL"},
		{name: "unknown otp store", mutate: func(c *Config) { c.OTPStore = "memcached" }, want: "OTP_STORE"},
		{name: "redis otp store without addr", mutate: func(c *Config) { c.OTPStore = OTPStoreRedis; c.RedisAddr = "" }, want: "REDIS_ADDR"},
		{name: "unknown idempotency store", mutate: func(c *Config) { c.IdempotencyStore = "memory" }, want: "IDEMPOTENCY_STORE"},
		{name: "idempotency ttl too short", mutate: func(c *Config) { c.IdempotencyTTL = time.Second }, want: "IDEMPOTENCY_TTL"},
		{name: "log sender outside local env", mutate: func(c *Config) { c.Env = "production" }, want: "NOTIFY_PROVIDER=log"},
		{name: "brevo without key", mutate: func(c *Config) { c.NotifyProvider = NotifyProviderBrevo }, want: "BREVO_API_KEY"},
		{name: "bad sampling ratio", mutate: func(c *Config) { c.OTELTraceSamplingRatio = 2 }, want: "OTEL_TRACE_SAMPLING_RATIO"},
		{name: "bad log level", mutate: func(c *Config) { c.OTELLogLevel = "trace" }, want: "OTEL_LOG_LEVEL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfigForTest()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := validConfigForTest()
	cfg.DatabaseURL = ""
	cfg.JWTSecret = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Fatalf("expected joined errors, got %q", err.Error())
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "postgres://localhost/digitalhub")
	t.Setenv("JWT_SECRET", "abcdefghijklmnopqrstuvwxyz123456")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTAccessTTL != 7*24*time.Hour {
		t.Fatalf("expected 7d token ttl, got %v", cfg.JWTAccessTTL)
	}
	if cfg.OTPTTL != 5*time.Minute {
		t.Fatalf("expected 5m otp ttl, got %v", cfg.OTPTTL)
	}
	if cfg.NotifyProvider != NotifyProviderLog {
		t.Fatalf("expected log sender in test env, got %q", cfg.NotifyProvider)
	}
	if cfg.NotifyTimeout != 10*time.Second {
		t.Fatalf("expected 10s notify timeout, got %v", cfg.NotifyTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected default cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.IdempotencyStore != IdempotencyStoreDB || cfg.IdempotencyTTL != 10*time.Minute {
		t.Fatalf("expected db idempotency store with 10m ttl, got %q %v", cfg.IdempotencyStore, cfg.IdempotencyTTL)
	}
	if cfg.UsesRedis() {
		t.Fatal("expected redis to be unused by default")
	}
}

func TestUsesRedisForIdempotencyStore(t *testing.T) {
	cfg := validConfigForTest()
	cfg.RedisAddr = "localhost:6379"
	cfg.IdempotencyStore = IdempotencyStoreRedis
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cfg.UsesRedis() {
		t.Fatal("expected redis idempotency store to require a redis client")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/digitalhub")
	t.Setenv("JWT_SECRET", "abcdefghijklmnopqrstuvwxyz123456")
	t.Setenv("OTP_TTL", "five minutes")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse OTP_TTL") {
		t.Fatalf("expected OTP_TTL parse error, got %v", err)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a ,,b, ")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected split result: %v", got)
	}
}
