package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
	"github.com/bvc-digitalhub/digitalhub-api/internal/database"
	"github.com/bvc-digitalhub/digitalhub-api/internal/health"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/handler"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/router"
	"github.com/bvc-digitalhub/digitalhub-api/internal/repository"
	"github.com/bvc-digitalhub/digitalhub-api/internal/security"
	"github.com/bvc-digitalhub/digitalhub-api/internal/service"
)

const testOTP = "424242"

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e apiEnvelope) errorCode() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

type discardNotifier struct{}

func (discardNotifier) Notify(_ context.Context, _ service.Message) {}

type testServerOptions struct {
	cfgOverride      func(cfg *config.Config)
	authRateLimitRPM int
}

type testServer struct {
	baseURL string
	db      *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithOptions(t, testServerOptions{})
}

func newTestServerWithOptions(t *testing.T, opts testServerOptions) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := &config.Config{
		JWTAccessTTL:               24 * time.Hour,
		OTPTTL:                     5 * time.Minute,
		AuthAbuseProtectionEnabled: true,
		AuthAbuseFreeAttempts:      3,
		AuthAbuseBaseDelay:         2 * time.Second,
		AuthAbuseMultiplier:        2.0,
		AuthAbuseMaxDelay:          5 * time.Minute,
		AuthAbuseResetWindow:       30 * time.Minute,
	}
	if opts.cfgOverride != nil {
		opts.cfgOverride(cfg)
	}
	authRPM := opts.authRateLimitRPM
	if authRPM <= 0 {
		authRPM = 1000
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := repository.NewAccountRepository(db)
	codes := repository.NewOneTimeCodeRepository(db)
	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	tokens := service.NewTokenService(jwtMgr, cfg.JWTAccessTTL)
	authSvc := service.NewAuthService(cfg, accounts, codes, tokens, discardNotifier{}, log).
		WithCodeGenerator(security.FixedCode(testOTP))
	guard := service.NewInMemoryAuthAbuseGuard(service.AuthAbusePolicy{
		FreeAttempts: cfg.AuthAbuseFreeAttempts,
		BaseDelay:    cfg.AuthAbuseBaseDelay,
		Multiplier:   cfg.AuthAbuseMultiplier,
		MaxDelay:     cfg.AuthAbuseMaxDelay,
		ResetWindow:  cfg.AuthAbuseResetWindow,
	})

	r := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authSvc, guard, false),
		AccountHandler:   handler.NewAccountHandler(service.NewAccountService(accounts)),
		ProjectHandler:   handler.NewProjectHandler(service.NewProjectService(repository.NewProjectRepository(db))),
		Tokens:           tokens,
		CORSOrigins:      []string{"http://localhost:5173"},
		AuthRateLimitRPM: authRPM,
		APIRateLimitRPM:  1000,
		Readiness:        health.NewProbeRunner(time.Second, 0, health.NewDBChecker(db, database.ModelTables(db)...)),
		Logger:           log,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{baseURL: srv.URL, db: db}
}

// newClient returns a client with its own cookie jar, standing in for one browser.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope %q: %v", string(raw), err)
		}
	}
	return resp, env
}

func decodeData[T any](t *testing.T, env apiEnvelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", string(env.Data), err)
	}
	return out
}

type authData struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type projectData struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	OwnerID   string   `json:"owner_id"`
	TechStack []string `json:"tech_stack"`
	Likes     []string `json:"likes"`
}

// enroll walks send-otp, verify-otp and signup for a fresh account.
func enroll(t *testing.T, client *http.Client, baseURL, name, email, password string) authData {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/send-otp", map[string]string{"email": email}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("send-otp %s: status=%d code=%s", email, resp.StatusCode, env.errorCode())
	}
	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/verify-otp", map[string]string{"email": email, "otp": testOTP}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("verify-otp %s: status=%d code=%s", email, resp.StatusCode, env.errorCode())
	}
	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
		"otp":      testOTP,
	}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("signup %s: status=%d code=%s", email, resp.StatusCode, env.errorCode())
	}
	return decodeData[authData](t, env)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
