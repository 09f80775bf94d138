package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bvc-digitalhub/digitalhub-api/internal/health"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/handler"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/middleware"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/response"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	AccountHandler    *handler.AccountHandler
	ProjectHandler    *handler.ProjectHandler
	Tokens            middleware.TokenValidator
	CORSOrigins       []string
	AuthRateLimitRPM  int
	APIRateLimitRPM   int
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	Idempotency       IdempotencyFunc
	Readiness         *health.ProbeRunner
	Logger            *slog.Logger
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

// IdempotencyFunc returns the replay middleware for one route scope.
type IdempotencyFunc func(scope string) func(http.Handler) http.Handler

const maxBodyBytes = 1 << 20

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewDistributedRateLimiterWithKey(
			middleware.NewLocalFixedWindowLimiter(),
			dep.APIRateLimitRPM,
			time.Minute,
			middleware.FailClosed,
			"api",
			middleware.SubjectOrIPKeyFunc(dep.Tokens),
		).Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewDistributedRateLimiter(
			middleware.NewLocalFixedWindowLimiter(),
			dep.AuthRateLimitRPM,
			time.Minute,
			middleware.FailClosed,
			"auth",
		).Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.Tokens)
	idempotent := func(scope string) func(http.Handler) http.Handler {
		if dep.Idempotency == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return dep.Idempotency(scope)
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter)
			r.Post("/send-otp", dep.AuthHandler.SendOTP)
			r.Post("/verify-otp", dep.AuthHandler.VerifyOTP)
			r.With(idempotent("auth.signup")).Post("/signup", dep.AuthHandler.Signup)
			r.Post("/login", dep.AuthHandler.Login)
		})

		r.With(requireAuth).Get("/me", dep.AccountHandler.Me)
		r.With(requireAuth).Put("/me", dep.AccountHandler.UpdateProfile)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", dep.ProjectHandler.List)
			r.With(requireAuth).Get("/my", dep.ProjectHandler.ListMine)
			r.Get("/{id}", dep.ProjectHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", dep.ProjectHandler.Create)
				r.Put("/{id}", dep.ProjectHandler.Update)
				r.Delete("/{id}", dep.ProjectHandler.Delete)
				r.Post("/{id}/like", dep.ProjectHandler.ToggleLike)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
