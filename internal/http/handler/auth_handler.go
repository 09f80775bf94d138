package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/http/middleware"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/response"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/service"
)

type AuthHandler struct {
	authSvc      service.AuthServiceInterface
	abuseGuard   service.AuthAbuseGuard
	cookieSecure bool
}

func NewAuthHandler(authSvc service.AuthServiceInterface, abuseGuard service.AuthAbuseGuard, cookieSecure bool) *AuthHandler {
	if abuseGuard == nil {
		abuseGuard = service.NewNoopAuthAbuseGuard()
	}
	return &AuthHandler{authSvc: authSvc, abuseGuard: abuseGuard, cookieSecure: cookieSecure}
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      any       `json:"user"`
}

func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "send_otp", status, time.Since(start))
	}()

	var req sendOTPRequest
	if !decodeBody(w, r, &req) {
		status = "bad_request"
		return
	}
	if err := h.authSvc.BeginEnrollment(r.Context(), req.Email); err != nil {
		status = writeServiceError(w, r, err)
		observability.Audit(r, "auth.enrollment.begin", "failure", "reason", status)
		return
	}
	observability.Audit(r, "auth.enrollment.begin", "success")
	response.JSON(w, r, http.StatusOK, messageData{Message: "OTP sent to email"})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "verify_otp", status, time.Since(start))
	}()

	var req verifyOTPRequest
	if !decodeBody(w, r, &req) {
		status = "bad_request"
		return
	}
	ip := middleware.ClientIP(r)
	if !h.checkAbuse(w, r, service.AuthAbuseScopeEnrollment, req.Email, ip) {
		status = "throttled"
		return
	}
	if err := h.authSvc.VerifyEnrollmentCode(r.Context(), req.Email, req.OTP); err != nil {
		status = writeServiceError(w, r, err)
		h.registerCodeFailure(r, status, req.Email, ip)
		observability.Audit(r, "auth.enrollment.verify", "failure", "reason", status)
		return
	}
	observability.Audit(r, "auth.enrollment.verify", "success")
	response.JSON(w, r, http.StatusOK, messageData{Message: "OTP verified"})
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "signup", status, time.Since(start))
	}()

	var req signupRequest
	if !decodeBody(w, r, &req) {
		status = "bad_request"
		return
	}
	ip := middleware.ClientIP(r)
	if !h.checkAbuse(w, r, service.AuthAbuseScopeEnrollment, req.Email, ip) {
		status = "throttled"
		return
	}
	result, err := h.authSvc.CompleteEnrollment(r.Context(), service.EnrollmentInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Code:     req.OTP,
	})
	if err != nil {
		status = writeServiceError(w, r, err)
		h.registerCodeFailure(r, status, req.Email, ip)
		observability.Audit(r, "auth.enrollment.complete", "failure", "reason", status)
		return
	}
	h.resetAbuse(r, service.AuthAbuseScopeEnrollment, req.Email, ip)
	h.setAccessCookie(w, result)
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.enrollment.complete",
		ActorUserID: result.Account.ID,
		TargetType:  "account",
		TargetID:    result.Account.ID,
		Action:      "create",
		Outcome:     "success",
	})
	response.JSON(w, r, http.StatusCreated, authResponse{
		Message:   "User registered successfully",
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      result.Account,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var req loginRequest
	if !decodeBody(w, r, &req) {
		status = "bad_request"
		return
	}
	ip := middleware.ClientIP(r)
	if !h.checkAbuse(w, r, service.AuthAbuseScopeLogin, req.Email, ip) {
		status = "throttled"
		return
	}
	result, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status = writeServiceError(w, r, err)
		switch status {
		case "account_not_found", "not_verified", "invalid_credentials":
			h.registerFailure(r, service.AuthAbuseScopeLogin, req.Email, ip)
		}
		observability.Audit(r, "auth.login", "failure", "reason", status)
		return
	}
	h.resetAbuse(r, service.AuthAbuseScopeLogin, req.Email, ip)
	h.setAccessCookie(w, result)
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.login",
		ActorUserID: result.Account.ID,
		TargetType:  "account",
		TargetID:    result.Account.ID,
		Action:      "login",
		Outcome:     "success",
	})
	response.JSON(w, r, http.StatusOK, authResponse{
		Message:   "Login successful",
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      result.Account,
	})
}

// checkAbuse fails open when the guard backend is unavailable.
func (h *AuthHandler) checkAbuse(w http.ResponseWriter, r *http.Request, scope service.AuthAbuseScope, email, ip string) bool {
	wait, err := h.abuseGuard.Check(r.Context(), scope, guardEmail(email), ip)
	if err != nil {
		slog.WarnContext(r.Context(), "auth abuse guard check failed", "scope", string(scope), "error", err)
		return true
	}
	if wait <= 0 {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(max(wait.Round(time.Second), time.Second)/time.Second)))
	observability.Audit(r, "auth.abuse.throttled", "denied", "scope", string(scope))
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many failed attempts, try again later", nil)
	return false
}

func (h *AuthHandler) registerCodeFailure(r *http.Request, status, email, ip string) {
	if status == "code_not_found" || status == "code_mismatch" {
		h.registerFailure(r, service.AuthAbuseScopeEnrollment, email, ip)
	}
}

func (h *AuthHandler) registerFailure(r *http.Request, scope service.AuthAbuseScope, email, ip string) {
	if _, err := h.abuseGuard.RegisterFailure(r.Context(), scope, guardEmail(email), ip); err != nil {
		slog.WarnContext(r.Context(), "auth abuse guard register failed", "scope", string(scope), "error", err)
	}
}

func (h *AuthHandler) resetAbuse(r *http.Request, scope service.AuthAbuseScope, email, ip string) {
	if err := h.abuseGuard.Reset(r.Context(), scope, guardEmail(email), ip); err != nil {
		slog.WarnContext(r.Context(), "auth abuse guard reset failed", "scope", string(scope), "error", err)
	}
}

func (h *AuthHandler) setAccessCookie(w http.ResponseWriter, result *service.AuthResult) {
	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	if maxAge <= 0 {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func guardEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
