package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bvc-digitalhub/digitalhub-api/internal/http/response"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

type contextKey string

const (
	AccountIDContextKey contextKey = "account_id"

	AccessTokenCookie = "access_token"
)

// TokenValidator resolves an access token to the account id it was issued for.
type TokenValidator interface {
	Validate(raw string) (string, error)
}

// AuthMiddleware requires a valid access token from the Authorization header or
// the access_token cookie. The header wins when both are present.
func AuthMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := AccessTokenFromRequest(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			accountID, err := tokens.Validate(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "ok", source)
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
		})
	}
}

// AccessTokenFromRequest returns the raw token and where it came from.
func AccessTokenFromRequest(r *http.Request) (string, string) {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if raw := strings.TrimSpace(auth[7:]); raw != "" {
			return raw, "header"
		}
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, "cookie"
	}
	return "", ""
}

func WithAccountID(ctx context.Context, accountID string) context.Context {
	if h, ok := ctx.Value(accountHolderKey).(*accountHolder); ok {
		h.id = accountID
	}
	return context.WithValue(ctx, AccountIDContextKey, accountID)
}

const accountHolderKey contextKey = "account_holder"

type accountHolder struct{ id string }

func withAccountHolder(ctx context.Context, h *accountHolder) context.Context {
	return context.WithValue(ctx, accountHolderKey, h)
}

func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AccountIDContextKey).(string)
	return id, ok && id != ""
}
