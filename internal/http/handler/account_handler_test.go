package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/middleware"
	"github.com/bvc-digitalhub/digitalhub-api/internal/service"
	servicegomock "github.com/bvc-digitalhub/digitalhub-api/internal/service/gomock"
)

func TestAccountHandlerMe(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := servicegomock.NewMockAccountServiceInterface(ctrl)
	h := NewAccountHandler(svc)

	r := chi.NewRouter()
	r.With(middleware.AuthMiddleware(staticTokens{"tok": "acc-1", "stale": "acc-gone"})).Get("/me", h.Me)

	t.Run("returns the caller without the password hash", func(t *testing.T) {
		svc.EXPECT().Get(gomock.Any(), "acc-1").Return(&domain.Account{
			ID:           "acc-1",
			Name:         "Ada",
			Email:        "ada@example.com",
			PasswordHash: "$2a$10$secret",
			IsVerified:   true,
		}, nil)
		rr := doRequest(r, http.MethodGet, "/me", "tok", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var got map[string]any
		if err := json.Unmarshal(decodeEnvelope(t, rr).Data, &got); err != nil {
			t.Fatalf("decode account: %v", err)
		}
		if got["email"] != "ada@example.com" {
			t.Fatalf("unexpected account: %+v", got)
		}
		if _, leaked := got["PasswordHash"]; leaked {
			t.Fatal("password hash must not be serialized")
		}
	})

	t.Run("deleted account", func(t *testing.T) {
		svc.EXPECT().Get(gomock.Any(), "acc-gone").Return(nil, service.ErrAccountNotFound)
		expectErrorCode(t, doRequest(r, http.MethodGet, "/me", "stale", ""), http.StatusNotFound, "ACCOUNT_NOT_FOUND")
	})

	t.Run("anonymous", func(t *testing.T) {
		expectErrorCode(t, doRequest(r, http.MethodGet, "/me", "", ""), http.StatusUnauthorized, "UNAUTHORIZED")
	})
}

func TestAccountHandlerUpdateProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := servicegomock.NewMockAccountServiceInterface(ctrl)
	h := NewAccountHandler(svc)

	r := chi.NewRouter()
	r.With(middleware.AuthMiddleware(staticTokens{"tok": "acc-1"})).Put("/me", h.UpdateProfile)

	t.Run("saves name and finishes onboarding", func(t *testing.T) {
		svc.EXPECT().UpdateProfile(gomock.Any(), "acc-1", service.ProfileInput{Name: "Ada L."}).
			Return(&domain.Account{ID: "acc-1", Name: "Ada L.", Email: "ada@example.com", IsOnboarded: true}, nil)
		rr := doRequest(r, http.MethodPut, "/me", "tok", `{"name":"Ada L."}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
		}
		var got domain.Account
		if err := json.Unmarshal(decodeEnvelope(t, rr).Data, &got); err != nil {
			t.Fatalf("decode account: %v", err)
		}
		if got.Name != "Ada L." || !got.IsOnboarded {
			t.Fatalf("unexpected account: %+v", got)
		}
	})

	t.Run("explicit onboarding flag is forwarded", func(t *testing.T) {
		svc.EXPECT().UpdateProfile(gomock.Any(), "acc-1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, in service.ProfileInput) (*domain.Account, error) {
				if in.Onboarded == nil || *in.Onboarded {
					t.Errorf("expected onboarded=false to be forwarded, got %v", in.Onboarded)
				}
				return &domain.Account{ID: "acc-1", Name: in.Name}, nil
			})
		rr := doRequest(r, http.MethodPut, "/me", "tok", `{"name":"Ada","is_onboarded":false}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("blank name", func(t *testing.T) {
		svc.EXPECT().UpdateProfile(gomock.Any(), "acc-1", gomock.Any()).
			Return(nil, fmt.Errorf("%w: name is required", service.ErrValidation))
		expectErrorCode(t, doRequest(r, http.MethodPut, "/me", "tok", `{"name":"  "}`), http.StatusBadRequest, "BAD_REQUEST")
	})

	t.Run("malformed body", func(t *testing.T) {
		expectErrorCode(t, doRequest(r, http.MethodPut, "/me", "tok", `{"name":`), http.StatusBadRequest, "BAD_REQUEST")
	})

	t.Run("anonymous", func(t *testing.T) {
		expectErrorCode(t, doRequest(r, http.MethodPut, "/me", "", `{"name":"Ada"}`), http.StatusUnauthorized, "UNAUTHORIZED")
	})
}
