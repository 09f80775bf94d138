package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bvc-digitalhub/digitalhub-api/internal/http/middleware"
	"github.com/bvc-digitalhub/digitalhub-api/internal/http/response"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/repository"
	"github.com/bvc-digitalhub/digitalhub-api/internal/service"
)

// messageData is the body of responses that only acknowledge an action.
type messageData struct {
	Message string `json:"message"`
}

func parsePageRequest(r *http.Request) (repository.PageRequest, error) {
	page := repository.DefaultPage
	pageSize := repository.DefaultPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return repository.PageRequest{}, errors.New("page must be a positive integer")
		}
		page = v
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return repository.PageRequest{}, errors.New("page_size must be a positive integer")
		}
		if v > repository.MaxPageSize {
			return repository.PageRequest{}, fmt.Errorf("page_size must be <= %d", repository.MaxPageSize)
		}
		pageSize = v
	}
	return repository.PageRequest{Page: page, PageSize: pageSize}, nil
}

func paginatedData[T any](items []T, page, pageSize int, total int64, totalPages int) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": totalPages,
		},
	}
}

// decodeBody writes the 400 itself and reports whether the handler should go on.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := response.DecodeJSON(r, dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return false
	}
	return true
}

func requireAccountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return "", false
	}
	return id, true
}

// writeServiceError maps service sentinels onto the API error taxonomy and
// returns the outcome label used for metrics and audit records.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", validationMessage(err), nil)
		return "validation"
	case errors.Is(err, service.ErrDuplicateAccount):
		response.Error(w, r, http.StatusBadRequest, "DUPLICATE_ACCOUNT", "user already exists", nil)
		return "duplicate"
	case errors.Is(err, service.ErrCodeNotFound):
		response.Error(w, r, http.StatusBadRequest, "CODE_NOT_FOUND", "OTP expired or invalid, please resend", nil)
		return "code_not_found"
	case errors.Is(err, service.ErrCodeMismatch):
		response.Error(w, r, http.StatusBadRequest, "CODE_MISMATCH", "invalid OTP", nil)
		return "code_mismatch"
	case errors.Is(err, service.ErrAccountNotFound):
		response.Error(w, r, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "user not found", nil)
		return "account_not_found"
	case errors.Is(err, service.ErrAccountNotVerified):
		response.Error(w, r, http.StatusUnauthorized, "NOT_VERIFIED", "please verify your email first", nil)
		return "not_verified"
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusBadRequest, "INVALID_CREDENTIALS", "invalid credentials", nil)
		return "invalid_credentials"
	case errors.Is(err, service.ErrUnauthorized):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "unauthorized"
	case errors.Is(err, service.ErrProjectNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "project not found", nil)
		return "not_found"
	case errors.Is(err, service.ErrSelfLike):
		response.Error(w, r, http.StatusForbidden, "SELF_LIKE", "you cannot like your own project", nil)
		return "self_like"
	case errors.Is(err, service.ErrNotProjectOwner):
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "only the project owner can do this", nil)
		return "forbidden"
	default:
		observability.NewLogger().ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return "error"
	}
}

// validationMessage strips the sentinel prefix from "validation failed: <detail>".
func validationMessage(err error) string {
	msg := err.Error()
	prefix := service.ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
