package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// problemDetails follows RFC 9457 and is only sent when the client asks for it.
type problemDetails struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	if prefersProblemJSON(r) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(problemDetails{
			Type:      "urn:problem:digitalhub:" + strings.ReplaceAll(strings.ToLower(code), "_", "-"),
			Title:     problemTitle(code, status),
			Status:    status,
			Detail:    message,
			Instance:  r.URL.Path,
			Code:      code,
			RequestID: buildMeta(r).RequestID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message, Details: details},
		Meta:    buildMeta(r),
	})
}

// ErrInvalidJSON is returned by DecodeJSON for any body that is not a single
// well formed JSON object of the expected shape.
var ErrInvalidJSON = errors.New("invalid json payload")

// DecodeJSON reads exactly one JSON value from r into dst. Unknown fields are
// ignored so older clients keep working.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrInvalidJSON
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidJSON, maxErr.Limit)
		}
		return ErrInvalidJSON
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrInvalidJSON
	}
	return nil
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}

func prefersProblemJSON(r *http.Request) bool {
	for _, part := range strings.Split(strings.ToLower(r.Header.Get("Accept")), ",") {
		mediaType, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(mediaType) != "application/problem+json" {
			continue
		}
		rejected := false
		for _, p := range strings.Split(params, ";") {
			if q, ok := strings.CutPrefix(strings.TrimSpace(p), "q="); ok {
				rejected = strings.Trim(strings.TrimSpace(q), "0.") == ""
			}
		}
		if !rejected {
			return true
		}
	}
	return false
}

func problemTitle(code string, status int) string {
	switch code {
	case "BAD_REQUEST":
		return "Bad Request"
	case "UNAUTHORIZED":
		return "Unauthorized"
	case "FORBIDDEN":
		return "Forbidden"
	case "NOT_FOUND":
		return "Not Found"
	case "RATE_LIMITED":
		return "Too Many Requests"
	case "DUPLICATE_ACCOUNT":
		return "Account Already Exists"
	case "CODE_NOT_FOUND":
		return "Code Expired or Invalid"
	case "CODE_MISMATCH":
		return "Invalid Code"
	case "NOT_VERIFIED":
		return "Account Not Verified"
	case "INVALID_CREDENTIALS":
		return "Invalid Credentials"
	case "SELF_LIKE":
		return "Self Like Not Allowed"
	case "IDEMPOTENCY_CONFLICT":
		return "Idempotency Key Reused"
	case "REQUEST_IN_PROGRESS":
		return "Request In Progress"
	case "DEPENDENCY_UNREADY":
		return "Service Unavailable"
	case "INTERNAL":
		return "Internal Server Error"
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Error"
}
