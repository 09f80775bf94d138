package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bvc-digitalhub/digitalhub-api/internal/http/response"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/service"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotencyReplayedHeader = "X-Idempotency-Replayed"

	maxIdempotencyKeyLen = 128
)

// Idempotency replays the first successful response to a request carrying an
// Idempotency-Key. Requests without the header pass straight through. Only
// 2xx responses are remembered; anything else releases the key so the client
// may retry with it.
type Idempotency struct {
	store service.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotency(store service.IdempotencyStore, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

func (m *Idempotency) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if !validIdempotencyKey(key) {
				observability.RecordIdempotencyEvent(ctx, scope, "invalid_key")
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid Idempotency-Key header", nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				observability.RecordIdempotencyEvent(ctx, scope, "read_error")
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := requestFingerprint(r, scope, body)

			claim, err := m.store.Claim(ctx, scope, key, fingerprint, m.ttl)
			if err != nil {
				// An unavailable store must not block enrollment.
				observability.RecordIdempotencyEvent(ctx, scope, "store_error")
				observability.NewLogger().WarnContext(ctx, "idempotency claim failed, serving unprotected",
					"scope", scope,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			switch claim.State {
			case service.IdempotencyStateConflict:
				observability.RecordIdempotencyEvent(ctx, scope, "conflict")
				auditIdempotency(r, scope, key, "check", "rejected", "fingerprint_conflict")
				response.Error(w, r, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency-Key was already used with a different request", nil)
				return
			case service.IdempotencyStateInProgress:
				observability.RecordIdempotencyEvent(ctx, scope, "in_progress")
				auditIdempotency(r, scope, key, "check", "rejected", "request_in_progress")
				response.Error(w, r, http.StatusConflict, "REQUEST_IN_PROGRESS", "a request with this Idempotency-Key is still in progress", nil)
				return
			case service.IdempotencyStateReplay:
				observability.RecordIdempotencyEvent(ctx, scope, "replay")
				auditIdempotency(r, scope, key, "replay", "success", "stored_response")
				writeStoredResponse(w, claim.Response)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			status := capture.status()

			if status < 200 || status >= 300 {
				observability.RecordIdempotencyEvent(ctx, scope, "released")
				if err := m.store.Release(ctx, scope, key, fingerprint); err != nil {
					observability.NewLogger().WarnContext(ctx, "idempotency release failed", "scope", scope, "error", err)
				}
				return
			}
			observability.RecordIdempotencyEvent(ctx, scope, "new")
			err = m.store.Complete(ctx, scope, key, fingerprint, service.StoredResponse{
				StatusCode:  status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				Cookies:     capture.Header().Values("Set-Cookie"),
			}, m.ttl)
			if err != nil {
				observability.RecordIdempotencyEvent(ctx, scope, "store_error")
				observability.NewLogger().WarnContext(ctx, "idempotency complete failed", "scope", scope, "error", err)
			}
		})
	}
}

func validIdempotencyKey(key string) bool {
	if len(key) > maxIdempotencyKeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if c := key[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

func writeStoredResponse(w http.ResponseWriter, resp *service.StoredResponse) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h := w.Header()
	if resp.ContentType != "" {
		h.Set("Content-Type", resp.ContentType)
	}
	for _, c := range resp.Cookies {
		h.Add("Set-Cookie", c)
	}
	h.Set(IdempotencyReplayedHeader, "true")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// requestFingerprint binds a key to the route, the caller and the exact body.
func requestFingerprint(r *http.Request, scope string, body []byte) string {
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	actor := "anonymous"
	if id, ok := AccountIDFromContext(r.Context()); ok {
		actor = "account:" + id
	}
	bodySum := sha256.Sum256(body)
	sum := sha256.Sum256([]byte(strings.Join([]string{
		scope, r.Method, route, actor, hex.EncodeToString(bodySum[:]),
	}, "\n")))
	return hex.EncodeToString(sum[:])
}

func auditIdempotency(r *http.Request, scope, key, action, outcome, reason string) {
	actor, _ := AccountIDFromContext(r.Context())
	keySum := sha256.Sum256([]byte(key))
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "idempotency." + action,
		ActorUserID: actor,
		TargetType:  "idempotency_key",
		TargetID:    hex.EncodeToString(keySum[:6]),
		Action:      action,
		Outcome:     outcome,
		Reason:      reason,
	}, "scope", scope)
}

// captureWriter tees the body so a successful response can be stored.
type captureWriter struct {
	http.ResponseWriter
	code int
	body bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

func (w *captureWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}
