package service

import (
	"context"
	"time"
)

type IdempotencyState string

const (
	IdempotencyStateNew        IdempotencyState = "new"
	IdempotencyStateReplay     IdempotencyState = "replay"
	IdempotencyStateConflict   IdempotencyState = "conflict"
	IdempotencyStateInProgress IdempotencyState = "in_progress"
)

// StoredResponse is what a replayed request receives instead of running again.
type StoredResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Cookies     []string
}

type IdempotencyClaim struct {
	State    IdempotencyState
	Response *StoredResponse
}

// IdempotencyStore tracks keyed requests per scope. Claim reserves a key for a
// fingerprint; Complete stores the outcome to replay; Release forgets a claim
// whose request failed so the key can be retried.
type IdempotencyStore interface {
	Claim(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyClaim, error)
	Complete(ctx context.Context, scope, key, fingerprint string, resp StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, scope, key, fingerprint string) error
}
