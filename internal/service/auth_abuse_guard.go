package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

// AuthAbuseScope separates failure counters per credential-guessing surface.
type AuthAbuseScope string

const (
	AuthAbuseScopeLogin      AuthAbuseScope = "login"
	AuthAbuseScopeEnrollment AuthAbuseScope = "enrollment"
)

// AuthAbusePolicy describes the cooldown curve applied after repeated failures.
// Failures older than ResetWindow are forgotten.
type AuthAbusePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

// AuthAbuseGuard tracks failures per email and per client ip. Check and
// RegisterFailure report the longest cooldown across both dimensions.
type AuthAbuseGuard interface {
	Check(ctx context.Context, scope AuthAbuseScope, email, ip string) (time.Duration, error)
	RegisterFailure(ctx context.Context, scope AuthAbuseScope, email, ip string) (time.Duration, error)
	Reset(ctx context.Context, scope AuthAbuseScope, email, ip string) error
}

type NoopAuthAbuseGuard struct{}

func NewNoopAuthAbuseGuard() *NoopAuthAbuseGuard { return &NoopAuthAbuseGuard{} }

func (NoopAuthAbuseGuard) Check(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopAuthAbuseGuard) RegisterFailure(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopAuthAbuseGuard) Reset(context.Context, AuthAbuseScope, string, string) error { return nil }

type abuseCounter struct {
	failures      int
	lastFailure   time.Time
	cooldownUntil time.Time
}

// InMemoryAuthAbuseGuard is the single-instance guard used when redis is off.
type InMemoryAuthAbuseGuard struct {
	mu       sync.Mutex
	policy   AuthAbusePolicy
	now      func() time.Time
	counters map[string]abuseCounter
}

func NewInMemoryAuthAbuseGuard(policy AuthAbusePolicy) *InMemoryAuthAbuseGuard {
	return &InMemoryAuthAbuseGuard{
		policy:   policy.normalized(),
		now:      time.Now,
		counters: make(map[string]abuseCounter),
	}
}

func (g *InMemoryAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, email, ip string) (time.Duration, error) {
	now := g.now().UTC()
	g.mu.Lock()
	var wait time.Duration
	for _, key := range abuseKeys(scope, email, ip) {
		wait = max(wait, g.remainingLocked(now, key))
	}
	g.mu.Unlock()

	recordGuardCheck(ctx, scope, wait)
	return wait, nil
}

func (g *InMemoryAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, email, ip string) (time.Duration, error) {
	now := g.now().UTC()
	g.mu.Lock()
	var wait time.Duration
	for _, key := range abuseKeys(scope, email, ip) {
		c := g.counters[key]
		if c.lastFailure.IsZero() || now.Sub(c.lastFailure) > g.policy.ResetWindow {
			c.failures = 0
		}
		c.failures++
		c.lastFailure = now
		delay := g.policy.delayFor(c.failures)
		c.cooldownUntil = now.Add(delay)
		g.counters[key] = c
		wait = max(wait, delay)
	}
	g.mu.Unlock()

	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "register_failure", "ok")
	if wait > 0 {
		observability.RecordAuthAbuseCooldown(ctx, string(scope), "register_failure", wait)
	}
	return wait, nil
}

func (g *InMemoryAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, email, ip string) error {
	g.mu.Lock()
	for _, key := range abuseKeys(scope, email, ip) {
		delete(g.counters, key)
	}
	g.mu.Unlock()
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "ok")
	return nil
}

func (g *InMemoryAuthAbuseGuard) remainingLocked(now time.Time, key string) time.Duration {
	c, ok := g.counters[key]
	if !ok {
		return 0
	}
	if now.Sub(c.lastFailure) > g.policy.ResetWindow {
		delete(g.counters, key)
		return 0
	}
	if !c.cooldownUntil.After(now) {
		return 0
	}
	return c.cooldownUntil.Sub(now)
}

func recordGuardCheck(ctx context.Context, scope AuthAbuseScope, wait time.Duration) {
	if wait > 0 {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "blocked")
		observability.RecordAuthAbuseCooldown(ctx, string(scope), "check", wait)
		return
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "ok")
}

func (p AuthAbusePolicy) delayFor(failures int) time.Duration {
	if failures <= p.FreeAttempts {
		return 0
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(failures-p.FreeAttempts-1)))
	return min(delay, p.MaxDelay)
}

func (p AuthAbusePolicy) normalized() AuthAbusePolicy {
	if p.FreeAttempts < 0 {
		p.FreeAttempts = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 5 * time.Minute
	}
	if p.ResetWindow <= 0 {
		p.ResetWindow = 30 * time.Minute
	}
	return p
}

// abuseKeys returns the email and ip counter keys. Raw emails never appear in
// keys so redis dumps do not leak addresses.
func abuseKeys(scope AuthAbuseScope, email, ip string) [2]string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		email = "anonymous"
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return [2]string{
		string(scope) + ":email:" + hashToken(email),
		string(scope) + ":ip:" + hashToken(ip),
	}
}

func hashToken(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
