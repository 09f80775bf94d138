package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

type CheckResult struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

const startupGraceCheck = "startup_grace"

// ProbeRunner backs /health/ready. Checks run concurrently, each under its
// own timeout, and results keep the order the checkers were given in.
type ProbeRunner struct {
	checkers []Checker
	timeout  time.Duration
	readyAt  time.Time
	now      func() time.Time
}

// NewProbeRunner drops nil checkers, so optional dependencies such as Redis
// can be passed whether or not they are configured.
func NewProbeRunner(timeout, gracePeriod time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	r := &ProbeRunner{timeout: timeout, now: time.Now}
	r.readyAt = r.now().Add(max(gracePeriod, 0))
	for _, c := range checkers {
		if c != nil {
			r.checkers = append(r.checkers, c)
		}
	}
	return r
}

func (r *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	if r == nil {
		return true, nil
	}
	if r.now().Before(r.readyAt) {
		observability.RecordHealthCheckResult(ctx, startupGraceCheck, "unready")
		return false, []CheckResult{{Name: startupGraceCheck, Error: "startup grace period active"}}
	}

	results := make([]CheckResult, len(r.checkers))
	var g errgroup.Group
	for i, c := range r.checkers {
		g.Go(func() error {
			results[i] = r.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, res := range results {
		ready = ready && res.Healthy
	}
	return ready, results
}

func (r *ProbeRunner) run(ctx context.Context, c Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	res := c.Check(checkCtx)
	elapsed := r.now().Sub(start)
	res.LatencyMS = float64(elapsed.Microseconds()) / 1000

	outcome := "ready"
	if !res.Healthy {
		outcome = "unready"
	}
	observability.RecordHealthCheckResult(ctx, res.Name, outcome)
	observability.RecordHealthCheckDuration(ctx, res.Name, elapsed)
	return res
}
