package common

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/tools/ui"
)

type CIResult struct {
	OK         bool     `json:"ok"`
	Title      string   `json:"title"`
	DurationMS int64    `json:"duration_ms"`
	Details    []string `json:"details,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func PrintCIResult(w io.Writer, result CIResult) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// Action is the body of a tool subcommand. Details are shown on success and failure.
type Action func(ctx context.Context) ([]string, error)

// Invocation describes one tool subcommand run.
type Invocation struct {
	Tool    string
	Command string
	CI      bool
	Timeout time.Duration
}

// Execute runs the action either under the interactive UI or, in CI mode,
// directly with a JSON summary on stdout. Outcomes are recorded as tool metrics.
func Execute(inv Invocation, fn Action) error {
	title := inv.Tool + " " + inv.Command
	start := time.Now()

	var (
		details []string
		err     error
	)
	if inv.CI {
		ctx := context.Background()
		if inv.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
			defer cancel()
		}
		details, err = fn(ctx)
	} else {
		details, err = ui.Run(title, fn)
	}
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ctx := context.Background()
	observability.RecordToolCommandRun(ctx, inv.Tool, inv.Command, outcome)
	observability.RecordToolCommandDuration(ctx, inv.Tool, inv.Command, outcome, elapsed)

	if inv.CI {
		result := CIResult{OK: err == nil, Title: title, DurationMS: elapsed.Milliseconds(), Details: details}
		if err != nil {
			result.Error = err.Error()
		}
		PrintCIResult(os.Stdout, result)
	}
	return err
}

// ExitOnError terminates with code when err is set. Cobra's own error output
// is skipped because the UI or CI summary already reported it.
func ExitOnError(err error, code int) {
	if err != nil {
		os.Exit(code)
	}
}
