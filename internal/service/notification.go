package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers one message through a provider. Implementations must honor ctx.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipients = errors.New("message has no recipients")

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	s.logger.InfoContext(ctx, "notification (log provider)",
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
		"html", msg.HTML,
	)
	return nil
}

// AsyncNotifier runs each send on its own goroutine, detached from the caller's
// cancellation and bounded by timeout. Failures are logged and counted.
type AsyncNotifier struct {
	sender   Sender
	provider string
	timeout  time.Duration
	logger   *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewAsyncNotifier(sender Sender, provider string, timeout time.Duration, logger *slog.Logger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncNotifier{sender: sender, provider: provider, timeout: timeout, logger: logger}
}

func (n *AsyncNotifier) Notify(ctx context.Context, msg Message) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.logger.WarnContext(ctx, "notification dropped after shutdown", "subject", msg.Subject)
		observability.RecordNotificationDispatch(ctx, n.provider, "dropped", 0)
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	go func() {
		defer n.wg.Done()
		defer cancel()

		sendCtx, span := observability.StartSpan(sendCtx, "notification.send", attribute.String("notification.provider", n.provider))
		start := time.Now()
		err := n.sender.Send(sendCtx, msg)
		elapsed := time.Since(start)
		observability.EndSpan(span, err)
		if err != nil {
			n.logger.ErrorContext(sendCtx, "notification delivery failed",
				"provider", n.provider,
				"subject", msg.Subject,
				"error", err,
			)
			observability.RecordNotificationDispatch(sendCtx, n.provider, "error", elapsed)
			return
		}
		observability.RecordNotificationDispatch(sendCtx, n.provider, "success", elapsed)
	}()
}

// Close stops accepting messages and waits for in-flight sends or ctx expiry.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
