package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
)

type recordingCloser struct {
	closed chan struct{}
	err    error
}

func (c *recordingCloser) Close(context.Context) error {
	close(c.closed)
	return c.err
}

func TestAppRunStopsOnContextCancel(t *testing.T) {
	notifier := &recordingCloser{closed: make(chan struct{}), err: errors.New("deadline")}
	a := New(
		&config.Config{Env: "test", ShutdownTimeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		&http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()},
		nil,
		nil,
		nil,
		notifier,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	select {
	case <-notifier.closed:
	default:
		t.Fatal("expected notifier to be drained during shutdown")
	}
}

func TestAppRunReportsListenError(t *testing.T) {
	a := New(
		&config.Config{Env: "test"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		&http.Server{Addr: "bad-address:-1"},
		nil,
		nil,
		nil,
		nil,
	)
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestAppRunStopsJobsOnCancel(t *testing.T) {
	started, stopped := make(chan struct{}), make(chan struct{})
	job := func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	}
	a := New(
		&config.Config{Env: "test", ShutdownTimeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		&http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()},
		nil,
		nil,
		nil,
		nil,
		job,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	select {
	case <-stopped:
	default:
		t.Fatal("expected the job to observe cancellation before Run returned")
	}
}

func TestOrDefault(t *testing.T) {
	if got := orDefault(0, time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := orDefault(3*time.Second, time.Second); got != 3*time.Second {
		t.Fatalf("expected configured value, got %v", got)
	}
}
