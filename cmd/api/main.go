package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bvc-digitalhub/digitalhub-api/internal/di"
)

func main() {
	a, err := di.InitializeApp()
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		a.Logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
