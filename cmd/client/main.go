package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/portphilio/portkeeper/internal/client/app"
	"github.com/portphilio/portkeeper/internal/client/config"
	"github.com/portphilio/portkeeper/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redirect := func(url string) error {
		_, err := fmt.Fprintf(os.Stdout, "open in browser: %s\n", url)
		return err
	}

	a, err := app.New(ctx, cfg, redirect, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
