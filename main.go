package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dselans/melodia-harvester/api"
	"github.com/dselans/melodia-harvester/config"
	"github.com/dselans/melodia-harvester/deps"
)

var (
	version = "v0.0.0"
)

func main() {
	cfg := config.New(version)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("unable to validate config: %s", err)
	}

	d, err := deps.New(cfg)
	if err != nil {
		log.Fatalf("Could not setup dependencies: %s", err)
	}

	// Create API server
	a, err := api.New(cfg, d, version)
	if err != nil {
		log.Fatalf("unable to create API instance: %s", err)
	}

	// Run API server in a goroutine so that we can allow signal listener to
	// block the main thread so it can orchestrate graceful shutdown.
	go func() {
		if err := a.Run(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				// Graceful API server shutdown
				return
			}

			log.Fatalf("API server run() failed: %s", err)
		}
	}()

	// Cancel the shared shutdown context on SIGINT/SIGTERM so in-flight
	// writes can complete before the process exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		d.Log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		d.ShutdownCancel()
	}()

	runErr := d.HarvesterService.Run(d.ShutdownCtx)
	if runErr != nil {
		d.Log.Error("Harvest did not complete", zap.Error(runErr))
	}

	if err := d.TrackWriter.Close(); err != nil {
		d.Log.Error("Unable to close track writer", zap.Error(err))
	}

	// Shut the API server (and anyone else on the shutdown ctx) down
	d.ShutdownCancel()

	if runErr != nil {
		os.Exit(1)
	}
}
