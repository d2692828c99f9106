package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/api"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

const (
	signalChannelBufferSize = 1
	// jobDrainTimeout bounds how long shutdown waits for cancelled jobs to
	// record their final state.
	jobDrainTimeout = 30 * time.Second
)

// RunUntilInterrupt blocks until SIGINT, SIGTERM, ctx ending, or a server error.
func RunUntilInterrupt(ctx context.Context, app *App, srv *api.Server, errChan <-chan error) error {
	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			app.Logger.Error("Server error", logger.Error(err))
			runErr = fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		app.Logger.Info("Shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
		app.Logger.Info("Context cancelled, shutting down")
	}

	return errors.Join(runErr, Shutdown(app, srv))
}

// Shutdown stops the scheduler first so no job starts mid-shutdown, then the
// server, then interrupts running jobs and waits for them to settle.
func Shutdown(app *App, srv *api.Server) error {
	log := app.Logger
	var errs []error

	log.Info("Stopping scheduler")
	app.Services.Scheduler.Stop()

	log.Info("Stopping HTTP server")
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("Failed to stop HTTP server", logger.Error(err))
		errs = append(errs, err)
	}

	log.Info("Interrupting running jobs")
	drainCtx, cancel := context.WithTimeout(context.Background(), jobDrainTimeout)
	defer cancel()
	if err := app.Services.Orchestrator.Shutdown(drainCtx); err != nil {
		log.Error("Jobs did not finish before the drain timeout", logger.Error(err))
		errs = append(errs, err)
	}

	log.Info("Shutdown complete")
	return errors.Join(errs...)
}
