package main

import (
	"context"
	"os"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

// runServer serves until a shutdown signal arrives or the server fails,
// then shuts everything down.
func runServer(app *application, sigCh <-chan os.Signal, logger observability.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	waitForShutdown(app, sigCh, errCh, logger)
}

// waitForShutdown waits for a shutdown signal or a server error and
// performs graceful shutdown.
func waitForShutdown(app *application, sigCh <-chan os.Signal, errCh <-chan error, logger observability.Logger) {
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", observability.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	app.close(shutdownCtx)

	logger.Info("catalog-api stopped")
}
