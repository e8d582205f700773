// Package main runs decisiond, a local policy decision service that serves
// a YAML policy store of Rego policies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/decisiond"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	policiesPath string
	addr         string
	logLevel     string
	logFormat    string
	showVersion  bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Printf("decisiond version %s\n", version)
		fmt.Printf("  Build time: %s\n", buildTime)
		fmt.Printf("  Git commit: %s\n", gitCommit)
		return
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:       flags.logLevel,
		Format:      flags.logFormat,
		ServiceName: "decisiond",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	srv, err := newServer(context.Background(), flags, logger)
	if err != nil {
		logger.Fatal("failed to initialize decisiond", observability.Error(err))
	}

	ln, err := net.Listen("tcp", flags.addr)
	if err != nil {
		logger.Fatal("failed to listen", observability.String("address", flags.addr), observability.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := serve(srv, ln, sigCh, logger); err != nil {
		logger.Fatal("decisiond failed", observability.Error(err))
	}
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	policiesPath := flag.String("policies", getEnvOrDefault("DECISIOND_POLICIES", config.DefaultDecisiondPolicyFile),
		"Path to the policy store file")
	addr := flag.String("addr", getEnvOrDefault("DECISIOND_ADDR", config.DefaultDecisiondAddress),
		"Listen address")
	logLevel := flag.String("log-level", getEnvOrDefault("DECISIOND_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("DECISIOND_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		policiesPath: *policiesPath,
		addr:         *addr,
		logLevel:     *logLevel,
		logFormat:    *logFormat,
		showVersion:  *showVersion,
	}
}

// newServer loads and compiles the policy store.
func newServer(ctx context.Context, flags cliFlags, logger observability.Logger) (*http.Server, error) {
	store, err := decisiond.LoadStore(flags.policiesPath)
	if err != nil {
		return nil, err
	}

	engine, err := decisiond.NewEngine(ctx, store)
	if err != nil {
		return nil, err
	}

	logger.Info("policy store loaded",
		observability.String("path", flags.policiesPath),
		observability.String("policy_store_id", store.PolicyStoreID),
		observability.Int("policies", len(store.Policies)),
	)

	return &http.Server{
		Addr:              flags.addr,
		Handler:           decisiond.NewHandler(engine, logger),
		ReadTimeout:       config.DefaultReadTimeout,
		ReadHeaderTimeout: config.DefaultReadTimeout,
		WriteTimeout:      config.DefaultWriteTimeout,
	}, nil
}

// serve serves on ln until a signal arrives, then shuts down gracefully.
func serve(srv *http.Server, ln net.Listener, sigCh <-chan os.Signal, logger observability.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting decisiond", observability.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	logger.Info("decisiond stopped")
	return nil
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
