package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/catalog-authz/internal/auth"
	"github.com/vyrodovalexey/catalog-authz/internal/authz"
	"github.com/vyrodovalexey/catalog-authz/internal/cache"
	"github.com/vyrodovalexey/catalog-authz/internal/catalog"
	"github.com/vyrodovalexey/catalog-authz/internal/config"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/pdp"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
	"github.com/vyrodovalexey/catalog-authz/internal/server"
)

// Readiness checks owned by the application.
const (
	readinessCheckConfig  = "config"
	readinessCheckCatalog = "catalog"
)

// application holds all application components. Components are closed in
// the reverse order of their creation.
type application struct {
	server   *server.Server
	health   *server.Checker
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	cache    cache.Cache
	watcher  *cache.InvalidationWatcher
	verifier *auth.JWKSVerifier
	config   *config.Config
	logger   observability.Logger

	// cancel stops background work started with the application context.
	cancel context.CancelFunc
}

// initApplication initializes all application components. On error every
// component created so far is released.
func initApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	bgCtx, cancel := context.WithCancel(context.Background())
	app := &application{
		config: cfg,
		logger: logger,
		cancel: cancel,
		health: server.NewChecker(version),
	}

	if err := app.init(ctx, bgCtx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *application) init(ctx, bgCtx context.Context) error {
	cfg := app.config
	logger := app.logger

	tracer, err := initTracer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	app.tracer = tracer

	namespace := metricsNamespace(cfg.Service.Namespace)
	app.metrics = observability.NewMetrics(namespace)
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)
	registry := app.metrics.Registry()

	decisionCache, err := cache.New(ctx, cfg.Authorization.Cache, logger,
		cache.NewMetricsWithRegisterer(namespace, registry))
	if err != nil {
		return fmt.Errorf("failed to create decision cache: %w", err)
	}
	app.cache = decisionCache

	client, lookup, err := pdp.NewClientFromConfig(&cfg.Authorization, decisionCache, logger,
		pdp.NewMetricsWithRegisterer(namespace, registry))
	if err != nil {
		return fmt.Errorf("failed to create decision client: %w", err)
	}

	if path := cfg.Authorization.Cache.PolicyVersionFile; path != "" {
		watcher, err := cache.NewInvalidationWatcher(path, decisionCache,
			cache.WithWatcherLogger(logger),
			cache.WithPollInterval(cfg.Authorization.Cache.PollInterval.Duration()),
			cache.WithOnInvalidate(lookup.Flush),
		)
		if err != nil {
			return fmt.Errorf("failed to create policy version watcher: %w", err)
		}
		if err := watcher.Start(bgCtx); err != nil {
			_ = watcher.Stop()
			return fmt.Errorf("failed to start policy version watcher: %w", err)
		}
		app.watcher = watcher
	}

	extractorOpts := []auth.Option{
		auth.WithSubjectClaim(cfg.Identity.SubjectClaim),
		auth.WithAttributeClaims(cfg.Identity.AttributeClaims),
		auth.WithLogger(logger),
	}
	if cfg.Identity.Verify.Enabled {
		verifier, err := auth.NewJWKSVerifier(ctx, cfg.Identity.Verify.JWKSURL,
			cfg.Identity.Verify.RefreshInterval.Duration(), logger)
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
		app.verifier = verifier
		extractorOpts = append(extractorOpts, auth.WithVerifier(verifier))
	}

	table := route.DefaultTable()
	gate := authz.NewGate(auth.NewExtractor(extractorOpts...), table, client,
		authz.WithLogger(logger),
		authz.WithMetrics(authz.NewMetricsWithRegisterer(namespace, registry)),
	)

	store, err := catalog.NewStore(cfg.Catalog.ProductsFile)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	app.health.MarkReady(readinessCheckCatalog, fmt.Sprintf("%d products", store.Len()))

	handler := catalog.NewHandler(store, catalog.NewShaper(lookup, logger, catalog.WithDecider(client)), logger)

	srv, err := server.New(cfg, server.Deps{
		Gate:    gate,
		Catalog: handler,
		Table:   table,
		Metrics: app.metrics,
		Health:  app.health,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	app.server = srv
	app.health.MarkReady(readinessCheckConfig, "configuration loaded")

	return nil
}

// initTracer initializes the tracer.
func initTracer(ctx context.Context, cfg *config.Config) (*observability.Tracer, error) {
	return observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:  cfg.Service.Name,
		Namespace:    cfg.Service.Namespace,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
}

// close releases every component in reverse order of creation. The server
// must already be shut down.
func (app *application) close(ctx context.Context) {
	var errs []error

	if app.verifier != nil {
		errs = append(errs, app.verifier.Close())
	}
	if app.watcher != nil {
		errs = append(errs, app.watcher.Stop())
	}
	if app.cache != nil {
		errs = append(errs, app.cache.Close())
	}
	if app.cancel != nil {
		app.cancel()
	}
	if app.tracer != nil {
		errs = append(errs, app.tracer.Shutdown(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		app.logger.Error("failed to release application resources", observability.Error(err))
	}
}

// metricsNamespace turns a service namespace into a valid Prometheus
// metric name prefix.
func metricsNamespace(namespace string) string {
	ns := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, namespace)
	if ns == "" || (ns[0] >= '0' && ns[0] <= '9') {
		ns = "_" + ns
	}
	return ns
}
