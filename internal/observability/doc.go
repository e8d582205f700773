// Package observability provides logging, metrics, and tracing
// for the catalog API and the decision-service emulator.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:       "info",
//	    Format:      "json",
//	    ServiceName: "product-service",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request authorized",
//	    observability.String("action", "GetProduct"),
//	)
//
// # Metrics
//
// A single Prometheus registry is shared by all packages and served at
// /metrics:
//
//	metrics := observability.NewMetrics("catalog")
//	gateMetrics := authz.NewMetricsWithRegisterer("catalog", metrics.Registry())
//
// # Tracing
//
// OpenTelemetry tracing with OTLP gRPC export:
//
//	tracer, err := observability.NewTracer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
