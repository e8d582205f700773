// Package server assembles the catalog API HTTP server.
//
// Every request passes request-ID, tracing, logging, recovery, metrics and
// CORS middleware. Preflight requests are answered by CORS before the
// gate. The product routes, and any path that matches no route, run the
// authorization gate; the health, readiness and metrics endpoints do not.
// The route table is validated against the registered product routes when
// the server is built.
package server
