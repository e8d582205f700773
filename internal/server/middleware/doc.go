// Package middleware provides the gin middleware of the catalog API server:
// request IDs, access logging, panic recovery, tracing, request metrics and
// CORS.
package middleware
