// Package api implements the HTTP REST surface of the gatehouse service.
//
// This package provides:
//   - Login and the permission catalog
//   - Account administration behind the ADMIN tag
//   - Self-service profile, password change and password reset
//   - Middleware stack (request ID, logging, recovery, metrics, CORS, rate limit)
//   - Prometheus metrics at /api/v1/metrics
//
// # Architecture
//
// Handlers never decide access themselves. Every protected route is wrapped
// by protect(op), which passes the bearer token and the operation to
// auth.PermissionGate.Guard; the gate owns the operation to tag table.
//
// The server follows the same lifecycle pattern as the infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Errors
//
// Failures use the envelope {"error":{"code","message"}}. Login and reset
// endpoints answer identically for unknown accounts and wrong secrets.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
