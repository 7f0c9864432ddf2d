// Package httpserver serves the zephyrite HTTP API.
//
// Routes:
//
//	GET    /health
//	GET    /keys
//	DELETE /keys
//	GET    /keys/{key}
//	PUT    /keys/{key}
//	DELETE /keys/{key}
//	GET    /admin/stats
//	POST   /admin/compact
//	GET    /admin/backup
//	GET    /metrics
//
// Handlers live in the handler subpackage; this package adds the middleware
// chain and the listener.
package httpserver
