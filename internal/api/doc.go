// Package api provides the HTTP REST API server for BioCard Core.
//
// Every request passes through a layered pipeline: request ID, logging,
// recovery, CORS, body size limits, the system access gate, and for the
// security surface an end-to-end encryption layer. Authenticated routes
// re-verify the bearer identity against the database on every request.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
