// Package api implements the HTTP REST API for fleetwatch.
//
// New(deps) returns an http.Handler that serves:
//
//	GET    /api/v1/status               state, connectivity, metrics, last error
//	GET    /api/v1/servers              servers of the latest snapshot ([] before the first)
//	GET    /api/v1/servers/{id}         one server; 404 if unknown
//	POST   /api/v1/servers/{id}/toggle  200, 404 unknown server, 502 switch failure
//	POST   /api/v1/refresh              202, or 409 while idle
//	GET    /api/v1/activity             activity log, newest first
//	DELETE /api/v1/activity             clear the log
//	POST   /api/v1/suspend              hold polling
//	POST   /api/v1/resume               release the hold
//	GET    /api/v1/alerts               firing and recently resolved alerts
//	GET    /api/v1/cert                 TLS status of the status endpoint
//	GET    /metrics                     Prometheus text exposition
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. JSON types are defined in types.go.
package api
