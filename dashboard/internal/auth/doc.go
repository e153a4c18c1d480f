// Package auth provides API-key enforcement for fleetwatch's own surfaces.
//
// Checker{Mode, Header, Key} validates the key. Its UnaryInterceptor and
// StreamInterceptor guard the gRPC health service; Middleware guards the
// REST commands (POST, DELETE). Read-only HTTP requests are never checked.
//
// When Mode != "apikey" or Key == "", everything passes through (useful for
// local development with auth disabled). An incorrect or absent key yields
// codes.Unauthenticated on gRPC and 401 on HTTP.
package auth
