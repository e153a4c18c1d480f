// Package probe holds the two outward checks fleetwatch runs besides the
// status poll: a TCP reachability probe that drives the monitor's network
// input, and a TLS certificate check for HTTPS status endpoints.
package probe
