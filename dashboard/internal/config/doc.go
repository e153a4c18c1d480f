// Package config loads and watches the fleetwatch configuration file.
//
// Top-level types:
//   - Config{Monitor, Server, Alerts}: full config tree parsed from YAML
//   - MonitorConfig: switch endpoints, poll interval and timeout, auth, tls,
//     network probe, and wire path overrides (Schema() merges them onto
//     types.DefaultSchema)
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none); Key(), Token() and
//     Password() resolve secrets from environment variables
//   - ServerConfig: HTTP and gRPC ports plus API-key enforcement
//   - AlertsConfig: rules and webhook targets
//
// Load(path) reads the YAML file, applies defaults (5s poll, 3s timeout,
// ports 8080/50051), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config, re-adding the watch after atomic
// saves.
package config
