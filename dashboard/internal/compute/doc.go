// Package compute derives display-ready fleet metrics from a switch snapshot.
//
// derive.go provides the pure Derive(*types.Snapshot) function: average
// latency, active/inactive server counts, error percentage and the
// per-server request distribution. All divisions round half up, and each
// distribution percent is rounded independently, so percentages can sum
// to 99 or 101. That drift is intentional and must not be normalised.
//
// expose.go renders the same numbers as Prometheus metric families for the
// /metrics endpoint.
package compute
