// Package types defines the switch snapshot model shared by the scraper,
// the compute package and the monitor. These are the canonical in-memory
// representations of fleet state, separate from the switch's JSON wire
// format.
//
// Decode(body, schema) turns a status response into a validated Snapshot.
// Field locations are gjson paths held in Schema; DefaultSchema matches the
// inventory switch (servidores, estadisticas, activo, peso, ...).
package types
