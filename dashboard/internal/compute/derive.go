package compute

import (
	"math"

	"github.com/obsidianstack/fleetwatch/pkg/types"
)

// Metrics is the set of aggregates recomputed for every snapshot.
// It is never persisted.
type Metrics struct {
	AverageLatencyMs    int64   `json:"average_latency_ms"`
	ActiveServerCount   int     `json:"active_server_count"`
	InactiveServerCount int     `json:"inactive_server_count"`
	TotalRequests       int64   `json:"total_requests"`
	ErrorCount          int64   `json:"error_count"`
	ErrorPct            int64   `json:"error_pct"`
	Distribution        []Share `json:"distribution"`
}

// Share is one server's slice of the routed traffic.
type Share struct {
	ServerID    string `json:"server_id"`
	DisplayName string `json:"display_name"`
	Percent     int    `json:"percent"`
	Requests    int64  `json:"requests"`

	// Orphaned is true when the switch reported requests for an id that is
	// not in its server list. DisplayName then falls back to the raw id.
	Orphaned bool `json:"orphaned,omitempty"`
}

// Derive computes Metrics from snap. A nil snapshot yields zero Metrics.
//
// Distribution order follows snap.Statistics.RequestsByServer. When
// TotalRequests is 0 the average latency is 0 and the distribution is empty.
func Derive(snap *types.Snapshot) Metrics {
	m := Metrics{Distribution: []Share{}}
	if snap == nil {
		return m
	}

	st := snap.Statistics
	m.TotalRequests = st.TotalRequests
	m.ErrorCount = st.ErrorCount
	m.ActiveServerCount = snap.ActiveCount()
	m.InactiveServerCount = len(snap.Servers) - m.ActiveServerCount

	if st.TotalRequests == 0 {
		return m
	}

	m.AverageLatencyMs = roundHalfUp(float64(st.TotalLatencyMs) / float64(st.TotalRequests))
	m.ErrorPct = roundHalfUp(float64(st.ErrorCount) / float64(st.TotalRequests) * 100)

	names := make(map[string]string, len(snap.Servers))
	for _, srv := range snap.Servers {
		names[srv.ID] = srv.Name
	}

	for _, rc := range st.RequestsByServer {
		name, known := names[rc.ServerID]
		if !known {
			name = rc.ServerID
		}
		pct := roundHalfUp(float64(rc.Count) / float64(st.TotalRequests) * 100)
		m.Distribution = append(m.Distribution, Share{
			ServerID:    rc.ServerID,
			DisplayName: name,
			Percent:     int(clampPct(pct)),
			Requests:    rc.Count,
			Orphaned:    !known,
		})
	}
	return m
}

// roundHalfUp rounds a non-negative value to the nearest integer, with .5
// going up.
func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}

// clampPct restricts v to [0, 100]. Counters where one server reports more
// requests than the total would otherwise exceed 100.
func clampPct(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
