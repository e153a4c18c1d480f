package types

import "time"

// SwitchStatus is the coarse state the switch reports about itself.
type SwitchStatus string

const (
	SwitchUnknown SwitchStatus = "unknown"
	SwitchOnline  SwitchStatus = "online"
	SwitchOffline SwitchStatus = "offline"
)

// SwitchInfo describes the load-balancing switch itself.
type SwitchInfo struct {
	Status SwitchStatus `json:"status"`

	// StatusText is the free-form status line as sent by the switch.
	StatusText string `json:"status_text,omitempty"`

	UptimeSeconds int64 `json:"uptime_seconds"`

	// UptimeText is the switch's own human-readable uptime, if it sends one.
	UptimeText string `json:"uptime_text,omitempty"`
}

// Server is one backend behind the switch.
type Server struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Version       string     `json:"version"`
	WeightPercent int        `json:"weight_percent"`
	Active        bool       `json:"active"`
	LatencyMs     *float64   `json:"latency_ms,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// RequestCount is the number of requests the switch routed to one server.
type RequestCount struct {
	ServerID string `json:"server_id"`
	Count    int64  `json:"count"`
}

// Statistics holds the switch's raw traffic counters.
type Statistics struct {
	TotalRequests  int64 `json:"total_requests"`
	TotalLatencyMs int64 `json:"total_latency_ms"`
	ErrorCount     int64 `json:"error_count"`

	// RequestsByServer keeps the order in which the switch listed the ids.
	// Ids with no matching Server are kept; consumers treat them as orphaned.
	RequestsByServer []RequestCount `json:"requests_by_server"`
}

// Snapshot is one point-in-time read of the switch. A Snapshot is never
// modified after Decode returns it; a new poll produces a new Snapshot.
type Snapshot struct {
	Switch     SwitchInfo `json:"switch"`
	Servers    []Server   `json:"servers"`
	Statistics Statistics `json:"statistics"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Server returns the server with the given id.
func (s *Snapshot) Server(id string) (Server, bool) {
	if s == nil {
		return Server{}, false
	}
	for _, srv := range s.Servers {
		if srv.ID == id {
			return srv, true
		}
	}
	return Server{}, false
}

// ActiveCount returns the number of servers currently marked active.
func (s *Snapshot) ActiveCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, srv := range s.Servers {
		if srv.Active {
			n++
		}
	}
	return n
}
