package api

import (
	"time"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/compute"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/monitor"
	"github.com/obsidianstack/fleetwatch/pkg/types"
)

// StatusResponse is the payload for GET /api/v1/status and the
// suspend/resume endpoints.
type StatusResponse struct {
	State        string            `json:"state"`
	Connectivity string            `json:"connectivity"`
	Switch       *types.SwitchInfo `json:"switch,omitempty"`
	Metrics      compute.Metrics   `json:"metrics"`
	LastError    string            `json:"last_error,omitempty"`
	LastUpdated  string            `json:"last_updated,omitempty"` // RFC3339
	Interval     string            `json:"interval"`
	Discarded    int64             `json:"discarded_results"`
	Gate         monitor.Gate      `json:"gate"`
	ServerCount  int               `json:"server_count"`
}

// ServerResponse is one entry in GET /api/v1/servers.
type ServerResponse struct {
	types.Server
	Requests        int64            `json:"requests"`
	RequestsPercent int              `json:"requests_percent"`
	Diagnostics     []DiagnosticHint `json:"diagnostics"`
}

// ToggleResponse is the payload for a successful toggle.
type ToggleResponse struct {
	ServerID string `json:"server_id"`
	Toggled  bool   `json:"toggled"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toStatusResponse(st monitor.Status) StatusResponse {
	resp := StatusResponse{
		State:        string(st.State),
		Connectivity: string(st.Connectivity),
		Metrics:      st.Metrics,
		LastError:    st.LastError,
		Interval:     st.Interval.String(),
		Discarded:    st.Discarded,
		Gate:         st.Gate,
	}
	if st.Snapshot != nil {
		sw := st.Snapshot.Switch
		resp.Switch = &sw
		resp.ServerCount = len(st.Snapshot.Servers)
	}
	if st.LastUpdated != nil {
		resp.LastUpdated = st.LastUpdated.UTC().Format(time.RFC3339)
	}
	return resp
}

// toServerResponses joins the snapshot's servers with their traffic share.
// It returns an empty, non-nil slice before the first snapshot.
func toServerResponses(st monitor.Status) []ServerResponse {
	if st.Snapshot == nil {
		return []ServerResponse{}
	}
	shares := make(map[string]compute.Share, len(st.Metrics.Distribution))
	for _, sh := range st.Metrics.Distribution {
		shares[sh.ServerID] = sh
	}

	out := make([]ServerResponse, 0, len(st.Snapshot.Servers))
	for _, s := range st.Snapshot.Servers {
		sh := shares[s.ID]
		out = append(out, ServerResponse{
			Server:          s,
			Requests:        sh.Requests,
			RequestsPercent: sh.Percent,
			Diagnostics:     serverDiagnostics(s, sh, st.Metrics),
		})
	}
	return out
}
