package api

import (
	"fmt"
	"sort"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/compute"
	"github.com/obsidianstack/fleetwatch/pkg/types"
)

const (
	slowLatencyMs = 500.0

	// A server taking this many points more traffic than its configured
	// weight is flagged as skewed.
	skewPoints = 20
)

// DiagnosticHint is one human-readable insight about a server. The UI
// shows these as chips on the server card.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical".
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2}

// serverDiagnostics derives hints for one server. Hints are ordered
// critical first, then warnings, then info.
func serverDiagnostics(s types.Server, sh compute.Share, m compute.Metrics) []DiagnosticHint {
	hints := []DiagnosticHint{}

	if !s.Active {
		detail := "The switch is not routing traffic to this server."
		if s.LastError != "" {
			detail = fmt.Sprintf("The switch is not routing traffic to this server. Its last health check failed with: %q.", s.LastError)
		}
		hints = append(hints, DiagnosticHint{
			Key:    "inactive",
			Level:  "critical",
			Title:  "Out of rotation",
			Detail: detail,
		})
	} else if s.LastError != "" {
		hints = append(hints, DiagnosticHint{
			Key:    "check_error",
			Level:  "warning",
			Title:  "Health check error",
			Detail: fmt.Sprintf("The server is still active but its last health check reported: %q.", s.LastError),
		})
	}

	if s.LatencyMs != nil && *s.LatencyMs >= slowLatencyMs {
		v := *s.LatencyMs
		hints = append(hints, DiagnosticHint{
			Key:    "slow",
			Level:  "warning",
			Title:  fmt.Sprintf("%.0f ms latency", v),
			Detail: fmt.Sprintf("The last health check took %.0f ms, at or above the %.0f ms threshold.", v, slowLatencyMs),
			Value:  &v,
		})
	}

	if s.Active && m.TotalRequests > 0 && sh.Percent-s.WeightPercent >= skewPoints {
		v := float64(sh.Percent)
		hints = append(hints, DiagnosticHint{
			Key:   "skewed",
			Level: "info",
			Title: fmt.Sprintf("%d%% of traffic", sh.Percent),
			Detail: fmt.Sprintf(
				"This server handled %d%% of requests against a configured weight of %d%%. "+
					"Another server may be out of rotation.",
				sh.Percent, s.WeightPercent),
			Value: &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
