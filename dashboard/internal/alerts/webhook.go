package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// FleetContext is the state of the switch and its servers at the poll that
// fired or resolved an alert. It travels with every webhook.
type FleetContext struct {
	SwitchStatus    string   `json:"switch_status"`
	Reachable       bool     `json:"reachable"`
	ActiveServers   int      `json:"active_servers"`
	InactiveServers int      `json:"inactive_servers"`
	InactiveIDs     []string `json:"inactive_ids,omitempty"`
	TotalRequests   int64    `json:"total_requests"`
	ErrorPct        int64    `json:"error_pct"`
	AvgLatencyMs    int64    `json:"avg_latency_ms"`
}

func fleetContext(in input) FleetContext {
	fc := FleetContext{
		SwitchStatus:    string(switchStatus(in)),
		Reachable:       in.reachable,
		ActiveServers:   in.metrics.ActiveServerCount,
		InactiveServers: in.metrics.InactiveServerCount,
		TotalRequests:   in.metrics.TotalRequests,
		ErrorPct:        in.metrics.ErrorPct,
		AvgLatencyMs:    in.metrics.AverageLatencyMs,
	}
	if in.snap != nil {
		for _, s := range in.snap.Servers {
			if !s.Active {
				fc.InactiveIDs = append(fc.InactiveIDs, s.ID)
			}
		}
	}
	return fc
}

// notification is one alert transition plus the fleet it happened in.
type notification struct {
	Alert Alert
	Fleet FleetContext
}

// style is how a transition is labelled and coloured in chat cards.
type style struct {
	label string
	color string
}

var (
	resolvedStyle = style{"RESOLVED", "2EB67D"}
	severityStyle = map[string]style{
		"critical": {"CRITICAL", "FF4F6A"},
		"warning":  {"WARNING", "FFAB40"},
		"info":     {"INFO", "00D4FF"},
	}
)

func styleOf(a Alert) style {
	if a.State == StateResolved {
		return resolvedStyle
	}
	if s, ok := severityStyle[a.Severity]; ok {
		return s
	}
	return severityStyle["info"]
}

type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// facts renders n as name/value pairs shared by the Slack and Teams cards.
func facts(n notification) []fact {
	fc := n.Fleet
	out := []fact{
		{"Switch", fc.SwitchStatus},
		{"Servers", fmt.Sprintf("%d active / %d inactive", fc.ActiveServers, fc.InactiveServers)},
	}
	if len(fc.InactiveIDs) > 0 {
		out = append(out, fact{"Out of rotation", strings.Join(fc.InactiveIDs, ", ")})
	}
	if fc.Reachable {
		out = append(out,
			fact{"Requests", strconv.FormatInt(fc.TotalRequests, 10)},
			fact{"Errors", fmt.Sprintf("%d%%", fc.ErrorPct)},
			fact{"Avg latency", fmt.Sprintf("%d ms", fc.AvgLatencyMs)},
		)
	}
	out = append(out, fact{"Condition", fmt.Sprintf("%s (value %.2f)", n.Alert.Condition, n.Alert.Value)})
	return out
}

// payload builds the request body for one webhook type.
func payload(kind string, n notification) ([]byte, error) {
	st := styleOf(n.Alert)
	switch kind {
	case "slack":
		fields := make([]map[string]any, 0)
		for _, f := range facts(n) {
			fields = append(fields, map[string]any{"title": f.Name, "value": f.Value, "short": len(f.Value) < 24})
		}
		return json.Marshal(map[string]any{
			"text": fmt.Sprintf("*[%s]* %s", st.label, n.Alert.Message),
			"attachments": []map[string]any{{
				"color":  "#" + st.color,
				"fields": fields,
			}},
		})
	case "teams":
		return json.Marshal(map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": st.color,
			"summary":    n.Alert.RuleName,
			"title":      fmt.Sprintf("fleetwatch %s: %s", strings.ToLower(st.label), n.Alert.RuleName),
			"text":       n.Alert.Message,
			"sections":   []map[string]any{{"facts": facts(n)}},
		})
	case "http":
		return json.Marshal(map[string]any{
			"event": "alert." + n.Alert.State,
			"alert": n.Alert,
			"fleet": n.Fleet,
		})
	default:
		return nil, fmt.Errorf("unknown webhook type %q", kind)
	}
}

// deliver posts n to every configured webhook. Failures are logged only.
func (e *Engine) deliver(n notification) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		body, err := payload(wh.Type, n)
		if err != nil {
			slog.Warn("alerts: skipping webhook", "type", wh.Type, "err", err)
			continue
		}
		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", n.Alert.RuleName, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", n.Alert.RuleName, "state", n.Alert.State)
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
