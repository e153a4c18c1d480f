package compute

import (
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/fleetwatch/pkg/types"
)

// Exposition is the input to Families. The monitor fills it from its read
// view; compute stays free of monitor types.
type Exposition struct {
	Snapshot     *types.Snapshot
	Metrics      Metrics
	Connectivity string
	Discarded    int64
}

// connectivityStates are emitted as an enum-style gauge, one series per
// state, with 1 on the current one.
var connectivityStates = []string{"connecting", "online", "offline"}

// Families renders e as Prometheus metric families, sorted by name.
// Snapshot-derived families are omitted until the first snapshot arrives.
func Families(e Exposition) []*dto.MetricFamily {
	var out []*dto.MetricFamily

	conn := &dto.MetricFamily{
		Name: proto.String("fleetwatch_connectivity"),
		Help: proto.String("Connectivity to the switch status endpoint; 1 on the current state."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, s := range connectivityStates {
		v := 0.0
		if s == e.Connectivity {
			v = 1
		}
		conn.Metric = append(conn.Metric, gauge(v, label("state", s)))
	}

	discarded := &dto.MetricFamily{
		Name: proto.String("fleetwatch_discarded_results_total"),
		Help: proto.String("Poll results dropped because a newer poll was dispatched or the monitor was idle."),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{
			Counter: &dto.Counter{Value: proto.Float64(float64(e.Discarded))},
		}},
	}

	if e.Snapshot == nil {
		return append(out, conn, discarded)
	}

	m := e.Metrics
	snap := e.Snapshot

	active := &dto.MetricFamily{
		Name: proto.String("fleetwatch_server_active"),
		Help: proto.String("1 when the switch routes traffic to the server."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	weight := &dto.MetricFamily{
		Name: proto.String("fleetwatch_server_weight_percent"),
		Help: proto.String("Configured routing weight of the server."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	latency := &dto.MetricFamily{
		Name: proto.String("fleetwatch_server_latency_ms"),
		Help: proto.String("Last health-check latency reported by the switch."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, srv := range snap.Servers {
		lbls := []*dto.LabelPair{label("server", srv.ID), label("name", srv.Name)}
		a := 0.0
		if srv.Active {
			a = 1
		}
		active.Metric = append(active.Metric, gauge(a, lbls...))
		weight.Metric = append(weight.Metric, gauge(float64(srv.WeightPercent), lbls...))
		if srv.LatencyMs != nil {
			latency.Metric = append(latency.Metric, gauge(*srv.LatencyMs, lbls...))
		}
	}

	share := &dto.MetricFamily{
		Name: proto.String("fleetwatch_server_requests_percent"),
		Help: proto.String("Share of routed requests per server, rounded half up."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, s := range m.Distribution {
		share.Metric = append(share.Metric, gauge(float64(s.Percent),
			label("server", s.ServerID), label("orphaned", boolLabel(s.Orphaned))))
	}

	out = append(out,
		single("fleetwatch_average_latency_ms", "Average request latency across the fleet.", dto.MetricType_GAUGE, float64(m.AverageLatencyMs)),
		conn,
		discarded,
		single("fleetwatch_error_percent", "Errors as a percentage of total requests.", dto.MetricType_GAUGE, float64(m.ErrorPct)),
		single("fleetwatch_errors", "Error count reported by the switch.", dto.MetricType_GAUGE, float64(m.ErrorCount)),
		active,
	)
	if len(latency.Metric) > 0 {
		out = append(out, latency)
	}
	if len(share.Metric) > 0 {
		out = append(out, share)
	}
	out = append(out,
		weight,
		single("fleetwatch_servers_active", "Servers currently receiving traffic.", dto.MetricType_GAUGE, float64(m.ActiveServerCount)),
		single("fleetwatch_servers_inactive", "Servers currently disabled.", dto.MetricType_GAUGE, float64(m.InactiveServerCount)),
		single("fleetwatch_switch_uptime_seconds", "Uptime reported by the switch.", dto.MetricType_GAUGE, float64(snap.Switch.UptimeSeconds)),
		single("fleetwatch_total_requests", "Total requests routed by the switch.", dto.MetricType_GAUGE, float64(m.TotalRequests)),
	)
	return out
}

func single(name, help string, typ dto.MetricType, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: []*dto.Metric{gauge(v)},
	}
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
