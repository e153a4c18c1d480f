package alerts

import (
	"strconv"
	"strings"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/compute"
	"github.com/obsidianstack/fleetwatch/pkg/types"
)

// input is what a condition is evaluated against.
type input struct {
	snap      *types.Snapshot
	metrics   compute.Metrics
	reachable bool
}

// evalCondition evaluates a rule condition string against one poll outcome.
//
// Supported expressions (field operator value):
//
//	avg_latency_ms > 250
//	error_pct > 5
//	error_count >= 100
//	active_servers < 2
//	inactive_servers > 0
//	total_requests == 0
//	switch == offline
//
// "switch == offline" also fires when the status endpoint is unreachable.
// Numeric fields never fire before the first snapshot.
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, in input) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "switch" {
		return evalSwitch(op, rhs, in), 0
	}

	if in.snap == nil {
		return false, 0
	}
	v, ok := numericField(field, in.metrics)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// switchStatus is the switch status a rule sees: offline while the status
// endpoint is unreachable, unknown before the first snapshot.
func switchStatus(in input) types.SwitchStatus {
	switch {
	case !in.reachable:
		return types.SwitchOffline
	case in.snap != nil:
		return in.snap.Switch.Status
	default:
		return types.SwitchUnknown
	}
}

func evalSwitch(op, rhs string, in input) bool {
	status := switchStatus(in)
	switch op {
	case "==":
		return string(status) == rhs
	case "!=":
		return string(status) != rhs
	default:
		return false
	}
}

// numericField maps a field name to its value in the derived metrics.
func numericField(field string, m compute.Metrics) (float64, bool) {
	switch field {
	case "avg_latency_ms":
		return float64(m.AverageLatencyMs), true
	case "error_pct":
		return float64(m.ErrorPct), true
	case "error_count":
		return float64(m.ErrorCount), true
	case "active_servers":
		return float64(m.ActiveServerCount), true
	case "inactive_servers":
		return float64(m.InactiveServerCount), true
	case "total_requests":
		return float64(m.TotalRequests), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
