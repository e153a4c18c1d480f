package types

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// FieldError reports a status body that does not match the expected shape.
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Path, e.Reason)
}

func fieldErr(path, format string, args ...any) *FieldError {
	return &FieldError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a status response body into a Snapshot using schema.
//
// Required: switch status, the servers array, each server's id, name and
// active flag, total requests and the requests-by-server object. Optional
// fields may be absent or null but must have the right type when present.
// Any violation returns a *FieldError naming the offending path.
func Decode(body []byte, schema Schema) (*Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, fieldErr("$", "body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fieldErr("$", "expected a JSON object")
	}

	snap := &Snapshot{}
	var err error

	statusText, err := stringAt(root, schema.SwitchStatus, true)
	if err != nil {
		return nil, err
	}
	snap.Switch.StatusText = statusText
	snap.Switch.Status = ParseSwitchStatus(statusText)

	uptime, err := numberAt(root, schema.SwitchUptime, false)
	if err != nil {
		return nil, err
	}
	if uptime != nil {
		if *uptime >= maxCount {
			return nil, fieldErr(schema.SwitchUptime, "value %g out of range", *uptime)
		}
		snap.Switch.UptimeSeconds = int64(*uptime)
	}
	if snap.Switch.UptimeText, err = stringAt(root, schema.SwitchUptimeText, false); err != nil {
		return nil, err
	}

	if snap.Servers, err = decodeServers(root, schema); err != nil {
		return nil, err
	}

	st := &snap.Statistics
	if st.TotalRequests, err = countAt(root, schema.TotalRequests, true); err != nil {
		return nil, err
	}
	if st.TotalLatencyMs, err = countAt(root, schema.TotalLatency, false); err != nil {
		return nil, err
	}
	if st.ErrorCount, err = countAt(root, schema.ErrorCount, false); err != nil {
		return nil, err
	}
	if st.RequestsByServer, err = decodeRequests(root, schema.RequestsByServer); err != nil {
		return nil, err
	}

	return snap, nil
}

// ToggleReply extracts the human-readable message and error text from a
// toggle response. A body that is not JSON yields empty strings.
func ToggleReply(body []byte, schema Schema) (message, errText string) {
	if !gjson.ValidBytes(body) {
		return "", ""
	}
	root := gjson.ParseBytes(body)
	return root.Get(schema.ToggleMessage).String(), root.Get(schema.ToggleError).String()
}

// ParseSwitchStatus maps the switch's free-form status line to a SwitchStatus.
// A switch that answers with any other description is considered online.
func ParseSwitchStatus(text string) SwitchStatus {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "unknown":
		return SwitchUnknown
	case "offline", "down":
		return SwitchOffline
	default:
		return SwitchOnline
	}
}

func decodeServers(root gjson.Result, schema Schema) ([]Server, error) {
	arr := root.Get(schema.Servers)
	if !arr.Exists() || arr.Type == gjson.Null {
		return nil, fieldErr(schema.Servers, "missing")
	}
	if !arr.IsArray() {
		return nil, fieldErr(schema.Servers, "expected an array")
	}

	elems := arr.Array()
	servers := make([]Server, 0, len(elems))
	seen := make(map[string]struct{}, len(elems))

	for i, el := range elems {
		prefix := fmt.Sprintf("%s.%d", schema.Servers, i)
		if !el.IsObject() {
			return nil, fieldErr(prefix, "expected an object")
		}
		at := func(p string) string { return prefix + "." + p }

		var srv Server
		var err error
		if srv.ID, err = stringAt(el, schema.ServerID, true); err != nil {
			return nil, rebase(err, at(schema.ServerID))
		}
		if srv.ID == "" {
			return nil, fieldErr(at(schema.ServerID), "must not be empty")
		}
		if _, dup := seen[srv.ID]; dup {
			return nil, fieldErr(at(schema.ServerID), "duplicate server id %q", srv.ID)
		}
		seen[srv.ID] = struct{}{}

		if srv.Name, err = stringAt(el, schema.ServerName, true); err != nil {
			return nil, rebase(err, at(schema.ServerName))
		}
		if srv.Active, err = boolAt(el, schema.ServerActive); err != nil {
			return nil, rebase(err, at(schema.ServerActive))
		}
		if srv.URL, err = stringAt(el, schema.ServerURL, false); err != nil {
			return nil, rebase(err, at(schema.ServerURL))
		}
		if srv.Version, err = stringAt(el, schema.ServerVersion, false); err != nil {
			return nil, rebase(err, at(schema.ServerVersion))
		}
		weight, err := countAt(el, schema.ServerWeight, false)
		if err != nil {
			return nil, rebase(err, at(schema.ServerWeight))
		}
		if weight > 100 {
			return nil, fieldErr(at(schema.ServerWeight), "weight %d out of range [0, 100]", weight)
		}
		srv.WeightPercent = int(weight)

		if srv.LatencyMs, err = numberAt(el, schema.ServerLatency, false); err != nil {
			return nil, rebase(err, at(schema.ServerLatency))
		}
		if srv.LastCheckedAt, err = timeAt(el, schema.ServerLastChecked); err != nil {
			return nil, rebase(err, at(schema.ServerLastChecked))
		}
		if srv.LastError, err = stringAt(el, schema.ServerError, false); err != nil {
			return nil, rebase(err, at(schema.ServerError))
		}

		servers = append(servers, srv)
	}
	return servers, nil
}

func decodeRequests(root gjson.Result, path string) ([]RequestCount, error) {
	obj := root.Get(path)
	if !obj.Exists() || obj.Type == gjson.Null {
		return nil, fieldErr(path, "missing")
	}
	if !obj.IsObject() {
		return nil, fieldErr(path, "expected an object")
	}

	out := make([]RequestCount, 0)
	seen := make(map[string]struct{})
	var err error
	// ForEach walks keys in document order, which the distribution keeps.
	obj.ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		if _, dup := seen[id]; dup {
			err = fieldErr(path+"."+id, "duplicate server id %q", id)
			return false
		}
		seen[id] = struct{}{}

		n, cerr := toCount(value)
		if cerr != "" {
			err = fieldErr(path+"."+id, "%s", cerr)
			return false
		}
		out = append(out, RequestCount{ServerID: id, Count: n})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rebase rewrites a FieldError's path to the fully-qualified one.
func rebase(err error, path string) error {
	if fe, ok := err.(*FieldError); ok {
		return &FieldError{Path: path, Reason: fe.Reason}
	}
	return err
}

func absent(r gjson.Result) bool {
	return !r.Exists() || r.Type == gjson.Null
}

func stringAt(obj gjson.Result, path string, required bool) (string, error) {
	r := obj.Get(path)
	if absent(r) {
		if required {
			return "", fieldErr(path, "missing")
		}
		return "", nil
	}
	if r.Type != gjson.String {
		return "", fieldErr(path, "expected a string, got %s", r.Type)
	}
	return r.Str, nil
}

func boolAt(obj gjson.Result, path string) (bool, error) {
	r := obj.Get(path)
	switch {
	case absent(r):
		return false, fieldErr(path, "missing")
	case r.Type == gjson.True:
		return true, nil
	case r.Type == gjson.False:
		return false, nil
	default:
		return false, fieldErr(path, "expected a boolean, got %s", r.Type)
	}
}

// numberAt returns a non-negative number, or nil when the field is optional
// and absent.
func numberAt(obj gjson.Result, path string, required bool) (*float64, error) {
	r := obj.Get(path)
	if absent(r) {
		if required {
			return nil, fieldErr(path, "missing")
		}
		return nil, nil
	}
	if r.Type != gjson.Number {
		return nil, fieldErr(path, "expected a number, got %s", r.Type)
	}
	if r.Num < 0 || math.IsNaN(r.Num) {
		return nil, fieldErr(path, "must not be negative")
	}
	v := r.Num
	return &v, nil
}

// countAt returns a non-negative integer; an absent optional field is 0.
func countAt(obj gjson.Result, path string, required bool) (int64, error) {
	r := obj.Get(path)
	if absent(r) {
		if required {
			return 0, fieldErr(path, "missing")
		}
		return 0, nil
	}
	n, reason := toCount(r)
	if reason != "" {
		return 0, fieldErr(path, "%s", reason)
	}
	return n, nil
}

// maxCount is 2^63, the first value an int64 cannot hold.
const maxCount = float64(1 << 63)

func toCount(r gjson.Result) (int64, string) {
	if r.Type != gjson.Number {
		return 0, fmt.Sprintf("expected an integer, got %s", r.Type)
	}
	if r.Num < 0 {
		return 0, "must not be negative"
	}
	if r.Num != math.Trunc(r.Num) {
		return 0, "expected an integer"
	}
	if r.Num >= maxCount {
		return 0, fmt.Sprintf("value %g out of range", r.Num)
	}
	return int64(r.Num), ""
}

// timeAt accepts RFC 3339 and HTTP dates (Flask's jsonify emits the latter).
func timeAt(obj gjson.Result, path string) (*time.Time, error) {
	r := obj.Get(path)
	if absent(r) {
		return nil, nil
	}
	if r.Type != gjson.String {
		return nil, fieldErr(path, "expected a timestamp string, got %s", r.Type)
	}
	if t, err := time.Parse(time.RFC3339Nano, r.Str); err == nil {
		return &t, nil
	}
	if t, err := http.ParseTime(r.Str); err == nil {
		return &t, nil
	}
	// Python isoformat() without a zone.
	if t, err := time.Parse("2006-01-02T15:04:05.999999", r.Str); err == nil {
		return &t, nil
	}
	return nil, fieldErr(path, "unrecognised timestamp %q", r.Str)
}
