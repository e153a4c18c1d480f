package types

// Schema locates each snapshot field in the switch's JSON responses.
// Every value is a gjson path. Server fields are relative to one element of
// the Servers array; all others are relative to the document root.
//
// Empty fields in an override Schema keep the default (see Merge).
type Schema struct {
	SwitchStatus     string `yaml:"switch_status"`
	SwitchUptime     string `yaml:"switch_uptime"`
	SwitchUptimeText string `yaml:"switch_uptime_text"`

	Servers           string `yaml:"servers"`
	ServerID          string `yaml:"server_id"`
	ServerName        string `yaml:"server_name"`
	ServerURL         string `yaml:"server_url"`
	ServerVersion     string `yaml:"server_version"`
	ServerWeight      string `yaml:"server_weight"`
	ServerActive      string `yaml:"server_active"`
	ServerLatency     string `yaml:"server_latency"`
	ServerLastChecked string `yaml:"server_last_checked"`
	ServerError       string `yaml:"server_error"`

	TotalRequests    string `yaml:"total_requests"`
	TotalLatency     string `yaml:"total_latency"`
	ErrorCount       string `yaml:"error_count"`
	RequestsByServer string `yaml:"requests_by_server"`

	// Toggle response fields.
	ToggleMessage string `yaml:"toggle_message"`
	ToggleError   string `yaml:"toggle_error"`
}

// DefaultSchema returns the field layout served by the inventory switch's
// /api/switch/status and /api/switch/servidor/{id}/toggle endpoints.
func DefaultSchema() Schema {
	return Schema{
		SwitchStatus:     "switch.status",
		SwitchUptime:     "switch.uptime_seconds",
		SwitchUptimeText: "switch.uptime_formatted",

		Servers:           "servidores",
		ServerID:          "id",
		ServerName:        "name",
		ServerURL:         "url",
		ServerVersion:     "version",
		ServerWeight:      "peso",
		ServerActive:      "activo",
		ServerLatency:     "latencia",
		ServerLastChecked: "ultimo_check",
		ServerError:       "error",

		TotalRequests:    "estadisticas.total_requests",
		TotalLatency:     "estadisticas.total_latency",
		ErrorCount:       "estadisticas.errores",
		RequestsByServer: "estadisticas.requests_por_servidor",

		ToggleMessage: "mensaje",
		ToggleError:   "error",
	}
}

// Merge returns s with every non-empty field of o applied on top.
func (s Schema) Merge(o Schema) Schema {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&s.SwitchStatus, o.SwitchStatus)
	pick(&s.SwitchUptime, o.SwitchUptime)
	pick(&s.SwitchUptimeText, o.SwitchUptimeText)
	pick(&s.Servers, o.Servers)
	pick(&s.ServerID, o.ServerID)
	pick(&s.ServerName, o.ServerName)
	pick(&s.ServerURL, o.ServerURL)
	pick(&s.ServerVersion, o.ServerVersion)
	pick(&s.ServerWeight, o.ServerWeight)
	pick(&s.ServerActive, o.ServerActive)
	pick(&s.ServerLatency, o.ServerLatency)
	pick(&s.ServerLastChecked, o.ServerLastChecked)
	pick(&s.ServerError, o.ServerError)
	pick(&s.TotalRequests, o.TotalRequests)
	pick(&s.TotalLatency, o.TotalLatency)
	pick(&s.ErrorCount, o.ErrorCount)
	pick(&s.RequestsByServer, o.RequestsByServer)
	pick(&s.ToggleMessage, o.ToggleMessage)
	pick(&s.ToggleError, o.ToggleError)
	return s
}
