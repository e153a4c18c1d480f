package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// switchBody is a trimmed copy of a real /api/switch/status response.
const switchBody = `{
  "switch": {"status": "Switch de Inventario Operativo", "version": "1.0",
             "uptime_seconds": 3723.51, "uptime_formatted": "1:02:03"},
  "servidores": [
    {"id": "servidor_v1", "name": "Servidor Principal v1.0", "url": "http://127.0.0.1:5000",
     "version": "1.0", "activo": true, "peso": 70, "latencia": 12.5,
     "ultimo_check": "Mon, 06 Jan 2025 10:00:00 GMT",
     "health_check_url": "http://127.0.0.1:5000/api/status"},
    {"id": "servidor_v2", "name": "Servidor Backup v1.1", "url": "http://127.0.0.1:5003",
     "version": "1.1", "activo": false, "peso": 30,
     "ultimo_check": "2025-01-06T10:00:01Z", "error": "connection refused"}
  ],
  "estadisticas": {
    "total_requests": 40,
    "requests_por_servidor": {"servidor_v2": 10, "servidor_v1": 30},
    "errores": 2,
    "health_checks": 7
  },
  "timestamp": "2025-01-06T10:00:02"
}`

func TestDecode_SwitchBody(t *testing.T) {
	snap, err := Decode([]byte(switchBody), DefaultSchema())
	require.NoError(t, err)

	assert.Equal(t, SwitchOnline, snap.Switch.Status)
	assert.Equal(t, "Switch de Inventario Operativo", snap.Switch.StatusText)
	assert.Equal(t, int64(3723), snap.Switch.UptimeSeconds)
	assert.Equal(t, "1:02:03", snap.Switch.UptimeText)

	require.Len(t, snap.Servers, 2)
	v1 := snap.Servers[0]
	assert.Equal(t, "servidor_v1", v1.ID)
	assert.Equal(t, "Servidor Principal v1.0", v1.Name)
	assert.True(t, v1.Active)
	assert.Equal(t, 70, v1.WeightPercent)
	require.NotNil(t, v1.LatencyMs)
	assert.InDelta(t, 12.5, *v1.LatencyMs, 0.001)
	require.NotNil(t, v1.LastCheckedAt)
	assert.True(t, v1.LastCheckedAt.Equal(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)))
	assert.Empty(t, v1.LastError)

	v2 := snap.Servers[1]
	assert.False(t, v2.Active)
	assert.Nil(t, v2.LatencyMs)
	assert.Equal(t, "connection refused", v2.LastError)

	assert.Equal(t, int64(40), snap.Statistics.TotalRequests)
	assert.Equal(t, int64(0), snap.Statistics.TotalLatencyMs, "absent total_latency defaults to 0")
	assert.Equal(t, int64(2), snap.Statistics.ErrorCount)
	assert.Equal(t, []RequestCount{
		{ServerID: "servidor_v2", Count: 10},
		{ServerID: "servidor_v1", Count: 30},
	}, snap.Statistics.RequestsByServer, "document order is preserved")
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
	}{
		{"not json", `{"switch":`, "$"},
		{"array root", `[]`, "$"},
		{"missing switch status", `{"switch": {}, "servidores": [], "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "switch.status"},
		{"servers not array", `{"switch": {"status": "ok"}, "servidores": {}, "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "servidores"},
		{"missing servers", `{"switch": {"status": "ok"}, "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "servidores"},
		{"server active mistyped", `{"switch": {"status": "ok"}, "servidores": [{"id": "a", "name": "A", "activo": "yes"}], "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "servidores.0.activo"},
		{"server id missing", `{"switch": {"status": "ok"}, "servidores": [{"name": "A", "activo": true}], "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "servidores.0.id"},
		{"duplicate id", `{"switch": {"status": "ok"}, "servidores": [{"id": "a", "name": "A", "activo": true}, {"id": "a", "name": "B", "activo": true}], "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "servidores.1.id"},
		{"weight out of range", `{"switch": {"status": "ok"}, "servidores": [{"id": "a", "name": "A", "activo": true, "peso": 140}], "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "servidores.0.peso"},
		{"negative latency", `{"switch": {"status": "ok"}, "servidores": [{"id": "a", "name": "A", "activo": true, "latencia": -1}], "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "servidores.0.latencia"},
		{"bad timestamp", `{"switch": {"status": "ok"}, "servidores": [{"id": "a", "name": "A", "activo": true, "ultimo_check": "yesterday"}], "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "servidores.0.ultimo_check"},
		{"total requests missing", `{"switch": {"status": "ok"}, "servidores": [], "estadisticas": {"requests_por_servidor": {}}}`, "estadisticas.total_requests"},
		{"total requests fractional", `{"switch": {"status": "ok"}, "servidores": [], "estadisticas": {"total_requests": 1.5, "requests_por_servidor": {}}}`, "estadisticas.total_requests"},
		{"request count negative", `{"switch": {"status": "ok"}, "servidores": [], "estadisticas": {"total_requests": 1, "requests_por_servidor": {"a": -1}}}`, "estadisticas.requests_por_servidor.a"},
		{"total requests overflow", `{"switch": {"status": "ok"}, "servidores": [], "estadisticas": {"total_requests": 1e19, "requests_por_servidor": {}}}`, "estadisticas.total_requests"},
		{"request count overflow", `{"switch": {"status": "ok"}, "servidores": [], "estadisticas": {"total_requests": 1, "requests_por_servidor": {"a": 9223372036854775808}}}`, "estadisticas.requests_por_servidor.a"},
		{"uptime overflow", `{"switch": {"status": "ok", "uptime_seconds": 1e300}, "servidores": [], "estadisticas": {"total_requests": 0, "requests_por_servidor": {}}}`, "switch.uptime_seconds"},
		{"duplicate request key", `{"switch": {"status": "ok"}, "servidores": [], "estadisticas": {"total_requests": 2, "requests_por_servidor": {"a": 1, "a": 1}}}`, "estadisticas.requests_por_servidor.a"},
		{"requests missing", `{"switch": {"status": "ok"}, "servidores": [], "estadisticas": {"total_requests": 0}}`, "estadisticas.requests_por_servidor"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.body), DefaultSchema())
			require.Error(t, err)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "want *FieldError, got %T", err)
			assert.Equal(t, tc.path, fe.Path)
		})
	}
}

func TestDecode_LargestCountAccepted(t *testing.T) {
	body := `{"switch": {"status": "ok"}, "servidores": [],
	          "estadisticas": {"total_requests": 9007199254740992, "requests_por_servidor": {}}}`
	snap, err := Decode([]byte(body), DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, int64(1)<<53, snap.Statistics.TotalRequests)
}

func TestDecode_OverflowReason(t *testing.T) {
	body := `{"switch": {"status": "ok"}, "servidores": [],
	          "estadisticas": {"total_requests": 1e19, "requests_por_servidor": {}}}`
	_, err := Decode([]byte(body), DefaultSchema())
	var fe *FieldError
	require.True(t, errors.As(err, &fe), "want *FieldError, got %v", err)
	assert.Contains(t, fe.Reason, "out of range")
}

func TestDecode_OrphanedRequestsKept(t *testing.T) {
	body := `{"switch": {"status": "ok"}, "servidores": [{"id": "a", "name": "A", "activo": true}],
	          "estadisticas": {"total_requests": 5, "requests_por_servidor": {"a": 3, "ghost": 2}}}`
	snap, err := Decode([]byte(body), DefaultSchema())
	require.NoError(t, err)
	require.Len(t, snap.Statistics.RequestsByServer, 2)
	assert.Equal(t, "ghost", snap.Statistics.RequestsByServer[1].ServerID)
}

func TestDecode_CustomSchema(t *testing.T) {
	body := `{"lb": {"state": "OFFLINE"},
	          "pool": [{"key": "x", "label": "X", "enabled": false, "weight": 50}],
	          "stats": {"requests": 0, "latency_total": 0, "by_backend": {}}}`
	schema := DefaultSchema().Merge(Schema{
		SwitchStatus:     "lb.state",
		Servers:          "pool",
		ServerID:         "key",
		ServerName:       "label",
		ServerActive:     "enabled",
		ServerWeight:     "weight",
		TotalRequests:    "stats.requests",
		TotalLatency:     "stats.latency_total",
		RequestsByServer: "stats.by_backend",
	})

	snap, err := Decode([]byte(body), schema)
	require.NoError(t, err)
	assert.Equal(t, SwitchOffline, snap.Switch.Status)
	require.Len(t, snap.Servers, 1)
	assert.Equal(t, "x", snap.Servers[0].ID)
	assert.Equal(t, 50, snap.Servers[0].WeightPercent)
	assert.Empty(t, snap.Statistics.RequestsByServer)
}

func TestParseSwitchStatus(t *testing.T) {
	assert.Equal(t, SwitchUnknown, ParseSwitchStatus(""))
	assert.Equal(t, SwitchUnknown, ParseSwitchStatus(" Unknown "))
	assert.Equal(t, SwitchOffline, ParseSwitchStatus("down"))
	assert.Equal(t, SwitchOnline, ParseSwitchStatus("Switch de Inventario Operativo"))
}

func TestToggleReply(t *testing.T) {
	msg, errText := ToggleReply([]byte(`{"success": true, "mensaje": "Servidor a activado"}`), DefaultSchema())
	assert.Equal(t, "Servidor a activado", msg)
	assert.Empty(t, errText)

	msg, errText = ToggleReply([]byte(`{"success": false, "error": "Servidor z no encontrado"}`), DefaultSchema())
	assert.Empty(t, msg)
	assert.Equal(t, "Servidor z no encontrado", errText)

	msg, errText = ToggleReply([]byte(`<html>`), DefaultSchema())
	assert.Empty(t, msg)
	assert.Empty(t, errText)
}

func TestSnapshot_ServerLookup(t *testing.T) {
	snap := &Snapshot{Servers: []Server{{ID: "a", Active: true}, {ID: "b"}}}
	_, ok := snap.Server("b")
	assert.True(t, ok)
	_, ok = snap.Server("c")
	assert.False(t, ok)
	assert.Equal(t, 1, snap.ActiveCount())

	var nilSnap *Snapshot
	_, ok = nilSnap.Server("a")
	assert.False(t, ok)
}
