// Package ws implements the WebSocket hub that streams fleetwatch state to
// dashboards.
//
// Hub is registered as a monitor.Handler: every snapshot, connectivity
// change and activity entry is broadcast to all connected clients as it
// happens. Run(ctx) adds an optional periodic full-status heartbeat and
// closes all connections when ctx is cancelled. ServeHTTP upgrades the
// connection, sends the full status immediately, then streams events.
//
// Message format sent to clients:
//
//	{"event": "status",       "data": { /* same schema as GET /api/v1/status */ }}
//	{"event": "snapshot",     "data": {"snapshot": {...}, "metrics": {...}}}
//	{"event": "connectivity", "data": {"connectivity": "online"}}
//	{"event": "activity",     "data": {"id": "...", "message": "...", "level": "info", ...}}
//
// OnPresence reports the viewer count on every connect and disconnect; the
// binary uses it to pause polling while nobody is watching.
//
// The upgrader accepts all origins. The endpoint is mounted at /ws/stream.
package ws
