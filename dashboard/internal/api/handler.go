package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/activity"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/alerts"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/compute"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/monitor"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/probe"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/scraper"
)

// commandTimeout bounds how long a handler waits for the monitor loop.
// Toggle includes the switch round trip, which the monitor bounds itself.
const commandTimeout = 10 * time.Second

// Monitor is the part of *monitor.Monitor the API drives.
type Monitor interface {
	Status() monitor.Status
	Activity() []activity.Entry
	ToggleServer(ctx context.Context, id string) error
	RefreshNow(ctx context.Context) error
	ClearActivityLog(ctx context.Context) error
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
}

// AlertSource lists firing and recently resolved alerts.
type AlertSource interface {
	Active() []*alerts.Alert
}

// CertSource reports the status endpoint's certificate.
type CertSource interface {
	CertStatus(ctx context.Context) *probe.CertStatus
}

// Deps are the collaborators behind the routes. Alerts and Cert may be nil.
type Deps struct {
	Monitor Monitor
	Alerts  AlertSource
	Cert    CertSource
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	mon    Monitor
	alerts AlertSource
	cert   CertSource
	mux    *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(d Deps) http.Handler {
	h := &Handler{mon: d.Monitor, alerts: d.Alerts, cert: d.Cert, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/servers", h.listServers)
	h.mux.HandleFunc("/api/v1/servers/", h.serverAction) // subtree: {id} or {id}/toggle
	h.mux.HandleFunc("/api/v1/refresh", h.refresh)
	h.mux.HandleFunc("/api/v1/activity", h.activityLog)
	h.mux.HandleFunc("/api/v1/suspend", h.suspend)
	h.mux.HandleFunc("/api/v1/resume", h.resume)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/cert", h.certStatus)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// status returns GET /api/v1/status: the monitor's full read view.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, toStatusResponse(h.mon.Status()))
}

// listServers returns GET /api/v1/servers: the latest snapshot's servers.
func (h *Handler) listServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := h.mon.Status()
	jsonResp(w, http.StatusOK, toServerResponses(st))
}

// serverAction handles GET /api/v1/servers/{id} and
// POST /api/v1/servers/{id}/toggle.
func (h *Handler) serverAction(w http.ResponseWriter, r *http.Request) {
	// Split the escaped path so an id containing "/" arrives as %2F.
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v1/servers/")
	if rest == "" {
		h.listServers(w, r)
		return
	}

	rawID, action, _ := strings.Cut(rest, "/")
	id, err := url.PathUnescape(rawID)
	if err != nil || id == "" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	switch action {
	case "":
		h.getServer(w, r, id)
	case "toggle":
		h.toggle(w, r, id)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) getServer(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := h.mon.Status()
	for _, s := range toServerResponses(st) {
		if s.ID == id {
			jsonResp(w, http.StatusOK, s)
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "server not found")
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := h.mon.ToggleServer(ctx, id); err != nil {
		code := commandStatus(err)
		slog.Warn("api: toggle failed", "server", id, "code", code, "err", err)
		jsonErr(w, code, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, ToggleResponse{ServerID: id, Toggled: true})
}

// refresh handles POST /api/v1/refresh: one immediate poll.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.command(r, h.mon.RefreshNow); err != nil {
		jsonErr(w, commandStatus(err), err.Error())
		return
	}
	jsonResp(w, http.StatusAccepted, messageResponse{Message: "refresh dispatched"})
}

// activityLog handles GET and DELETE /api/v1/activity.
func (h *Handler) activityLog(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, h.mon.Activity())
	case http.MethodDelete:
		if err := h.command(r, h.mon.ClearActivityLog); err != nil {
			jsonErr(w, commandStatus(err), err.Error())
			return
		}
		jsonResp(w, http.StatusOK, h.mon.Activity())
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// suspend handles POST /api/v1/suspend.
func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.command(r, h.mon.Suspend); err != nil {
		jsonErr(w, commandStatus(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toStatusResponse(h.mon.Status()))
}

// resume handles POST /api/v1/resume.
func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.command(r, h.mon.Resume); err != nil {
		jsonErr(w, commandStatus(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toStatusResponse(h.mon.Status()))
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// certStatus returns GET /api/v1/cert. The list is empty for plain-HTTP
// status endpoints.
func (h *Handler) certStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := make([]*probe.CertStatus, 0, 1)
	if h.cert != nil {
		if cs := h.cert.CertStatus(r.Context()); cs != nil {
			out = append(out, cs)
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := h.mon.Status()
	fams := compute.Families(compute.Exposition{
		Snapshot:     st.Snapshot,
		Metrics:      st.Metrics,
		Connectivity: string(st.Connectivity),
		Discarded:    st.Discarded,
	})

	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.WriteHeader(http.StatusOK)
	for _, f := range fams {
		if _, err := expfmt.MetricFamilyToText(w, f); err != nil {
			slog.Warn("api: write metrics", "family", f.GetName(), "err", err)
			return
		}
	}
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) command(r *http.Request, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	return fn(ctx)
}

// commandStatus maps a monitor or switch error to an HTTP status code.
func commandStatus(err error) int {
	var se *scraper.Error
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, monitor.ErrUnknownServer):
		return http.StatusNotFound
	case errors.Is(err, monitor.ErrIdle):
		return http.StatusConflict
	case errors.Is(err, monitor.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
