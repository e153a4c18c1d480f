package probe

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/config"
)

// Reporter receives network availability changes.
type Reporter interface {
	SetNetworkAvailable(up bool)
}

// Network dials a TCP address on an interval and reports whether the
// network path to the switch is up.
type Network struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewNetwork returns a probe for cfg. Zero durations fall back to the
// config defaults.
func NewNetwork(cfg config.ProbeConfig) *Network {
	n := &Network{
		addr:     cfg.Address,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		dial:     (&net.Dialer{}).DialContext,
	}
	if n.interval <= 0 {
		n.interval = config.DefaultProbeInterval
	}
	if n.timeout <= 0 {
		n.timeout = config.DefaultProbeTimeout
	}
	return n
}

// Enabled reports whether an address is configured.
func (n *Network) Enabled() bool { return n.addr != "" }

// Run probes immediately and then every interval until ctx is cancelled.
// r is called on the first result and on every change after that.
// Run returns at once when the probe is disabled.
func (n *Network) Run(ctx context.Context, r Reporter) {
	if !n.Enabled() {
		return
	}
	slog.Info("probe: network probe started", "address", n.addr, "interval", n.interval)

	t := time.NewTicker(n.interval)
	defer t.Stop()

	var (
		last  bool
		known bool
	)
	for {
		up := n.check(ctx)
		if ctx.Err() != nil {
			return
		}
		if !known || up != last {
			if known {
				slog.Info("probe: network changed", "address", n.addr, "up", up)
			}
			known, last = true, up
			r.SetNetworkAvailable(up)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (n *Network) check(ctx context.Context) bool {
	dctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	conn, err := n.dial(dctx, "tcp", n.addr)
	if err != nil {
		slog.Debug("probe: dial failed", "address", n.addr, "err", err)
		return false
	}
	conn.Close()
	return true
}
