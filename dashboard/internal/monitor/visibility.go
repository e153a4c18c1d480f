package monitor

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/activity"
)

// Gate is the set of inputs that decide whether the poll timer runs.
// The timer runs only when Active && Foreground && Network && !Held.
type Gate struct {
	Active     bool `json:"active"`
	Foreground bool `json:"foreground"`
	Network    bool `json:"network"`
	Held       bool `json:"held"`
}

// Open reports whether polling should run.
func (g Gate) Open() bool {
	return g.Active && g.Foreground && g.Network && !g.Held
}

// SetForeground reports whether anyone is watching. It never blocks and is
// safe to call from any goroutine, including a Handler.
func (m *Monitor) SetForeground(visible bool) {
	m.foreground.Store(visible)
	m.poke()
}

// SetNetworkAvailable reports whether the network path to the switch is up.
// It never blocks and is safe to call from any goroutine.
func (m *Monitor) SetNetworkAvailable(up bool) {
	m.network.Store(up)
	m.poke()
}

// Suspend holds the timer stopped until Resume, regardless of the other
// inputs.
func (m *Monitor) Suspend(ctx context.Context) error {
	return m.exec(ctx, func() {
		if m.held {
			return
		}
		m.held = true
		m.record("polling suspended by operator", activity.Warning)
		m.applyGate()
	})
}

// Resume releases a Suspend. If the rest of the gate is open the timer
// restarts with one immediate poll.
func (m *Monitor) Resume(ctx context.Context) error {
	return m.exec(ctx, func() {
		if !m.held {
			return
		}
		m.held = false
		m.record("polling resumed", activity.Info)
		m.applyGate()
	})
}

// poke posts a coalesced wake-up to the loop.
func (m *Monitor) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) gate() Gate {
	return Gate{
		Active:     m.active,
		Foreground: m.foreground.Load(),
		Network:    m.network.Load(),
		Held:       m.held,
	}
}

// applyGate starts or stops the timer to match the current inputs. It runs
// on the loop goroutine.
func (m *Monitor) applyGate() {
	g := m.gate()

	if g.Network != m.netSeen {
		m.netSeen = g.Network
		if g.Network {
			slog.Info("monitor: network restored")
			m.record("network connection restored", activity.Info)
		} else {
			slog.Warn("monitor: network lost")
			m.record("network connection lost", activity.Error)
			m.setConnectivity(Offline)
		}
	}

	switch open := g.Open(); {
	case open && m.ticker == nil:
		slog.Info("monitor: polling started", "interval", m.interval)
		m.ticker = m.clock.Ticker(m.interval)
		m.setConnectivity(Connecting)
		m.dispatch()
	case !open && m.ticker != nil:
		slog.Info("monitor: polling stopped",
			"active", g.Active, "foreground", g.Foreground, "network", g.Network, "held", g.Held)
		m.ticker.Stop()
		m.ticker = nil
		m.state = StateIdle
	}
	m.publish()
}
