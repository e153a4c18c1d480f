package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/activity"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/compute"
	"github.com/obsidianstack/fleetwatch/pkg/types"
)

// DefaultInterval is the poll period used when Start is given zero.
const DefaultInterval = 5 * time.Second

const defaultPollTimeout = 3 * time.Second

var (
	// ErrUnknownServer is returned by ToggleServer for an id that is not in
	// the current snapshot.
	ErrUnknownServer = errors.New("unknown server")

	// ErrIdle is returned by RefreshNow while the poll timer is stopped.
	ErrIdle = errors.New("monitor is idle")

	// ErrClosed is returned by commands issued after Run has exited.
	ErrClosed = errors.New("monitor closed")
)

// State is the lifecycle state of the poll loop.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Connectivity is the last known reachability of the switch.
type Connectivity string

const (
	Connecting Connectivity = "connecting"
	Online     Connectivity = "online"
	Offline    Connectivity = "offline"
)

// Client is the switch API used by the monitor. *scraper.Client implements it.
type Client interface {
	Fetch(ctx context.Context) (*types.Snapshot, error)
	Toggle(ctx context.Context, id string) (string, error)
}

// Evaluator inspects every poll outcome. It is called on the loop goroutine
// with the last-known snapshot (nil before the first success); reachable is
// false when the poll failed. Findings are passed to record and end up in
// the activity log.
type Evaluator interface {
	Evaluate(snap *types.Snapshot, m compute.Metrics, reachable bool, record func(string, activity.Level))
}

// Handler receives monitor notifications. Methods run on the loop goroutine
// and must not block.
type Handler interface {
	OnSnapshotUpdated(snap *types.Snapshot, m compute.Metrics)
	OnConnectivityChanged(c Connectivity)
	OnActivity(e activity.Entry)
}

// Status is a consistent copy of the monitor's state.
type Status struct {
	State        State           `json:"state"`
	Connectivity Connectivity    `json:"connectivity"`
	Snapshot     *types.Snapshot `json:"snapshot"`
	Metrics      compute.Metrics `json:"metrics"`
	LastError    string          `json:"last_error,omitempty"`
	LastUpdated  *time.Time      `json:"last_updated,omitempty"`
	Interval     time.Duration   `json:"interval_ns"`
	Discarded    int64           `json:"discarded_results"`
	Gate         Gate            `json:"gate"`
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock. Used by tests.
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithPollTimeout bounds each status fetch and toggle call.
func WithPollTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithEvaluator installs a poll outcome evaluator (the alert engine).
func WithEvaluator(e Evaluator) Option {
	return func(m *Monitor) { m.eval = e }
}

// Monitor polls one switch and reconciles its state. Create it with New and
// drive it with Run.
type Monitor struct {
	client  Client
	log     *activity.Log
	clock   Clock
	eval    Evaluator
	timeout time.Duration

	cmds    chan func()
	results chan func()
	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool

	// Inputs written from any goroutine, read by the loop on wake.
	foreground atomic.Bool
	network    atomic.Bool

	// Loop-owned state.
	ctx         context.Context
	active      bool
	held        bool
	netSeen     bool
	interval    time.Duration
	ticker      Ticker
	seq         uint64
	state       State
	conn        Connectivity
	snapshot    *types.Snapshot
	metrics     compute.Metrics
	lastErr     string
	lastUpdated *time.Time
	discarded   int64

	subMu   sync.Mutex
	subs    map[int]Handler
	nextSub int

	mu   sync.RWMutex
	view Status
}

// New creates an idle Monitor. log receives every activity entry; it is
// shared with readers such as the REST API.
func New(client Client, log *activity.Log, opts ...Option) *Monitor {
	m := &Monitor{
		client:   client,
		log:      log,
		clock:    realClock{},
		timeout:  defaultPollTimeout,
		cmds:     make(chan func()),
		results:  make(chan func()),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		netSeen:  true,
		interval: DefaultInterval,
		state:    StateIdle,
		conn:     Connecting,
		metrics:  compute.Derive(nil),
		subs:     make(map[int]Handler),
	}
	m.foreground.Store(true)
	m.network.Store(true)
	for _, opt := range opts {
		opt(m)
	}
	m.publish()
	return m
}

// Run processes commands, timer ticks and poll completions until ctx is
// cancelled. It may be called once.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("monitor: already running")
	}
	m.ctx = ctx
	defer close(m.done)
	defer func() {
		if m.ticker != nil {
			m.ticker.Stop()
			m.ticker = nil
		}
	}()

	slog.Info("monitor: loop started")
	for {
		var tick <-chan time.Time
		if m.ticker != nil {
			tick = m.ticker.Chan()
		}

		select {
		case <-ctx.Done():
			slog.Info("monitor: loop stopped")
			return nil
		case fn := <-m.cmds:
			fn()
		case fn := <-m.results:
			fn()
		case <-m.wake:
			m.applyGate()
		case <-tick:
			m.dispatch()
		}
	}
}

// Done is closed once Run has returned.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Start marks the monitor active and, if the gate is open, starts polling
// every interval with one immediate poll. Zero keeps the current interval.
// Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) error {
	return m.exec(ctx, func() {
		if m.ticker == nil && interval > 0 {
			m.interval = interval
		}
		m.active = true
		m.applyGate()
	})
}

// Stop cancels the timer and enters Idle. Polls already in flight complete
// but their results are discarded.
func (m *Monitor) Stop(ctx context.Context) error {
	return m.exec(ctx, func() {
		m.active = false
		m.applyGate()
	})
}

// RefreshNow dispatches a poll immediately. It returns ErrIdle, and does
// nothing, while the timer is stopped.
func (m *Monitor) RefreshNow(ctx context.Context) error {
	var idle bool
	err := m.exec(ctx, func() {
		if m.ticker == nil {
			idle = true
			return
		}
		m.dispatch()
	})
	if err != nil {
		return err
	}
	if idle {
		return ErrIdle
	}
	return nil
}

// SetInterval changes the poll period. A running timer is restarted with
// the new period; no extra poll is dispatched.
func (m *Monitor) SetInterval(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("monitor: interval must be positive, got %v", d)
	}
	return m.exec(ctx, func() {
		if d == m.interval {
			return
		}
		m.interval = d
		if m.ticker != nil {
			m.ticker.Stop()
			m.ticker = m.clock.Ticker(d)
		}
		slog.Info("monitor: poll interval changed", "interval", d)
		m.publish()
	})
}

// ToggleServer asks the switch to flip server id. An id missing from the
// current snapshot fails with ErrUnknownServer without contacting the
// switch. On success the switch's message is logged and one reconcile poll
// is dispatched unless the monitor is idle. Failures are logged, not retried.
func (m *Monitor) ToggleServer(ctx context.Context, id string) error {
	var known bool
	err := m.exec(ctx, func() {
		_, known = m.snapshot.Server(id)
		if !known {
			m.record(fmt.Sprintf("toggle failed: unknown server %q", id), activity.Error)
		}
	})
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("toggle %q: %w", id, ErrUnknownServer)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	msg, toggleErr := m.client.Toggle(callCtx, id)
	cancel()

	// The outcome is recorded even if the caller has gone away.
	err = m.exec(context.WithoutCancel(ctx), func() {
		if toggleErr != nil {
			slog.Warn("monitor: toggle failed", "server", id, "err", toggleErr)
			m.record(fmt.Sprintf("toggle %s failed: %v", id, toggleErr), activity.Error)
			return
		}
		slog.Info("monitor: server toggled", "server", id)
		m.record(msg, activity.Info)
		if m.ticker != nil {
			m.dispatch()
		}
	})
	if err != nil {
		return err
	}
	if toggleErr != nil {
		return fmt.Errorf("toggle %q: %w", id, toggleErr)
	}
	return nil
}

// ClearActivityLog empties the activity log; the clear itself is recorded.
func (m *Monitor) ClearActivityLog(ctx context.Context) error {
	return m.exec(ctx, func() {
		m.notifyActivity(m.log.Clear())
	})
}

// Status returns a copy of the current state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// CurrentSnapshot returns the last successfully fetched snapshot, or nil.
func (m *Monitor) CurrentSnapshot() *types.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.Snapshot
}

// Activity returns the activity log, newest first.
func (m *Monitor) Activity() []activity.Entry {
	return m.log.Snapshot()
}

// Subscribe registers h for notifications and returns a function that
// removes it. It is safe to call from any goroutine, including from inside
// a handler.
func (m *Monitor) Subscribe(h Handler) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = h
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

// exec runs fn on the loop goroutine and waits for it to finish.
func (m *Monitor) exec(ctx context.Context, fn func()) error {
	ack := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(ack) }:
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// dispatch starts one poll tagged with the next sequence number.
func (m *Monitor) dispatch() {
	m.seq++
	seq := m.seq
	m.state = StatePolling
	m.publish()

	base := m.ctx
	go func() {
		ctx, cancel := context.WithTimeout(base, m.timeout)
		snap, err := m.client.Fetch(ctx)
		cancel()

		select {
		case m.results <- func() { m.complete(seq, snap, err) }:
		case <-m.done:
		}
	}()
}

// complete applies a poll result if it is still current.
func (m *Monitor) complete(seq uint64, snap *types.Snapshot, err error) {
	if seq != m.seq || m.ticker == nil {
		m.discarded++
		slog.Debug("monitor: discarded stale poll result",
			"seq", seq, "latest", m.seq, "idle", m.ticker == nil)
		m.publish()
		return
	}

	if err != nil {
		slog.Warn("monitor: poll failed", "err", err)
		m.state = StateOffline
		m.lastErr = err.Error()
		m.setConnectivity(Offline)
		m.publish()
		m.record(fmt.Sprintf("status poll failed: %v", err), activity.Error)
		m.evaluate(false)
		return
	}

	now := m.clock.Now()
	m.snapshot = snap
	m.metrics = compute.Derive(snap)
	m.state = StateOnline
	m.lastErr = ""
	m.lastUpdated = &now
	m.publish()

	for _, h := range m.handlers() {
		h.OnSnapshotUpdated(snap, m.metrics)
	}
	m.setConnectivity(Online)
	m.record("status updated", activity.Info)
	m.evaluate(true)
}

func (m *Monitor) evaluate(reachable bool) {
	if m.eval == nil {
		return
	}
	m.eval.Evaluate(m.snapshot, m.metrics, reachable, m.record)
}

// record appends to the activity log and notifies subscribers.
func (m *Monitor) record(msg string, level activity.Level) {
	m.notifyActivity(m.log.Record(msg, level))
}

func (m *Monitor) notifyActivity(e activity.Entry) {
	for _, h := range m.handlers() {
		h.OnActivity(e)
	}
}

func (m *Monitor) setConnectivity(c Connectivity) {
	if m.conn == c {
		return
	}
	m.conn = c
	m.publish()
	for _, h := range m.handlers() {
		h.OnConnectivityChanged(c)
	}
}

func (m *Monitor) handlers() []Handler {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	out := make([]Handler, 0, len(m.subs))
	for _, h := range m.subs {
		out = append(out, h)
	}
	return out
}

// publish copies loop-owned state into the read view.
func (m *Monitor) publish() {
	v := Status{
		State:        m.state,
		Connectivity: m.conn,
		Snapshot:     m.snapshot,
		Metrics:      m.metrics,
		LastError:    m.lastErr,
		LastUpdated:  m.lastUpdated,
		Interval:     m.interval,
		Discarded:    m.discarded,
		Gate:         m.gate(),
	}
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
}
