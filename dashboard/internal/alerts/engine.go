package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/activity"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/compute"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/config"
	"github.com/obsidianstack/fleetwatch/pkg/types"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Condition  string     `json:"condition"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Engine evaluates alert rules after every poll and delivers webhook
// notifications when rules fire or resolve. It satisfies monitor.Evaluator.
//
// Engine is safe for concurrent use.
type Engine struct {
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	rules    []config.AlertRule
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
}

// New creates an Engine from the alerts configuration.
// An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// SetRules replaces the rule set. Firing alerts for rules that no longer
// exist are dropped without a resolve notification.
func (e *Engine) SetRules(rules []config.AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	keep := make(map[string]bool, len(rules))
	for _, r := range rules {
		keep[r.Name] = true
	}
	for name := range e.active {
		if !keep[name] {
			delete(e.active, name)
		}
	}
}

// Evaluate tests all configured rules against one poll outcome.
// Fired and resolved alerts are passed to record and webhook delivery is
// triggered asynchronously.
func (e *Engine) Evaluate(snap *types.Snapshot, m compute.Metrics, reachable bool, record func(string, activity.Level)) {
	in := input{snap: snap, metrics: m, reachable: reachable}
	now := e.now()

	var fired, resolved []Alert

	e.mu.Lock()
	for _, rule := range e.rules {
		fires, value := evalCondition(rule.Condition, in)
		a, firing := e.active[rule.Name]

		switch {
		case fires && !firing:
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if last, ok := e.lastFire[rule.Name]; ok && now.Sub(last) < cooldown {
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:        uuid.NewString(),
				RuleName:  rule.Name,
				Condition: rule.Condition,
				Severity:  sev,
				Value:     value,
				Message:   fmt.Sprintf("alert %s fired: %s (value %.2f)", rule.Name, rule.Condition, value),
				FiredAt:   now,
				State:     StateFiring,
			}
			e.active[rule.Name] = a
			e.lastFire[rule.Name] = now
			fired = append(fired, *a)

		case !fires && firing:
			ts := now
			a.State = StateResolved
			a.ResolvedAt = &ts
			a.Value = value
			a.Message = fmt.Sprintf("alert %s resolved: %s (value %.2f)", rule.Name, rule.Condition, value)
			delete(e.active, rule.Name)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			resolved = append(resolved, *a)
		}
	}
	e.mu.Unlock()

	if len(fired)+len(resolved) == 0 {
		return
	}
	fleet := fleetContext(in)

	for i := range fired {
		a := fired[i]
		slog.Warn("alert fired", "rule", a.RuleName, "value", a.Value, "severity", a.Severity)
		level := activity.Warning
		if a.Severity == "critical" {
			level = activity.Error
		}
		record(a.Message, level)
		go e.deliver(notification{Alert: a, Fleet: fleet})
	}
	for i := range resolved {
		a := resolved[i]
		slog.Info("alert resolved", "rule", a.RuleName)
		record(a.Message, activity.Info)
		go e.deliver(notification{Alert: a, Fleet: fleet})
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
