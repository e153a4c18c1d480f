package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/fleetwatch/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval  = 5 * time.Second
	DefaultPollTimeout   = 3 * time.Second
	DefaultProbeInterval = 10 * time.Second
	DefaultProbeTimeout  = 2 * time.Second
	DefaultGRPCPort      = 50051
	DefaultHTTPPort      = 8080
	DefaultAPIKeyHeader  = "x-api-key"
)

// Config is the top-level dashboard configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Server  ServerConfig  `yaml:"server"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// MonitorConfig holds everything needed to watch and control one switch.
type MonitorConfig struct {
	// StatusEndpoint is the full URL of the switch status document.
	StatusEndpoint string `yaml:"status_endpoint"`

	// ToggleEndpoint is the URL POSTed to flip a server. "{id}" is replaced
	// with the escaped server id; without it, "/<id>" is appended.
	ToggleEndpoint string `yaml:"toggle_endpoint"`

	// PollInterval controls how often the status endpoint is fetched.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollTimeout bounds each status fetch and toggle request.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// PauseWhenUnwatched stops polling while no dashboard is connected.
	PauseWhenUnwatched bool `yaml:"pause_when_unwatched"`

	// Auth configures how fleetwatch authenticates to the switch.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`

	// NetworkProbe checks that the network path to the switch is up.
	NetworkProbe ProbeConfig `yaml:"network_probe"`

	// Wire overrides JSON paths of the switch's documents.
	Wire types.Schema `yaml:"wire"`
}

// Schema returns the default wire schema with Wire overrides applied.
func (m MonitorConfig) Schema() types.Schema {
	return types.DefaultSchema().Merge(m.Wire)
}

// ProbeConfig configures the TCP reachability probe.
type ProbeConfig struct {
	// Address is a host:port dialled to test the network. Empty disables the probe.
	Address  string        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AuthConfig specifies the authentication mode used against the switch.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds TLS dial options for the switch endpoints.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerConfig holds the listeners fleetwatch exposes.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort is the port of the gRPC health service. 0 disables it.
	GRPCPort int `yaml:"grpc_port"`

	// Auth configures how incoming commands are authenticated.
	Auth ServerAuthConfig `yaml:"auth"`
}

// ServerAuthConfig controls client authentication on fleetwatch's own surfaces.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) to read the key from.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultAPIKeyHeader.
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIKeyHeader
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "error_pct > 5", "active_servers < 2",
	// "switch == offline".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			PollInterval: DefaultPollInterval,
			PollTimeout:  DefaultPollTimeout,
			NetworkProbe: ProbeConfig{
				Interval: DefaultProbeInterval,
				Timeout:  DefaultProbeTimeout,
			},
		},
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	m := cfg.Monitor
	if err := checkURL("monitor.status_endpoint", m.StatusEndpoint); err != nil {
		return err
	}
	if err := checkURL("monitor.toggle_endpoint", strings.ReplaceAll(m.ToggleEndpoint, "{id}", "x")); err != nil {
		return err
	}
	if m.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if m.PollTimeout <= 0 {
		return fmt.Errorf("monitor.poll_timeout must be positive")
	}
	switch m.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("monitor.auth.mode %q unknown: want mtls|apikey|bearer|basic|none", m.Auth.Mode)
	}
	if m.Auth.Mode == "apikey" && m.Auth.Header == "" {
		return fmt.Errorf("monitor.auth.header is required for apikey mode")
	}
	if m.Auth.Mode == "mtls" && (m.Auth.CertFile == "" || m.Auth.KeyFile == "") {
		return fmt.Errorf("monitor.auth.cert_file and key_file are required for mtls mode")
	}
	if m.NetworkProbe.Address != "" {
		if m.NetworkProbe.Interval <= 0 {
			return fmt.Errorf("monitor.network_probe.interval must be positive")
		}
		if m.NetworkProbe.Timeout <= 0 {
			return fmt.Errorf("monitor.network_probe.timeout must be positive")
		}
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", cfg.Server.GRPCPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}

func checkURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", field)
	}
	return nil
}
