package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/activity"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/alerts"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/api"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/auth"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/config"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/healthsrv"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/monitor"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/probe"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/scraper"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/ws"
)

// heartbeat is how often the hub re-sends the full status to every viewer.
const heartbeat = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard UI static files from this directory (e.g. ui/dist); leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("fleetwatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"status_endpoint", cfg.Monitor.StatusEndpoint,
		"poll_interval", cfg.Monitor.PollInterval,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := scraper.New(cfg.Monitor)
	if err != nil {
		slog.Error("failed to build switch client", "err", err)
		os.Exit(1)
	}

	alertEngine := alerts.New(cfg.Alerts)
	mon := monitor.New(client, activity.New(),
		monitor.WithPollTimeout(cfg.Monitor.PollTimeout),
		monitor.WithEvaluator(alertEngine),
	)
	go mon.Run(ctx) //nolint:errcheck

	// WebSocket hub: pushes every monitor notification to the UI.
	hub := ws.New(mon, heartbeat)
	mon.Subscribe(hub)
	if cfg.Monitor.PauseWhenUnwatched {
		mon.SetForeground(false)
		hub.OnPresence(func(viewers int) { mon.SetForeground(viewers > 0) })
	}
	go hub.Run(ctx)

	go probe.NewNetwork(cfg.Monitor.NetworkProbe).Run(ctx, mon)

	current := cfg
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			applyReload(ctx, current, updated, mon, alertEngine)
			current = updated
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	checker := auth.Checker{
		Mode:   cfg.Server.Auth.Mode,
		Header: cfg.Server.Auth.EffectiveHeader(),
		Key:    cfg.Server.Auth.Key(),
	}

	// Optional gRPC health listener.
	var health *healthsrv.Server
	if cfg.Server.GRPCPort > 0 {
		health = healthsrv.New(checker)
		mon.Subscribe(health)

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port", "port", cfg.Server.GRPCPort, "err", err)
			os.Exit(1)
		}
		go func() {
			if err := health.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	// Combined HTTP server: REST API, metrics and WebSocket hub on HTTPPort.
	handler := api.New(api.Deps{
		Monitor: mon,
		Alerts:  alertEngine,
		Cert:    probe.NewCertChecker(cfg.Monitor),
	})
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", checker.Middleware(handler))
	httpMux.Handle("/metrics", handler)
	httpMux.Handle("/ws/stream", hub)

	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	if err := mon.Start(ctx, cfg.Monitor.PollInterval); err != nil {
		slog.Error("failed to start monitor", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("fleetwatch shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	if health != nil {
		health.Stop()
	}
	<-mon.Done()
}

// applyReload pushes the live-reloadable parts of a new config. Everything
// else needs a restart.
func applyReload(ctx context.Context, old, updated *config.Config, mon *monitor.Monitor, eng *alerts.Engine) {
	if updated.Monitor.PollInterval != old.Monitor.PollInterval {
		if err := mon.SetInterval(ctx, updated.Monitor.PollInterval); err != nil {
			slog.Warn("config reload: poll interval not applied", "err", err)
		} else {
			slog.Info("config reload: poll interval applied", "interval", updated.Monitor.PollInterval)
		}
	}

	eng.SetRules(updated.Alerts.Rules)
	slog.Info("config reload: alert rules applied", "rules", len(updated.Alerts.Rules))

	if updated.Monitor.StatusEndpoint != old.Monitor.StatusEndpoint ||
		updated.Monitor.ToggleEndpoint != old.Monitor.ToggleEndpoint ||
		updated.Monitor.Auth != old.Monitor.Auth ||
		updated.Server.HTTPPort != old.Server.HTTPPort ||
		updated.Server.GRPCPort != old.Server.GRPCPort {
		slog.Warn("config reload: endpoint, auth or port changes take effect after restart")
	}
}
